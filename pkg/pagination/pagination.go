package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Params holds the _count/_offset window of a search request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext extracts pagination parameters from the echo context.
// FHIR-style _count/_offset take precedence over limit/offset.
func FromContext(c echo.Context) Params {
	return Parse(
		firstNonEmpty(c.QueryParam("_count"), c.QueryParam("limit")),
		firstNonEmpty(c.QueryParam("_offset"), c.QueryParam("offset")),
	)
}

// Parse builds Params from raw count and offset strings, clamping to
// [1, MaxLimit] and [0, ∞) respectively.
func Parse(count, offset string) Params {
	limit, _ := strconv.Atoi(count)
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	off, _ := strconv.Atoi(offset)
	if off < 0 {
		off = 0
	}
	return Params{Limit: limit, Offset: off}
}

// Bounds returns the half-open [start, end) slice window for total items.
func (p Params) Bounds(total int) (start, end int) {
	start = p.Offset
	if start > total {
		start = total
	}
	end = start + p.Limit
	if end > total {
		end = total
	}
	return start, end
}

// Page returns the window of items selected by p.
func Page[T any](items []T, p Params) []T {
	start, end := p.Bounds(len(items))
	return items[start:end]
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Limit < total-p.Offset
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

// PreviousOffset returns the offset for the previous page, never negative.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}

// Link is a single FHIR Bundle link entry.
type Link struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// Links generates self/next/previous Bundle links for a search over basePath.
func (p Params) Links(basePath string, total int) []Link {
	links := []Link{{Relation: "self", URL: p.url(basePath, p.Offset)}}
	if p.HasNext(total) {
		links = append(links, Link{Relation: "next", URL: p.url(basePath, p.Offset+p.Limit)})
	}
	if p.HasPrevious() {
		links = append(links, Link{Relation: "previous", URL: p.url(basePath, p.PreviousOffset())})
	}
	return links
}

func (p Params) url(basePath string, offset int) string {
	return fmt.Sprintf("%s?_offset=%d&_count=%d", basePath, offset, p.Limit)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

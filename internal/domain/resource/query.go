package resource

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/planengine/internal/platform/fhir"
	"github.com/ehr/planengine/internal/platform/store"
)

// Query is a search over one resource type. Name and Title match as
// case-insensitive substrings, Status and URL exactly, Filter is FHIRPath.
type Query struct {
	Name   string
	Title  string
	Status string
	URL    string
	Filter string
}

// QueryFromContext reads the supported search parameters from a request.
func QueryFromContext(c echo.Context) Query {
	return Query{
		Name:   c.QueryParam("name"),
		Title:  c.QueryParam("title"),
		Status: c.QueryParam("status"),
		URL:    c.QueryParam("url"),
		Filter: c.QueryParam("_filter"),
	}
}

// Predicate compiles the query into a store predicate.
func (q Query) Predicate() (store.Predicate, error) {
	var preds []store.Predicate
	if v := strings.TrimSpace(q.Name); v != "" {
		preds = append(preds, store.FieldContains("name", v))
	}
	if v := strings.TrimSpace(q.Title); v != "" {
		preds = append(preds, store.FieldContains("title", v))
	}
	if v := strings.TrimSpace(q.Status); v != "" {
		preds = append(preds, store.FieldEquals("status", v))
	}
	if v := strings.TrimSpace(q.URL); v != "" {
		preds = append(preds, store.FieldEquals("url", v))
	}
	if strings.TrimSpace(q.Filter) != "" {
		f, err := fhir.CompileFilter(q.Filter)
		if err != nil {
			return nil, err
		}
		preds = append(preds, store.FromFilter(f))
	}
	if len(preds) == 0 {
		return store.MatchAll, nil
	}
	return store.And(preds...), nil
}

// Search runs q against st.
func Search(st *store.Store, resourceType string, q Query) ([]fhir.Document, error) {
	if resourceType == "" {
		return nil, fhir.InvalidArgument("resource type is required")
	}
	pred, err := q.Predicate()
	if err != nil {
		return nil, err
	}
	return st.Search(resourceType, pred), nil
}

package store

import (
	"strings"

	"github.com/ehr/planengine/internal/platform/fhir"
)

// Predicate selects documents during Search.
type Predicate func(fhir.Document) bool

// MatchAll accepts every document.
func MatchAll(fhir.Document) bool { return true }

// FieldEquals matches documents whose top-level string member key equals value.
func FieldEquals(key, value string) Predicate {
	return func(doc fhir.Document) bool {
		return doc.String(key) == value
	}
}

// FieldContains matches documents whose top-level string member key contains
// substr, ignoring case.
func FieldContains(key, substr string) Predicate {
	needle := strings.ToLower(substr)
	return func(doc fhir.Document) bool {
		return strings.Contains(strings.ToLower(doc.String(key)), needle)
	}
}

// And matches documents accepted by every predicate. Nil predicates are ignored.
func And(preds ...Predicate) Predicate {
	return func(doc fhir.Document) bool {
		for _, p := range preds {
			if p != nil && !p(doc) {
				return false
			}
		}
		return true
	}
}

// FromFilter adapts a compiled FHIRPath filter.
func FromFilter(f *fhir.Filter) Predicate {
	if f == nil {
		return MatchAll
	}
	return f.Match
}

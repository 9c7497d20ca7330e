package fhir

import (
	"encoding/json"
	"strings"

	"github.com/gofhir/fhirpath"
	"github.com/gofhir/fhirpath/types"
)

// Filter is a compiled FHIRPath expression used as a search predicate.
// The expression is evaluated per document; a document matches when the
// result is true under FHIRPath truthiness rules.
type Filter struct {
	source   string
	compiled *fhirpath.Expression
}

// CompileFilter compiles a FHIRPath search filter such as
// "status = 'active' and title.contains('Diabetes')".
func CompileFilter(expression string) (*Filter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, InvalidArgument("filter expression is empty")
	}
	compiled, err := fhirpath.Compile(expression)
	if err != nil {
		return nil, InvalidArgument("compile filter %q: %v", expression, err)
	}
	return &Filter{source: expression, compiled: compiled}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.source
}

// Match evaluates the filter against a document. Evaluation errors count as
// a non-match.
func (f *Filter) Match(doc Document) bool {
	data, err := json.Marshal(map[string]interface{}(doc))
	if err != nil {
		return false
	}
	result, err := f.compiled.Evaluate(data)
	if err != nil {
		return false
	}
	return truthy(result)
}

// truthy follows FHIRPath rules: empty is false, a single boolean is its
// value, any other non-empty collection is true.
func truthy(result types.Collection) bool {
	if len(result) == 0 {
		return false
	}
	if len(result) == 1 {
		if b, ok := result[0].(types.Boolean); ok {
			return b.Bool()
		}
	}
	return true
}

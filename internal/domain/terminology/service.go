package terminology

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofhir/fhir/r4"

	"github.com/ehr/planengine/internal/platform/fhir"
	"github.com/ehr/planengine/internal/platform/store"
	"github.com/ehr/planengine/pkg/fhirmodels"
)

// Service answers $lookup and $expand from CodeSystem and ValueSet
// documents held in the store.
type Service struct {
	store *store.Store
}

// NewService creates a terminology service over st.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Lookup finds a code in the stored CodeSystem whose url is req.System.
// Nested concepts are searched.
func (s *Service) Lookup(ctx context.Context, req LookupRequest) (*LookupResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.System == "" {
		return nil, fhir.InvalidArgument("system is required")
	}
	if req.Code == "" {
		return nil, fhir.InvalidArgument("code is required")
	}

	cs, err := s.codeSystem(req.System, req.Version)
	if err != nil {
		return nil, err
	}
	concept := findConcept(cs.Concept, req.Code)
	if concept == nil {
		return nil, fhir.NotFound("CodeSystem", req.System+"|"+req.Code)
	}

	return &LookupResult{
		System:     req.System,
		Code:       req.Code,
		Name:       deref(cs.Name),
		Version:    deref(cs.Version),
		Display:    deref(concept.Display),
		Definition: deref(concept.Definition),
	}, nil
}

// Expand produces the concepts of a stored ValueSet. Explicit expansion
// content is used first, then compose.include concepts; an include naming
// only a system pulls in every concept of that stored CodeSystem.
func (s *Service) Expand(ctx context.Context, req ExpandRequest) (*Expansion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vs, id, err := s.valueSet(req)
	if err != nil {
		return nil, err
	}

	var all []Contains
	if vs.Expansion != nil && len(vs.Expansion.Contains) > 0 {
		all = flattenContains(vs.Expansion.Contains, nil)
	} else if vs.Compose != nil {
		all = s.composeConcepts(vs.Compose)
	}

	if f := strings.ToLower(strings.TrimSpace(req.Filter)); f != "" {
		filtered := all[:0:0]
		for _, c := range all {
			if strings.Contains(strings.ToLower(c.Code), f) || strings.Contains(strings.ToLower(c.Display), f) {
				filtered = append(filtered, c)
			}
		}
		all = filtered
	}

	total := len(all)
	start := req.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if req.Count > 0 && req.Count < end-start {
		end = start + req.Count
	}

	return &Expansion{
		ValueSetID: id,
		URL:        deref(vs.Url),
		Name:       deref(vs.Name),
		Title:      deref(vs.Title),
		Total:      total,
		Offset:     start,
		Contains:   append([]Contains{}, all[start:end]...),
	}, nil
}

func (s *Service) valueSet(req ExpandRequest) (*r4.ValueSet, string, error) {
	var doc fhir.Document
	switch {
	case req.ID != "":
		d, err := s.store.Get(fhirmodels.TypeValueSet, fhir.StripTypePrefix(req.ID, fhirmodels.TypeValueSet))
		if err != nil {
			return nil, "", err
		}
		doc = d
	case req.URL != "":
		matches := s.store.Search(fhirmodels.TypeValueSet, store.FieldEquals("url", req.URL))
		if len(matches) == 0 {
			return nil, "", fhir.NotFound(fhirmodels.TypeValueSet, req.URL)
		}
		doc = matches[0]
	default:
		return nil, "", fhir.InvalidArgument("either id or url is required")
	}

	var vs r4.ValueSet
	if err := decode(doc, &vs); err != nil {
		return nil, "", err
	}
	return &vs, doc.ID(), nil
}

func (s *Service) codeSystem(url, version string) (*r4.CodeSystem, error) {
	pred := store.FieldEquals("url", url)
	if version != "" {
		pred = store.And(pred, store.FieldEquals("version", version))
	}
	matches := s.store.Search(fhirmodels.TypeCodeSystem, pred)
	if len(matches) == 0 {
		return nil, fhir.NotFound(fhirmodels.TypeCodeSystem, url)
	}
	var cs r4.CodeSystem
	if err := decode(matches[0], &cs); err != nil {
		return nil, err
	}
	return &cs, nil
}

func (s *Service) composeConcepts(compose *r4.ValueSetCompose) []Contains {
	var out []Contains
	for _, include := range compose.Include {
		system := deref(include.System)
		version := deref(include.Version)
		if len(include.Concept) > 0 {
			for _, c := range include.Concept {
				if c.Code == nil {
					continue
				}
				out = append(out, Contains{System: system, Version: version, Code: *c.Code, Display: deref(c.Display)})
			}
			continue
		}
		if system == "" || len(include.Filter) > 0 {
			continue
		}
		cs, err := s.codeSystem(system, "")
		if err != nil {
			continue
		}
		out = append(out, flattenConcepts(cs.Concept, system, version, nil)...)
	}
	return out
}

func findConcept(concepts []r4.CodeSystemConcept, code string) *r4.CodeSystemConcept {
	for i := range concepts {
		if concepts[i].Code != nil && *concepts[i].Code == code {
			return &concepts[i]
		}
		if found := findConcept(concepts[i].Concept, code); found != nil {
			return found
		}
	}
	return nil
}

func flattenConcepts(concepts []r4.CodeSystemConcept, system, version string, out []Contains) []Contains {
	for _, c := range concepts {
		if c.Code != nil {
			out = append(out, Contains{System: system, Version: version, Code: *c.Code, Display: deref(c.Display)})
		}
		out = flattenConcepts(c.Concept, system, version, out)
	}
	return out
}

func flattenContains(items []r4.ValueSetExpansionContains, out []Contains) []Contains {
	for _, c := range items {
		if c.Code != nil {
			out = append(out, Contains{
				System:  deref(c.System),
				Version: deref(c.Version),
				Code:    *c.Code,
				Display: deref(c.Display),
			})
		}
		out = flattenContains(c.Contains, out)
	}
	return out
}

// decode converts a stored document into a typed R4 resource.
func decode(doc fhir.Document, into interface{}) error {
	data, err := json.Marshal(map[string]interface{}(doc))
	if err != nil {
		return fmt.Errorf("encode %s: %w", doc.Key(), err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return &fhir.ParseError{Source: doc.Key(), Err: err}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package plandefinition

import (
	"fmt"

	"github.com/ehr/planengine/internal/platform/fhir"
	"github.com/ehr/planengine/pkg/fhirmodels"
)

// Timing kinds, named after the timing[x] suffix they were read from.
const (
	TimingKindTiming   = "timing"
	TimingKindDateTime = "dateTime"
	TimingKindPeriod   = "period"
	TimingKindDuration = "duration"
	TimingKindAge      = "age"
	TimingKindRange    = "range"
)

// timingKeys maps each supported timing[x] member onto its kind, in the
// order they are checked.
var timingKeys = []struct {
	key  string
	kind string
}{
	{"timingTiming", TimingKindTiming},
	{"timingDateTime", TimingKindDateTime},
	{"timingPeriod", TimingKindPeriod},
	{"timingDuration", TimingKindDuration},
	{"timingAge", TimingKindAge},
	{"timingRange", TimingKindRange},
}

// Definition is the part of a PlanDefinition the applier reads.
type Definition struct {
	ID          string
	URL         string
	Name        string
	Title       string
	Description string
	Status      string
	Actions     []Action
}

// Condition is an applicability/start/stop condition. It is carried for
// display only and never evaluated.
type Condition struct {
	Kind       string `json:"kind"`
	Expression string `json:"expression,omitempty"`
}

// Timing is the raw timing[x] value of an action.
type Timing struct {
	Kind  string      `json:"kind"`
	Value interface{} `json:"value"`
}

// IsAgeBased reports whether the timing is an age rule rather than a schedule.
func (t *Timing) IsAgeBased() bool {
	return t != nil && (t.Kind == TimingKindAge || t.Kind == TimingKindRange)
}

// Action is one node of a PlanDefinition action tree. Inputs holds the
// action's DataRequirement elements verbatim.
type Action struct {
	ID                  string
	Title               string
	Description         string
	Conditions          []Condition
	DefinitionCanonical string
	Code                map[string]interface{}
	Timing              *Timing
	Inputs              []map[string]interface{}
	Children            []Action
}

// ParseDefinition reads a PlanDefinition document.
func ParseDefinition(doc fhir.Document) (*Definition, error) {
	if doc == nil {
		return nil, fhir.InvalidArgument("PlanDefinition data is nil")
	}
	if rt := doc.ResourceType(); rt != "" && rt != fhirmodels.TypePlanDefinition {
		return nil, fhir.InvalidArgument("expected resourceType PlanDefinition, got %s", rt)
	}
	return &Definition{
		ID:          doc.ID(),
		URL:         doc.String("url"),
		Name:        doc.String("name"),
		Title:       doc.String("title"),
		Description: doc.String("description"),
		Status:      doc.String("status"),
		Actions:     parseActions(doc["action"]),
	}, nil
}

// Ref returns "PlanDefinition/<id>".
func (d *Definition) Ref() string {
	return fhirmodels.TypePlanDefinition + "/" + d.ID
}

// DisplayName is the title, then the name, then the reference.
func (d *Definition) DisplayName() string {
	switch {
	case d.Title != "":
		return d.Title
	case d.Name != "":
		return d.Name
	default:
		return d.Ref()
	}
}

func parseActions(raw interface{}) []Action {
	items := fhir.ObjectList(raw)
	if len(items) == 0 {
		return nil
	}
	actions := make([]Action, 0, len(items))
	for _, m := range items {
		actions = append(actions, parseAction(m))
	}
	return actions
}

func parseAction(m map[string]interface{}) Action {
	a := Action{}
	a.ID, _ = m["id"].(string)
	a.Title, _ = m["title"].(string)
	a.Description, _ = m["description"].(string)
	a.DefinitionCanonical, _ = m["definitionCanonical"].(string)

	// code is 0..* CodeableConcept; only the first is used.
	if codes := fhir.ObjectList(m["code"]); len(codes) > 0 {
		a.Code = codes[0]
	}

	for _, c := range fhir.ObjectList(m["condition"]) {
		cond := Condition{}
		cond.Kind, _ = c["kind"].(string)
		// Expression is an Expression datatype, older content uses a bare string.
		switch expr := c["expression"].(type) {
		case string:
			cond.Expression = expr
		case map[string]interface{}:
			cond.Expression, _ = expr["expression"].(string)
		}
		a.Conditions = append(a.Conditions, cond)
	}

	for _, tk := range timingKeys {
		if v, ok := m[tk.key]; ok && v != nil {
			a.Timing = &Timing{Kind: tk.kind, Value: v}
			break
		}
	}

	a.Inputs = fhir.ObjectList(m["input"])
	a.Children = parseActions(m["action"])
	return a
}

// ageAnnotation renders an age rule as " (at age ...)" for description text.
func ageAnnotation(t *Timing) string {
	switch t.Kind {
	case TimingKindAge:
		if q, ok := t.Value.(map[string]interface{}); ok {
			return " (at age " + quantity(q) + ")"
		}
	case TimingKindRange:
		if r, ok := t.Value.(map[string]interface{}); ok {
			low, _ := r["low"].(map[string]interface{})
			high, _ := r["high"].(map[string]interface{})
			switch {
			case low != nil && high != nil:
				return fmt.Sprintf(" (at age %v-%s)", low["value"], quantity(high))
			case low != nil:
				return " (at age " + quantity(low) + " or older)"
			case high != nil:
				return " (at age up to " + quantity(high) + ")"
			}
		}
	}
	return fmt.Sprintf(" (at age %v)", t.Value)
}

func quantity(q map[string]interface{}) string {
	unit, _ := q["unit"].(string)
	if unit == "" {
		unit, _ = q["code"].(string)
	}
	if unit == "" {
		return fmt.Sprintf("%v", q["value"])
	}
	return fmt.Sprintf("%v %s", q["value"], unit)
}

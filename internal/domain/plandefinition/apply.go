package plandefinition

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/planengine/internal/platform/fhir"
	"github.com/ehr/planengine/internal/platform/store"
	"github.com/ehr/planengine/pkg/fhirmodels"
)

// UnnamedAction is used when an action has neither description nor title.
const UnnamedAction = "Unnamed action"

// ApplyRequest identifies the PlanDefinition and the patient it is applied to.
// Both ids may carry their "Type/" prefix.
type ApplyRequest struct {
	PlanDefinitionID string `json:"planDefinitionId"`
	Subject          string `json:"subject"`
	Encounter        string `json:"encounter,omitempty"`
}

// Applier derives CarePlans from stored PlanDefinitions.
type Applier struct {
	store *store.Store
	now   func() time.Time
	newID func() string
}

// ApplierOption configures an Applier.
type ApplierOption func(*Applier)

// WithClock overrides the clock used for CarePlan.created.
func WithClock(now func() time.Time) ApplierOption {
	return func(a *Applier) { a.now = now }
}

// WithIDGenerator overrides CarePlan id generation.
func WithIDGenerator(gen func() string) ApplierOption {
	return func(a *Applier) { a.newID = gen }
}

// NewApplier creates an Applier reading from and writing to st.
func NewApplier(st *store.Store, opts ...ApplierOption) *Applier {
	a := &Applier{
		store: st,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply builds a draft CarePlan for the subject from the PlanDefinition's
// action tree, stores it and returns a copy.
//
// Only top-level actions and their immediate children produce activities;
// deeper actions are ignored. Conditions are not evaluated, every action
// applies.
func (a *Applier) Apply(ctx context.Context, req ApplyRequest) (fhir.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pdID := fhir.StripTypePrefix(req.PlanDefinitionID, fhirmodels.TypePlanDefinition)
	if pdID == "" {
		return nil, fhir.InvalidArgument("planDefinitionId is required")
	}
	patientID := fhir.StripTypePrefix(req.Subject, fhirmodels.TypePatient)
	if patientID == "" {
		return nil, fhir.InvalidArgument("subject is required")
	}

	pdDoc, err := a.store.Get(fhirmodels.TypePlanDefinition, pdID)
	if err != nil {
		return nil, err
	}
	patient, err := a.store.Get(fhirmodels.TypePatient, patientID)
	if err != nil {
		return nil, err
	}

	def, err := ParseDefinition(pdDoc)
	if err != nil {
		return nil, err
	}

	carePlan := a.buildCarePlan(def, patient.ID(), req.Encounter)
	id, err := a.store.Create(carePlan)
	if err != nil {
		return nil, err
	}
	return a.store.Get(fhirmodels.TypeCarePlan, id)
}

func (a *Applier) buildCarePlan(def *Definition, patientID, encounter string) fhir.Document {
	instantiates := def.URL
	if instantiates == "" {
		instantiates = def.Ref()
	}

	cp := fhir.Document{
		"resourceType":          fhirmodels.TypeCarePlan,
		"id":                    a.newID(),
		"status":                fhirmodels.CarePlanStatusDraft,
		"intent":                fhirmodels.CarePlanIntentProposal,
		"subject":               fhir.Reference(fhirmodels.TypePatient, patientID),
		"instantiatesCanonical": []interface{}{instantiates},
		"created":               a.now().UTC().Format(time.RFC3339),
		"title":                 "CarePlan from " + def.DisplayName(),
	}
	if def.Description != "" {
		cp["description"] = def.Description
	}
	if enc := strings.TrimSpace(encounter); enc != "" {
		if !strings.HasPrefix(enc, fhirmodels.TypeEncounter+"/") {
			enc = fhirmodels.TypeEncounter + "/" + enc
		}
		cp["encounter"] = map[string]interface{}{"reference": enc}
	}

	activities := deriveActivities(def.Actions)
	if len(activities) > 0 {
		cp["activity"] = activities
	}
	return cp
}

// deriveActivities flattens the action tree exactly one level deep:
// each top-level action, followed by its direct children.
func deriveActivities(actions []Action) []interface{} {
	var out []interface{}
	for _, action := range actions {
		out = append(out, activity(action, true))
		for _, child := range action.Children {
			out = append(out, activity(child, false))
		}
	}
	return out
}

// activity renders one CarePlan.activity. Timing is only honoured for
// top-level actions.
func activity(action Action, withTiming bool) map[string]interface{} {
	description := action.Description
	if description == "" {
		description = action.Title
	}
	if description == "" {
		description = UnnamedAction
	}

	detail := map[string]interface{}{
		"status": fhirmodels.ActivityStatusNotStarted,
	}
	if action.Code != nil {
		detail["code"] = fhir.CloneValue(action.Code)
	}
	if action.DefinitionCanonical != "" {
		detail["instantiatesCanonical"] = []interface{}{action.DefinitionCanonical}
	}

	if withTiming && action.Timing != nil {
		switch action.Timing.Kind {
		case TimingKindTiming:
			detail["scheduledTiming"] = fhir.CloneValue(action.Timing.Value)
		case TimingKindPeriod:
			detail["scheduledPeriod"] = fhir.CloneValue(action.Timing.Value)
		case TimingKindDateTime:
			if s, ok := action.Timing.Value.(string); ok {
				detail["scheduledString"] = s
			}
		case TimingKindAge, TimingKindRange:
			description += ageAnnotation(action.Timing)
		}
	}
	detail["description"] = description

	return map[string]interface{}{"detail": detail}
}

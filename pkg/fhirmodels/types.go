package fhirmodels

// Common FHIR resource type names and value set constants used across the engine.

// Resource type discriminators.
const (
	TypePlanDefinition      = "PlanDefinition"
	TypeActivityDefinition  = "ActivityDefinition"
	TypeLibrary             = "Library"
	TypeValueSet            = "ValueSet"
	TypeCodeSystem          = "CodeSystem"
	TypeQuestionnaire       = "Questionnaire"
	TypeStructureDefinition = "StructureDefinition"
	TypeConceptMap          = "ConceptMap"
	TypeImplementationGuide = "ImplementationGuide"
	TypePatient             = "Patient"
	TypeEncounter           = "Encounter"
	TypeCarePlan            = "CarePlan"
	TypeOperationOutcome    = "OperationOutcome"
)

// IngestableTypes lists the protocol and decision-support artifact types that
// package ingestion persists. Everything else in a package is discarded.
var IngestableTypes = map[string]bool{
	TypePlanDefinition:      true,
	TypeActivityDefinition:  true,
	TypeLibrary:             true,
	TypeValueSet:            true,
	TypeCodeSystem:          true,
	TypeQuestionnaire:       true,
	TypeStructureDefinition: true,
	TypeConceptMap:          true,
}

// IsIngestable reports whether a resource type is persisted by package ingestion.
func IsIngestable(resourceType string) bool {
	return IngestableTypes[resourceType]
}

// CarePlanStatus values per FHIR R4.
const (
	CarePlanStatusDraft          = "draft"
	CarePlanStatusActive         = "active"
	CarePlanStatusOnHold         = "on-hold"
	CarePlanStatusRevoked        = "revoked"
	CarePlanStatusCompleted      = "completed"
	CarePlanStatusEnteredInError = "entered-in-error"
)

// CarePlanIntent values per FHIR R4.
const (
	CarePlanIntentProposal = "proposal"
	CarePlanIntentPlan     = "plan"
	CarePlanIntentOrder    = "order"
	CarePlanIntentOption   = "option"
)

// CarePlanActivityStatus values per FHIR R4.
const (
	ActivityStatusNotStarted = "not-started"
	ActivityStatusScheduled  = "scheduled"
	ActivityStatusInProgress = "in-progress"
	ActivityStatusCompleted  = "completed"
)

// PlanDefinition action condition kinds.
const (
	ConditionKindApplicability = "applicability"
	ConditionKindStart         = "start"
	ConditionKindStop          = "stop"
)

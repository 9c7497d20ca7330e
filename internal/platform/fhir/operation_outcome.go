package fhir

// OperationOutcome severity levels per FHIR R4.
const (
	IssueSeverityFatal       = "fatal"
	IssueSeverityError       = "error"
	IssueSeverityWarning     = "warning"
	IssueSeverityInformation = "information"
)

// OperationOutcome issue type codes per FHIR R4.
const (
	IssueTypeInvalid       = "invalid"
	IssueTypeStructure     = "structure"
	IssueTypeRequired      = "required"
	IssueTypeValue         = "value"
	IssueTypeNotFound      = "not-found"
	IssueTypeProcessing    = "processing"
	IssueTypeNotSupported  = "not-supported"
	IssueTypeException     = "exception"
	IssueTypeTimeout       = "timeout"
	IssueTypeTooCostly     = "too-costly"
	IssueTypeInformational = "informational"
)

// OutcomeBuilder provides a fluent API for constructing OperationOutcome resources.
type OutcomeBuilder struct {
	outcome *OperationOutcome
}

// NewOutcomeBuilder creates a new OutcomeBuilder.
func NewOutcomeBuilder() *OutcomeBuilder {
	return &OutcomeBuilder{
		outcome: &OperationOutcome{
			ResourceType: "OperationOutcome",
		},
	}
}

// AddIssue adds a single issue to the OperationOutcome.
func (b *OutcomeBuilder) AddIssue(severity, code, diagnostics string) *OutcomeBuilder {
	b.outcome.Issue = append(b.outcome.Issue, OperationOutcomeIssue{
		Severity:    severity,
		Code:        code,
		Diagnostics: diagnostics,
	})
	return b
}

// AddIssueWithLocation adds an issue including an expression/location path.
func (b *OutcomeBuilder) AddIssueWithLocation(severity, code, diagnostics, location string) *OutcomeBuilder {
	b.outcome.Issue = append(b.outcome.Issue, OperationOutcomeIssue{
		Severity:    severity,
		Code:        code,
		Diagnostics: diagnostics,
		Expression:  []string{location},
	})
	return b
}

// Build returns the constructed OperationOutcome. An outcome with no issues
// gets a single informational "ok" issue, which FHIR requires.
func (b *OutcomeBuilder) Build() *OperationOutcome {
	if len(b.outcome.Issue) == 0 {
		b.AddIssue(IssueSeverityInformation, IssueTypeInformational, "ok")
	}
	return b.outcome
}

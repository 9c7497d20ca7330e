package fhir

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned when a requested (type, id) is absent.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidArgument is returned when a required input is missing or malformed.
	ErrInvalidArgument = errors.New("invalid argument")
)

// NotFoundError identifies the missing resource.
type NotFoundError struct {
	ResourceType string
	ID           string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s/%s not found", e.ResourceType, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(resourceType, id string) error {
	return &NotFoundError{ResourceType: resourceType, ID: id}
}

// InvalidArgument wraps ErrInvalidArgument with a formatted message.
func InvalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// ParseError reports a malformed document payload.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Source == "" {
		return "parse document: " + e.Err.Error()
	}
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// OpenError reports that an ingestion source could not be opened.
type OpenError struct {
	Source string
	Err    error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Source, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// StatusFor maps an error from the store or an operation onto an HTTP status.
func StatusFor(err error) int {
	var parseErr *ParseError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// OutcomeFor renders an error as an OperationOutcome. A nil error yields an
// informational outcome.
func OutcomeFor(err error) *OperationOutcome {
	b := NewOutcomeBuilder()
	if err == nil {
		return b.Build()
	}
	var parseErr *ParseError
	switch {
	case errors.Is(err, ErrNotFound):
		b.AddIssue(IssueSeverityError, IssueTypeNotFound, err.Error())
	case errors.Is(err, ErrInvalidArgument):
		b.AddIssue(IssueSeverityError, IssueTypeRequired, err.Error())
	case errors.As(err, &parseErr):
		b.AddIssueWithLocation(IssueSeverityError, IssueTypeStructure, err.Error(), parseErr.Source)
	default:
		b.AddIssue(IssueSeverityError, IssueTypeException, err.Error())
	}
	return b.Build()
}

package ingest

import (
	"time"

	"github.com/rs/zerolog"
)

// DefaultMaxErrorDetails is how many failure messages a Report retains.
const DefaultMaxErrorDetails = 5

// Report summarizes one ingestion or directory-load run.
type Report struct {
	Source    string         `json:"source"`
	Persisted map[string]int `json:"persisted"`
	// Errors counts every read and parse failure; it is never capped.
	Errors int `json:"errors"`
	// ErrorDetails keeps the first few failure messages only.
	ErrorDetails []string `json:"errorDetails,omitempty"`
	// Skipped entries carried no resourceType marker.
	Skipped int `json:"skipped"`
	// Discarded entries parsed but their type is not ingested.
	Discarded int `json:"discarded"`
	// Filtered entries failed the path, extension or manifest checks.
	Filtered   int            `json:"filtered"`
	TypeCounts map[string]int `json:"typeCounts"`
	Duration   time.Duration  `json:"duration"`
	// Package is the archive's package.json identity, when it had a valid one.
	Package *Manifest `json:"package,omitempty"`
}

func newReport(source string) *Report {
	return &Report{
		Source:    source,
		Persisted: make(map[string]int),
	}
}

// TotalPersisted sums Persisted across types.
func (r *Report) TotalPersisted() int {
	n := 0
	for _, c := range r.Persisted {
		n += c
	}
	return n
}

// MarshalZerologObject lets a Report be logged with zerolog's Object.
func (r *Report) MarshalZerologObject(e *zerolog.Event) {
	e.Str("source", r.Source).
		Int("persisted", r.TotalPersisted()).
		Int("errors", r.Errors).
		Int("skipped", r.Skipped).
		Int("discarded", r.Discarded).
		Int("filtered", r.Filtered).
		Dur("duration", r.Duration)
	if r.Package != nil {
		e.Str("package", r.Package.Name+"#"+r.Package.Version)
	}
}

// errorSink counts failures and keeps the first max messages.
type errorSink struct {
	report *Report
	max    int
	logger zerolog.Logger
}

func (s *errorSink) record(source string, err error) {
	s.report.Errors++
	if len(s.report.ErrorDetails) < s.max {
		msg := err.Error()
		s.report.ErrorDetails = append(s.report.ErrorDetails, msg)
		s.logger.Debug().Str("entry", source).Err(err).Msg("ingest failure")
	}
}

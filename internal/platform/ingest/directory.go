package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/planengine/internal/platform/fhir"
	"github.com/ehr/planengine/internal/platform/store"
)

// DirectoryLoader loads loose JSON resources from a local directory. Unlike
// package ingestion it persists every resource type.
type DirectoryLoader struct {
	store  *store.Store
	logger zerolog.Logger
	opts   options
}

// NewDirectoryLoader creates a loader writing into st.
func NewDirectoryLoader(st *store.Store, logger zerolog.Logger, opts ...Option) *DirectoryLoader {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &DirectoryLoader{
		store:  st,
		logger: logger.With().Str("component", "directory-load").Logger(),
		opts:   o,
	}
}

// Load reads every *.json file directly inside dir. Subdirectories are not
// visited. An empty dir argument is a no-op.
func (l *DirectoryLoader) Load(ctx context.Context, dir string) (*Report, error) {
	start := time.Now()
	report := newReport(dir)
	defer func() {
		report.TypeCounts = l.store.TypeCounts()
		report.Duration = time.Since(start)
	}()

	if dir == "" {
		return report, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		openErr := &fhir.OpenError{Source: dir, Err: err}
		l.logger.Error().Err(openErr).Msg("resource directory unreadable")
		return report, openErr
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		} else {
			report.Filtered++
		}
	}
	sort.Strings(names)

	sink := &errorSink{report: report, max: l.opts.maxErrorDetails, logger: l.logger}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			sink.record(dir, err)
			break
		}
		p := filepath.Join(dir, name)
		doc, err := l.read(p)
		if err != nil {
			sink.record(p, err)
			continue
		}
		if _, err := l.store.Create(doc); err != nil {
			sink.record(p, fmt.Errorf("store %s: %w", p, err))
			continue
		}
		report.Persisted[doc.ResourceType()]++
	}

	report.Duration = time.Since(start)
	l.logger.Info().Object("report", report).Msg("resource directory loaded")
	return report, nil
}

// LoadFile loads a single JSON document and returns its stored id.
// Parse failures surface as *fhir.ParseError.
func (l *DirectoryLoader) LoadFile(path string) (string, error) {
	doc, err := l.read(path)
	if err != nil {
		return "", err
	}
	return l.store.Create(doc)
}

func (l *DirectoryLoader) read(path string) (fhir.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer f.Close()

	data, err := readLimited(f, l.opts.maxEntrySize)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return fhir.ParseDocument(path, data)
}

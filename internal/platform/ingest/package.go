package ingest

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/planengine/internal/platform/fhir"
	"github.com/ehr/planengine/internal/platform/store"
	"github.com/ehr/planengine/pkg/fhirmodels"
)

const packagePrefix = "package/"

// errEntryTooLarge marks an entry whose body exceeds the configured limit.
// The rest of the archive is still readable after it.
var errEntryTooLarge = errors.New("entry too large")

// manifestNames are package metadata files that never hold resources.
var manifestNames = map[string]bool{
	"package.json": true,
	".index.json":  true,
}

// PackageIngester streams a remote gzip-compressed tar package into a store.
type PackageIngester struct {
	store  *store.Store
	logger zerolog.Logger
	opts   options
}

// NewPackageIngester creates an ingester writing into st.
func NewPackageIngester(st *store.Store, logger zerolog.Logger, opts ...Option) *PackageIngester {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &PackageIngester{
		store:  st,
		logger: logger.With().Str("component", "package-ingest").Logger(),
		opts:   o,
	}
}

// Ingest fetches url and persists every allow-listed resource it contains.
// Only failure to open the archive is returned as an error (*fhir.OpenError);
// everything that goes wrong after that is recorded in the report.
func (p *PackageIngester) Ingest(ctx context.Context, url string) (*Report, error) {
	start := time.Now()
	report := newReport(url)
	defer func() {
		report.TypeCounts = p.store.TypeCounts()
		report.Duration = time.Since(start)
	}()

	body, err := p.open(ctx, url)
	if err != nil {
		p.logger.Error().Err(err).Str("source", url).Msg("package open failed")
		return report, err
	}
	defer body.Close()

	gz, err := gzip.NewReader(body)
	if err != nil {
		openErr := &fhir.OpenError{Source: url, Err: fmt.Errorf("gzip: %w", err)}
		p.logger.Error().Err(openErr).Str("source", url).Msg("package open failed")
		return report, openErr
	}
	defer gz.Close()

	sink := &errorSink{report: report, max: p.opts.maxErrorDetails, logger: p.logger}
	p.walk(tar.NewReader(gz), report, sink)

	report.Duration = time.Since(start)
	p.logger.Info().Object("report", report).Msg("package ingested")
	for _, detail := range report.ErrorDetails {
		p.logger.Warn().Str("source", url).Msg(detail)
	}
	return report, nil
}

func (p *PackageIngester) open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &fhir.OpenError{Source: url, Err: err}
	}
	resp, err := p.opts.httpClient().Do(req)
	if err != nil {
		return nil, &fhir.OpenError{Source: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &fhir.OpenError{Source: url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return resp.Body, nil
}

func (p *PackageIngester) walk(tr *tar.Reader, report *Report, sink *errorSink) {
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			sink.record(report.Source, fmt.Errorf("read archive: %w", err))
			return
		}

		if header.Typeflag == tar.TypeReg && header.Name == manifestPath {
			report.Filtered++
			if !p.readManifest(tr, report, sink) {
				return
			}
			continue
		}
		if !acceptEntry(header) {
			report.Filtered++
			continue
		}

		data, err := readLimited(tr, p.opts.maxEntrySize)
		if errors.Is(err, errEntryTooLarge) {
			sink.record(header.Name, fmt.Errorf("read %s: %w", header.Name, err))
			continue
		}
		if err != nil {
			// The stream itself is broken; the next header read would fail
			// on the same cut.
			sink.record(header.Name, fmt.Errorf("read %s: %w", header.Name, err))
			return
		}
		p.persist(header.Name, data, report, sink)
	}
}

// readManifest records the package identity on the report. A malformed
// manifest is logged and ignored; it reports false only when the stream
// itself broke.
func (p *PackageIngester) readManifest(tr *tar.Reader, report *Report, sink *errorSink) bool {
	data, err := readLimited(tr, p.opts.maxEntrySize)
	if errors.Is(err, errEntryTooLarge) {
		p.logger.Warn().Err(err).Msg("package manifest ignored")
		return true
	}
	if err != nil {
		sink.record(manifestPath, fmt.Errorf("read %s: %w", manifestPath, err))
		return false
	}
	m, err := parseManifest(data)
	if err != nil {
		p.logger.Warn().Err(err).Msg("package manifest ignored")
		return true
	}
	report.Package = m
	return true
}

func (p *PackageIngester) persist(name string, data []byte, report *Report, sink *errorSink) {
	if !fhir.HasTypeMarker(data) {
		report.Skipped++
		return
	}
	doc, err := fhir.ParseDocument(name, data)
	if err != nil {
		sink.record(name, err)
		return
	}
	rt := doc.ResourceType()
	if !fhirmodels.IsIngestable(rt) {
		report.Discarded++
		return
	}
	if _, err := p.store.Create(doc); err != nil {
		sink.record(name, fmt.Errorf("store %s: %w", name, err))
		return
	}
	report.Persisted[rt]++
}

// acceptEntry applies the archive entry filter chain: a regular .json file
// under package/ that is not a manifest.
func acceptEntry(h *tar.Header) bool {
	if h.Typeflag != tar.TypeReg {
		return false
	}
	if !strings.HasSuffix(h.Name, ".json") {
		return false
	}
	if !strings.HasPrefix(h.Name, packagePrefix) {
		return false
	}
	return !manifestNames[path.Base(h.Name)]
}

// readLimited reads r fully but fails once more than max bytes arrive.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: exceeds %d bytes", errEntryTooLarge, max)
	}
	return data, nil
}

package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/planengine/internal/config"
	"github.com/ehr/planengine/internal/platform/fhir"
	"github.com/ehr/planengine/internal/platform/ingest"
	"github.com/ehr/planengine/internal/platform/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:                "8000",
		Env:                 "test",
		LogLevel:            "info",
		PackageFetchTimeout: 5 * time.Second,
		MaxErrorDetails:     5,
		MaxEntrySize:        1 << 20,
		RequestTimeout:      5 * time.Second,
		BodyLimit:           "1M",
		CORSOrigins:         []string{"http://localhost:3000"},
	}
}

func packageServer(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	tw.Close()
	gz.Close()
	payload := buf.Bytes()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIngestAll_PackageThenDirectory(t *testing.T) {
	srv := packageServer(t, map[string]string{
		"package/PlanDefinition-pd.json": `{"resourceType":"PlanDefinition","id":"pd","status":"draft"}`,
		"package/package.json":           `{"name":"example.ig"}`,
	})
	dir := t.TempDir()
	// The directory step runs second, so its copy replaces the packaged one.
	os.WriteFile(filepath.Join(dir, "pd.json"), []byte(`{"resourceType":"PlanDefinition","id":"pd","status":"active"}`), 0o644)
	os.WriteFile(filepath.Join(dir, "p1.json"), []byte(`{"resourceType":"Patient","id":"p1"}`), 0o644)

	cfg := testConfig()
	cfg.PackageURL = srv.URL
	cfg.ResourceDir = dir

	st := store.New()
	reports, err := ingestAll(context.Background(), st, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	pd, err := st.Get("PlanDefinition", "pd")
	if err != nil {
		t.Fatalf("expected pd stored: %v", err)
	}
	if pd.String("status") != "active" {
		t.Errorf("expected directory copy to win, got %q", pd.String("status"))
	}
	if st.TotalCount() != 3 {
		t.Errorf("expected 3 creation events, got %d", st.TotalCount())
	}
}

func TestBootstrap_RegistersIngestedPackage(t *testing.T) {
	srv := packageServer(t, map[string]string{
		"package/PlanDefinition-pd.json": `{"resourceType":"PlanDefinition","id":"pd"}`,
		"package/package.json":           `{"name":"example.ig","version":"1.2.0","canonical":"http://example.org/ig"}`,
	})
	cfg := testConfig()
	cfg.PackageURL = srv.URL

	a := bootstrap(context.Background(), cfg, zerolog.Nop())
	pkgs := a.guide.Packages()
	if len(pkgs) != 1 || pkgs[0].Name != "example.ig" || pkgs[0].Version != "1.2.0" {
		t.Fatalf("unexpected packages %+v", pkgs)
	}
	cur, err := a.guide.Set(context.Background(), "", "http://example.org/ig")
	if err != nil {
		t.Fatalf("expected ingested package to be selectable: %v", err)
	}
	if cur.PackageID != "example.ig" {
		t.Errorf("unexpected current %+v", cur)
	}
}

func TestIngestAll_OpenFailureContinues(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "p1.json"), []byte(`{"resourceType":"Patient","id":"p1"}`), 0o644)

	cfg := testConfig()
	cfg.PackageURL = "http://127.0.0.1:1/package.tgz"
	cfg.PackageFetchTimeout = time.Second
	cfg.ResourceDir = dir

	st := store.New()
	reports, err := ingestAll(context.Background(), st, cfg, zerolog.Nop())
	var openErr *fhir.OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected OpenError, got %v", err)
	}
	if _, err := st.Get("Patient", "p1"); err != nil {
		t.Errorf("directory step should still run: %v", err)
	}
	if len(reports) != 2 {
		t.Errorf("expected both reports, got %d", len(reports))
	}
}

func TestWriteReports(t *testing.T) {
	var buf bytes.Buffer
	if err := writeReports(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("expected empty list, got %s", buf.String())
	}

	buf.Reset()
	r := &ingest.Report{Source: "dir", Persisted: map[string]int{"Patient": 1}, Errors: 2}
	if err := writeReports(&buf, []*ingest.Report{r}); err != nil {
		t.Fatal(err)
	}
	var out []map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if out[0]["errors"] != 2.0 {
		t.Errorf("unexpected report %v", out[0])
	}
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "p1.json"), []byte(`{"resourceType":"Patient","id":"p1"}`), 0o644)
	os.WriteFile(filepath.Join(dir, "pd.json"), []byte(`{
		"resourceType":"PlanDefinition","id":"pd","title":"Diabetes follow-up",
		"action":[{"title":"HbA1c"},{"title":"Foot exam"}]
	}`), 0o644)
	cfg := testConfig()
	cfg.ResourceDir = dir
	return bootstrap(context.Background(), cfg, zerolog.Nop())
}

func TestServer_Routes(t *testing.T) {
	a := newTestApp(t)
	e := newServer(testConfig(), a, zerolog.Nop())

	do := func(method, target, body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(method, target, nil)
		} else {
			req = httptest.NewRequest(method, target, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	if rec := do(http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", rec.Code)
	}

	rec := do(http.MethodPost, "/fhir/PlanDefinition/pd/$apply", `{"subject":"Patient/p1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("apply: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
	if a.store.TypeCounts()["CarePlan"] != 1 {
		t.Error("expected CarePlan stored")
	}

	if rec := do(http.MethodGet, "/fhir/metadata", ""); rec.Code != http.StatusOK {
		t.Errorf("metadata: expected 200, got %d", rec.Code)
	}
	if rec := do(http.MethodGet, "/fhir/CarePlan", ""); rec.Code != http.StatusOK {
		t.Errorf("search: expected 200, got %d", rec.Code)
	}

	rec = do(http.MethodGet, "/nowhere", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	var outcome map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil || outcome["resourceType"] != "OperationOutcome" {
		t.Errorf("expected OperationOutcome for unknown route, got %s", rec.Body.String())
	}

	if rec := do(http.MethodGet, "/api/guide/context", ""); rec.Code >= 500 {
		t.Errorf("guide context: unexpected %d", rec.Code)
	}
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("RESOURCE_DIR", "/from/env")
	t.Setenv("PORT", "9000")

	root := rootCmd()
	serve, _, err := root.Find([]string{"serve"})
	if err != nil {
		t.Fatal(err)
	}
	if err := serve.ParseFlags([]string{"--resource-dir", "/from/flag"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(serve)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ResourceDir != "/from/flag" {
		t.Errorf("expected flag to win, got %q", cfg.ResourceDir)
	}
	if cfg.Port != "9000" {
		t.Errorf("expected env port, got %q", cfg.Port)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("MAX_ERROR_DETAILS", "0")
	if _, err := loadConfig(rootCmd()); err == nil {
		t.Error("expected validation error")
	}
}

package guide

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/planengine/internal/platform/fhir"
	"github.com/ehr/planengine/internal/platform/store"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	st := store.New()
	_, err := st.Create(fhir.Document{
		"resourceType": "ImplementationGuide",
		"id":           "imm",
		"url":          "http://example.org/ImplementationGuide/imm",
		"name":         "ImmunizationIG",
		"version":      "0.1.0",
		"packageId":    "example.imm",
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	g := NewContext(st)
	g.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	return g
}

func TestSet_ByID(t *testing.T) {
	g := newTestContext(t)
	cur, err := g.Set(context.Background(), "ImplementationGuide/imm", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cur.Name != "ImmunizationIG" || cur.PackageID != "example.imm" {
		t.Errorf("unexpected current %+v", cur)
	}
	if got := g.Get(); got == nil || got.ID != "imm" {
		t.Errorf("expected imm to be current, got %+v", got)
	}
}

func TestSet_ByURL(t *testing.T) {
	g := newTestContext(t)
	cur, err := g.Set(context.Background(), "", "http://example.org/ImplementationGuide/imm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cur.ID != "imm" {
		t.Errorf("expected id imm, got %q", cur.ID)
	}
}

func TestSet_RegisteredPackage(t *testing.T) {
	g := newTestContext(t)
	g.RegisterPackage(Package{Name: "example.protocols", Version: "0.3.0", Canonical: "http://example.org/fhir/protocols", Title: "Protocols"})

	for _, tc := range []struct{ id, url string }{
		{"example.protocols", ""},
		{"example.protocols#0.3.0", ""},
		{"", "http://example.org/fhir/protocols"},
	} {
		cur, err := g.Set(context.Background(), tc.id, tc.url)
		if err != nil {
			t.Fatalf("Set(%q, %q): unexpected error: %v", tc.id, tc.url, err)
		}
		if cur.Source != SourcePackage || cur.PackageID != "example.protocols" || cur.Version != "0.3.0" {
			t.Errorf("Set(%q, %q): unexpected current %+v", tc.id, tc.url, cur)
		}
	}

	// A stored guide wins over a package.
	cur, err := g.Set(context.Background(), "imm", "")
	if err != nil || cur.Source != SourceResource {
		t.Errorf("expected stored guide, got %+v, %v", cur, err)
	}

	if _, err := g.Set(context.Background(), "example.protocols#9.9.9", ""); !errors.Is(err, fhir.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown version, got %v", err)
	}
}

func TestRegisterPackage_ReplacesByName(t *testing.T) {
	g := newTestContext(t)
	g.RegisterPackage(Package{Name: "p", Version: "1"})
	g.RegisterPackage(Package{Name: "p", Version: "2"})
	g.RegisterPackage(Package{Name: "  "})
	pkgs := g.Packages()
	if len(pkgs) != 1 || pkgs[0].Version != "2" {
		t.Errorf("unexpected packages %+v", pkgs)
	}
}

func TestSet_NotFoundKeepsPrevious(t *testing.T) {
	g := newTestContext(t)
	g.Set(context.Background(), "imm", "")

	if _, err := g.Set(context.Background(), "missing", ""); !errors.Is(err, fhir.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := g.Set(context.Background(), "", "http://missing"); !errors.Is(err, fhir.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if g.Get() == nil {
		t.Error("failed set must not clear the context")
	}
}

func TestSet_EmptyClears(t *testing.T) {
	g := newTestContext(t)
	g.Set(context.Background(), "imm", "")
	cur, err := g.Set(context.Background(), "", "  ")
	if err != nil || cur != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", cur, err)
	}
	if g.Get() != nil {
		t.Error("expected context to be cleared")
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	g := newTestContext(t)
	g.Set(context.Background(), "imm", "")
	g.Get().Name = "mutated"
	if g.Get().Name != "ImmunizationIG" {
		t.Error("Get must return a copy")
	}
}

func TestHandler_SetAndGet(t *testing.T) {
	g := newTestContext(t)
	e := echo.New()
	NewHandler(g).RegisterRoutes(e.Group("/api"))

	req := httptest.NewRequest(http.MethodPut, "/api/guide/context", strings.NewReader(`{"id":"imm"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/guide/context", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ImmunizationIG") {
		t.Errorf("unexpected response %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/guide/context", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if g.Get() != nil {
		t.Error("expected cleared context")
	}
}

func TestHandler_NotFound(t *testing.T) {
	g := newTestContext(t)
	e := echo.New()
	NewHandler(g).RegisterRoutes(e.Group("/api"))

	req := httptest.NewRequest(http.MethodPut, "/api/guide/context", strings.NewReader(`{"id":"nope"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_ListPackages(t *testing.T) {
	g := newTestContext(t)
	g.RegisterPackage(Package{Name: "example.protocols", Version: "0.3.0"})
	e := echo.New()
	NewHandler(g).RegisterRoutes(e.Group("/api"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/guide/packages", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "example.protocols") {
		t.Errorf("unexpected response %d: %s", rec.Code, rec.Body.String())
	}
}

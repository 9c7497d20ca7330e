package terminology

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/planengine/internal/platform/middleware"
)

func newRouter(t *testing.T) *echo.Echo {
	t.Helper()
	e := echo.New()
	NewHandler(NewService(seededStore(t))).RegisterRoutes(e.Group("/fhir"))
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/fhir+json")
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestLookupHandler_Query(t *testing.T) {
	e := newRouter(t)
	rec := do(e, http.MethodGet, "/fhir/CodeSystem/$lookup?system="+systemVaccine+"&code=flu", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result["resourceType"] != "Parameters" {
		t.Errorf("expected Parameters, got %v", result["resourceType"])
	}
	if !strings.Contains(rec.Body.String(), "Influenza vaccine") {
		t.Errorf("expected display in response, got %s", rec.Body.String())
	}
}

func TestLookupHandler_ParametersBody(t *testing.T) {
	e := newRouter(t)
	body := `{"resourceType":"Parameters","parameter":[
		{"name":"system","valueUri":"` + systemVaccine + `"},
		{"name":"code","valueCode":"hepb"}
	]}`
	rec := do(e, http.MethodPost, "/fhir/CodeSystem/$lookup", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Hepatitis B vaccine") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestLookupHandler_Errors(t *testing.T) {
	e := newRouter(t)
	if rec := do(e, http.MethodGet, "/fhir/CodeSystem/$lookup?system="+systemVaccine, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without code, got %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/fhir/CodeSystem/$lookup?system="+systemVaccine+"&code=zzz", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown code, got %d", rec.Code)
	}
}

func TestExpandHandler_ByID(t *testing.T) {
	e := newRouter(t)
	rec := do(e, http.MethodGet, "/fhir/ValueSet/explicit/$expand?filter=heart", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &result)
	expansion, _ := result["expansion"].(map[string]interface{})
	if expansion["total"] != 1.0 {
		t.Errorf("expected total 1, got %v", expansion["total"])
	}
}

func TestExpandHandler_ByURL(t *testing.T) {
	e := newRouter(t)
	rec := do(e, http.MethodGet, "/fhir/ValueSet/$expand?url=http://example.org/ValueSet/all-vaccines&count=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &result)
	expansion, _ := result["expansion"].(map[string]interface{})
	contains, _ := expansion["contains"].([]interface{})
	if len(contains) != 1 {
		t.Errorf("expected 1 concept, got %d", len(contains))
	}
	if expansion["total"] != 3.0 {
		t.Errorf("expected total 3, got %v", expansion["total"])
	}
}

func TestExpandHandler_MissingURL(t *testing.T) {
	e := newRouter(t)
	if rec := do(e, http.MethodGet, "/fhir/ValueSet/$expand", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestExpandHandler_HugeCount(t *testing.T) {
	e := newRouter(t)
	rec := do(e, http.MethodGet, "/fhir/ValueSet/explicit/$expand?offset=1&count=9223372036854775807", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &result)
	expansion, _ := result["expansion"].(map[string]interface{})
	contains, _ := expansion["contains"].([]interface{})
	if len(contains) != 1 {
		t.Errorf("expected 1 concept after offset, got %d", len(contains))
	}
}

func TestLookupHandler_BodyTooLarge(t *testing.T) {
	e := echo.New()
	e.Use(middleware.BodyLimit(256))
	NewHandler(NewService(seededStore(t))).RegisterRoutes(e.Group("/fhir"))

	body := `{"resourceType":"Parameters","parameter":[{"name":"code","valueString":"` + strings.Repeat("x", 1024) + `"}]}`
	req := httptest.NewRequest(http.MethodPost, "/fhir/CodeSystem/$lookup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/fhir+json")
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d: %s", rec.Code, rec.Body.String())
	}
}

package terminology

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/planengine/internal/platform/fhir"
)

// DefaultExpandCount caps an expansion when the caller gives no count.
const DefaultExpandCount = 100

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(fhirGroup *echo.Group) {
	fhirGroup.GET("/CodeSystem/$lookup", h.Lookup)
	fhirGroup.POST("/CodeSystem/$lookup", h.Lookup)
	fhirGroup.GET("/ValueSet/$expand", h.Expand)
	fhirGroup.POST("/ValueSet/$expand", h.Expand)
	fhirGroup.GET("/ValueSet/:id/$expand", h.ExpandByID)
	fhirGroup.POST("/ValueSet/:id/$expand", h.ExpandByID)
}

// Lookup handles GET/POST /fhir/CodeSystem/$lookup.
func (h *Handler) Lookup(c echo.Context) error {
	params, err := requestParams(c)
	if err != nil {
		return paramsError(c, err)
	}
	req := LookupRequest{
		System:  params["system"],
		Code:    params["code"],
		Version: params["version"],
	}
	result, err := h.svc.Lookup(c.Request().Context(), req)
	if err != nil {
		return c.JSON(fhir.StatusFor(err), fhir.OutcomeFor(err))
	}
	return c.JSON(http.StatusOK, result.Parameters())
}

// Expand handles GET/POST /fhir/ValueSet/$expand.
func (h *Handler) Expand(c echo.Context) error {
	params, err := requestParams(c)
	if err != nil {
		return paramsError(c, err)
	}
	return h.doExpand(c, ExpandRequest{URL: params["url"]}, params)
}

// ExpandByID handles GET/POST /fhir/ValueSet/:id/$expand.
func (h *Handler) ExpandByID(c echo.Context) error {
	params, err := requestParams(c)
	if err != nil {
		return paramsError(c, err)
	}
	return h.doExpand(c, ExpandRequest{ID: c.Param("id")}, params)
}

func (h *Handler) doExpand(c echo.Context, req ExpandRequest, params map[string]string) error {
	req.Filter = params["filter"]
	req.Offset = intParam(params["offset"], 0)
	req.Count = intParam(params["count"], DefaultExpandCount)

	exp, err := h.svc.Expand(c.Request().Context(), req)
	if err != nil {
		return c.JSON(fhir.StatusFor(err), fhir.OutcomeFor(err))
	}
	return c.JSON(http.StatusOK, exp.ValueSet(uuid.New().String(), time.Now().UTC().Format(time.RFC3339)))
}

// requestParams merges query parameters with a FHIR Parameters body.
// Body values win.
func requestParams(c echo.Context) (map[string]string, error) {
	out := make(map[string]string)
	for k, v := range c.QueryParams() {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	if c.Request().Body == nil {
		return out, nil
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return out, nil
	}
	var parameters struct {
		Parameter []map[string]interface{} `json:"parameter"`
	}
	if err := json.Unmarshal(body, &parameters); err != nil {
		return nil, err
	}
	for _, p := range parameters.Parameter {
		name, _ := p["name"].(string)
		for _, key := range []string{"valueString", "valueUri", "valueCode", "valueCanonical"} {
			if v, ok := p[key].(string); ok {
				out[name] = v
			}
		}
		if v, ok := p["valueInteger"].(float64); ok {
			out[name] = strconv.Itoa(int(v))
		}
	}
	return out, nil
}

// paramsError passes body-limit rejections through to echo.
func paramsError(c echo.Context, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
}

func intParam(v string, defaultValue int) int {
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultValue
	}
	return n
}

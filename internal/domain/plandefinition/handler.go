package plandefinition

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/planengine/internal/platform/fhir"
	"github.com/ehr/planengine/internal/platform/store"
	"github.com/ehr/planengine/pkg/fhirmodels"
)

type Handler struct {
	store   *store.Store
	applier *Applier
}

func NewHandler(st *store.Store, applier *Applier) *Handler {
	return &Handler{store: st, applier: applier}
}

func (h *Handler) RegisterRoutes(fhirGroup *echo.Group) {
	fhirGroup.POST("/PlanDefinition/:id/$apply", h.Apply)
	fhirGroup.GET("/PlanDefinition/:id/$apply", h.Apply)
	fhirGroup.GET("/PlanDefinition/:id/$outline", h.Outline)
	fhirGroup.GET("/PlanDefinition/:id/$data-requirements", h.DataRequirements)
}

// Apply handles PlanDefinition/$apply. The subject comes from the body
// (FHIR Parameters or plain JSON) or the query string.
func (h *Handler) Apply(c echo.Context) error {
	req := ApplyRequest{
		PlanDefinitionID: c.Param("id"),
		Subject:          c.QueryParam("subject"),
		Encounter:        c.QueryParam("encounter"),
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("failed to read request body"))
	}
	if len(body) > 0 {
		var bodyMap map[string]interface{}
		if err := json.Unmarshal(body, &bodyMap); err != nil {
			return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("invalid JSON: "+err.Error()))
		}
		fromBody := parseApplyRequestFromBody(bodyMap)
		if fromBody.Subject != "" {
			req.Subject = fromBody.Subject
		}
		if fromBody.Encounter != "" {
			req.Encounter = fromBody.Encounter
		}
	}

	carePlan, err := h.applier.Apply(c.Request().Context(), req)
	if err != nil {
		return c.JSON(fhir.StatusFor(err), fhir.OutcomeFor(err))
	}
	return c.JSON(http.StatusOK, carePlan)
}

// Outline returns the full action tree of a PlanDefinition.
func (h *Handler) Outline(c echo.Context) error {
	id := fhir.StripTypePrefix(c.Param("id"), fhirmodels.TypePlanDefinition)
	doc, err := h.store.Get(fhirmodels.TypePlanDefinition, id)
	if err != nil {
		return c.JSON(fhir.StatusFor(err), fhir.OutcomeFor(err))
	}
	def, err := ParseDefinition(doc)
	if err != nil {
		return c.JSON(fhir.StatusFor(err), fhir.OutcomeFor(err))
	}
	nodes := Outline(def)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":          def.ID,
		"title":       def.DisplayName(),
		"status":      def.Status,
		"actionCount": Count(nodes),
		"action":      nodes,
	})
}

// DataRequirements returns the Library of data the protocol's actions read.
func (h *Handler) DataRequirements(c echo.Context) error {
	id := fhir.StripTypePrefix(c.Param("id"), fhirmodels.TypePlanDefinition)
	doc, err := h.store.Get(fhirmodels.TypePlanDefinition, id)
	if err != nil {
		return c.JSON(fhir.StatusFor(err), fhir.OutcomeFor(err))
	}
	def, err := ParseDefinition(doc)
	if err != nil {
		return c.JSON(fhir.StatusFor(err), fhir.OutcomeFor(err))
	}
	return c.JSON(http.StatusOK, DataRequirements(def))
}

// parseApplyRequestFromBody accepts either a FHIR Parameters resource with
// subject/encounter as valueString or valueReference, or a plain JSON object.
func parseApplyRequestFromBody(body map[string]interface{}) ApplyRequest {
	req := ApplyRequest{}

	if rt, ok := body["resourceType"].(string); ok && rt == "Parameters" {
		for _, param := range fhir.ObjectList(body["parameter"]) {
			name, _ := param["name"].(string)
			switch name {
			case "subject":
				req.Subject = parameterValue(param)
			case "encounter":
				req.Encounter = parameterValue(param)
			}
		}
		return req
	}

	req.Subject = stringOrReference(body["subject"])
	req.Encounter = stringOrReference(body["encounter"])
	return req
}

func parameterValue(param map[string]interface{}) string {
	if vs, ok := param["valueString"].(string); ok {
		return vs
	}
	if vs, ok := param["valueId"].(string); ok {
		return vs
	}
	return stringOrReference(param["valueReference"])
}

func stringOrReference(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]interface{}:
		ref, _ := val["reference"].(string)
		return ref
	}
	return ""
}

package guide

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/planengine/internal/platform/fhir"
)

type Handler struct {
	guides *Context
}

func NewHandler(guides *Context) *Handler {
	return &Handler{guides: guides}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/guide/context", h.GetContext)
	api.PUT("/guide/context", h.SetContext)
	api.DELETE("/guide/context", h.ClearContext)
	api.GET("/guide/packages", h.ListPackages)
}

type setContextRequest struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (h *Handler) GetContext(c echo.Context) error {
	cur := h.guides.Get()
	if cur == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, cur)
}

func (h *Handler) SetContext(c echo.Context) error {
	var req setContextRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	cur, err := h.guides.Set(c.Request().Context(), req.ID, req.URL)
	if err != nil {
		return c.JSON(fhir.StatusFor(err), fhir.OutcomeFor(err))
	}
	if cur == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, cur)
}

func (h *Handler) ClearContext(c echo.Context) error {
	h.guides.Clear()
	return c.NoContent(http.StatusNoContent)
}

// ListPackages returns the ingested packages that can be selected.
func (h *Handler) ListPackages(c echo.Context) error {
	return c.JSON(http.StatusOK, h.guides.Packages())
}

package resource

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/planengine/internal/platform/fhir"
	"github.com/ehr/planengine/internal/platform/store"
	"github.com/ehr/planengine/pkg/pagination"
)

var errNullBody = errors.New("body is null")

// Handler exposes generic FHIR REST interactions over the store for any
// resource type.
type Handler struct {
	store *store.Store
}

func NewHandler(st *store.Store) *Handler {
	return &Handler{store: st}
}

// RegisterRoutes registers the catch-all type routes. Operation routes such
// as $apply must be registered on the same group so the router prefers them.
func (h *Handler) RegisterRoutes(fhirGroup *echo.Group) {
	fhirGroup.GET("/metadata", h.Capabilities)
	fhirGroup.GET("/:type", h.Search)
	fhirGroup.POST("/:type", h.Create)
	fhirGroup.GET("/:type/:id", h.Read)
	fhirGroup.PUT("/:type/:id", h.Update)
	fhirGroup.DELETE("/:type/:id", h.Delete)
}

func (h *Handler) Capabilities(c echo.Context) error {
	return c.JSON(http.StatusOK, fhir.NewCapabilityStatement(h.store.TypeCounts(), h.store.Types()))
}

func (h *Handler) Search(c echo.Context) error {
	rt := c.Param("type")
	docs, err := Search(h.store, rt, QueryFromContext(c))
	if err != nil {
		return c.JSON(fhir.StatusFor(err), fhir.OutcomeFor(err))
	}

	pg := pagination.FromContext(c)
	page := pagination.Page(docs, pg)
	var links []fhir.BundleLink
	for _, l := range pg.Links("/fhir/"+rt, len(docs)) {
		links = append(links, fhir.BundleLink{Relation: l.Relation, URL: l.URL})
	}
	return c.JSON(http.StatusOK, fhir.NewSearchBundle(page, len(docs), links))
}

func (h *Handler) Read(c echo.Context) error {
	doc, err := h.store.Get(c.Param("type"), c.Param("id"))
	if err != nil {
		return c.JSON(fhir.StatusFor(err), fhir.OutcomeFor(err))
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) Create(c echo.Context) error {
	rt := c.Param("type")
	doc, err := bindDocument(c, rt)
	if err != nil {
		return bindError(c, err)
	}
	id, err := h.store.Create(doc)
	if err != nil {
		return c.JSON(fhir.StatusFor(err), fhir.OutcomeFor(err))
	}
	stored, err := h.store.Get(rt, id)
	if err != nil {
		return c.JSON(fhir.StatusFor(err), fhir.OutcomeFor(err))
	}
	c.Response().Header().Set("Location", "/fhir/"+rt+"/"+id)
	return c.JSON(http.StatusCreated, stored)
}

func (h *Handler) Update(c echo.Context) error {
	rt, id := c.Param("type"), c.Param("id")
	doc, err := bindDocument(c, rt)
	if err != nil {
		return bindError(c, err)
	}
	if bodyID := doc.ID(); bodyID != "" && bodyID != id {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("resource id "+bodyID+" does not match URL id "+id))
	}
	doc.SetID(id)
	if err := h.store.Update(doc); err != nil {
		return c.JSON(fhir.StatusFor(err), fhir.OutcomeFor(err))
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.store.Delete(c.Param("type"), c.Param("id")); err != nil {
		return c.JSON(fhir.StatusFor(err), fhir.OutcomeFor(err))
	}
	return c.NoContent(http.StatusNoContent)
}

// bindDocument decodes the request body as a resource of type rt. A body
// without resourceType takes rt; a different type is rejected.
func bindDocument(c echo.Context, rt string) (fhir.Document, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return nil, he
		}
		return nil, fhir.InvalidArgument("failed to read request body")
	}
	if len(body) == 0 {
		return nil, fhir.InvalidArgument("request body is empty")
	}
	var doc fhir.Document
	if err := json.Unmarshal(body, &doc); err != nil || doc == nil {
		return nil, &fhir.ParseError{Source: "request body", Err: errOrNull(err)}
	}
	switch doc.ResourceType() {
	case "":
		doc["resourceType"] = rt
	case rt:
	default:
		return nil, fhir.InvalidArgument("resourceType %s does not match endpoint %s", doc.ResourceType(), rt)
	}
	return doc, nil
}

// bindError hands body-limit rejections back to echo and renders everything
// else as an OperationOutcome.
func bindError(c echo.Context, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	return c.JSON(fhir.StatusFor(err), fhir.OutcomeFor(err))
}

func errOrNull(err error) error {
	if err != nil {
		return err
	}
	return errNullBody
}

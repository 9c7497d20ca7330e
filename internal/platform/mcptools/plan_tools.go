package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ehr/planengine/internal/domain/plandefinition"
	"github.com/ehr/planengine/internal/domain/resource"
	"github.com/ehr/planengine/internal/platform/fhir"
	"github.com/ehr/planengine/internal/platform/store"
	"github.com/ehr/planengine/pkg/fhirmodels"
	"github.com/ehr/planengine/pkg/pagination"
)

// Summary is the listing form of a stored knowledge artifact.
type Summary struct {
	ID     string `json:"id"`
	URL    string `json:"url,omitempty"`
	Name   string `json:"name,omitempty"`
	Title  string `json:"title,omitempty"`
	Status string `json:"status,omitempty"`
}

// Listing is one page of summaries.
type Listing struct {
	ResourceType string    `json:"resourceType"`
	Total        int       `json:"total"`
	Offset       int       `json:"offset"`
	Items        []Summary `json:"items"`
}

func summarize(doc fhir.Document) Summary {
	return Summary{
		ID:     doc.ID(),
		URL:    doc.String("url"),
		Name:   doc.String("name"),
		Title:  doc.String("title"),
		Status: doc.String("status"),
	}
}

func (s *Server) listing(resourceType string, request mcp.CallToolRequest) (Listing, error) {
	docs, err := resource.Search(s.deps.Store, resourceType, queryArgs(request))
	if err != nil {
		return Listing{}, err
	}
	page := pageArgs(request)
	window := pagination.Page(docs, page)
	items := make([]Summary, 0, len(window))
	for _, d := range window {
		items = append(items, summarize(d))
	}
	return Listing{ResourceType: resourceType, Total: len(docs), Offset: page.Offset, Items: items}, nil
}

func (s *Server) list(resourceType string, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := s.listing(resourceType, request)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(out)
}

// byIDOrURL loads a stored resource by id, or by canonical url when id is
// empty. An id may carry the type prefix.
func (s *Server) byIDOrURL(resourceType, id, url string) (fhir.Document, error) {
	if id != "" {
		return s.deps.Store.Get(resourceType, fhir.StripTypePrefix(id, resourceType))
	}
	if url == "" {
		return nil, fhir.InvalidArgument("one of id or url is required")
	}
	matches := s.deps.Store.Search(resourceType, store.FieldEquals("url", url))
	if len(matches) == 0 {
		return nil, fhir.NotFound(resourceType, url)
	}
	return matches[0], nil
}

func listPlanDefinitionsTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("List stored PlanDefinitions with optional name, title, status and url filters"),
	}, queryOptions()...)
	return mcp.NewTool("fhir_list_plan_definitions", opts...)
}

func (s *Server) handleListPlanDefinitions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.list(fhirmodels.TypePlanDefinition, request)
}

func getPlanDefinitionTool() mcp.Tool {
	return mcp.NewTool("fhir_get_plan_definition",
		mcp.WithDescription("Get a PlanDefinition together with an outline of its full action tree"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("PlanDefinition id, with or without the PlanDefinition/ prefix"),
		),
	)
}

func (s *Server) handleGetPlanDefinition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return invalidArgument(err), nil
	}
	doc, err := s.deps.Store.Get(fhirmodels.TypePlanDefinition, fhir.StripTypePrefix(id, fhirmodels.TypePlanDefinition))
	if err != nil {
		return errorResult(err), nil
	}
	def, err := plandefinition.ParseDefinition(doc)
	if err != nil {
		return errorResult(err), nil
	}
	nodes := plandefinition.Outline(def)
	return jsonResult(map[string]interface{}{
		"resource":    doc,
		"actionCount": plandefinition.Count(nodes),
		"outline":     nodes,
	})
}

func applyPlanDefinitionTool() mcp.Tool {
	return mcp.NewTool("fhir_apply_plan_definition",
		mcp.WithDescription("Apply a PlanDefinition to a patient and store the resulting draft CarePlan"),
		mcp.WithString("plan_definition_id",
			mcp.Required(),
			mcp.Description("PlanDefinition id, with or without the PlanDefinition/ prefix"),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Patient id or Patient/<id> reference"),
		),
		mcp.WithString("encounter",
			mcp.Description("Optional Encounter id or Encounter/<id> reference"),
		),
	)
}

func (s *Server) handleApplyPlanDefinition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pdID, err := request.RequireString("plan_definition_id")
	if err != nil {
		return invalidArgument(err), nil
	}
	subject, err := request.RequireString("subject")
	if err != nil {
		return invalidArgument(err), nil
	}
	carePlan, err := s.deps.Applier.Apply(ctx, plandefinition.ApplyRequest{
		PlanDefinitionID: pdID,
		Subject:          subject,
		Encounter:        request.GetString("encounter", ""),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(carePlan)
}

func planDataRequirementsTool() mcp.Tool {
	return mcp.NewTool("fhir_get_plan_definition_data_requirements",
		mcp.WithDescription("Collect the input data requirements of every action of a PlanDefinition into a module-definition Library"),
		mcp.WithString("plan_definition_id",
			mcp.Required(),
			mcp.Description("PlanDefinition id, with or without the PlanDefinition/ prefix"),
		),
	)
}

func (s *Server) handlePlanDataRequirements(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("plan_definition_id")
	if err != nil {
		return invalidArgument(err), nil
	}
	doc, err := s.deps.Store.Get(fhirmodels.TypePlanDefinition, fhir.StripTypePrefix(id, fhirmodels.TypePlanDefinition))
	if err != nil {
		return errorResult(err), nil
	}
	def, err := plandefinition.ParseDefinition(doc)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(plandefinition.DataRequirements(def))
}

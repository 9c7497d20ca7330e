package mcptools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ehr/planengine/internal/domain/resource"
	"github.com/ehr/planengine/internal/platform/fhir"
	"github.com/ehr/planengine/pkg/pagination"
)

func resourceTypeOption() mcp.ToolOption {
	return mcp.WithString("resource_type",
		mcp.Required(),
		mcp.Description("FHIR resource type, e.g. PlanDefinition or Patient"),
	)
}

func createResourceTool() mcp.Tool {
	return mcp.NewTool("fhir_create_resource",
		mcp.WithDescription("Store a new resource. An id is generated when the resource has none"),
		mcp.WithObject("resource",
			mcp.Required(),
			mcp.Description("The FHIR resource as a JSON object"),
		),
	)
}

func (s *Server) handleCreateResource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := documentArg(request, "resource")
	if err != nil {
		return errorResult(err), nil
	}
	id, err := s.deps.Store.Create(doc)
	if err != nil {
		return errorResult(err), nil
	}
	stored, err := s.deps.Store.Get(doc.ResourceType(), id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(stored)
}

func getResourceTool() mcp.Tool {
	return mcp.NewTool("fhir_get_resource",
		mcp.WithDescription("Read one stored resource by type and id"),
		resourceTypeOption(),
		mcp.WithString("id", mcp.Required(), mcp.Description("Resource id")),
	)
}

func (s *Server) handleGetResource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rt, id, err := typeAndID(request)
	if err != nil {
		return invalidArgument(err), nil
	}
	doc, err := s.deps.Store.Get(rt, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(doc)
}

func updateResourceTool() mcp.Tool {
	return mcp.NewTool("fhir_update_resource",
		mcp.WithDescription("Replace an existing stored resource. The resource must already exist"),
		mcp.WithObject("resource",
			mcp.Required(),
			mcp.Description("The full FHIR resource including resourceType and id"),
		),
	)
}

func (s *Server) handleUpdateResource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := documentArg(request, "resource")
	if err != nil {
		return errorResult(err), nil
	}
	if err := s.deps.Store.Update(doc); err != nil {
		return errorResult(err), nil
	}
	return jsonResult(doc)
}

func deleteResourceTool() mcp.Tool {
	return mcp.NewTool("fhir_delete_resource",
		mcp.WithDescription("Delete one stored resource by type and id"),
		resourceTypeOption(),
		mcp.WithString("id", mcp.Required(), mcp.Description("Resource id")),
	)
}

func (s *Server) handleDeleteResource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rt, id, err := typeAndID(request)
	if err != nil {
		return invalidArgument(err), nil
	}
	if err := s.deps.Store.Delete(rt, id); err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]string{"deleted": rt + "/" + id})
}

func searchResourcesTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Search stored resources of one type and return a searchset Bundle"),
		resourceTypeOption(),
		mcp.WithString("filter", mcp.Description("FHIRPath expression every match must satisfy, e.g. status = 'active'")),
	}
	return mcp.NewTool("fhir_search_resources", append(opts, queryOptions()...)...)
}

func (s *Server) handleSearchResources(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rt, err := request.RequireString("resource_type")
	if err != nil {
		return invalidArgument(err), nil
	}
	docs, err := resource.Search(s.deps.Store, rt, queryArgs(request))
	if err != nil {
		return errorResult(err), nil
	}
	page := pageArgs(request)
	var links []fhir.BundleLink
	for _, l := range page.Links("/fhir/"+rt, len(docs)) {
		links = append(links, fhir.BundleLink{Relation: l.Relation, URL: l.URL})
	}
	return jsonResult(fhir.NewSearchBundle(pagination.Page(docs, page), len(docs), links))
}

func typeAndID(request mcp.CallToolRequest) (string, string, error) {
	rt, err := request.RequireString("resource_type")
	if err != nil {
		return "", "", err
	}
	id, err := request.RequireString("id")
	if err != nil {
		return "", "", err
	}
	if rt == "" || id == "" {
		return "", "", fmt.Errorf("resource_type and id must not be empty")
	}
	return rt, fhir.StripTypePrefix(id, rt), nil
}

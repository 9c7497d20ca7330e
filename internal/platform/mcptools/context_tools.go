package mcptools

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ehr/planengine/internal/domain/guide"
	"github.com/ehr/planengine/internal/platform/fhir"
	"github.com/ehr/planengine/internal/platform/store"
	"github.com/ehr/planengine/pkg/fhirmodels"
)

// GuideListing pairs the stored ImplementationGuides with the packages
// registered from ingested archives.
type GuideListing struct {
	Listing
	Packages []guide.Package `json:"packages"`
}

func listGuidesTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("List stored ImplementationGuides and the ingested packages that can be selected as context"),
	}, queryOptions()...)
	return mcp.NewTool("fhir_list_implementation_guides", opts...)
}

func (s *Server) handleListGuides(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := s.listing(fhirmodels.TypeImplementationGuide, request)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(GuideListing{Listing: out, Packages: s.deps.Guide.Packages()})
}

func getGuideTool() mcp.Tool {
	return mcp.NewTool("fhir_get_implementation_guide",
		mcp.WithDescription("Get a stored ImplementationGuide by id or canonical url, or the ingested package of that name or canonical"),
		mcp.WithString("id", mcp.Description("ImplementationGuide id or package name")),
		mcp.WithString("url", mcp.Description("ImplementationGuide or package canonical URL, used when id is absent")),
	)
}

func (s *Server) handleGetGuide(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, url := request.GetString("id", ""), request.GetString("url", "")
	doc, err := s.byIDOrURL(fhirmodels.TypeImplementationGuide, id, url)
	if errors.Is(err, fhir.ErrNotFound) {
		if pkg, ok := s.deps.Guide.FindPackage(id, url); ok {
			return jsonResult(map[string]interface{}{"source": guide.SourcePackage, "package": pkg})
		}
	}
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]interface{}{"source": guide.SourceResource, "resource": doc})
}

func setGuideContextTool() mcp.Tool {
	return mcp.NewTool("fhir_set_implementation_guide_context",
		mcp.WithDescription("Select a stored ImplementationGuide as working context. Pass neither id nor url to clear it"),
		mcp.WithString("id", mcp.Description("ImplementationGuide id")),
		mcp.WithString("url", mcp.Description("ImplementationGuide canonical URL, used when id is absent")),
	)
}

func (s *Server) handleSetGuideContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	current, err := s.deps.Guide.Set(ctx, request.GetString("id", ""), request.GetString("url", ""))
	if err != nil {
		return errorResult(err), nil
	}
	if current == nil {
		return jsonResult(map[string]interface{}{"cleared": true})
	}
	return jsonResult(current)
}

func getGuideContextTool() mcp.Tool {
	return mcp.NewTool("fhir_get_current_implementation_guide_context",
		mcp.WithDescription("Return the ImplementationGuide currently selected as working context"),
	)
}

func (s *Server) handleGetGuideContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	current := s.deps.Guide.Get()
	if current == nil {
		return jsonResult(map[string]interface{}{"selected": false})
	}
	return jsonResult(current)
}

func serverCapabilityTool() mcp.Tool {
	return mcp.NewTool("fhir_get_server_capability",
		mcp.WithDescription("Describe the stored resource types, their counts and the supported operations"),
	)
}

func (s *Server) handleServerCapability(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]interface{}{
		"capabilityStatement": fhir.NewCapabilityStatement(s.deps.Store.TypeCounts(), s.deps.Store.Types()),
		"stats":               store.GetStats(s.deps.Store),
	})
}

package mcptools

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ehr/planengine/internal/domain/terminology"
	"github.com/ehr/planengine/pkg/fhirmodels"
)

func lookupCodeTool() mcp.Tool {
	return mcp.NewTool("fhir_lookup_code",
		mcp.WithDescription("Look up a code in a stored CodeSystem and return its display and definition"),
		mcp.WithString("system", mcp.Required(), mcp.Description("Canonical URL of the CodeSystem")),
		mcp.WithString("code", mcp.Required(), mcp.Description("The code to look up")),
		mcp.WithString("version", mcp.Description("Optional CodeSystem version")),
	)
}

func (s *Server) handleLookupCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	system, err := request.RequireString("system")
	if err != nil {
		return invalidArgument(err), nil
	}
	code, err := request.RequireString("code")
	if err != nil {
		return invalidArgument(err), nil
	}
	result, err := s.deps.Terminology.Lookup(ctx, terminology.LookupRequest{
		System:  system,
		Code:    code,
		Version: request.GetString("version", ""),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(result)
}

func expandValueSetTool() mcp.Tool {
	return mcp.NewTool("fhir_expand_valueset",
		mcp.WithDescription("Expand a stored ValueSet, identified by id or canonical url, into its concepts"),
		mcp.WithString("id", mcp.Description("ValueSet id")),
		mcp.WithString("url", mcp.Description("ValueSet canonical URL, used when id is absent")),
		mcp.WithString("filter", mcp.Description("Case-insensitive substring of code or display")),
		mcp.WithNumber("count", mcp.Description("Maximum number of concepts to return")),
		mcp.WithNumber("offset", mcp.Description("Zero-based index of the first concept")),
	)
}

func (s *Server) handleExpandValueSet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	exp, err := s.deps.Terminology.Expand(ctx, terminology.ExpandRequest{
		ID:     request.GetString("id", ""),
		URL:    request.GetString("url", ""),
		Filter: request.GetString("filter", ""),
		Offset: request.GetInt("offset", 0),
		Count:  request.GetInt("count", terminology.DefaultExpandCount),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(exp.ValueSet(uuid.New().String(), time.Now().UTC().Format(time.RFC3339)))
}

func listCodeSystemsTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("List stored CodeSystems with optional name, title, status and url filters"),
	}, queryOptions()...)
	return mcp.NewTool("fhir_list_codesystems", opts...)
}

func (s *Server) handleListCodeSystems(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.list(fhirmodels.TypeCodeSystem, request)
}

func listValueSetsTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("List stored ValueSets with optional name, title, status and url filters"),
	}, queryOptions()...)
	return mcp.NewTool("fhir_list_valuesets", opts...)
}

func (s *Server) handleListValueSets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.list(fhirmodels.TypeValueSet, request)
}

package mcptools

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ehr/planengine/internal/domain/resource"
	"github.com/ehr/planengine/internal/platform/fhir"
	"github.com/ehr/planengine/pkg/pagination"
)

// Shared argument options of listing and search tools.
func queryOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("name", mcp.Description("Case-insensitive substring of the computable name")),
		mcp.WithString("title", mcp.Description("Case-insensitive substring of the title")),
		mcp.WithString("status", mcp.Description("Exact publication status, e.g. active or draft")),
		mcp.WithString("url", mcp.Description("Exact canonical URL")),
		mcp.WithNumber("count", mcp.Description(fmt.Sprintf("Page size (default %d, max %d)", pagination.DefaultLimit, pagination.MaxLimit))),
		mcp.WithNumber("offset", mcp.Description("Zero-based index of the first result")),
	}
}

func queryArgs(request mcp.CallToolRequest) resource.Query {
	return resource.Query{
		Name:   request.GetString("name", ""),
		Title:  request.GetString("title", ""),
		Status: request.GetString("status", ""),
		URL:    request.GetString("url", ""),
		Filter: request.GetString("filter", ""),
	}
}

func pageArgs(request mcp.CallToolRequest) pagination.Params {
	count := request.GetInt("count", 0)
	offset := request.GetInt("offset", 0)
	return pagination.Parse(fmt.Sprint(count), fmt.Sprint(offset))
}

// documentArg reads a resource argument given either as a JSON object or as
// a JSON-encoded string.
func documentArg(request mcp.CallToolRequest, key string) (fhir.Document, error) {
	raw, ok := request.GetArguments()[key]
	if !ok || raw == nil {
		return nil, fhir.InvalidArgument("required argument %q not found", key)
	}
	switch v := raw.(type) {
	case map[string]interface{}:
		return fhir.Document(v).Clone(), nil
	case string:
		return fhir.ParseDocument(key, []byte(v))
	default:
		return nil, fhir.InvalidArgument("argument %q must be a JSON object", key)
	}
}

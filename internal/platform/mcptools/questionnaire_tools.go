package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ehr/planengine/internal/platform/fhir"
	"github.com/ehr/planengine/pkg/fhirmodels"
)

// QuestionnaireItem is the outline form of a Questionnaire item.
type QuestionnaireItem struct {
	LinkID   string              `json:"linkId"`
	Text     string              `json:"text,omitempty"`
	Type     string              `json:"type,omitempty"`
	Required bool                `json:"required,omitempty"`
	Items    []QuestionnaireItem `json:"item,omitempty"`
}

func questionnaireItems(raw interface{}) []QuestionnaireItem {
	var out []QuestionnaireItem
	for _, m := range fhir.ObjectList(raw) {
		item := fhir.Document(m)
		required, _ := m["required"].(bool)
		out = append(out, QuestionnaireItem{
			LinkID:   item.String("linkId"),
			Text:     item.String("text"),
			Type:     item.String("type"),
			Required: required,
			Items:    questionnaireItems(m["item"]),
		})
	}
	return out
}

func listQuestionnairesTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("List stored Questionnaires with optional name, title, status and url filters"),
	}, queryOptions()...)
	return mcp.NewTool("fhir_list_questionnaires", opts...)
}

func (s *Server) handleListQuestionnaires(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.list(fhirmodels.TypeQuestionnaire, request)
}

func getQuestionnaireTool() mcp.Tool {
	return mcp.NewTool("fhir_get_questionnaire",
		mcp.WithDescription("Get a Questionnaire by id or canonical url together with an outline of its items"),
		mcp.WithString("id", mcp.Description("Questionnaire id, with or without the Questionnaire/ prefix")),
		mcp.WithString("url", mcp.Description("Questionnaire canonical URL, used when id is absent")),
	)
}

func (s *Server) handleGetQuestionnaire(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := s.byIDOrURL(fhirmodels.TypeQuestionnaire, request.GetString("id", ""), request.GetString("url", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]interface{}{
		"resource": doc,
		"items":    questionnaireItems(doc["item"]),
	})
}

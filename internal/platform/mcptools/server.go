// Package mcptools exposes the engine over the Model Context Protocol. Every
// tool answers with JSON text; failures come back as tool errors whose text
// starts with the OperationOutcome issue code.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/ehr/planengine/internal/domain/guide"
	"github.com/ehr/planengine/internal/domain/plandefinition"
	"github.com/ehr/planengine/internal/domain/terminology"
	"github.com/ehr/planengine/internal/platform/fhir"
	"github.com/ehr/planengine/internal/platform/store"
)

// ServerName is announced to MCP clients during initialization.
const ServerName = "planengine"

// Deps are the services the tools dispatch to.
type Deps struct {
	Store       *store.Store
	Applier     *plandefinition.Applier
	Terminology *terminology.Service
	Guide       *guide.Context
}

// Server owns the MCP server and the tool table registered on it.
type Server struct {
	deps   Deps
	logger zerolog.Logger
	mcp    *server.MCPServer
	tools  []server.ServerTool
}

// New builds the MCP server with every tool registered.
func New(deps Deps, version string, logger zerolog.Logger) *Server {
	s := &Server{
		deps:   deps,
		logger: logger.With().Str("component", "mcp").Logger(),
	}
	s.mcp = server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.tools = s.registerTools()
	s.mcp.AddTools(s.tools...)
	return s
}

// MCPServer returns the underlying server for custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Tools returns the registered tool table.
func (s *Server) Tools() []server.ServerTool {
	return s.tools
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	s.logger.Info().Int("tools", len(s.tools)).Msg("serving MCP over stdio")
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() []server.ServerTool {
	var tools []server.ServerTool
	add := func(tool mcp.Tool, handler server.ToolHandlerFunc) {
		tools = append(tools, server.ServerTool{Tool: tool, Handler: s.logged(tool.Name, handler)})
	}

	add(listPlanDefinitionsTool(), s.handleListPlanDefinitions)
	add(getPlanDefinitionTool(), s.handleGetPlanDefinition)
	add(applyPlanDefinitionTool(), s.handleApplyPlanDefinition)
	add(planDataRequirementsTool(), s.handlePlanDataRequirements)
	add(listQuestionnairesTool(), s.handleListQuestionnaires)
	add(getQuestionnaireTool(), s.handleGetQuestionnaire)

	add(createResourceTool(), s.handleCreateResource)
	add(getResourceTool(), s.handleGetResource)
	add(updateResourceTool(), s.handleUpdateResource)
	add(deleteResourceTool(), s.handleDeleteResource)
	add(searchResourcesTool(), s.handleSearchResources)

	add(lookupCodeTool(), s.handleLookupCode)
	add(expandValueSetTool(), s.handleExpandValueSet)
	add(listCodeSystemsTool(), s.handleListCodeSystems)
	add(listValueSetsTool(), s.handleListValueSets)

	add(listGuidesTool(), s.handleListGuides)
	add(getGuideTool(), s.handleGetGuide)
	add(setGuideContextTool(), s.handleSetGuideContext)
	add(getGuideContextTool(), s.handleGetGuideContext)
	add(serverCapabilityTool(), s.handleServerCapability)

	return tools
}

func (s *Server) logged(name string, next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := next(ctx, request)
		evt := s.logger.Debug()
		if err != nil || (result != nil && result.IsError) {
			evt = s.logger.Warn().Err(err)
		}
		evt.Str("tool", name).Msg("tool call")
		return result, err
	}
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("exception: encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult renders err as a tool error prefixed with its issue code,
// e.g. "not-found: PlanDefinition/x not found".
func errorResult(err error) *mcp.CallToolResult {
	outcome := fhir.OutcomeFor(err)
	code := fhir.IssueTypeException
	if len(outcome.Issue) > 0 {
		code = outcome.Issue[0].Code
	}
	return mcp.NewToolResultError(code + ": " + err.Error())
}

func invalidArgument(err error) *mcp.CallToolResult {
	return errorResult(fhir.InvalidArgument("%s", err.Error()))
}

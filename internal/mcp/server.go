package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"ftmgraph/internal/logger"
	"ftmgraph/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is the MCP server for ftmgraph.
// It exposes tools, resources, and prompts so AI agents can manage export jobs.
type Server struct {
	mcp     *server.MCPServer
	exports *service.ExportService
	log     *logger.Logger
}

// Deps holds all dependencies passed from the App layer to the MCP server.
type Deps struct {
	Exports *service.ExportService
	Log     *logger.Logger
	Version string
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		exports: deps.Exports,
		log:     log.With("component", "mcp"),
	}

	s.mcp = server.NewMCPServer(
		"ftmgraph-mcp",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerExportTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.log.Info("starting stdio server")
	return server.ServeStdio(s.mcp)
}

// Emit forwards a service event to every connected client as a
// notification named after the event.
func (s *Server) Emit(_ context.Context, event string, data any) {
	params := map[string]any{}
	if data != nil {
		if err := roundTrip(data, &params); err != nil {
			params = map[string]any{"data": fmt.Sprint(data)}
		}
	}
	s.mcp.SendNotificationToAllClients("notifications/"+event, params)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func boolPtr(v bool) *bool { return &v }

// Package mcp implements the Model Context Protocol server for tracelens.
//
// The MCP server exposes the read side of the HTTP API through MCP tools,
// resources and prompts, so an AI agent debugging a voice session can pull
// the same views an engineer sees.
package mcp

import (
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/tracelens/internal/service/sessions"
)

// Server wraps the MCP server with the tracelens session service.
type Server struct {
	mcpServer *mcpserver.MCPServer
	sessions  *sessions.Service
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources, tools and
// prompts.
func New(svc *sessions.Service, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		sessions: svc,
		logger:   logger.With("component", "mcp"),
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"tracelens",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithInstructions(serverInstructions),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

const serverInstructions = `tracelens renders OpenTelemetry spans from voice-agent sessions.
Start with tracelens_session_metrics for a cheap overview, then
tracelens_session_view or tracelens_trace_waterfall to find the slow or failing span.`

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("failed to encode result: " + err.Error())
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

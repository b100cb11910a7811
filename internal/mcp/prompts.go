package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// debug-session: walks the agent through finding the failing or slow span.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("debug-session",
			mcplib.WithPromptDescription("Investigate a voice-agent session for failures and latency"),
			mcplib.WithArgument("session_id",
				mcplib.ArgumentDescription("The session to investigate"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleDebugSessionPrompt,
	)

	// latency-review: focuses on the timeline of a single trace.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("latency-review",
			mcplib.WithPromptDescription("Review where time went in one trace"),
			mcplib.WithArgument("trace_id",
				mcplib.ArgumentDescription("The trace to review"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleLatencyReviewPrompt,
	)
}

func (s *Server) handleDebugSessionPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	sessionID := request.Params.Arguments["session_id"]
	if sessionID == "" {
		return nil, fmt.Errorf("session_id argument is required")
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Investigate session %s", sessionID),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Investigate voice-agent session %[1]s:

1. CALL tracelens_session_metrics with session_id="%[1]s".
   Note error_count and which categories (LLM, TTS, STT, Database, HTTP) are present.

2. CALL tracelens_session_view with session_id="%[1]s" and group_by="operation".
   - Find spans whose outcome is Error and read their status_message.
   - Check warnings: dangling_parent means spans of the turn are missing from the export.

3. For the slowest trace, CALL tracelens_trace_waterfall with its trace_id
   and look for gaps between consecutive STT, LLM and TTS rows.

4. REPORT the failing or slowest operation, its service, and the evidence.`, sessionID),
				},
			},
		},
	}, nil
}

func (s *Server) handleLatencyReviewPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	traceID := request.Params.Arguments["trace_id"]
	if traceID == "" {
		return nil, fmt.Errorf("trace_id argument is required")
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Review latency of trace %s", traceID),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`CALL tracelens_trace_waterfall with trace_id="%[1]s".

Rows are in depth-first order with offset_ms from the trace start. Identify:
- the row with the largest duration and its share of wall_clock
- idle gaps where no row is running
- rows without offset_ms (no start time recorded)

Summarize which operation should be optimized first for trace %[1]s.`, traceID),
				},
			},
		},
	}, nil
}

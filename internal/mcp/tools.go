package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/tracelens/internal/model"
	"github.com/ashita-ai/tracelens/internal/service/traceview"
	"github.com/ashita-ai/tracelens/internal/storage"
)

func (s *Server) registerTools() {
	// tracelens_session_view: assembled span tree of one session.
	s.mcpServer.AddTool(
		mcplib.NewTool("tracelens_session_view",
			mcplib.WithDescription(`Show the assembled span tree of a stored voice-agent session.

WHEN TO USE: When you need to see which operation ran under which, where time
went, or which span failed. Each node carries its category (LLM, TTS, STT,
Database, HTTP, Other), outcome (Success, Error, Unknown) and duration.

WHAT YOU GET BACK:
- traces: one tree per trace id, with a per-trace summary line
- groups: span counts per group when group_by is service or operation
- metrics: totals and per-category counts
- warnings: structural problems (missing parents, cycles, duplicate ids)`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("session_id",
				mcplib.Description("The session to render"),
				mcplib.Required(),
			),
			mcplib.WithString("group_by",
				mcplib.Description("How to group spans: service, operation or none"),
				mcplib.Enum(string(traceview.DimensionNone), string(traceview.DimensionService), string(traceview.DimensionOperation)),
				mcplib.DefaultString(string(traceview.DimensionNone)),
			),
		),
		s.handleSessionView,
	)

	// tracelens_session_metrics: aggregate numbers only.
	s.mcpServer.AddTool(
		mcplib.NewTool("tracelens_session_metrics",
			mcplib.WithDescription(`Summarize a stored session without the span tree: span and error counts,
per-category counts, total span duration and wall-clock window.

WHEN TO USE: FIRST, to decide whether a session is worth a closer look.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("session_id",
				mcplib.Description("The session to summarize"),
				mcplib.Required(),
			),
		),
		s.handleSessionMetrics,
	)

	// tracelens_trace_waterfall: timeline rows of one trace.
	s.mcpServer.AddTool(
		mcplib.NewTool("tracelens_trace_waterfall",
			mcplib.WithDescription(`Lay out one trace as a timeline: one row per span in depth-first order,
with offset from the trace start, duration and percentage position.

WHEN TO USE: To find latency gaps between turns (e.g. STT finished but the LLM
call started late) or which span dominates the turn.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("trace_id",
				mcplib.Description("The trace to lay out"),
				mcplib.Required(),
			),
		),
		s.handleTraceWaterfall,
	)

	// tracelens_classify_span: run the classifier on a hypothetical span.
	s.mcpServer.AddTool(
		mcplib.NewTool("tracelens_classify_span",
			mcplib.WithDescription(`Classify a span by name and attributes into LLM, TTS, STT, Database, HTTP
or Other, and resolve its outcome from an optional status.

WHEN TO USE: To check how tracelens will label spans from new
instrumentation before any are stored.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("name",
				mcplib.Description("Span name, e.g. llm.completion"),
				mcplib.Required(),
			),
			mcplib.WithString("attributes_json",
				mcplib.Description(`Span attributes as a JSON object, e.g. {"db.system": "postgresql"}`),
			),
			mcplib.WithString("status_json",
				mcplib.Description(`Optional span status as a JSON object, e.g. {"code": "ERROR"}`),
			),
		),
		s.handleClassifySpan,
	)

	// tracelens_list_sessions: find session ids to inspect.
	s.mcpServer.AddTool(
		mcplib.NewTool("tracelens_list_sessions",
			mcplib.WithDescription("List stored sessions, most recently updated first."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("agent_id",
				mcplib.Description("Optional: only sessions of this voice agent"),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum results to return"),
				mcplib.Min(1),
				mcplib.Max(100),
				mcplib.DefaultNumber(20),
			),
		),
		s.handleListSessions,
	)
}

func (s *Server) handleSessionView(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	if err := model.ValidateID("session_id", sessionID); err != nil {
		return errorResult(err.Error()), nil
	}
	dim, err := traceview.ParseDimension(request.GetString("group_by", ""))
	if err != nil {
		return errorResult(err.Error()), nil
	}

	sv, err := s.sessions.SessionView(ctx, sessionID, dim)
	if err != nil {
		return s.sourceError("session view", sessionID, err), nil
	}
	return jsonResult(map[string]any{
		"session": sv.Session,
		"view":    compactView(sv.View),
	}), nil
}

func (s *Server) handleSessionMetrics(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	if err := model.ValidateID("session_id", sessionID); err != nil {
		return errorResult(err.Error()), nil
	}

	m, err := s.sessions.SessionMetrics(ctx, sessionID)
	if err != nil {
		return s.sourceError("session metrics", sessionID, err), nil
	}
	return jsonResult(m), nil
}

func (s *Server) handleTraceWaterfall(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	traceID := request.GetString("trace_id", "")
	if err := model.ValidateID("trace_id", traceID); err != nil {
		return errorResult(err.Error()), nil
	}

	wf, err := s.sessions.Waterfall(ctx, traceID)
	if err != nil {
		return s.sourceError("trace waterfall", traceID, err), nil
	}
	return jsonResult(compactWaterfall(wf.Waterfall, wf.Warnings)), nil
}

func (s *Server) handleClassifySpan(_ context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	name := request.GetString("name", "")
	if name == "" {
		return errorResult("name is required"), nil
	}

	var attrs model.Attributes
	if raw := request.GetString("attributes_json", ""); raw != "" {
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return errorResult(fmt.Sprintf("attributes_json must be a JSON object: %v", err)), nil
		}
		attrs = model.Attributes(obj)
	}
	var status *model.SpanStatus
	if raw := request.GetString("status_json", ""); raw != "" {
		status = &model.SpanStatus{}
		if err := json.Unmarshal([]byte(raw), status); err != nil {
			return errorResult(fmt.Sprintf("status_json must be a JSON object: %v", err)), nil
		}
	}

	category := traceview.Classify(name, attrs)
	return jsonResult(map[string]any{
		"name":      name,
		"category":  category,
		"operation": traceview.OperationLabel(category),
		"outcome":   traceview.ResolveStatus(status),
	}), nil
}

func (s *Server) handleListSessions(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	agentID := request.GetString("agent_id", "")
	if agentID != "" {
		if err := model.ValidateID("agent_id", agentID); err != nil {
			return errorResult(err.Error()), nil
		}
	}
	limit := request.GetInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	list, total, err := s.sessions.ListSessions(ctx, model.SessionFilter{AgentID: agentID, Limit: limit})
	if err != nil {
		return s.sourceError("list sessions", agentID, err), nil
	}
	if list == nil {
		list = []model.SessionSummary{}
	}
	return jsonResult(map[string]any{
		"sessions": list,
		"total":    total,
	}), nil
}

// sourceError turns a service failure into a tool error. Unknown ids are
// reported plainly; other failures are logged and summarized.
func (s *Server) sourceError(op, id string, err error) *mcplib.CallToolResult {
	if errors.Is(err, storage.ErrNotFound) {
		return errorResult(fmt.Sprintf("%s: %q not found", op, id))
	}
	s.logger.Error("mcp tool failed", "op", op, "id", id, "error", err)
	return errorResult(fmt.Sprintf("%s failed: span source unavailable", op))
}

package mcp

import (
	"github.com/ashita-ai/tracelens/internal/service/traceview"
)

// maxCompactName bounds span names in MCP responses; SQL spans often carry
// the full statement as their name.
const maxCompactName = 120

// compactView returns a minimal representation of a view for MCP responses.
// Drops raw span payloads (attributes, events, links, resource) and group
// members, which agents rarely need and which dominate the response size.
func compactView(v traceview.View) map[string]any {
	traces := make([]map[string]any, 0, len(v.Traces))
	for _, t := range v.Traces {
		roots := make([]map[string]any, 0, len(t.Roots))
		for _, r := range t.Roots {
			roots = append(roots, compactNode(r))
		}
		traces = append(traces, map[string]any{
			"trace_id":   t.TraceID,
			"summary":    t.Summary,
			"span_count": t.Metrics.TotalSpans,
			"errors":     t.Metrics.ErrorCount,
			"wall_clock": t.Window.WallClock,
			"roots":      roots,
		})
	}

	groups := make([]map[string]any, 0, len(v.Groups))
	for _, g := range v.Groups {
		groups = append(groups, map[string]any{
			"key":        g.Key,
			"span_count": len(g.Spans),
		})
	}

	return map[string]any{
		"group_by": v.Dimension,
		"traces":   traces,
		"groups":   groups,
		"metrics":  v.Metrics,
		"window":   v.Window,
		"warnings": v.Warnings,
	}
}

// compactNode renders a span tree node and its children.
func compactNode(n *traceview.Node) map[string]any {
	m := map[string]any{
		"span_id":  n.Span.SpanID,
		"name":     truncate(n.Span.Name, maxCompactName),
		"category": n.Category,
		"outcome":  n.Outcome,
		"duration": n.Duration,
	}
	if svc := traceview.ServiceName(n.Span); svc != "" {
		m["service"] = svc
	}
	if n.Span.Status != nil && n.Span.Status.Message != "" {
		m["status_message"] = truncate(n.Span.Status.Message, maxCompactName)
	}
	if len(n.Anomalies) > 0 {
		m["anomalies"] = n.Anomalies
	}
	if len(n.Children) > 0 {
		children := make([]map[string]any, 0, len(n.Children))
		for _, c := range n.Children {
			children = append(children, compactNode(c))
		}
		m["children"] = children
	}
	return m
}

// compactWaterfall keeps the row fields needed to read a timeline.
func compactWaterfall(w traceview.Waterfall, warnings []traceview.Warning) map[string]any {
	rows := make([]map[string]any, 0, len(w.Rows))
	for _, r := range w.Rows {
		row := map[string]any{
			"span_id":  r.SpanID,
			"name":     truncate(r.Name, maxCompactName),
			"depth":    r.Depth,
			"category": r.Category,
			"outcome":  r.Outcome,
			"duration": r.Duration,
		}
		if r.HasTiming {
			row["offset_ms"] = r.OffsetMs
		}
		rows = append(rows, row)
	}
	if warnings == nil {
		warnings = []traceview.Warning{}
	}
	return map[string]any{
		"trace_id":    w.TraceID,
		"summary":     w.Summary,
		"wall_clock":  w.Window.WallClock,
		"span_count":  w.SpanCount,
		"error_count": w.ErrorCount,
		"rows":        rows,
		"warnings":    warnings,
	}
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

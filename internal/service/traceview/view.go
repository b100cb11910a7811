// Package traceview turns a flat collection of tracing spans into the view
// an engineer debugs a voice-agent session with: normalized times, semantic
// categories, assembled span forests, groups and summary metrics.
//
// Everything here is a pure function of its input. Nothing performs I/O,
// holds state between calls, or returns an error: malformed values degrade
// to NotAvailable or OutcomeUnknown and structural problems become Warnings.
package traceview

import "github.com/ashita-ai/tracelens/internal/model"

// Trace is the per-trace part of a View.
type Trace struct {
	TraceID string  `json:"trace_id"`
	Roots   []*Node `json:"roots"`
	Metrics Metrics `json:"metrics"`
	Window  Window  `json:"window"`
	Summary string  `json:"summary"`
}

// View is the complete, deterministic rendering of a span collection.
type View struct {
	Dimension Dimension `json:"group_by"`
	Traces    []Trace   `json:"traces"`
	Groups    []Group   `json:"groups"`
	Metrics   Metrics   `json:"metrics"`
	Window    Window    `json:"window"`
	Warnings  []Warning `json:"warnings"`
}

// BuildView assembles, groups and aggregates spans in one pass. Identical
// input always yields an identical view.
func BuildView(spans []model.Span, dim Dimension) View {
	a := Assemble(spans)
	v := View{
		Dimension: dim,
		Traces:    make([]Trace, 0, len(a.Traces)),
		Groups:    GroupSpans(spans, dim),
		Metrics:   Aggregate(spans),
		Window:    TimeWindow(spans),
		Warnings:  a.Warnings,
	}
	if v.Groups == nil {
		v.Groups = []Group{}
	}
	if v.Warnings == nil {
		v.Warnings = []Warning{}
	}
	for _, f := range a.Traces {
		m := Aggregate(f.Spans)
		v.Traces = append(v.Traces, Trace{
			TraceID: f.TraceID,
			Roots:   f.Roots,
			Metrics: m,
			Window:  TimeWindow(f.Spans),
			Summary: m.Summary(),
		})
	}
	return v
}

// Waterfalls lays out every trace in spans, in first-seen trace order.
func Waterfalls(spans []model.Span) ([]Waterfall, []Warning) {
	a := Assemble(spans)
	out := make([]Waterfall, 0, len(a.Traces))
	for _, f := range a.Traces {
		out = append(out, BuildWaterfall(f))
	}
	return out, a.Warnings
}

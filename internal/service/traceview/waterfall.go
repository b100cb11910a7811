package traceview

import "math"

// minWidthPct keeps very short spans visible on the timeline.
const minWidthPct = 0.5

// Row is one line of a trace waterfall.
type Row struct {
	SpanID       string   `json:"span_id"`
	ParentSpanID string   `json:"parent_span_id,omitempty"`
	Name         string   `json:"name"`
	Service      string   `json:"service"`
	Depth        int      `json:"depth"`
	Category     Category `json:"category"`
	Outcome      Outcome  `json:"outcome"`
	OffsetMs     float64  `json:"offset_ms"`
	DurationMs   float64  `json:"duration_ms"`
	Duration     string   `json:"duration"`
	StartPct     float64  `json:"start_pct"`
	WidthPct     float64  `json:"width_pct"`
	HasTiming    bool     `json:"has_timing"`
}

// Waterfall lays out one trace on a shared timeline.
type Waterfall struct {
	TraceID    string `json:"trace_id"`
	Window     Window `json:"window"`
	Summary    string `json:"summary"`
	SpanCount  int    `json:"span_count"`
	ErrorCount int    `json:"error_count"`
	Rows       []Row  `json:"rows"`
}

// BuildWaterfall lays out a forest depth-first. Offsets are relative to the
// trace window start. Spans without a start time sit at offset zero with
// HasTiming false.
func BuildWaterfall(f Forest) Waterfall {
	m := Aggregate(f.Spans)
	w := Waterfall{
		TraceID:    f.TraceID,
		Window:     TimeWindow(f.Spans),
		Summary:    m.Summary(),
		SpanCount:  f.Size(),
		ErrorCount: m.ErrorCount,
		Rows:       make([]Row, 0, f.Size()),
	}
	f.Walk(func(n *Node) {
		r := Row{
			SpanID:       n.Span.SpanID,
			ParentSpanID: n.Span.ParentSpanID,
			Name:         n.Span.Name,
			Service:      ServiceName(n.Span),
			Depth:        n.Depth,
			Category:     n.Category,
			Outcome:      n.Outcome,
			Duration:     n.Duration,
		}
		if n.Timing.HasDuration {
			r.DurationMs = n.Timing.DurationMs
		}
		if n.Timing.HasStart && w.Window.Valid {
			r.HasTiming = true
			r.OffsetMs = math.Max(n.Timing.StartMs-w.Window.StartMs, 0)
			if wall := w.Window.WallClockMs; wall > 0 {
				r.StartPct = clampPct(r.OffsetMs / wall * 100)
				r.WidthPct = math.Max(clampPct(r.DurationMs/wall*100), minWidthPct)
			}
		}
		w.Rows = append(w.Rows, r)
	})
	return w
}

func clampPct(v float64) float64 {
	return math.Min(math.Max(v, 0), 100)
}

package traceview

import (
	"fmt"
	"strings"

	"github.com/ashita-ai/tracelens/internal/model"
)

// Metrics summarizes a span collection.
//
// TotalDurationMs is the flat sum of every span's duration. Overlapping and
// nested spans are counted more than once, so it is not the critical path
// or the wall-clock length of the session; see Window for that.
type Metrics struct {
	TotalSpans      int     `json:"total_spans"`
	TotalDurationMs float64 `json:"total_duration_ms"`
	TotalDuration   string  `json:"total_duration"`
	ErrorCount      int     `json:"error_count"`
	LLMCount        int     `json:"llm_count"`
	TTSCount        int     `json:"tts_count"`
	STTCount        int     `json:"stt_count"`
	DatabaseCount   int     `json:"database_count"`
	HTTPCount       int     `json:"http_count"`
	OtherCount      int     `json:"other_count"`
}

// Count returns the number of spans in a category.
func (m Metrics) Count(c Category) int {
	switch c {
	case CategoryLLM:
		return m.LLMCount
	case CategoryTTS:
		return m.TTSCount
	case CategorySTT:
		return m.STTCount
	case CategoryDatabase:
		return m.DatabaseCount
	case CategoryHTTP:
		return m.HTTPCount
	default:
		return m.OtherCount
	}
}

// Aggregate computes metrics over spans. Category counts use Classify, so
// they always agree with the operation groups of GroupSpans. The result
// does not depend on input order. Spans without a resolvable duration add
// nothing to the total.
func Aggregate(spans []model.Span) Metrics {
	var m Metrics
	m.TotalSpans = len(spans)
	for _, s := range spans {
		if t := SpanTiming(s); t.HasDuration {
			m.TotalDurationMs += t.DurationMs
		}
		if ResolveStatus(s.Status) == OutcomeError {
			m.ErrorCount++
		}
		switch ClassifySpan(s) {
		case CategoryLLM:
			m.LLMCount++
		case CategoryTTS:
			m.TTSCount++
		case CategorySTT:
			m.STTCount++
		case CategoryDatabase:
			m.DatabaseCount++
		case CategoryHTTP:
			m.HTTPCount++
		default:
			m.OtherCount++
		}
	}
	m.TotalDuration = FormatDuration(m.TotalDurationMs)
	return m
}

// Summary renders non-zero category counts in fixed category order, for
// example "2 LLM • 1 TTS". A collection with no spans renders as
// "0 operations".
func (m Metrics) Summary() string {
	var parts []string
	for _, c := range Categories {
		if n := m.Count(c); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, c))
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%d operations", m.TotalSpans)
	}
	return strings.Join(parts, " • ")
}

// Window is the wall-clock extent of a span collection: earliest start to
// latest end. Only spans with both a start and an end contribute.
type Window struct {
	StartMs     float64 `json:"start_ms"`
	EndMs       float64 `json:"end_ms"`
	WallClockMs float64 `json:"wall_clock_ms"`
	WallClock   string  `json:"wall_clock"`
	Start       string  `json:"start"`
	Valid       bool    `json:"valid"`
}

// TimeWindow computes the window over spans.
func TimeWindow(spans []model.Span) Window {
	w := Window{WallClock: NotAvailable, Start: NotAvailable}
	for _, s := range spans {
		t := SpanTiming(s)
		if !t.HasStart || !t.HasEnd {
			continue
		}
		if !w.Valid || t.StartMs < w.StartMs {
			w.StartMs = t.StartMs
		}
		if !w.Valid || t.EndMs > w.EndMs {
			w.EndMs = t.EndMs
		}
		w.Valid = true
	}
	if w.Valid && w.EndMs >= w.StartMs {
		w.WallClockMs = w.EndMs - w.StartMs
		w.WallClock = FormatDuration(w.WallClockMs)
		w.Start = FormatTimestamp(w.StartMs)
	}
	return w
}

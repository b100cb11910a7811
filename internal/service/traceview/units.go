package traceview

import (
	"fmt"
	"math"
	"time"

	"github.com/ashita-ai/tracelens/internal/model"
)

// NotAvailable is rendered in place of missing, zero or malformed values.
const NotAvailable = "N/A"

// nanosecondThreshold is the magnitude above which a value of unknown unit
// is taken to be nanoseconds rather than milliseconds.
//
// The guess is lossy. Epoch timestamps in milliseconds (about 1.7e12 today)
// and durations longer than about 11.5 days expressed in milliseconds both
// exceed the threshold and are misread as nanoseconds. Fields whose key
// declares a unit (start_time_ns, duration_ms) bypass the heuristic.
const nanosecondThreshold = 1e12

// ValueKind says whether a raw value is a point in time or a length of time.
type ValueKind int

const (
	Timestamp ValueKind = iota
	Duration
)

// Normalize converts a value of unknown unit to milliseconds. Values above
// 1e12 are divided by 1e6; everything else is returned unchanged. The second
// result is false for NaN, infinities and negative durations.
//
// Normalize is idempotent for values up to 1e18 only: a normalized value
// never exceeds the threshold again. Above 1e18 a second pass divides
// again, so callers normalize each raw value exactly once.
func Normalize(v float64, kind ValueKind) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if kind == Duration && v < 0 {
		return 0, false
	}
	if v > nanosecondThreshold {
		return v / 1e6, true
	}
	return v, true
}

// NormalizeNumber is Normalize over a decoded field. Absent fields are not ok.
func NormalizeNumber(n model.Number, kind ValueKind) (float64, bool) {
	if !n.Valid {
		return 0, false
	}
	return Normalize(n.Value, kind)
}

// Timing holds a span's times in milliseconds. Start and end are epoch
// milliseconds when the source reports epoch times.
type Timing struct {
	StartMs     float64 `json:"start_ms"`
	EndMs       float64 `json:"end_ms"`
	DurationMs  float64 `json:"duration_ms"`
	HasStart    bool    `json:"has_start"`
	HasEnd      bool    `json:"has_end"`
	HasDuration bool    `json:"has_duration"`
}

// SpanTiming resolves a span's times. Declared units are converted exactly;
// undeclared fields go through Normalize. Duration precedence is
// duration_ns, duration_ms, duration, then end minus start. A missing end is
// derived from start plus duration.
func SpanTiming(s model.Span) Timing {
	var t Timing

	t.StartMs, t.HasStart = nanosToMs(s.StartTimeNs, Timestamp)
	if !t.HasStart {
		t.StartMs, t.HasStart = NormalizeNumber(s.StartTime, Timestamp)
	}
	t.EndMs, t.HasEnd = nanosToMs(s.EndTimeNs, Timestamp)
	if !t.HasEnd {
		t.EndMs, t.HasEnd = NormalizeNumber(s.EndTime, Timestamp)
	}

	switch {
	case validDuration(s.DurationNs):
		t.DurationMs, t.HasDuration = s.DurationNs.Value/1e6, true
	case validDuration(s.DurationMs):
		t.DurationMs, t.HasDuration = s.DurationMs.Value, true
	default:
		t.DurationMs, t.HasDuration = NormalizeNumber(s.Duration, Duration)
	}
	if !t.HasDuration && t.HasStart && t.HasEnd && t.EndMs >= t.StartMs {
		t.DurationMs, t.HasDuration = t.EndMs-t.StartMs, true
	}
	if !t.HasEnd && t.HasStart && t.HasDuration {
		t.EndMs, t.HasEnd = t.StartMs+t.DurationMs, true
	}
	return t
}

func nanosToMs(n model.Number, kind ValueKind) (float64, bool) {
	if !n.Valid || (kind == Duration && n.Value < 0) {
		return 0, false
	}
	return n.Value / 1e6, true
}

func validDuration(n model.Number) bool {
	return n.Valid && n.Value >= 0
}

// FormatDuration renders milliseconds for display: microseconds below 1ms,
// one decimal of milliseconds below one second, seconds with two decimals
// above. Zero, negative and non-finite values render as NotAvailable.
func FormatDuration(ms float64) string {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms <= 0 {
		return NotAvailable
	}
	switch {
	case ms < 1:
		return fmt.Sprintf("%.0fμs", ms*1000)
	case ms < 1000:
		return fmt.Sprintf("%.1fms", ms)
	default:
		return fmt.Sprintf("%.2fs", ms/1000)
	}
}

// FormatSpanDuration renders a span's resolved duration.
func FormatSpanDuration(t Timing) string {
	if !t.HasDuration {
		return NotAvailable
	}
	return FormatDuration(t.DurationMs)
}

// timestampLayout is RFC 3339 with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders epoch milliseconds as a UTC wall-clock time.
func FormatTimestamp(ms float64) string {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms <= 0 || ms*1e6 >= math.MaxInt64 {
		return NotAvailable
	}
	return time.UnixMicro(int64(math.Round(ms * 1000))).UTC().Format(timestampLayout)
}

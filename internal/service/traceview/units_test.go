package traceview

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/tracelens/internal/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		in     float64
		kind   ValueKind
		want   float64
		wantOK bool
	}{
		{"milliseconds pass through", 45.2, Duration, 45.2, true},
		{"threshold is inclusive of ms", 1e12, Timestamp, 1e12, true},
		{"above threshold is ns", 1_700_000_000_000_000_000, Timestamp, 1_700_000_000_000, true},
		{"large duration ns", 2e12, Duration, 2e6, true},
		{"zero", 0, Duration, 0, true},
		{"negative duration", -5, Duration, 0, false},
		{"negative timestamp", -5, Timestamp, -5, true},
		{"nan", math.NaN(), Duration, 0, false},
		{"inf", math.Inf(1), Timestamp, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.in, tt.kind)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	for _, d := range []float64{0, 0.6, 45.2, 1523, 999_999_999_999, 1e12, 1e12 + 1, 5e15, 1e18} {
		once, ok := Normalize(d, Duration)
		assert.True(t, ok)
		twice, ok := Normalize(once, Duration)
		assert.True(t, ok)
		assert.Equal(t, once, twice, "normalize(normalize(%v))", d)
	}
}

func TestNormalize_IdempotenceStopsAbove1e18(t *testing.T) {
	once, ok := Normalize(5e18, Duration)
	assert.True(t, ok)
	assert.Equal(t, 5e12, once)

	twice, ok := Normalize(once, Duration)
	assert.True(t, ok)
	assert.Equal(t, 5e6, twice, "a second pass above the limit divides again")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   float64
		want string
	}{
		{0.6, "600μs"},
		{0.0004, "0μs"},
		{45.2, "45.2ms"},
		{1, "1.0ms"},
		{999.9, "999.9ms"},
		{1000, "1.00s"},
		{1523, "1.52s"},
		{2.3, "2.3ms"},
		{0, NotAvailable},
		{-1, NotAvailable},
		{math.NaN(), NotAvailable},
		{math.Inf(1), NotAvailable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.ms), "FormatDuration(%v)", tt.ms)
	}
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "2023-11-14T22:13:20.000Z", FormatTimestamp(1_700_000_000_000))
	assert.Equal(t, "2023-11-14T22:13:20.250Z", FormatTimestamp(1_700_000_000_250))
	assert.Equal(t, NotAvailable, FormatTimestamp(0))
	assert.Equal(t, NotAvailable, FormatTimestamp(math.NaN()))
	assert.Equal(t, NotAvailable, FormatTimestamp(1e300))
}

func TestSpanTiming_DurationPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		span    model.Span
		wantMs  float64
		wantHas bool
	}{
		{
			name:    "duration_ns is exact even below threshold",
			span:    model.Span{DurationNs: model.Num(1_500_000)},
			wantMs:  1.5,
			wantHas: true,
		},
		{
			name:    "duration_ns wins over duration_ms",
			span:    model.Span{DurationNs: model.Num(2_000_000), DurationMs: model.Num(9)},
			wantMs:  2,
			wantHas: true,
		},
		{
			name:    "duration_ms",
			span:    model.Span{DurationMs: model.Num(45.2)},
			wantMs:  45.2,
			wantHas: true,
		},
		{
			name:    "undeclared small duration is ms",
			span:    model.Span{Duration: model.Num(120)},
			wantMs:  120,
			wantHas: true,
		},
		{
			name:    "undeclared large duration is ns",
			span:    model.Span{Duration: model.Num(3e12)},
			wantMs:  3e6,
			wantHas: true,
		},
		{
			name: "derived from ns timestamps",
			span: model.Span{
				StartTimeNs: model.Num(1_700_000_000_000_000_000),
				EndTimeNs:   model.Num(1_700_000_000_250_000_000),
			},
			wantMs:  250,
			wantHas: true,
		},
		{
			name:    "end before start is not a duration",
			span:    model.Span{StartTime: model.Num(100), EndTime: model.Num(50)},
			wantHas: false,
		},
		{
			name:    "negative declared duration falls through",
			span:    model.Span{DurationNs: model.Num(-1), DurationMs: model.Num(7)},
			wantMs:  7,
			wantHas: true,
		},
		{
			name:    "nothing",
			span:    model.Span{},
			wantHas: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SpanTiming(tt.span)
			assert.Equal(t, tt.wantHas, got.HasDuration)
			assert.InDelta(t, tt.wantMs, got.DurationMs, 1e-3)
		})
	}
}

func TestSpanTiming_EndDerivedFromStart(t *testing.T) {
	got := SpanTiming(model.Span{StartTime: model.Num(1000), DurationMs: model.Num(25)})
	assert.True(t, got.HasStart)
	assert.True(t, got.HasEnd)
	assert.Equal(t, 1025.0, got.EndMs)
}

func TestFormatSpanDuration(t *testing.T) {
	assert.Equal(t, NotAvailable, FormatSpanDuration(Timing{}))
	assert.Equal(t, NotAvailable, FormatSpanDuration(Timing{HasDuration: true}))
	assert.Equal(t, "800μs", FormatSpanDuration(SpanTiming(model.Span{DurationNs: model.Num(800_000)})))
}

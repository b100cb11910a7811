// Package sessions serves trace views for stored voice-agent sessions.
//
// The HTTP API, the MCP server and tracectl all delegate here: the service
// fetches a span snapshot from a Source, hands it to the pure traceview core
// and records what happened (OTel spans, Prometheus counters, WARN logs for
// assembly anomalies).
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/tracelens/internal/model"
	"github.com/ashita-ai/tracelens/internal/service/traceview"
	"github.com/ashita-ai/tracelens/internal/storage"
	"github.com/ashita-ai/tracelens/internal/telemetry"
)

// Source supplies span snapshots. Implementations return errors wrapping
// storage.ErrNotFound for unknown ids.
type Source interface {
	Name() string
	GetSessionTrace(ctx context.Context, sessionID string) (model.SessionTrace, error)
	GetTraceSpans(ctx context.Context, traceID string) ([]model.Span, error)
	ListSessions(ctx context.Context, f model.SessionFilter) ([]model.SessionSummary, int, error)
}

// Pinger is implemented by sources that can check their backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// InlineSource labels views built from spans supplied in a request.
const InlineSource = "inline"

const (
	defaultBatchConcurrency = 8

	// maxLoggedWarnings bounds WARN lines per view; the rest are counted.
	maxLoggedWarnings = 20
)

// Service builds views over a Source.
type Service struct {
	src         Source
	collector   *telemetry.Collector
	logger      *slog.Logger
	tracer      trace.Tracer
	concurrency int

	buildDuration metric.Float64Histogram
}

// New creates a Service. collector may be nil when Prometheus metrics are
// not wanted (tracectl). batchConcurrency <= 0 uses a default of 8.
func New(src Source, collector *telemetry.Collector, logger *slog.Logger, batchConcurrency int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if batchConcurrency <= 0 {
		batchConcurrency = defaultBatchConcurrency
	}
	buildDur, _ := telemetry.Meter("tracelens/sessions").Float64Histogram("tracelens.view.build.duration",
		metric.WithDescription("Time to fetch spans and build a view (ms)"),
		metric.WithUnit("ms"),
	)
	return &Service{
		src:           src,
		collector:     collector,
		logger:        logger.With("component", "sessions", "source", src.Name()),
		tracer:        telemetry.Tracer("tracelens/sessions"),
		concurrency:   batchConcurrency,
		buildDuration: buildDur,
	}
}

// SourceName returns the name of the backing source.
func (s *Service) SourceName() string { return s.src.Name() }

// Ping checks the backing store. Sources without a store always succeed.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.src.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// SessionView is the view of one stored session.
type SessionView struct {
	Session model.SessionSummary `json:"session"`
	View    traceview.View       `json:"view"`
}

// SessionMetrics is the aggregate-only rendering of one session.
type SessionMetrics struct {
	SessionID string            `json:"session_id"`
	TraceID   string            `json:"trace_id"`
	Metrics   traceview.Metrics `json:"metrics"`
	Window    traceview.Window  `json:"window"`
	Summary   string            `json:"summary"`
}

// WaterfallView is the timeline of one trace.
type WaterfallView struct {
	Waterfall traceview.Waterfall `json:"waterfall"`
	Warnings  []traceview.Warning `json:"warnings"`
}

// BatchItem is one entry of a batch metrics response. Exactly one of Metrics
// and Error is set.
type BatchItem struct {
	SessionID string          `json:"session_id"`
	Metrics   *SessionMetrics `json:"metrics,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// SessionView builds the full view of a stored session.
func (s *Service) SessionView(ctx context.Context, sessionID string, dim traceview.Dimension) (SessionView, error) {
	ctx, span := s.tracer.Start(ctx, "sessions.SessionView", trace.WithAttributes(
		attribute.String("tracelens.session_id", sessionID),
		attribute.String("tracelens.group_by", string(dim)),
	))
	defer span.End()
	start := time.Now()

	st, err := s.src.GetSessionTrace(ctx, sessionID)
	if err != nil {
		return SessionView{}, fail(span, fmt.Errorf("sessions: view %s: %w", sessionID, err))
	}
	v := traceview.BuildView(st.Spans, dim)
	s.observe(ctx, span, s.src.Name(), v.Metrics, v.Warnings, start)

	return SessionView{Session: summarize(st), View: v}, nil
}

// TraceView builds the view of every stored span carrying traceID, across
// sessions.
func (s *Service) TraceView(ctx context.Context, traceID string, dim traceview.Dimension) (traceview.View, error) {
	ctx, span := s.tracer.Start(ctx, "sessions.TraceView", trace.WithAttributes(
		attribute.String("tracelens.trace_id", traceID),
		attribute.String("tracelens.group_by", string(dim)),
	))
	defer span.End()
	start := time.Now()

	spans, err := s.src.GetTraceSpans(ctx, traceID)
	if err != nil {
		return traceview.View{}, fail(span, fmt.Errorf("sessions: trace view %s: %w", traceID, err))
	}
	v := traceview.BuildView(spans, dim)
	s.observe(ctx, span, s.src.Name(), v.Metrics, v.Warnings, start)
	return v, nil
}

// Assemble builds a view from caller-supplied spans without touching the
// source.
func (s *Service) Assemble(ctx context.Context, spans []model.Span, dim traceview.Dimension) traceview.View {
	ctx, span := s.tracer.Start(ctx, "sessions.Assemble", trace.WithAttributes(
		attribute.String("tracelens.group_by", string(dim)),
	))
	defer span.End()
	start := time.Now()

	v := traceview.BuildView(spans, dim)
	s.observe(ctx, span, InlineSource, v.Metrics, v.Warnings, start)
	return v
}

// SessionMetrics aggregates a stored session without building its forest.
func (s *Service) SessionMetrics(ctx context.Context, sessionID string) (SessionMetrics, error) {
	ctx, span := s.tracer.Start(ctx, "sessions.SessionMetrics", trace.WithAttributes(
		attribute.String("tracelens.session_id", sessionID),
	))
	defer span.End()
	start := time.Now()

	st, err := s.src.GetSessionTrace(ctx, sessionID)
	if err != nil {
		return SessionMetrics{}, fail(span, fmt.Errorf("sessions: metrics %s: %w", sessionID, err))
	}
	m := traceview.Aggregate(st.Spans)
	s.observe(ctx, span, s.src.Name(), m, nil, start)

	return SessionMetrics{
		SessionID: st.SessionID,
		TraceID:   st.TraceID,
		Metrics:   m,
		Window:    traceview.TimeWindow(st.Spans),
		Summary:   m.Summary(),
	}, nil
}

// Waterfall lays out one trace as timeline rows. A trace id matches exactly
// one forest, so the first laid-out trace is the answer.
func (s *Service) Waterfall(ctx context.Context, traceID string) (WaterfallView, error) {
	ctx, span := s.tracer.Start(ctx, "sessions.Waterfall", trace.WithAttributes(
		attribute.String("tracelens.trace_id", traceID),
	))
	defer span.End()
	start := time.Now()

	spans, err := s.src.GetTraceSpans(ctx, traceID)
	if err != nil {
		return WaterfallView{}, fail(span, fmt.Errorf("sessions: waterfall %s: %w", traceID, err))
	}
	wfs, warnings := traceview.Waterfalls(spans)
	if warnings == nil {
		warnings = []traceview.Warning{}
	}
	s.observe(ctx, span, s.src.Name(), traceview.Aggregate(spans), warnings, start)

	out := WaterfallView{Warnings: warnings}
	if len(wfs) > 0 {
		out.Waterfall = wfs[0]
	}
	return out, nil
}

// ListSessions passes through to the source.
func (s *Service) ListSessions(ctx context.Context, f model.SessionFilter) ([]model.SessionSummary, int, error) {
	sessions, total, err := s.src.ListSessions(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("sessions: list: %w", err)
	}
	return sessions, total, nil
}

// BatchMetrics aggregates several sessions concurrently. Results are in
// request order. An unknown session id yields an item with Error set; any
// other source failure fails the whole batch.
func (s *Service) BatchMetrics(ctx context.Context, sessionIDs []string) ([]BatchItem, error) {
	ctx, span := s.tracer.Start(ctx, "sessions.BatchMetrics", trace.WithAttributes(
		attribute.Int("tracelens.batch_size", len(sessionIDs)),
	))
	defer span.End()

	items := make([]BatchItem, len(sessionIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range sessionIDs {
		g.Go(func() error {
			items[i].SessionID = id
			m, err := s.SessionMetrics(gctx, id)
			switch {
			case err == nil:
				items[i].Metrics = &m
			case errors.Is(err, storage.ErrNotFound):
				items[i].Error = "session not found"
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fail(span, fmt.Errorf("sessions: batch metrics: %w", err))
	}
	return items, nil
}

// observe records a finished build on the active span, the Prometheus
// collector and the log.
func (s *Service) observe(ctx context.Context, span trace.Span, source string, m traceview.Metrics, warnings []traceview.Warning, start time.Time) {
	elapsed := time.Since(start)
	span.SetAttributes(
		attribute.Int("tracelens.span_count", m.TotalSpans),
		attribute.Int("tracelens.error_count", m.ErrorCount),
		attribute.Int("tracelens.anomaly_count", len(warnings)),
	)
	s.buildDuration.Record(ctx, float64(elapsed.Microseconds())/1000,
		metric.WithAttributes(attribute.String("source", source)))

	if s.collector != nil {
		s.collector.RecordView(source, elapsed)
		for _, c := range traceview.Categories {
			s.collector.RecordClassified(string(c), m.Count(c))
		}
		for _, w := range warnings {
			s.collector.RecordAnomaly(string(w.Kind))
		}
	}

	for i, w := range warnings {
		if i == maxLoggedWarnings {
			s.logger.Warn("trace assembly: further anomalies suppressed", "suppressed", len(warnings)-i)
			break
		}
		s.logger.Warn("trace assembly anomaly",
			"kind", w.Kind,
			"trace_id", w.TraceID,
			"span_id", w.SpanID,
			"parent_span_id", w.ParentSpanID,
			"message", w.Message,
		)
	}
}

func fail(span trace.Span, err error) error {
	if !errors.Is(err, storage.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func summarize(st model.SessionTrace) model.SessionSummary {
	return model.SessionSummary{
		SessionID:  st.SessionID,
		AgentID:    st.AgentID,
		TraceID:    st.TraceID,
		TotalSpans: len(st.Spans),
		CreatedAt:  st.CreatedAt,
		UpdatedAt:  st.UpdatedAt,
	}
}

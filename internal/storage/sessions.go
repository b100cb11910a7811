package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/tracelens/internal/model"
)

// defaultListLimit applies when a listing asks for no limit.
const defaultListLimit = 50

// GetSessionTrace returns a session and its spans in export order.
func (db *DB) GetSessionTrace(ctx context.Context, sessionID string) (model.SessionTrace, error) {
	var (
		st  model.SessionTrace
		raw []byte
	)
	err := db.pool.QueryRow(ctx,
		`SELECT session_id, agent_id, trace_id, total_spans, spans, created_at, updated_at
		 FROM session_traces WHERE session_id = $1`, sessionID,
	).Scan(&st.SessionID, &st.AgentID, &st.TraceID, &st.TotalSpans, &raw, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SessionTrace{}, fmt.Errorf("storage: session %s: %w", sessionID, ErrNotFound)
		}
		return model.SessionTrace{}, fmt.Errorf("storage: get session trace: %w", err)
	}
	if err := json.Unmarshal(raw, &st.Spans); err != nil {
		return model.SessionTrace{}, fmt.Errorf("storage: decode spans for session %s: %w", sessionID, err)
	}
	return st, nil
}

// GetTraceSpans returns every span whose trace_id matches, across all
// sessions, ordered by session creation and then export order.
func (db *DB) GetTraceSpans(ctx context.Context, traceID string) ([]model.Span, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT e.span
		 FROM session_traces st
		 CROSS JOIN LATERAL jsonb_array_elements(st.spans) WITH ORDINALITY AS e(span, idx)
		 WHERE jsonb_path_query_array(st.spans, '$[*].trace_id') @> jsonb_build_array($1::text)
		   AND e.span->>'trace_id' = $1
		 ORDER BY st.created_at, st.session_id, e.idx`, traceID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get trace spans: %w", err)
	}
	defer rows.Close()

	var spans []model.Span
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("storage: scan span: %w", err)
		}
		var s model.Span
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("storage: decode span in trace %s: %w", traceID, err)
		}
		spans = append(spans, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: get trace spans: %w", err)
	}
	if len(spans) == 0 {
		return nil, fmt.Errorf("storage: trace %s: %w", traceID, ErrNotFound)
	}
	return spans, nil
}

// ListSessions returns session summaries, most recently updated first, and
// the total number of sessions matching the filter.
func (db *DB) ListSessions(ctx context.Context, f model.SessionFilter) ([]model.SessionSummary, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var total int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM session_traces WHERE ($1 = '' OR agent_id = $1)`, f.AgentID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: count sessions: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT session_id, agent_id, trace_id, total_spans, created_at, updated_at
		 FROM session_traces WHERE ($1 = '' OR agent_id = $1)
		 ORDER BY updated_at DESC, session_id
		 LIMIT $2 OFFSET $3`,
		f.AgentID, limit, f.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []model.SessionSummary{}
	for rows.Next() {
		var s model.SessionSummary
		if err := rows.Scan(&s.SessionID, &s.AgentID, &s.TraceID, &s.TotalSpans, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("storage: scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, total, rows.Err()
}

// UpsertSessionTrace stores a session export, replacing any previous export
// for the same session id. TotalSpans is recomputed from Spans.
func (db *DB) UpsertSessionTrace(ctx context.Context, st model.SessionTrace) error {
	spans := st.Spans
	if spans == nil {
		spans = []model.Span{}
	}
	raw, err := json.Marshal(spans)
	if err != nil {
		return fmt.Errorf("storage: encode spans: %w", err)
	}
	now := time.Now().UTC()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}

	return WithRetry(ctx, 3, 10*time.Millisecond, func() error {
		_, err := db.pool.Exec(ctx,
			`INSERT INTO session_traces (session_id, agent_id, trace_id, total_spans, spans, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (session_id) DO UPDATE SET
			   agent_id = EXCLUDED.agent_id,
			   trace_id = EXCLUDED.trace_id,
			   total_spans = EXCLUDED.total_spans,
			   spans = EXCLUDED.spans,
			   updated_at = EXCLUDED.updated_at`,
			st.SessionID, st.AgentID, st.TraceID, len(spans), raw, st.CreatedAt, now,
		)
		if err != nil {
			return fmt.Errorf("storage: upsert session trace: %w", err)
		}
		return nil
	})
}

// Package sqlitestore is a single-file span store for offline debugging. An
// operator copies a handful of exported sessions into a local database and
// points tracectl or the server at it, without a Postgres instance.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ashita-ai/tracelens/internal/model"
	"github.com/ashita-ai/tracelens/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_traces (
	session_id  TEXT PRIMARY KEY,
	agent_id    TEXT NOT NULL DEFAULT '',
	trace_id    TEXT NOT NULL DEFAULT '',
	total_spans INTEGER NOT NULL DEFAULT 0,
	spans       TEXT NOT NULL DEFAULT '[]',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_traces_trace_id ON session_traces(trace_id);
CREATE INDEX IF NOT EXISTS idx_session_traces_agent_updated ON session_traces(agent_id, updated_at DESC);
`

// Config configures the SQLite store.
type Config struct {
	// Path is the database file path. ":memory:" opens a private in-memory
	// database, useful in tests.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	Logger *slog.Logger
}

// Store reads and writes session exports in a SQLite database.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens or creates the database at cfg.Path and ensures the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitestore: path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "storage.sqlite")

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", cfg.Path, err)
	}

	// SQLite only supports a single writer, and ":memory:" databases are
	// per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: create schema: %w", err)
	}

	logger.Debug("sqlite store opened", "path", cfg.Path)
	return &Store{db: db, path: cfg.Path, logger: logger}, nil
}

// Name identifies this source in logs and metrics.
func (s *Store) Name() string { return "sqlite" }

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetSessionTrace returns a session and its spans in export order.
func (s *Store) GetSessionTrace(ctx context.Context, sessionID string) (model.SessionTrace, error) {
	var (
		st               model.SessionTrace
		raw              string
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, agent_id, trace_id, total_spans, spans, created_at, updated_at
		 FROM session_traces WHERE session_id = ?`, sessionID,
	).Scan(&st.SessionID, &st.AgentID, &st.TraceID, &st.TotalSpans, &raw, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.SessionTrace{}, fmt.Errorf("sqlitestore: session %s: %w", sessionID, storage.ErrNotFound)
		}
		return model.SessionTrace{}, fmt.Errorf("sqlitestore: get session trace: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &st.Spans); err != nil {
		return model.SessionTrace{}, fmt.Errorf("sqlitestore: decode spans for session %s: %w", sessionID, err)
	}
	st.CreatedAt = time.UnixMilli(created).UTC()
	st.UpdatedAt = time.UnixMilli(updated).UTC()
	return st, nil
}

// GetTraceSpans returns every span whose trace_id matches, across all
// sessions, ordered by session creation and then export order.
func (s *Store) GetTraceSpans(ctx context.Context, traceID string) ([]model.Span, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.value
		 FROM session_traces st, json_each(st.spans) AS e
		 WHERE json_extract(e.value, '$.trace_id') = ?
		 ORDER BY st.created_at, st.session_id, e.key`, traceID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get trace spans: %w", err)
	}
	defer rows.Close()

	var spans []model.Span
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan span: %w", err)
		}
		var sp model.Span
		if err := json.Unmarshal([]byte(raw), &sp); err != nil {
			return nil, fmt.Errorf("sqlitestore: decode span in trace %s: %w", traceID, err)
		}
		spans = append(spans, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: get trace spans: %w", err)
	}
	if len(spans) == 0 {
		return nil, fmt.Errorf("sqlitestore: trace %s: %w", traceID, storage.ErrNotFound)
	}
	return spans, nil
}

// ListSessions returns session summaries, most recently updated first, and
// the total number of sessions matching the filter.
func (s *Store) ListSessions(ctx context.Context, f model.SessionFilter) ([]model.SessionSummary, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_traces WHERE (? = '' OR agent_id = ?)`, f.AgentID, f.AgentID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlitestore: count sessions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, agent_id, trace_id, total_spans, created_at, updated_at
		 FROM session_traces WHERE (? = '' OR agent_id = ?)
		 ORDER BY updated_at DESC, session_id
		 LIMIT ? OFFSET ?`,
		f.AgentID, f.AgentID, limit, f.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlitestore: list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []model.SessionSummary{}
	for rows.Next() {
		var (
			sum              model.SessionSummary
			created, updated int64
		)
		if err := rows.Scan(&sum.SessionID, &sum.AgentID, &sum.TraceID, &sum.TotalSpans, &created, &updated); err != nil {
			return nil, 0, fmt.Errorf("sqlitestore: scan session: %w", err)
		}
		sum.CreatedAt = time.UnixMilli(created).UTC()
		sum.UpdatedAt = time.UnixMilli(updated).UTC()
		sessions = append(sessions, sum)
	}
	return sessions, total, rows.Err()
}

// UpsertSessionTrace stores a session export, replacing any previous export
// for the same session id. updated_at is always the time of the write.
func (s *Store) UpsertSessionTrace(ctx context.Context, st model.SessionTrace) error {
	spans := st.Spans
	if spans == nil {
		spans = []model.Span{}
	}
	raw, err := json.Marshal(spans)
	if err != nil {
		return fmt.Errorf("sqlitestore: encode spans: %w", err)
	}
	now := time.Now().UTC()
	created := st.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_traces (session_id, agent_id, trace_id, total_spans, spans, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id) DO UPDATE SET
		   agent_id = excluded.agent_id,
		   trace_id = excluded.trace_id,
		   total_spans = excluded.total_spans,
		   spans = excluded.spans,
		   updated_at = excluded.updated_at`,
		st.SessionID, st.AgentID, st.TraceID, len(spans), string(raw), created.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: upsert session trace: %w", err)
	}
	s.logger.Debug("session stored", "session_id", st.SessionID, "spans", len(spans))
	return nil
}

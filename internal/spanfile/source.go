package spanfile

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/ashita-ai/tracelens/internal/model"
	"github.com/ashita-ai/tracelens/internal/storage"
)

// Source serves sessions held in memory, usually loaded from a dump file.
// It is immutable after construction and safe for concurrent use.
type Source struct {
	sessions []model.SessionTrace
	byID     map[string]int
}

// NewSource builds a Source from sessions. A later session with the same id
// replaces an earlier one, as an upsert would.
func NewSource(sessions ...model.SessionTrace) *Source {
	s := &Source{byID: make(map[string]int, len(sessions))}
	for _, st := range sessions {
		if i, ok := s.byID[st.SessionID]; ok {
			s.sessions[i] = st
			continue
		}
		s.byID[st.SessionID] = len(s.sessions)
		s.sessions = append(s.sessions, st)
	}
	return s
}

// Open loads a dump file into a Source.
func Open(path string) (*Source, error) {
	sessions, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewSource(sessions...), nil
}

// Name identifies this source in logs and metrics.
func (s *Source) Name() string { return "file" }

// Ping always succeeds; the data is already in memory.
func (s *Source) Ping(context.Context) error { return nil }

// Sessions returns the loaded sessions in file order.
func (s *Source) Sessions() []model.SessionTrace {
	return slices.Clone(s.sessions)
}

func (s *Source) GetSessionTrace(ctx context.Context, sessionID string) (model.SessionTrace, error) {
	if err := ctx.Err(); err != nil {
		return model.SessionTrace{}, err
	}
	i, ok := s.byID[sessionID]
	if !ok {
		return model.SessionTrace{}, fmt.Errorf("spanfile: session %s: %w", sessionID, storage.ErrNotFound)
	}
	return s.sessions[i], nil
}

// GetTraceSpans returns every span carrying traceID, in file order.
func (s *Source) GetTraceSpans(ctx context.Context, traceID string) ([]model.Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var spans []model.Span
	for _, st := range s.sessions {
		for _, sp := range st.Spans {
			if sp.TraceID == traceID {
				spans = append(spans, sp)
			}
		}
	}
	if len(spans) == 0 {
		return nil, fmt.Errorf("spanfile: trace %s: %w", traceID, storage.ErrNotFound)
	}
	return spans, nil
}

// ListSessions mirrors the database ordering: most recently updated first,
// ties broken by session id.
func (s *Source) ListSessions(ctx context.Context, f model.SessionFilter) ([]model.SessionSummary, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	matched := []model.SessionSummary{}
	for _, st := range s.sessions {
		if f.AgentID != "" && st.AgentID != f.AgentID {
			continue
		}
		matched = append(matched, model.SessionSummary{
			SessionID:  st.SessionID,
			AgentID:    st.AgentID,
			TraceID:    st.TraceID,
			TotalSpans: len(st.Spans),
			CreatedAt:  st.CreatedAt,
			UpdatedAt:  st.UpdatedAt,
		})
	}
	slices.SortStableFunc(matched, func(a, b model.SessionSummary) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.SessionID, b.SessionID)
	})

	total := len(matched)
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	start := min(max(f.Offset, 0), total)
	end := min(start+limit, total)
	return matched[start:end], total, nil
}

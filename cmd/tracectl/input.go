package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashita-ai/tracelens/internal/model"
	"github.com/ashita-ai/tracelens/internal/spanfile"
	"github.com/ashita-ai/tracelens/internal/storage"
	"github.com/ashita-ai/tracelens/internal/storage/sqlitestore"
)

var errNoInput = errors.New("a span file, --sqlite or --database-url is required")

// loadSpans resolves the command input. A FILE argument wins over database
// flags. Without --session every session in the file is included.
func (o *rootOptions) loadSpans(ctx context.Context, args []string) ([]model.Span, error) {
	if len(args) > 0 {
		sessions, err := spanfile.Load(args[0])
		if err != nil {
			return nil, err
		}
		if o.sessionID == "" {
			var spans []model.Span
			for _, st := range sessions {
				spans = append(spans, st.Spans...)
			}
			o.log().Debug("loaded span file", "path", args[0], "sessions", len(sessions), "spans", len(spans))
			return spans, nil
		}
		st, err := spanfile.NewSource(sessions...).GetSessionTrace(ctx, o.sessionID)
		if err != nil {
			return nil, err
		}
		return st.Spans, nil
	}

	if o.sqlitePath == "" && o.databaseURL == "" {
		return nil, errNoInput
	}
	if o.sessionID == "" {
		return nil, fmt.Errorf("--session is required when reading from a database")
	}

	if o.sqlitePath != "" {
		store, err := sqlitestore.Open(ctx, sqlitestore.Config{Path: o.sqlitePath, Logger: o.log()})
		if err != nil {
			return nil, err
		}
		defer func() { _ = store.Close() }()
		st, err := store.GetSessionTrace(ctx, o.sessionID)
		if err != nil {
			return nil, err
		}
		return st.Spans, nil
	}

	db, err := storage.New(ctx, o.databaseURL, o.log())
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	defer db.Close(ctx)
	st, err := db.GetSessionTrace(ctx, o.sessionID)
	if err != nil {
		return nil, err
	}
	return st.Spans, nil
}

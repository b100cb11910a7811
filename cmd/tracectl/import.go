package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/tracelens/internal/model"
	"github.com/ashita-ai/tracelens/internal/spanfile"
	"github.com/ashita-ai/tracelens/internal/storage"
	"github.com/ashita-ai/tracelens/internal/storage/sqlitestore"
	"github.com/ashita-ai/tracelens/migrations"
)

// sessionWriter is implemented by both database span stores.
type sessionWriter interface {
	UpsertSessionTrace(ctx context.Context, st model.SessionTrace) error
}

func newImportCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Copy the sessions of a span dump into SQLite or Postgres",
		Long: `Copy every session of a JSON or YAML dump into the database named by
--sqlite or --database-url. Existing sessions with the same id are replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := spanfile.Load(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var w sessionWriter
			switch {
			case root.sqlitePath != "":
				store, err := sqlitestore.Open(ctx, sqlitestore.Config{Path: root.sqlitePath, Logger: root.log()})
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				w = store
			case root.databaseURL != "":
				db, err := storage.New(ctx, root.databaseURL, root.log())
				if err != nil {
					return fmt.Errorf("storage: %w", err)
				}
				defer db.Close(ctx)
				if err := db.RunMigrations(ctx, migrations.FS); err != nil {
					return fmt.Errorf("migrations: %w", err)
				}
				w = db
			default:
				return fmt.Errorf("import needs --sqlite or --database-url")
			}

			spans := 0
			for _, st := range sessions {
				if err := w.UpsertSessionTrace(ctx, st); err != nil {
					return fmt.Errorf("import %s: %w", st.SessionID, err)
				}
				spans += st.TotalSpans
				root.log().Debug("imported session", "session_id", st.SessionID, "spans", st.TotalSpans)
			}
			cmd.Printf("imported %d sessions (%d spans)\n", len(sessions), spans)
			return nil
		},
	}
}

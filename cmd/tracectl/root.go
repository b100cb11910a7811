package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	sqlitePath  string
	databaseURL string
	sessionID   string
	verbose     bool

	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "tracectl",
		Short: "Inspect voice-agent traces offline",
		Long: `tracectl renders the tracelens views of a span dump without a server.

Spans come from a JSON or YAML file (a span array, a session object, or
{"sessions": [...]}), from a SQLite export (--sqlite) or from Postgres
(--database-url). Database sources need --session.

Examples:
  # Forest of a single turn
  tracectl tree turn.json

  # Spans grouped by service, as YAML
  tracectl view turn.json --group-by service --format yaml

  # Timeline of a stored session
  tracectl waterfall --sqlite sessions.db --session call-7

  # Copy a dump into a local SQLite export
  tracectl import turn.json --sqlite sessions.db`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if o.verbose {
				level = slog.LevelDebug
			}
			o.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		},
	}

	cmd.PersistentFlags().StringVar(&o.sqlitePath, "sqlite", "", "read sessions from a SQLite export")
	cmd.PersistentFlags().StringVar(&o.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "read sessions from Postgres")
	cmd.PersistentFlags().StringVar(&o.sessionID, "session", "", "session to load (required with --sqlite or --database-url)")
	cmd.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "debug logging on stderr")

	cmd.AddCommand(
		newViewCmd(o),
		newTreeCmd(o),
		newMetricsCmd(o),
		newWaterfallCmd(o),
		newClassifyCmd(o),
		newImportCmd(o),
	)
	return cmd
}

// log returns the command logger. PersistentPreRun has not run when a
// subcommand is invoked directly in tests.
func (o *rootOptions) log() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	return o.logger
}

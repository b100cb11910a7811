package tracelens

import (
	"io/fs"
	"log/slog"

	"github.com/ashita-ai/tracelens/internal/config"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
type resolvedOptions struct {
	port            int
	databaseURL     string
	sqlitePath      string
	spanFile        string
	logger          *slog.Logger
	version         string
	routeRegistrars []RouteRegistrar
	middlewares     []Middleware
	extraMigrations []fs.FS
}

// apply overrides environment configuration with explicit options. Choosing
// a SQLite path or span file also selects that source.
func (o resolvedOptions) apply(cfg *config.Config) {
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
		cfg.Source = config.SourcePostgres
	}
	if o.sqlitePath != "" {
		cfg.SQLitePath = o.sqlitePath
		cfg.Source = config.SourceSQLite
	}
	if o.spanFile != "" {
		cfg.SpanFile = o.spanFile
		cfg.Source = config.SourceFile
	}
}

// WithPort overrides the TCP port from config (TRACELENS_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL serves spans from Postgres at url, overriding DATABASE_URL
// and TRACELENS_SOURCE.
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithSQLite serves spans from the SQLite database at path.
func WithSQLite(path string) Option {
	return func(o *resolvedOptions) { o.sqlitePath = path }
}

// WithSpanFile serves spans from a JSON or YAML dump at path.
func WithSpanFile(path string) Option {
	return func(o *resolvedOptions) { o.spanFile = path }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithExtraRoutes registers additional routes on the shared HTTP mux.
// Multiple registrars may be registered; all are called in registration order.
func WithExtraRoutes(fn RouteRegistrar) Option {
	return func(o *resolvedOptions) { o.routeRegistrars = append(o.routeRegistrars, fn) }
}

// WithMiddleware registers an outermost HTTP middleware.
// The first-registered middleware is outermost.
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}

// WithExtraMigrations adds a SQL migration filesystem to run after the
// embedded migrations. Only used with the Postgres source.
func WithExtraMigrations(dir fs.FS) Option {
	return func(o *resolvedOptions) { o.extraMigrations = append(o.extraMigrations, dir) }
}

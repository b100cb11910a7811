// Package tracelens is the public API for embedding the tracelens trace
// viewer server.
//
// Consumers construct and extend the server without forking it:
//
//	app, err := tracelens.New(
//	    tracelens.WithVersion(version),
//	    tracelens.WithLogger(logger),
//	    tracelens.WithExtraRoutes(myRoutes),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The root package imports internal/*, but internal/* never imports the root
// package. Public types in types.go expose no internal types.
package tracelens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ashita-ai/tracelens/api"
	"github.com/ashita-ai/tracelens/internal/config"
	"github.com/ashita-ai/tracelens/internal/mcp"
	"github.com/ashita-ai/tracelens/internal/ratelimit"
	"github.com/ashita-ai/tracelens/internal/server"
	"github.com/ashita-ai/tracelens/internal/service/sessions"
	"github.com/ashita-ai/tracelens/internal/spanfile"
	"github.com/ashita-ai/tracelens/internal/storage"
	"github.com/ashita-ai/tracelens/internal/storage/sqlitestore"
	"github.com/ashita-ai/tracelens/internal/telemetry"
	"github.com/ashita-ai/tracelens/migrations"
)

// App is the tracelens server lifecycle. Construct with New(), run with Run().
type App struct {
	cfg          config.Config
	srv          *server.Server
	limiter      ratelimit.Limiter
	closers      []func()
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New loads configuration, opens the configured span source, wires the HTTP
// and MCP servers and returns a ready-to-run App. It does not accept
// connections until Run is called.
func New(ctx context.Context, opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	o.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("tracelens starting", "version", version, "port", cfg.Port, "source", cfg.Source)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	app := &App{
		cfg:          cfg,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}
	fail := func(err error) (*App, error) {
		app.close()
		return nil, err
	}

	src, err := app.openSource(ctx, o)
	if err != nil {
		return fail(err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := telemetry.NewCollector(registry)

	svc := sessions.New(src, collector, logger, cfg.BatchConcurrency)

	srvCfg := server.ServerConfig{
		Sessions:            svc,
		Logger:              logger,
		Collector:           collector,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
	}

	if cfg.EnableMCP {
		srvCfg.MCPServer = mcp.New(svc, logger, version).MCPServer()
		logger.Info("mcp: enabled", "path", "/mcp")
	} else {
		logger.Info("mcp: disabled")
	}

	if cfg.AssembleRate > 0 {
		limiter := ratelimit.NewMemoryLimiter(cfg.AssembleRate, cfg.AssembleBurst)
		app.limiter = limiter
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.AssembleRate, "burst", cfg.AssembleBurst)
	} else {
		app.limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}
	srvCfg.Limiter = app.limiter

	for _, fn := range o.routeRegistrars {
		srvCfg.RouteRegistrars = append(srvCfg.RouteRegistrars, fn)
	}
	for _, mw := range o.middlewares {
		srvCfg.Middlewares = append(srvCfg.Middlewares, mw)
	}

	app.srv = server.New(srvCfg)
	return app, nil
}

// openSource opens the span source selected by cfg.Source and registers its
// cleanup with the App.
func (a *App) openSource(ctx context.Context, o resolvedOptions) (sessions.Source, error) {
	switch a.cfg.Source {
	case config.SourcePostgres:
		db, err := storage.New(ctx, a.cfg.DatabaseURL, a.logger)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		a.closers = append(a.closers, func() { db.Close(context.Background()) })

		if a.cfg.SkipMigrations {
			a.logger.Info("embedded migrations skipped by config")
		} else if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		for i, extra := range o.extraMigrations {
			if err := db.RunMigrations(ctx, extra); err != nil {
				return nil, fmt.Errorf("extra migrations[%d]: %w", i, err)
			}
		}
		return db, nil

	case config.SourceSQLite:
		store, err := sqlitestore.Open(ctx, sqlitestore.Config{Path: a.cfg.SQLitePath, Logger: a.logger})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		a.logger.Info("span source: sqlite", "path", a.cfg.SQLitePath)
		return store, nil

	case config.SourceFile:
		src, err := spanfile.Open(a.cfg.SpanFile)
		if err != nil {
			return nil, err
		}
		a.logger.Info("span source: file", "path", a.cfg.SpanFile, "sessions", len(src.Sessions()))
		return src, nil
	}
	return nil, fmt.Errorf("unknown span source %q", a.cfg.Source)
}

// Handler returns the fully wrapped HTTP handler. Useful for embedding the
// API in another server or driving it from tests.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails. On return, Shutdown has already been called.
func (a *App) Run(ctx context.Context) error {
	return a.run(ctx, a.srv.Start)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	return a.run(ctx, func() error { return a.srv.Serve(ln) })
}

func (a *App) run(ctx context.Context, start func() error) error {
	errCh := make(chan error, 1)
	go func() {
		if err := start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		_ = a.Shutdown(context.Background())
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown stops accepting requests, drains in-flight ones within the
// configured timeout, then closes the span source and the OTel providers.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("tracelens shutting down")

	httpCtx, cancel := contextWithOptionalTimeout(ctx, a.cfg.ShutdownTimeout)
	defer cancel()
	err := a.srv.Shutdown(httpCtx)
	if err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	a.close()
	a.logger.Info("tracelens stopped")
	return err
}

// close releases resources in reverse acquisition order. Idempotent.
func (a *App) close() {
	if a.limiter != nil {
		_ = a.limiter.Close()
		a.limiter = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.otelShutdown != nil {
		if err := a.otelShutdown(context.Background()); err != nil {
			a.logger.Warn("otel shutdown error", "error", err)
		}
		a.otelShutdown = nil
	}
}

func contextWithOptionalTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

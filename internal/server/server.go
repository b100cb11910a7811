package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/tracelens/internal/ratelimit"
	"github.com/ashita-ai/tracelens/internal/service/sessions"
	"github.com/ashita-ai/tracelens/internal/telemetry"
)

// Server is the tracelens HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Collector, Limiter, MCPServer, OpenAPISpec,
// RouteRegistrars, Middlewares.
type ServerConfig struct {
	// Required dependencies.
	Sessions *sessions.Service
	Logger   *slog.Logger

	// Optional dependencies (nil = disabled).
	Collector *telemetry.Collector
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	// OpenAPISpec is the embedded OpenAPI YAML.
	OpenAPISpec []byte

	// RouteRegistrars add routes to the mux after the built-in ones.
	RouteRegistrars []func(mux *http.ServeMux)

	// Middlewares wrap the whole handler chain; the first is outermost.
	Middlewares []func(http.Handler) http.Handler
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := NewHandlers(HandlersDeps{
		Sessions:            cfg.Sessions,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	// Request ID extractor for rate limit error responses.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}
	assembleRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, reqIDFunc, cfg.Logger)

	mux := http.NewServeMux()

	// Stored sessions.
	mux.HandleFunc("GET /v1/sessions", h.HandleListSessions)
	mux.HandleFunc("GET /v1/sessions/{session_id}/view", h.HandleSessionView)
	mux.HandleFunc("GET /v1/sessions/{session_id}/metrics", h.HandleSessionMetrics)
	mux.HandleFunc("POST /v1/sessions/metrics", h.HandleBatchMetrics)

	// Traces across sessions.
	mux.HandleFunc("GET /v1/traces/{trace_id}/view", h.HandleTraceView)
	mux.HandleFunc("GET /v1/traces/{trace_id}/waterfall", h.HandleTraceWaterfall)

	// Stateless assembly (rate limited by client IP).
	mux.Handle("POST /v1/assemble", assembleRL(http.HandlerFunc(h.HandleAssemble)))

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Prometheus exposition.
	if cfg.Collector != nil {
		mux.Handle("GET /metrics", cfg.Collector.Handler())
	}

	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)
	mux.HandleFunc("GET /health", h.HandleHealth)

	for _, register := range cfg.RouteRegistrars {
		register(mux)
	}

	// Middleware chain (outermost executes first):
	// extra middlewares → request ID → security headers → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on an existing listener. Used by tests and by
// callers that pick the port themselves.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server starting", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

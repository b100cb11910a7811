package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashita-ai/tracelens/internal/model"
	"github.com/ashita-ai/tracelens/internal/service/sessions"
	"github.com/ashita-ai/tracelens/internal/service/traceview"
	"github.com/ashita-ai/tracelens/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	sessions            *sessions.Service
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): OpenAPISpec.
type HandlersDeps struct {
	Sessions            *sessions.Service
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// defaultMaxRequestBodyBytes applies when HandlersDeps leaves the limit unset.
const defaultMaxRequestBodyBytes = 4 << 20

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.MaxRequestBodyBytes <= 0 {
		d.MaxRequestBodyBytes = defaultMaxRequestBodyBytes
	}
	return &Handlers{
		sessions:            d.Sessions,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	store := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.sessions.Ping(r.Context()); err != nil {
		h.logger.Warn("health: store ping failed", "error", err)
		store = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:  status,
		Version: h.version,
		Source:  h.sessions.SourceName(),
		Store:   store,
		Uptime:  int64(time.Since(h.startedAt).Seconds()),
	})
}

// HandleOpenAPISpec handles GET /openapi.yaml.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "openapi spec not available")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(h.openapiSpec)
}

// writeSourceError maps a sessions.Service error to a response. Unknown ids
// become 404; everything else is logged and hidden behind a 500.
func (h *Handlers) writeSourceError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, notFoundMsg)
		return
	}
	h.logger.Error("source request failed",
		"error", err,
		"path", r.URL.Path,
		"request_id", RequestIDFromContext(r.Context()),
	)
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to load spans")
}

// pathID reads and validates a path parameter. On failure the 400 has
// already been written.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := r.PathValue(name)
	if err := model.ValidateID(name, id); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return "", false
	}
	return id, true
}

// groupBy parses the group_by query parameter, falling back to fallback
// when the parameter is absent. On failure the 400 has already been written.
func groupBy(w http.ResponseWriter, r *http.Request, fallback string) (traceview.Dimension, bool) {
	raw := fallback
	if r.URL.Query().Has("group_by") {
		raw = r.URL.Query().Get("group_by")
	}
	dim, err := traceview.ParseDimension(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return "", false
	}
	return dim, true
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

const (
	// maxQueryLimit caps page size for list endpoints.
	maxQueryLimit = 1000

	// maxQueryOffset prevents absurdly large offset values that cause expensive sequential scans.
	maxQueryOffset = 100_000
)

// queryOffset returns a bounded, non-negative offset from query params.
func queryOffset(r *http.Request) int {
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		return 0
	}
	if offset > maxQueryOffset {
		return maxQueryOffset
	}
	return offset
}

// queryLimit returns a bounded limit value from query params.
// Values are clamped to [1, maxQueryLimit].
func queryLimit(r *http.Request, defaultVal int) int {
	limit := queryInt(r, "limit", defaultVal)
	if limit < 1 {
		return 1
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

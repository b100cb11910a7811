package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/tracelens/internal/model"
	"github.com/ashita-ai/tracelens/internal/ratelimit"
	"github.com/ashita-ai/tracelens/internal/server"
	"github.com/ashita-ai/tracelens/internal/service/sessions"
	"github.com/ashita-ai/tracelens/internal/spanfile"
	"github.com/ashita-ai/tracelens/internal/telemetry"
	"github.com/ashita-ai/tracelens/internal/testutil"
)

type envelope struct {
	Data    json.RawMessage    `json:"data"`
	Total   *int               `json:"total"`
	HasMore bool               `json:"has_more"`
	Error   *model.ErrorDetail `json:"error"`
	Meta    model.ResponseMeta `json:"meta"`
}

func newTestServer(t *testing.T, mutate func(*server.ServerConfig)) *httptest.Server {
	t.Helper()
	logger := testutil.TestLogger()
	src := spanfile.NewSource(testutil.VoiceSession())
	collector := telemetry.NewCollector(prometheus.NewRegistry())
	cfg := server.ServerConfig{
		Sessions:            sessions.New(src, collector, logger, 4),
		Logger:              logger,
		Collector:           collector,
		Version:             "test",
		MaxRequestBodyBytes: 1 << 20,
		OpenAPISpec:         []byte("openapi: 3.1.0\n"),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	ts := httptest.NewServer(server.New(cfg).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path string, body any) (*http.Response, envelope) {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rdr)
	require.NoError(t, err)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	} else {
		env.Data = raw
	}
	return resp, env
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, env := do(t, ts, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var h model.HealthResponse
	require.NoError(t, json.Unmarshal(env.Data, &h))
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "test", h.Version)
	assert.Equal(t, "file", h.Source)
	assert.Equal(t, "connected", h.Store)

	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, resp.Header.Get("X-Request-ID"), env.Meta.RequestID)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

func TestRequestID_ClientValueKeptWhenValid(t *testing.T) {
	ts := newTestServer(t, nil)

	req, _ := http.NewRequest("GET", ts.URL+"/health", nil)
	req.Header.Set("X-Request-ID", "call-42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "call-42", resp.Header.Get("X-Request-ID"))

	req, _ = http.NewRequest("GET", ts.URL+"/health", nil)
	req.Header.Set("X-Request-ID", "bad id with spaces")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.NotEqual(t, "bad id with spaces", resp.Header.Get("X-Request-ID"))
}

func TestSessionView(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, env := do(t, ts, "GET", "/v1/sessions/"+testutil.SessionID+"/view?group_by=service", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sv sessions.SessionView
	require.NoError(t, json.Unmarshal(env.Data, &sv))
	assert.Equal(t, testutil.SessionID, sv.Session.SessionID)
	assert.Equal(t, "service", string(sv.View.Dimension))
	require.Len(t, sv.View.Traces, 1)
	assert.Equal(t, "1 LLM • 1 TTS • 1 STT • 1 Database • 1 Other", sv.View.Traces[0].Summary)

	keys := make([]string, len(sv.View.Groups))
	for i, g := range sv.View.Groups {
		keys[i] = g.Key
	}
	assert.Equal(t, []string{"voice-gateway", "agent-core"}, keys)
}

func TestSessionView_Errors(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"unknown session", "/v1/sessions/nope/view", http.StatusNotFound, model.ErrCodeNotFound},
		{"bad group_by", "/v1/sessions/" + testutil.SessionID + "/view?group_by=region", http.StatusBadRequest, model.ErrCodeInvalidInput},
		{"invalid id", "/v1/sessions/a%20b/view", http.StatusBadRequest, model.ErrCodeInvalidInput},
		{"unknown trace", "/v1/traces/deadbeef/view", http.StatusNotFound, model.ErrCodeNotFound},
		{"unknown waterfall", "/v1/traces/deadbeef/waterfall", http.StatusNotFound, model.ErrCodeNotFound},
		{"metrics unknown session", "/v1/sessions/nope/metrics", http.StatusNotFound, model.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := do(t, ts, "GET", tt.path, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.NotEmpty(t, env.Meta.RequestID)
		})
	}
}

func TestSessionMetrics(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, env := do(t, ts, "GET", "/v1/sessions/"+testutil.SessionID+"/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var m sessions.SessionMetrics
	require.NoError(t, json.Unmarshal(env.Data, &m))
	assert.Equal(t, testutil.TraceID, m.TraceID)
	assert.Equal(t, 5, m.Metrics.TotalSpans)
	assert.Equal(t, 1, m.Metrics.ErrorCount)
	assert.Equal(t, "2.37s", m.Metrics.TotalDuration)
	assert.Equal(t, "1.20s", m.Window.WallClock)
}

func TestListSessions(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, env := do(t, ts, "GET", "/v1/sessions?agent_id="+testutil.AgentID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, env.Total)
	assert.Equal(t, 1, *env.Total)
	assert.False(t, env.HasMore)

	var list []model.SessionSummary
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, 5, list[0].TotalSpans)

	resp, env = do(t, ts, "GET", "/v1/sessions?agent_id=nobody", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", string(env.Data))

	resp, _ = do(t, ts, "GET", "/v1/sessions?agent_id=no%20body", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBatchMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, env := do(t, ts, "POST", "/v1/sessions/metrics", model.BatchMetricsRequest{
		SessionIDs: []string{testutil.SessionID, "missing"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var items []sessions.BatchItem
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 2)
	require.NotNil(t, items[0].Metrics)
	assert.Equal(t, 5, items[0].Metrics.Metrics.TotalSpans)
	assert.Equal(t, "session not found", items[1].Error)

	tooMany := make([]string, model.MaxBatchSessions+1)
	for i := range tooMany {
		tooMany[i] = "s"
	}
	tests := []struct {
		name string
		body any
	}{
		{"empty list", model.BatchMetricsRequest{}},
		{"too many", model.BatchMetricsRequest{SessionIDs: tooMany}},
		{"invalid id", model.BatchMetricsRequest{SessionIDs: []string{"a/b"}}},
		{"malformed json", `{"session_ids": [`},
		{"no body", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := do(t, ts, "POST", "/v1/sessions/metrics", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.NotNil(t, env.Error)
			assert.Equal(t, model.ErrCodeInvalidInput, env.Error.Code)
		})
	}
}

func TestTraceWaterfall(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, env := do(t, ts, "GET", "/v1/traces/"+testutil.TraceID+"/waterfall", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var wf sessions.WaterfallView
	require.NoError(t, json.Unmarshal(env.Data, &wf))
	require.Len(t, wf.Waterfall.Rows, 5)
	assert.Equal(t, "root", wf.Waterfall.Rows[0].SpanID)
	assert.Empty(t, wf.Warnings)
}

func TestTraceView(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, env := do(t, ts, "GET", "/v1/traces/"+testutil.TraceID+"/view?group_by=operation", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var v struct {
		GroupBy string `json:"group_by"`
		Groups  []struct {
			Key string `json:"key"`
		} `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.Equal(t, "operation", v.GroupBy)
	assert.Len(t, v.Groups, 5)
}

func TestAssemble(t *testing.T) {
	ts := newTestServer(t, nil)

	body := `{"group_by": "none", "spans": [
		{"trace_id": "t", "span_id": "A", "name": "llm.completion", "duration_ns": 1500000, "exporter_extra": true},
		{"trace_id": "t", "span_id": "B", "parent_span_id": "A", "name": "tts.synthesize", "duration_ns": "800000",
		 "status": {"code": "ERROR"}},
		{"trace_id": "t", "span_id": "C", "parent_span_id": "ghost", "name": "http.get"}
	]}`
	resp, env := do(t, ts, "POST", "/v1/assemble?group_by=service", body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(env.Data))

	var v struct {
		GroupBy string `json:"group_by"`
		Metrics struct {
			TotalSpans      int     `json:"total_spans"`
			ErrorCount      int     `json:"error_count"`
			TotalDurationMs float64 `json:"total_duration_ms"`
		} `json:"metrics"`
		Warnings []struct {
			Kind string `json:"kind"`
		} `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.Equal(t, "service", v.GroupBy, "query parameter wins over the body")
	assert.Equal(t, 3, v.Metrics.TotalSpans)
	assert.Equal(t, 1, v.Metrics.ErrorCount)
	assert.InDelta(t, 2.3, v.Metrics.TotalDurationMs, 1e-9)
	require.Len(t, v.Warnings, 1)
	assert.Equal(t, "dangling_parent", v.Warnings[0].Kind)
}

func TestAssemble_EmptySpans(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, env := do(t, ts, "POST", "/v1/assemble", `{"spans": []}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", string(jsonField(t, env.Data, "groups")))
}

func TestAssemble_BadGroupBy(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, env := do(t, ts, "POST", "/v1/assemble", `{"spans": [], "group_by": "kind"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Message, "group_by")
}

func TestAssemble_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t, func(c *server.ServerConfig) { c.MaxRequestBodyBytes = 64 })
	body := `{"spans": [{"trace_id": "t", "span_id": "A", "name": "` + strings.Repeat("x", 200) + `"}]}`
	resp, env := do(t, ts, "POST", "/v1/assemble", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, model.ErrCodeInvalidInput, env.Error.Code)
}

func TestAssemble_RateLimited(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(0.001, 1)
	t.Cleanup(func() { _ = limiter.Close() })
	ts := newTestServer(t, func(c *server.ServerConfig) { c.Limiter = limiter })

	resp, _ := do(t, ts, "POST", "/v1/assemble", `{"spans": []}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env := do(t, ts, "POST", "/v1/assemble", `{"spans": []}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	require.NotNil(t, env.Error)
	assert.Equal(t, model.ErrCodeRateLimited, env.Error.Code)

	// Stored-session reads are not rate limited.
	resp, _ = do(t, ts, "GET", "/v1/sessions/"+testutil.SessionID+"/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	_, _ = do(t, ts, "GET", "/v1/sessions/"+testutil.SessionID+"/view", nil)

	resp, env := do(t, ts, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := string(env.Data)
	assert.Contains(t, body, `tracelens_views_built_total{source="file"} 1`)
	assert.Contains(t, body, `tracelens_spans_classified_total{category="LLM"} 1`)
}

func TestOpenAPISpec(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, env := do(t, ts, "GET", "/openapi.yaml", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))
	assert.Equal(t, "openapi: 3.1.0\n", string(env.Data))

	bare := newTestServer(t, func(c *server.ServerConfig) { c.OpenAPISpec = nil })
	resp, _ = do(t, bare, "GET", "/openapi.yaml", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type downSource struct{}

var errDown = errors.New("connection refused")

func (downSource) Name() string { return "postgres" }
func (downSource) Ping(context.Context) error {
	return errDown
}
func (downSource) GetSessionTrace(context.Context, string) (model.SessionTrace, error) {
	return model.SessionTrace{}, errDown
}
func (downSource) GetTraceSpans(context.Context, string) ([]model.Span, error) {
	return nil, errDown
}
func (downSource) ListSessions(context.Context, model.SessionFilter) ([]model.SessionSummary, int, error) {
	return nil, 0, errDown
}

func TestStoreDown(t *testing.T) {
	ts := newTestServer(t, func(c *server.ServerConfig) {
		c.Sessions = sessions.New(downSource{}, nil, testutil.TestLogger(), 1)
	})

	resp, env := do(t, ts, "GET", "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var h model.HealthResponse
	require.NoError(t, json.Unmarshal(env.Data, &h))
	assert.Equal(t, "disconnected", h.Store)
	assert.Equal(t, "postgres", h.Source)

	resp, env = do(t, ts, "GET", "/v1/sessions/"+testutil.SessionID+"/view", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, model.ErrCodeInternalError, env.Error.Code)
	assert.NotContains(t, env.Error.Message, "connection refused", "store errors are not leaked")
}

func TestExtensionPoints(t *testing.T) {
	ts := newTestServer(t, func(c *server.ServerConfig) {
		c.RouteRegistrars = []func(*http.ServeMux){func(mux *http.ServeMux) {
			mux.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
		}}
		c.Middlewares = []func(http.Handler) http.Handler{
			func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("X-Outer", "1")
					next.ServeHTTP(w, r)
				})
			},
		}
	})

	resp, env := do(t, ts, "GET", "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, model.ErrCodeInternalError, env.Error.Code)
	assert.Equal(t, "1", resp.Header.Get("X-Outer"))
}

func jsonField(t *testing.T, data json.RawMessage, field string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &m))
	v, ok := m[field]
	require.True(t, ok, "field %q missing", field)
	return v
}

package tracelens

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileApp(t *testing.T, opts ...Option) *App {
	t.Helper()
	t.Setenv("TRACELENS_SOURCE", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	base := []Option{WithSpanFile("internal/spanfile/testdata/turn.json"), WithVersion("test")}
	app, err := New(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	return app
}

func TestNew_FileSource(t *testing.T) {
	app := newFileApp(t)
	t.Cleanup(app.close)

	assert.Equal(t, "file", app.cfg.Source)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/turn/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data struct {
			TraceID string `json:"trace_id"`
			Summary string `json:"summary"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "t1", body.Data.TraceID)
	assert.Equal(t, "1 LLM • 1 TTS", body.Data.Summary)
}

func TestNew_ExtensionPoints(t *testing.T) {
	app := newFileApp(t,
		WithExtraRoutes(func(mux *http.ServeMux) {
			mux.HandleFunc("GET /custom", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			})
		}),
		WithMiddleware(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Embedded", "yes")
				next.ServeHTTP(w, r)
			})
		}),
	)
	t.Cleanup(app.close)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/custom", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "yes", rec.Header().Get("X-Embedded"))
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Setenv("TRACELENS_SOURCE", "")
	_, err := New(context.Background(), WithSpanFile("internal/spanfile/testdata/turn.json"), WithPort(70000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRACELENS_PORT")

	_, err = New(context.Background(), WithSpanFile("does/not/exist.json"))
	require.Error(t, err)
}

func TestServe_StopsOnCancel(t *testing.T) {
	app := newFileApp(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:noctx // test helper
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]any
		want  Category
	}{
		{"llm.completion", nil, CategoryLLM},
		{"lookup", map[string]any{"db.system": "postgresql"}, CategoryDatabase},
		{"agent.turn", nil, CategoryOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.name, tt.attrs))
		})
	}
}

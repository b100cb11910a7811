package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/tracelens/internal/testutil"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		max     int64
		wantErr string
	}{
		{"valid", `{"session_ids": ["a"]}`, 1024, ""},
		{"unknown fields ignored", `{"session_ids": ["a"], "extra": 1}`, 1024, ""},
		{"empty", ``, 1024, errEmptyBody.Error()},
		{"trailing value", `{"session_ids": ["a"]} {}`, 1024, "single JSON value"},
		{"syntax", `{"session_ids": [`, 1024, "unexpected EOF"},
		{"too large", `{"session_ids": ["aaaaaaaaaaaaaaaaaaaaaaaa"]}`, 8, "request body too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var target struct {
				SessionIDs []string `json:"session_ids"`
			}
			w := httptest.NewRecorder()
			r := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))
			err := decodeJSON(w, r, &target, tt.max)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, []string{"a"}, target.SessionIDs)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHandleDecodeError(t *testing.T) {
	w := httptest.NewRecorder()
	handleDecodeError(w, httptest.NewRequest("POST", "/", nil), &http.MaxBytesError{Limit: 10})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "exceeds 10 bytes")

	w = httptest.NewRecorder()
	handleDecodeError(w, httptest.NewRequest("POST", "/", nil), errors.New("bad"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_INPUT")
}

func TestStatusWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	sw.WriteHeader(http.StatusTeapot)
	sw.WriteHeader(http.StatusInternalServerError)
	_, _ = sw.Write([]byte("x"))
	sw.Flush()

	assert.Equal(t, http.StatusTeapot, sw.statusCode, "first status wins")
	assert.True(t, sw.wroteHeader)
	assert.True(t, rec.Flushed)
	assert.Same(t, rec, sw.Unwrap())
}

func TestRecoveryMiddleware_HeadersAlreadyWritten(t *testing.T) {
	h := recoveryMiddleware(testutil.TestLogger(), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestTracingMiddleware_RecordsRoute(t *testing.T) {
	mux := http.NewServeMux()
	var seen string
	mux.HandleFunc("GET /v1/sessions/{session_id}/view", func(w http.ResponseWriter, r *http.Request) {
		seen = r.Pattern
		w.WriteHeader(http.StatusNoContent)
	})
	rec := httptest.NewRecorder()
	tracingMiddleware(mux).ServeHTTP(rec, httptest.NewRequest("GET", "/v1/sessions/s1/view", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET /v1/sessions/{session_id}/view", seen)
}

func TestTraceIDFromContext_Empty(t *testing.T) {
	assert.Empty(t, traceIDFromContext(context.Background()))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestQueryHelpers(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", 50, 0},
		{"limit=10&offset=5", 10, 5},
		{"limit=0&offset=-3", 1, 0},
		{"limit=5000&offset=999999999", maxQueryLimit, maxQueryOffset},
		{"limit=abc&offset=xyz", 50, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := &http.Request{URL: &url.URL{RawQuery: tt.query}}
			assert.Equal(t, tt.wantLimit, queryLimit(r, 50))
			assert.Equal(t, tt.wantOffset, queryOffset(r))
		})
	}
}

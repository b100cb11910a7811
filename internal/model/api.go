package model

import (
	"fmt"
	"time"
)

// Request limits for the HTTP API.
const (
	// MaxBatchSessions caps session_ids in POST /v1/sessions/metrics.
	MaxBatchSessions = 50

	// MaxAssembleSpans caps spans in POST /v1/assemble.
	MaxAssembleSpans = 10_000
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// ListResponse is the standard envelope for paginated list endpoints.
type ListResponse struct {
	Data    any          `json:"data"`
	Total   *int         `json:"total,omitempty"`
	HasMore bool         `json:"has_more"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
	Meta    ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeUnavailable   = "UNAVAILABLE"
)

// AssembleRequest is the request body for POST /v1/assemble. It carries raw
// spans from a caller that has them in hand and wants a view without
// storing them first.
type AssembleRequest struct {
	Spans   []Span `json:"spans"`
	GroupBy string `json:"group_by,omitempty"`
}

// Validate checks the span count. Span contents are never validated; the
// assembler reports anomalies instead.
func (r AssembleRequest) Validate() error {
	if len(r.Spans) > MaxAssembleSpans {
		return fmt.Errorf("spans exceeds maximum of %d", MaxAssembleSpans)
	}
	return nil
}

// BatchMetricsRequest is the request body for POST /v1/sessions/metrics.
type BatchMetricsRequest struct {
	SessionIDs []string `json:"session_ids"`
}

// Validate checks the session id list.
func (r BatchMetricsRequest) Validate() error {
	if len(r.SessionIDs) == 0 {
		return fmt.Errorf("session_ids is required")
	}
	if len(r.SessionIDs) > MaxBatchSessions {
		return fmt.Errorf("session_ids exceeds maximum of %d", MaxBatchSessions)
	}
	for i, id := range r.SessionIDs {
		if id == "" {
			return fmt.Errorf("session_ids[%d] is empty", i)
		}
	}
	return nil
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Source  string `json:"source"`
	Store   string `json:"store"` // "connected" or "disconnected"
	Uptime  int64  `json:"uptime_seconds"`
}

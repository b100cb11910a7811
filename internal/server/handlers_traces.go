package server

import (
	"net/http"

	"github.com/ashita-ai/tracelens/internal/model"
)

// HandleTraceView handles GET /v1/traces/{trace_id}/view.
func (h *Handlers) HandleTraceView(w http.ResponseWriter, r *http.Request) {
	traceID, ok := pathID(w, r, "trace_id")
	if !ok {
		return
	}
	dim, ok := groupBy(w, r, "")
	if !ok {
		return
	}

	v, err := h.sessions.TraceView(r.Context(), traceID, dim)
	if err != nil {
		h.writeSourceError(w, r, err, "trace not found")
		return
	}
	writeJSON(w, r, http.StatusOK, v)
}

// HandleTraceWaterfall handles GET /v1/traces/{trace_id}/waterfall.
func (h *Handlers) HandleTraceWaterfall(w http.ResponseWriter, r *http.Request) {
	traceID, ok := pathID(w, r, "trace_id")
	if !ok {
		return
	}

	wf, err := h.sessions.Waterfall(r.Context(), traceID)
	if err != nil {
		h.writeSourceError(w, r, err, "trace not found")
		return
	}
	writeJSON(w, r, http.StatusOK, wf)
}

// HandleAssemble handles POST /v1/assemble. The spans come from the body and
// nothing is stored. A group_by query parameter overrides the body field.
func (h *Handlers) HandleAssemble(w http.ResponseWriter, r *http.Request) {
	var req model.AssembleRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	dim, ok := groupBy(w, r, req.GroupBy)
	if !ok {
		return
	}

	writeJSON(w, r, http.StatusOK, h.sessions.Assemble(r.Context(), req.Spans, dim))
}

package server

import (
	"net/http"

	"github.com/ashita-ai/tracelens/internal/model"
)

// defaultSessionPageSize is the page size for GET /v1/sessions.
const defaultSessionPageSize = 50

// HandleListSessions handles GET /v1/sessions.
func (h *Handlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID != "" {
		if err := model.ValidateID("agent_id", agentID); err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
			return
		}
	}
	limit := queryLimit(r, defaultSessionPageSize)
	offset := queryOffset(r)

	list, total, err := h.sessions.ListSessions(r.Context(), model.SessionFilter{
		AgentID: agentID,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		h.writeSourceError(w, r, err, "sessions not found")
		return
	}
	if list == nil {
		list = []model.SessionSummary{}
	}
	writeListJSON(w, r, list, len(list), total, limit, offset)
}

// HandleSessionView handles GET /v1/sessions/{session_id}/view.
func (h *Handlers) HandleSessionView(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "session_id")
	if !ok {
		return
	}
	dim, ok := groupBy(w, r, "")
	if !ok {
		return
	}

	sv, err := h.sessions.SessionView(r.Context(), sessionID, dim)
	if err != nil {
		h.writeSourceError(w, r, err, "session not found")
		return
	}
	writeJSON(w, r, http.StatusOK, sv)
}

// HandleSessionMetrics handles GET /v1/sessions/{session_id}/metrics.
func (h *Handlers) HandleSessionMetrics(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "session_id")
	if !ok {
		return
	}

	m, err := h.sessions.SessionMetrics(r.Context(), sessionID)
	if err != nil {
		h.writeSourceError(w, r, err, "session not found")
		return
	}
	writeJSON(w, r, http.StatusOK, m)
}

// HandleBatchMetrics handles POST /v1/sessions/metrics. Unknown sessions are
// reported per item; the request as a whole still succeeds.
func (h *Handlers) HandleBatchMetrics(w http.ResponseWriter, r *http.Request) {
	var req model.BatchMetricsRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	for _, id := range req.SessionIDs {
		if err := model.ValidateID("session_ids", id); err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
			return
		}
	}

	items, err := h.sessions.BatchMetrics(r.Context(), req.SessionIDs)
	if err != nil {
		h.writeSourceError(w, r, err, "session not found")
		return
	}
	writeJSON(w, r, http.StatusOK, items)
}

package api

import (
	"encoding/json"
	"net/http"
)

// EventRequest is the envelope for trigger events delivered over HTTP.
type EventRequest struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// CancelRequest asks the engine to cancel the running workflow holding
// the given correlation key.
type CancelRequest struct {
	CorrelationKey string `json:"correlationKey"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid event body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "event name is required")
		return
	}

	if err := s.events.HandleEvent(r.Context(), req.Name, req.Data); err != nil {
		s.logger.Error("event handling failed", "event", req.Name, "error", err)
		respondError(w, http.StatusInternalServerError, "event handling failed")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid cancellation body")
		return
	}
	if req.CorrelationKey == "" {
		respondError(w, http.StatusBadRequest, "correlationKey is required")
		return
	}

	s.eng.Cancel(r.Context(), req.CorrelationKey)
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

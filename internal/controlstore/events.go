package controlstore

import (
	"net/http"
	"strconv"

	"github.com/aristath/ats/internal/domain"
)

type createEventRequest struct {
	TraderName string `json:"trader_name"`
	Level      string `json:"level"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
}

// handleCreateEvent appends a diagnostic event row: heartbeats, loop errors,
// and any other per-iteration narration a worker wants on the ledger. These
// are out of scope for redesign (§1) but the write path still lives on the
// Control Store's surface since every worker emits one per iteration (§4.1i).
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := s.cfg.Events.Create(domain.Event{
		TraderName: req.TraderName,
		Level:      req.Level,
		Kind:       req.Kind,
		Message:    req.Message,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	traderName := r.URL.Query().Get("trader_name")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	events, err := s.cfg.Events.Recent(traderName, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

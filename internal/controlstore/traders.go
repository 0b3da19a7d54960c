package controlstore

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/ats/internal/domain"
	"github.com/aristath/ats/internal/store"
)

func (s *Server) handleGetTrader(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	t, err := s.cfg.Traders.GetByName(name)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

// handleHeartbeat records that a trader's loop completed an iteration,
// updating its last_heartbeat_at column (§3 Trader fields).
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.cfg.Traders.Heartbeat(name); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleArmTrader sets ArmedAt=now; CanGoLive still separately requires the
// paper-protection window to have elapsed (domain.Trader.CanGoLive).
func (s *Server) handleArmTrader(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.cfg.Traders.Arm(name, time.Now()); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "armed"})
}

type setRunModeRequest struct {
	Mode domain.RunMode `json:"mode"`
}

// handleSetRunMode flips PAPER/LIVE, refusing LIVE unless CanGoLive holds.
func (s *Server) handleSetRunMode(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req setRunModeRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if req.Mode == domain.RunLive {
		t, err := s.cfg.Traders.GetByName(name)
		if err != nil {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		protect := time.Duration(24) * time.Hour
		if !t.CanGoLive(time.Now(), protect) {
			s.writeError(w, http.StatusForbidden, errors.New("trader not eligible for LIVE: not armed or still within paper-protection window"))
			return
		}
	}

	if err := s.cfg.Traders.SetRunMode(name, req.Mode); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"run_mode": string(req.Mode)})
}

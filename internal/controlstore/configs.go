package controlstore

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/ats/internal/store"
)

type createConfigRequest struct {
	StrategyID string `json:"strategy_id"`
	ParamsJSON string `json:"params_json"`
}

func (s *Server) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var req createConfigRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	cfg, err := s.cfg.Configs.Create(req.StrategyID, req.ParamsJSON)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, cfg)
}

type activateConfigRequest struct {
	StrategyID string `json:"strategy_id"`
	Version    int    `json:"version"`
}

// handleActivateConfig flips the named version active and every other
// version for the strategy inactive, atomically (store.ConfigRepository.Activate).
func (s *Server) handleActivateConfig(w http.ResponseWriter, r *http.Request) {
	// The {id} path segment is the config row id for readability in the URL;
	// the body still names strategy_id/version since Activate keys on those.
	if _, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req activateConfigRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.cfg.Configs.Activate(req.StrategyID, req.Version); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "activated"})
}

// handleActiveConfig returns a strategy's active ConfigVersion, the merge
// input a trader worker overlays onto its built-in defaults each iteration
// (§4.1a). A 404 means the strategy has never activated a version; the
// worker falls back to its built-in defaults in that case.
func (s *Server) handleActiveConfig(w http.ResponseWriter, r *http.Request) {
	strategyID := r.URL.Query().Get("strategy_id")
	if strategyID == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("missing required query parameter: strategy_id"))
		return
	}
	cfg, err := s.cfg.Configs.Active(strategyID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

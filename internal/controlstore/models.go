package controlstore

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/ats/internal/domain"
)

func parseModelID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// handleValidateModel computes evaluation metrics over a strategy's labeled
// feature snapshots and applies DRAFT->VALIDATED on PASS (§4.7).
func (s *Server) handleValidateModel(w http.ResponseWriter, r *http.Request) {
	id, err := parseModelID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	model, err := s.cfg.Models.Get(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}

	snapshots, err := s.cfg.Scan.LabeledSnapshots(model.StrategyID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	metrics, gate, reason, err := s.cfg.Lifecycle.Validate(id, snapshots)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"metrics": metrics, "gate": gate, "reason": reason,
	})
}

func (s *Server) handleDeployModel(w http.ResponseWriter, r *http.Request) {
	id, err := parseModelID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.cfg.Lifecycle.Deploy(id); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.ModelPaperDeployed)})
}

func (s *Server) handleCheckEligibleModel(w http.ResponseWriter, r *http.Request) {
	id, err := parseModelID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	status, reason, err := s.cfg.Lifecycle.CheckEligible(id)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": string(status), "reason": reason})
}

func (s *Server) handleArmModel(w http.ResponseWriter, r *http.Request) {
	id, err := parseModelID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.cfg.Lifecycle.Arm(id); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.ModelLiveArmed)})
}

type rollbackModelRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleRollbackModel(w http.ResponseWriter, r *http.Request) {
	id, err := parseModelID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req rollbackModelRequest
	_ = s.decodeJSON(r, &req)
	if req.Reason == "" {
		req.Reason = "manual rollback"
	}
	if err := s.cfg.Lifecycle.Rollback(id, req.Reason); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.ModelDraft)})
}

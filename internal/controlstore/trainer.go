package controlstore

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/ats/internal/lifecycle"
)

type trainerScanRequest struct {
	StrategyID       string  `json:"strategy_id"`
	RegimeLabel      string  `json:"regime_label"`
	RegimeConfidence float64 `json:"regime_confidence"`
}

func (s *Server) handleTrainerScan(w http.ResponseWriter, r *http.Request) {
	var req trainerScanRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	runID, count, err := s.cfg.Scanner.Scan(r.Context(), req.StrategyID, req.RegimeLabel, req.RegimeConfidence)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"run_id": runID, "snapshot_count": int64(count)})
}

type trainerUpdateLabelsRequest struct {
	MinAgeMinutes int `json:"min_age_minutes"`
}

func (s *Server) handleTrainerUpdateLabels(w http.ResponseWriter, r *http.Request) {
	var req trainerUpdateLabelsRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.MinAgeMinutes <= 0 {
		req.MinAgeMinutes = 240
	}
	updated, err := s.cfg.Scanner.UpdateLabels(r.Context(), time.Duration(req.MinAgeMinutes)*time.Minute)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

type trainerEvaluateRequest struct {
	StrategyID string `json:"strategy_id"`
}

// handleTrainerEvaluate computes the evaluation metrics for a strategy's
// labeled snapshots without applying a lifecycle transition (§4.7's
// metric computation, exposed standalone for dashboard preview use).
func (s *Server) handleTrainerEvaluate(w http.ResponseWriter, r *http.Request) {
	var req trainerEvaluateRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	snapshots, err := s.cfg.Scan.LabeledSnapshots(req.StrategyID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	metrics, gate, reason := lifecycle.Evaluate(snapshots)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"metrics": metrics, "gate": gate, "reason": reason})
}

type trainerTuneRequest struct {
	StrategyID string `json:"strategy_id"`
	TrialCount int    `json:"trial_count"`
}

func (s *Server) handleTrainerTune(w http.ResponseWriter, r *http.Request) {
	var req trainerTuneRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	snapshots, err := s.cfg.Scan.LabeledSnapshots(req.StrategyID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	best, err := s.cfg.Tuner.Tune(req.StrategyID, snapshots, req.TrialCount)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	paramsJSON, _ := json.Marshal(best)
	s.writeJSON(w, http.StatusOK, json.RawMessage(paramsJSON))
}

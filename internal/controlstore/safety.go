package controlstore

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type updatePnLRequest struct {
	RealizedKRW float64 `json:"realized_krw"`
}

// handleUpdatePnL applies a closed trade's realized PnL to the trader's
// rolling counters and trips the Runtime Guard's loss-limit block if either
// threshold is breached (§4.6).
func (s *Server) handleUpdatePnL(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req updatePnLRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	trader, err := s.cfg.Traders.GetByName(name)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}

	if err := s.cfg.Guard.RecordLoss(trader, req.RealizedKRW, s.cfg.Safety.DailyLossLimitPct, s.cfg.Safety.ConsecutiveLossLim); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.cfg.Traders.AddRealizedPnL(name, req.RealizedKRW); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	state, err := s.cfg.SafetyRepo.Get(name)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

// handleResetSafety is the admin-only counter and block-flag reset (§4.6).
func (s *Server) handleResetSafety(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.cfg.Guard.Reset(name); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type reportSlippageRequest struct {
	Expected float64 `json:"expected"`
	Actual   float64 `json:"actual"`
}

// handleReportSlippage registers one fill's slippage and trips the anomaly
// block at 3 occurrences (§4.6 table).
func (s *Server) handleReportSlippage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req reportSlippageRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.cfg.Guard.RecordSlippage(name, req.Expected, req.Actual); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// handleReportAPIError registers one exchange API failure, hard-blocking at
// the count threshold.
func (s *Server) handleReportAPIError(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.cfg.Guard.RecordAPIError(name); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// handleReportDBError registers one Control Store call failure, hard-blocking
// at the count threshold.
func (s *Server) handleReportDBError(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.cfg.Guard.RecordDBError(name); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// handleReportPanic hard-blocks a trader the first time its regime comes
// back PANIC this episode; idempotent on repeat calls.
func (s *Server) handleReportPanic(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.cfg.Guard.RecordPanicObserved(name); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// handleCheckEntry returns whether a trader may emit an ENTRY this cycle,
// the decision every worker consults before scoring candidates (§4.6).
func (s *Server) handleCheckEntry(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	decision, err := s.cfg.Guard.CheckEntry(name)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, decision)
}

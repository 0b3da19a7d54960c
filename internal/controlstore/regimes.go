package controlstore

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/ats/internal/domain"
	"github.com/aristath/ats/internal/regimeengine"
)

type createRegimeSnapshotRequest struct {
	Market      string  `json:"market"`
	RegimeID    int64   `json:"regime_id"`
	Label       string  `json:"label"`
	Confidence  float64 `json:"confidence"`
	MetricsJSON string  `json:"metrics_json"`
}

func (s *Server) handleCreateRegimeSnapshot(w http.ResponseWriter, r *http.Request) {
	var req createRegimeSnapshotRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := s.cfg.Regimes.Create(domain.RegimeSnapshot{
		Market:      req.Market,
		Timestamp:   time.Now(),
		RegimeID:    req.RegimeID,
		Label:       domain.RegimeLabel(req.Label),
		Confidence:  req.Confidence,
		MetricsJSON: req.MetricsJSON,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleListRegimeSnapshots(w http.ResponseWriter, r *http.Request) {
	market := r.URL.Query().Get("market")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	snapshots, err := s.cfg.Regimes.RecentByMarket(market, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshots)
}

// handleRegimeWeight computes the confidence-scaled regime weight for a
// label given a caller-supplied base_weight, using the market's latest
// classification for the confidence input.
func (s *Server) handleRegimeWeight(w http.ResponseWriter, r *http.Request) {
	label := domain.RegimeLabel(chi.URLParam(r, "label"))
	market := r.URL.Query().Get("market")
	if market == "" {
		market = "KRW-BTC"
	}
	baseWeight := 1.0
	if v := r.URL.Query().Get("base_weight"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			baseWeight = f
		}
	}

	snap, err := s.cfg.Regimes.Latest(market)
	confidence := 1.0
	if err == nil {
		confidence = snap.Confidence
	}

	weight := regimeengine.RegimeWeight(label, confidence, baseWeight)
	s.writeJSON(w, http.StatusOK, map[string]float64{"weight": weight})
}

func (s *Server) handleBanditWeight(w http.ResponseWriter, r *http.Request) {
	label := domain.RegimeLabel(chi.URLParam(r, "label"))
	strategyID := chi.URLParam(r, "strategy")

	if err := s.cfg.Bandits.EnsureSeeded(strategyID); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	state, err := s.cfg.Bandits.Get(label, strategyID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	weight := s.cfg.Sampler.Weight(state)
	s.writeJSON(w, http.StatusOK, map[string]float64{"weight": weight, "alpha": state.Alpha, "beta": state.Beta})
}

type updateBanditRequest struct {
	Win bool `json:"win"`
}

// handleUpdateBanditWeight applies a realized trade outcome to the row's Beta
// posterior (§4.2: win increments alpha, loss increments beta), seeding the
// row first so every (regime, strategy) pair reachable at planning time has one.
func (s *Server) handleUpdateBanditWeight(w http.ResponseWriter, r *http.Request) {
	label := domain.RegimeLabel(chi.URLParam(r, "label"))
	strategyID := chi.URLParam(r, "strategy")

	var req updateBanditRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.cfg.Bandits.EnsureSeeded(strategyID); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.cfg.Bandits.Update(label, strategyID, req.Win); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

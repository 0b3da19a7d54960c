package controlstore

import (
	"net/http"
	"strings"

	"github.com/aristath/ats/internal/domain"
)

type createSignalRequest struct {
	TraderName  string   `json:"trader_name"`
	Symbol      string   `json:"symbol"`
	TotalScore  float64  `json:"total_score"`
	ScoresJSON  string   `json:"scores_json"`
	Regime      string   `json:"regime"`
	Action      string   `json:"action"`
	ReasonCodes []string `json:"reason_codes"`
}

func (s *Server) handleCreateSignal(w http.ResponseWriter, r *http.Request) {
	var req createSignalRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := s.cfg.Trades.CreateSignal(domain.Signal{
		TraderName:  req.TraderName,
		Symbol:      req.Symbol,
		TotalScore:  req.TotalScore,
		ScoresJSON:  req.ScoresJSON,
		Regime:      domain.RegimeLabel(req.Regime),
		Action:      domain.SignalAction(req.Action),
		ReasonCodes: req.ReasonCodes,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

type createOrderRequest struct {
	TraderName string  `json:"trader_name"`
	OrderID    string  `json:"order_id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Price      float64 `json:"price"`
	Size       float64 `json:"size"`
	Status     string  `json:"status"`
	FilledQty  float64 `json:"filled_qty"`
	AvgPrice   float64 `json:"avg_price"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := s.cfg.Trades.CreateOrder(domain.Order{
		TraderName: req.TraderName,
		OrderID:    req.OrderID,
		Symbol:     req.Symbol,
		Side:       domain.OrderSide(req.Side),
		Price:      req.Price,
		Size:       req.Size,
		Status:     domain.OrderStatus(req.Status),
		FilledQty:  req.FilledQty,
		AvgPrice:   req.AvgPrice,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// handleHoldings replays the order ledger for trader_name and returns every
// symbol still open — the §9 cold-start answer to "what do we hold".
func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	traderName := strings.TrimSpace(r.URL.Query().Get("trader_name"))
	if traderName == "" {
		s.writeError(w, http.StatusBadRequest, errMissingTraderName)
		return
	}
	holdings, err := s.cfg.Holdings.Reconstruct(traderName)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, holdings)
}

var errMissingTraderName = missingParamError("trader_name")

type missingParamError string

func (e missingParamError) Error() string { return "missing required query parameter: " + string(e) }

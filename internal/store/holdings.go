package store

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/ats/internal/domain"
)

// HoldingsRepository recomputes a trader's authoritative open positions by
// replaying its FILLED order history — the cold-start answer to "what do we
// hold" never trusts an in-memory cache across a restart (spec.md §9).
type HoldingsRepository struct {
	trades *TradeRepository
	log    zerolog.Logger
}

func NewHoldingsRepository(trades *TradeRepository, log zerolog.Logger) *HoldingsRepository {
	return &HoldingsRepository{trades: trades, log: log.With().Str("repo", "holdings").Logger()}
}

// dustThreshold below this coin quantity a position is considered fully closed;
// floating-point replay of partial fills never lands on exactly zero.
const dustThreshold = 1e-9

// Reconstruct replays every order for traderName and returns the symbols
// still open, with size, blended average entry price and buy count restored
// exactly as trading_engine.py's add-buy bookkeeping would have left them.
func (r *HoldingsRepository) Reconstruct(traderName string) (map[string]domain.Position, error) {
	symbols, err := r.trades.SymbolsTraded(traderName)
	if err != nil {
		return nil, fmt.Errorf("list traded symbols: %w", err)
	}

	open := make(map[string]domain.Position)
	for _, symbol := range symbols {
		orders, err := r.trades.OrdersFor(traderName, symbol)
		if err != nil {
			return nil, fmt.Errorf("replay orders for %s: %w", symbol, err)
		}

		var pos domain.Position
		pos.TraderName = traderName
		pos.Symbol = symbol

		for _, o := range orders {
			if o.Status == domain.OrderFailed {
				continue
			}
			switch o.Side {
			case domain.SideBuy:
				if pos.Size <= dustThreshold {
					pos.AvgEntryPrice = o.AvgPrice
					pos.Size = o.FilledQty
					pos.BuyCount = 1
				} else {
					newSize := pos.Size + o.FilledQty
					pos.AvgEntryPrice = ((pos.AvgEntryPrice * pos.Size) + (o.AvgPrice * o.FilledQty)) / newSize
					pos.Size = newSize
					pos.BuyCount++
				}
			case domain.SideSell:
				pos.Size -= o.FilledQty
				if pos.Size < 0 {
					pos.Size = 0
				}
			}
		}

		if pos.Size > dustThreshold {
			open[symbol] = pos
		}
	}

	r.log.Info().Str("trader", traderName).Int("open_positions", len(open)).Msg("holdings reconstructed")
	return open, nil
}

// roundQty rounds a quantity to 8 decimal places; Reconstruct does not call it.
func roundQty(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}

package engine

import (
	"context"

	"github.com/aristath/ats/internal/domain"
	"github.com/aristath/ats/internal/positionmanager"
)

// managePositions runs §4.3 position management over every open position.
// In panicMode every position is halved via positionmanager.ReduceOnly
// regardless of its own trailing/scale-out state (§4.1c).
func (w *Worker) managePositions(ctx context.Context, trader domain.Trader, params domain.StrategyParams, regime domain.RegimeLabel, panicMode bool) {
	for symbol, pos := range w.positions {
		ticker, err := w.client.GetTicker(ctx, symbol)
		w.sleepBetweenCalls()
		if err != nil {
			w.log.Warn().Err(err).Str("symbol", symbol).Msg("ticker fetch failed, skipping position update")
			continue
		}
		pos.CurrentPrice = ticker.Price
		pos.UnrealPnL = (pos.CurrentPrice - pos.AvgEntryPrice) * pos.Size
		if pos.AvgEntryPrice > 0 {
			pos.UnrealPnLPct = (pos.CurrentPrice - pos.AvgEntryPrice) / pos.AvgEntryPrice * 100
		}

		if panicMode {
			sellQty, updated := positionmanager.ReduceOnly(pos)
			if sellQty > 0 {
				w.sellAndRecord(ctx, trader, symbol, sellQty, regime, "panic_reduce")
			}
			if updated.Size <= 0 {
				delete(w.positions, symbol)
			} else {
				w.positions[symbol] = updated
			}
			continue
		}

		updated, closed, reason := positionmanager.Update(pos, pos.CurrentPrice, regime)
		if closed {
			w.sellAndRecord(ctx, trader, symbol, updated.Size, regime, reason)
			w.settlePosition(trader, updated, reason)
			delete(w.positions, symbol)
			continue
		}

		shouldClose, closeReason := positionmanager.ShouldClose(updated, updated.CurrentPrice, params.ExitThreshold)
		if shouldClose {
			w.sellAndRecord(ctx, trader, symbol, updated.Size, regime, closeReason)
			w.settlePosition(trader, updated, closeReason)
			delete(w.positions, symbol)
			continue
		}

		w.positions[symbol] = updated
	}
}

func (w *Worker) sellAndRecord(ctx context.Context, trader domain.Trader, symbol string, qty float64, regime domain.RegimeLabel, reason string) {
	result := w.executor.ExecuteOrder(ctx, trader, symbol, domain.SideSell, 0, qty, 1, 3)
	action := domain.ActionExit
	reasons := []string{reason}
	if !result.Success {
		reasons = append(reasons, "execution_failed: "+result.Error)
	}
	if err := w.signals.CreateSignal(domain.Signal{
		TraderName: w.traderName, Symbol: symbol, Regime: regime, Action: action, ReasonCodes: reasons,
	}); err != nil {
		w.log.Error().Err(err).Msg("failed to persist exit signal")
	}
}

// settlePosition realizes the position's PnL against the trader's ledger and
// runs the loss-streak bookkeeping that feeds the Runtime Guard and the
// bandit's win/loss update for this position's entry regime.
func (w *Worker) settlePosition(trader domain.Trader, pos domain.Position, reason string) {
	realized := (pos.CurrentPrice - pos.AvgEntryPrice) * pos.Size
	if _, err := w.safety.UpdatePnL(trader.Name, realized); err != nil {
		w.log.Error().Err(err).Msg("failed to report realized pnl to runtime guard")
	}
	win := realized > 0
	regime := pos.EntryRegime
	if regime == "" {
		regime = domain.RegimeRange
	}
	if err := w.bandits.Update(regime, trader.StrategyID, win); err != nil {
		w.log.Error().Err(err).Msg("failed to update bandit state")
	}
	w.log.Info().Str("symbol", pos.Symbol).Float64("realized_krw", realized).Str("reason", reason).Msg("position closed")
}

// Package positionmanager updates open positions every tick: trailing stop,
// scale-out, regime-driven close, stop-hit close and score-decay close
// (§4.1e), grounded on the reference position manager's update loop.
package positionmanager

import (
	"fmt"

	"github.com/aristath/ats/internal/domain"
)

const trailingActivationPct = 2.0
const trailingLockInMultiplier = 1.01

// Update applies one tick's price to a position: refreshes unrealized PnL,
// trailing stop, scale-out, and closes it if CHOP-drawdown or stop-hit apply.
// The caller is responsible for persisting the returned position and, when
// closed, submitting the corresponding SELL order.
func Update(pos domain.Position, currentPrice float64, regime domain.RegimeLabel) (updated domain.Position, closed bool, closeReason string) {
	if currentPrice <= 0 || pos.AvgEntryPrice <= 0 {
		return pos, false, ""
	}

	pos.CurrentPrice = currentPrice
	pos.UnrealPnL = (currentPrice - pos.AvgEntryPrice) * pos.Size
	pos.UnrealPnLPct = (currentPrice/pos.AvgEntryPrice - 1) * 100

	if pos.UnrealPnLPct > trailingActivationPct {
		newStop := pos.AvgEntryPrice * trailingLockInMultiplier
		if newStop > pos.StopPrice {
			pos.StopPrice = newStop
		}
	}

	if pos.UnrealPnLPct > 0 {
		switch {
		case currentPrice >= pos.TakePrices[0] && !pos.ScaleOut1Done:
			pos.ScaleOut1Done = true
			pos.Size = pos.Size * 2 / 3
		case currentPrice >= pos.TakePrices[1] && !pos.ScaleOut2Done:
			pos.ScaleOut2Done = true
			pos.Size = pos.Size * 1 / 3
		}
	}

	if regime == domain.RegimeChop && pos.UnrealPnLPct < -1.0 {
		return pos, true, "CHOP regime drawdown"
	}

	if pos.StopPrice > 0 && currentPrice <= pos.StopPrice {
		return pos, true, "stop hit"
	}

	return pos, false, ""
}

// ShouldClose applies the score-decay exit rule: once a position's entry
// score falls below the strategy's exit_threshold, or price has reached the
// (possibly trailed) stop, it should be closed.
func ShouldClose(pos domain.Position, currentPrice, exitThreshold float64) (shouldClose bool, reason string) {
	if pos.EntryScore < exitThreshold {
		return true, fmt.Sprintf("score decay (%.1f < %.1f)", pos.EntryScore, exitThreshold)
	}
	if pos.StopPrice > 0 && currentPrice <= pos.StopPrice {
		return true, fmt.Sprintf("stop hit (%.0f <= %.0f)", currentPrice, pos.StopPrice)
	}
	return false, ""
}

// ReduceOnly halves every open position's size for the PANIC branch (§4.1c):
// "SELL 50% of size at market; remaining position stays open." It returns
// the sell quantity and the position with its size decremented.
func ReduceOnly(pos domain.Position) (sellQty float64, updated domain.Position) {
	sellQty = pos.Size * 0.5
	pos.Size -= sellQty
	return sellQty, pos
}

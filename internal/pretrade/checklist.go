// Package pretrade implements the six-point pre-trade checklist (§4.4): every
// rule must pass before an entry order is sized and submitted.
package pretrade

import "github.com/aristath/ats/internal/domain"

const defaultMaxLiquidityRatio = 0.30

// Inputs is everything the checklist needs to evaluate one candidate entry.
type Inputs struct {
	BaseScore          float64
	EntryThreshold     float64
	Regime             domain.RegimeLabel
	ExpectedOrderKRW   float64
	Top5DepthKRW       float64
	MaxLiquidityRatio  float64 // 0 means use defaultMaxLiquidityRatio
	RemainingBudgetKRW float64
	PerTradeRiskKRW    float64
	HasExistingPosition bool
	IsAddBuy           bool
	ExchangeHealthy    bool
}

// Result holds the ordered list of failure reasons; empty means the
// checklist passed.
type Result struct {
	Passed  bool
	Reasons []string
}

// Check evaluates all six rules in order and collects every failure reason
// (not just the first), matching the spec's "return the ordered list of
// reasons" contract.
func Check(in Inputs) Result {
	var reasons []string

	if in.BaseScore < in.EntryThreshold {
		reasons = append(reasons, "base_score below entry_threshold")
	}

	if in.Regime == domain.RegimePanic || in.Regime == domain.RegimeChop {
		reasons = append(reasons, "regime "+string(in.Regime)+" blocks entry")
	}

	maxRatio := in.MaxLiquidityRatio
	if maxRatio == 0 {
		maxRatio = defaultMaxLiquidityRatio
	}
	if in.Top5DepthKRW <= 0 {
		reasons = append(reasons, "zero top5 depth")
	} else if in.ExpectedOrderKRW/in.Top5DepthKRW > maxRatio {
		reasons = append(reasons, "order size exceeds liquidity ratio")
	}

	if in.RemainingBudgetKRW < in.PerTradeRiskKRW {
		reasons = append(reasons, "remaining budget below per-trade risk")
	}

	if in.HasExistingPosition && !in.IsAddBuy {
		reasons = append(reasons, "existing same-symbol position")
	}

	if !in.ExchangeHealthy {
		reasons = append(reasons, "exchange API unhealthy")
	}

	return Result{Passed: len(reasons) == 0, Reasons: reasons}
}

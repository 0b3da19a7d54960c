package engine

import (
	"encoding/json"

	"github.com/aristath/ats/internal/domain"
)

// defaultParams returns the built-in per-strategy defaults that loadParams
// overlays an active ConfigVersion's overrides onto — a strategy with no
// activated version yet still trades on these. Score thresholds are on the
// same [0,100] scale as base_score.
func defaultParams() domain.StrategyParams {
	return domain.StrategyParams{
		EntryThreshold:   62,
		ExitThreshold:    35,
		RiskPerTrade:     0.01,
		MaxPortfolioRisk: 0.06,
		SlippageLimit:    0.003,
		AllowAddBuy:      true,
		MaxAddCount:      2,
		AddPositionRatio: 0.5,
		AddMinBaseScore:  70,
	}
}

// loadParams fetches strategyID's active ConfigVersion, if any, and overlays
// its params_json onto defaultParams(). A missing active version (or any
// other lookup failure, per §7's "config read failure: reuse last-good
// config") is not fatal; the strategy simply runs on the built-in defaults.
func loadParams(configs ConfigStore, strategyID string) (domain.StrategyParams, error) {
	params := defaultParams()

	active, err := configs.Active(strategyID)
	if err != nil {
		return params, nil
	}
	if err := json.Unmarshal([]byte(active.ParamsJSON), &params); err != nil {
		return params, err
	}
	return params, nil
}

// Package safety implements the Runtime Guard (§4.6): the trip thresholds
// layered on top of store.SafetyRepository's atomic counter updates, and the
// block/soft-block decisions every worker consults before emitting an
// ENTRY order.
package safety

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/ats/internal/domain"
	"github.com/aristath/ats/internal/store"
)

const (
	slippageAnomalyTripCount = 3
	apiErrorBlockCount       = 5
	apiErrorSoftBlockCount   = 3
	dbErrorBlockCount        = 3
	dbErrorSoftBlockCount    = 2
)

// SlippageAnomalyThreshold is the |actual-expected|/expected fraction that
// counts as an anomalous fill.
const SlippageAnomalyThreshold = 0.005

// Guard wraps the safety repository with trip-threshold evaluation.
type Guard struct {
	repo *store.SafetyRepository
	log  zerolog.Logger
}

func NewGuard(repo *store.SafetyRepository, log zerolog.Logger) *Guard {
	return &Guard{repo: repo, log: log.With().Str("component", "runtime_guard").Logger()}
}

// Decision is what a worker should do before emitting an ENTRY signal.
type Decision struct {
	Blocked     bool // hard block: no ENTRY or EXIT safety-wise (trader-level STOP)
	SoftBlocked bool // entries suppressed, exits still allowed
	Reason      string
}

// CheckEntry evaluates whether trader may emit an ENTRY this cycle.
func (g *Guard) CheckEntry(traderName string) (Decision, error) {
	state, err := g.repo.Get(traderName)
	if err != nil {
		return Decision{}, fmt.Errorf("load safety state: %w", err)
	}
	if state.Blocked {
		return Decision{Blocked: true, Reason: state.BlockReason}, nil
	}
	if state.APIErrorCount >= apiErrorSoftBlockCount {
		return Decision{SoftBlocked: true, Reason: "api_error_count soft block"}, nil
	}
	if state.DBErrorCount >= dbErrorSoftBlockCount {
		return Decision{SoftBlocked: true, Reason: "db_error_count soft block"}, nil
	}
	return Decision{}, nil
}

// RecordLoss updates daily loss / consecutive-loss counters after a closed
// trade's realized PnL and trips a block if either limit is exceeded.
func (g *Guard) RecordLoss(trader domain.Trader, realizedKRW float64, dailyLossLimitPct float64, consecutiveLossLimit int) error {
	state, err := g.repo.UpdatePnL(trader.Name, realizedKRW)
	if err != nil {
		return fmt.Errorf("update pnl: %w", err)
	}

	lossLimitKRW := trader.SeedKRW * dailyLossLimitPct
	if state.DailyLossKRW >= lossLimitKRW || state.ConsecutiveLosses >= consecutiveLossLimit {
		reason := fmt.Sprintf("daily_loss_krw=%.0f consecutive_losses=%d", state.DailyLossKRW, state.ConsecutiveLosses)
		if err := g.repo.Block(trader.Name, "Loss limit: "+reason); err != nil {
			return fmt.Errorf("block trader: %w", err)
		}
	}
	return nil
}

// RecordSlippage registers one fill's slippage and trips a block at the
// anomaly count threshold.
func (g *Guard) RecordSlippage(traderName string, expected, actual float64) error {
	if expected == 0 {
		return nil
	}
	diff := actual - expected
	if diff < 0 {
		diff = -diff
	}
	if diff/expected <= SlippageAnomalyThreshold {
		return nil
	}
	count, err := g.repo.IncrementSlippageAnomaly(traderName)
	if err != nil {
		return fmt.Errorf("increment slippage anomaly: %w", err)
	}
	if count >= slippageAnomalyTripCount {
		if err := g.repo.Block(traderName, "Slippage anomaly threshold exceeded"); err != nil {
			return fmt.Errorf("block trader: %w", err)
		}
	}
	return nil
}

// RecordAPIError registers one API failure and hard-blocks at the count
// threshold (soft-block is evaluated live in CheckEntry).
func (g *Guard) RecordAPIError(traderName string) error {
	count, err := g.repo.IncrementAPIError(traderName)
	if err != nil {
		return fmt.Errorf("increment api error: %w", err)
	}
	if count >= apiErrorBlockCount {
		return g.repo.Block(traderName, "API error count threshold exceeded")
	}
	return nil
}

// RecordDBError registers one DB failure and hard-blocks at the count
// threshold.
func (g *Guard) RecordDBError(traderName string) error {
	count, err := g.repo.IncrementDBError(traderName)
	if err != nil {
		return fmt.Errorf("increment db error: %w", err)
	}
	if count >= dbErrorBlockCount {
		return g.repo.Block(traderName, "DB error count threshold exceeded")
	}
	return nil
}

// RecordPanicObserved hard-blocks a trader immediately the first time its
// regime classification comes back PANIC this episode.
func (g *Guard) RecordPanicObserved(traderName string) error {
	state, err := g.repo.Get(traderName)
	if err != nil {
		return fmt.Errorf("load safety state: %w", err)
	}
	if state.Blocked {
		return nil
	}
	g.log.Warn().Str("trader", traderName).Msg("PANIC regime observed, blocking trader")
	return g.repo.Block(traderName, "PANIC regime observed")
}

// Reset clears a trader's counters and block flag (admin endpoint only).
func (g *Guard) Reset(traderName string) error {
	return g.repo.ResetAll(traderName)
}

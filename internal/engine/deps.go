package engine

import (
	"github.com/aristath/ats/internal/domain"
	"github.com/aristath/ats/internal/safety"
)

// The interfaces below are the Worker's only view of the Control Store: per
// §5, a worker is an isolated OS process with no shared memory, so every one
// of these calls crosses the Control Store's RPC surface (§6) in production,
// via internal/csclient. Tests inject their own fakes directly (§9 design
// notes: "construct once at startup, thread through... tests then inject
// their own").

// TraderStore is the subset of trader admin operations a worker needs.
type TraderStore interface {
	GetByName(name string) (domain.Trader, error)
	Heartbeat(name string) error
}

// RegimeStore gives a worker the current regime for the market it gates on.
type RegimeStore interface {
	Latest(market string) (domain.RegimeSnapshot, error)
}

// BanditStore resolves and updates the Thompson-sampled weight for a
// (regime, strategy) pair. Weight already folds in EnsureSeeded + sampling,
// matching GET /api/regimes/weight/{label}/{strategy} (§4.2, §6).
type BanditStore interface {
	Weight(label domain.RegimeLabel, strategyID string) (float64, error)
	Update(label domain.RegimeLabel, strategyID string, win bool) error
}

// ConfigStore resolves a strategy's active parameter overrides.
type ConfigStore interface {
	Active(strategyID string) (domain.ConfigVersion, error)
}

// SignalStore appends Signal rows.
type SignalStore interface {
	CreateSignal(s domain.Signal) error
}

// HoldingsStore reconstructs open positions from the FILLED order ledger —
// the authoritative cold-start answer to "what is currently held" (§9).
type HoldingsStore interface {
	Reconstruct(traderName string) (map[string]domain.Position, error)
}

// SafetyReporter is the Runtime Guard's worker-facing surface (§4.6): report
// adverse events, consult the current block decision before entries.
type SafetyReporter interface {
	UpdatePnL(traderName string, realizedKRW float64) (domain.TraderSafetyState, error)
	ReportSlippage(traderName string, expected, actual float64) error
	ReportAPIError(traderName string) error
	ReportDBError(traderName string) error
	ReportPanic(traderName string) error
	CheckEntry(traderName string) (safety.Decision, error)
}

// EventStore appends diagnostic event rows (heartbeat narration, loop errors).
type EventStore interface {
	Create(e domain.Event) (int64, error)
}

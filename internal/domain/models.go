// Package domain holds the entity types persisted by the Control Store, shared
// across every process in the fleet (§3 of the trading platform specification).
package domain

import "time"

// RiskMode is a trader's risk-tolerance profile, applied as a final-score multiplier.
type RiskMode string

const (
	RiskSafe     RiskMode = "SAFE"
	RiskStandard RiskMode = "STANDARD"
	RiskProfit   RiskMode = "PROFIT"
	RiskCrazy    RiskMode = "CRAZY"
)

// Multiplier returns the final-score multiplier for a risk mode (§4.1f).
func (m RiskMode) Multiplier() float64 {
	switch m {
	case RiskSafe:
		return 0.3
	case RiskStandard:
		return 0.5
	case RiskProfit:
		return 0.7
	case RiskCrazy:
		return 1.0
	default:
		return 0.5
	}
}

// RunMode distinguishes simulated from real-capital execution.
type RunMode string

const (
	RunPaper RunMode = "PAPER"
	RunLive  RunMode = "LIVE"
)

// TraderStatus is the lifecycle status of a trader's process.
type TraderStatus string

const (
	StatusStop  TraderStatus = "STOP"
	StatusRun   TraderStatus = "RUN"
	StatusError TraderStatus = "ERROR"
)

// Trader is one configured strategy worker (§3).
type Trader struct {
	ID              int64
	Name            string
	StrategyID      string
	RiskMode        RiskMode
	RunMode         RunMode
	SeedKRW         float64
	CredentialName  string
	Status          TraderStatus
	PaperStartedAt  time.Time
	ArmedAt         *time.Time
	LastHeartbeatAt *time.Time
	RealizedPnLKRW  float64
	CreatedAt       time.Time
}

// CanGoLive reports whether the trader satisfies the LIVE invariant: armed and
// past the paper-protection window (spec.md §3, §8 invariant 1).
func (t Trader) CanGoLive(now time.Time, protect time.Duration) bool {
	if t.ArmedAt == nil {
		return false
	}
	return !now.Before(t.PaperStartedAt.Add(protect))
}

// PaperProtectRemaining returns the remaining paper-protection duration, floored at 0.
func (t Trader) PaperProtectRemaining(now time.Time, protect time.Duration) time.Duration {
	remaining := t.PaperStartedAt.Add(protect).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Credential is an opaque label mapped to an encrypted (access, secret) key pair.
// Rotation always creates a new row; existing rows are never mutated in place.
type Credential struct {
	ID                 int64
	Name               string
	EncryptedAccessKey string
	EncryptedSecretKey string
	NonceAccess        string
	NonceSecret        string
	CreatedAt          time.Time
}

// RegimeLabel is the classifier's categorical market-state output (§4.2).
type RegimeLabel string

const (
	RegimeTrend             RegimeLabel = "TREND"
	RegimeRange             RegimeLabel = "RANGE"
	RegimeChop              RegimeLabel = "CHOP"
	RegimePanic             RegimeLabel = "PANIC"
	RegimeBreakoutRotation  RegimeLabel = "BREAKOUT_ROTATION"
)

// AllRegimeLabels enumerates the five regimes, used to seed BanditState rows.
var AllRegimeLabels = []RegimeLabel{RegimeTrend, RegimeRange, RegimeChop, RegimePanic, RegimeBreakoutRotation}

// RegimeSnapshot is an immutable, append-only classification of market state.
type RegimeSnapshot struct {
	ID         int64
	Market     string
	Timestamp  time.Time
	RegimeID   int64
	Label      RegimeLabel
	Confidence float64
	MetricsJSON string
}

// BanditState holds the Beta-distribution posterior for one (regime, strategy) pair.
type BanditState struct {
	RegimeLabel RegimeLabel
	StrategyID  string
	Alpha       float64
	Beta        float64
	UpdatedAt   time.Time
}

// ModelStatus is the model-lifecycle state (§4.7).
type ModelStatus string

const (
	ModelDraft         ModelStatus = "DRAFT"
	ModelValidated     ModelStatus = "VALIDATED"
	ModelPaperDeployed ModelStatus = "PAPER_DEPLOYED"
	ModelLiveEligible  ModelStatus = "LIVE_ELIGIBLE"
	ModelLiveArmed     ModelStatus = "LIVE_ARMED"
)

// ModelVersion is one trained model and its lifecycle state.
type ModelVersion struct {
	ID              int64
	StrategyID      string
	Status          ModelStatus
	MetricsJSON     string
	CreatedAt       time.Time
	DeployedAt      *time.Time
	RolledBackAt    *time.Time
	RollbackReason  string
}

// TraderSafetyState is the Runtime Guard's per-trader rolling counters (§4.6).
type TraderSafetyState struct {
	TraderName           string
	DailyLossKRW         float64
	ConsecutiveLosses    int
	SlippageAnomalyCount int
	APIErrorCount        int
	DBErrorCount         int
	Blocked              bool
	BlockReason          string
	UpdatedAt            time.Time
}

// SignalAction is the action a scoring cycle decided on.
type SignalAction string

const (
	ActionEntry SignalAction = "ENTRY"
	ActionExit  SignalAction = "EXIT"
)

// Signal records a trading decision, independent of whether an order followed.
type Signal struct {
	ID          int64
	TraderName  string
	Symbol      string
	TotalScore  float64
	ScoresJSON  string
	Regime      RegimeLabel
	Action      SignalAction
	ReasonCodes []string
	CreatedAt   time.Time
}

// OrderSide is BUY or SELL.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderStatus is the terminal state an order settled in.
type OrderStatus string

const (
	OrderFilled   OrderStatus = "FILLED"
	OrderPartial  OrderStatus = "PARTIAL"
	OrderFailed   OrderStatus = "FAILED"
)

// Order is one submitted (and, for FILLED/PARTIAL, executed) order.
type Order struct {
	ID         int64
	TraderName string
	OrderID    string
	Symbol     string
	Side       OrderSide
	Price      float64
	Size       float64
	Status     OrderStatus
	FilledQty  float64
	AvgPrice   float64
	CreatedAt  time.Time
}

// Position is a derived, in-memory view of a trader's open holding in a symbol;
// the authoritative answer to "is this held" always comes from the order ledger
// (store.HoldingsRepository.Reconstruct), not this struct (§9 cold-start resolution).
type Position struct {
	TraderName     string
	Symbol         string
	Size           float64
	AvgEntryPrice  float64
	StopPrice      float64
	TakePrices     [3]float64
	ScaleOut1Done  bool
	ScaleOut2Done  bool
	EntryScore     float64
	EntryRegime    RegimeLabel
	BuyCount       int
	CurrentPrice   float64
	UnrealPnL      float64
	UnrealPnLPct   float64
}

// ConfigVersion is one versioned set of strategy parameters; exactly one version
// per strategy_id may be active at a time (§3, enforced in store.ConfigRepository).
type ConfigVersion struct {
	ID         int64
	StrategyID string
	Version    int
	ParamsJSON string
	IsActive   bool
	CreatedAt  time.Time
}

// StrategyParams is the decoded, merged view of a ConfigVersion's params_json
// plus built-in per-strategy defaults (§4.1a).
type StrategyParams struct {
	EntryThreshold   float64 `json:"entry_threshold"`
	ExitThreshold    float64 `json:"exit_threshold"`
	RiskPerTrade     float64 `json:"risk_per_trade"`
	MaxPortfolioRisk float64 `json:"max_portfolio_risk"`
	SlippageLimit    float64 `json:"slippage_limit"`
	AllowAddBuy      bool    `json:"allow_add_buy"`
	MaxAddCount      int     `json:"max_add_count"`
	AddPositionRatio float64 `json:"add_position_ratio"`
	AddMinBaseScore  float64 `json:"add_min_base_score"`
}

// ScanRun is one training-time batch of feature snapshots for a strategy.
type ScanRun struct {
	ID         int64
	StrategyID string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// FeatureSnapshot carries one labeled (or not-yet-labeled) training example.
type FeatureSnapshot struct {
	ID          int64
	ScanRunID   int64
	Symbol      string
	FeaturesJSON string
	Ret60m      *float64
	Ret240m     *float64
	MFE240m     *float64
	MAE240m     *float64
	DD240m      *float64
	CreatedAt   time.Time
}

// ModelBaseline is a pinned reference window used for drift detection.
type ModelBaseline struct {
	StrategyID      string
	WindowDays      int
	Sharpe          float64
	MeanReturn      float64
	DriftWarnCount  int
	PinnedAt        time.Time
}

// ModelMetrics24h is a rolling 24h metrics record for a deployed model.
type ModelMetrics24h struct {
	ModelID       int64
	NetReturn24h  float64
	Sharpe        float64
	RecordedAt    time.Time
}

// ModelCandidate is one trainer trial's parameters and resulting score (§4.8).
type ModelCandidate struct {
	ID         int64
	StrategyID string
	TrialIndex int
	ParamsJSON string
	Score      float64
	GateStatus string
	CreatedAt  time.Time
}

// Event is an operational log entry surfaced to operators/messenger.
type Event struct {
	ID         int64
	TraderName string
	Level      string // INFO, WARN, ERROR, CRITICAL
	Kind       string
	Message    string
	CreatedAt  time.Time
}

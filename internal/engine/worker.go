// Package engine runs one trader worker's decision loop (§4.1): screen the
// universe, score candidates against the active regime and bandit weights,
// gate and size entries through the pre-trade checklist, manage open
// positions, and persist every signal and order to the ledger.
package engine

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ats/internal/domain"
	"github.com/aristath/ats/internal/gateway"
	"github.com/aristath/ats/internal/indicators"
	"github.com/aristath/ats/internal/regimeengine"
	"github.com/aristath/ats/internal/scoring"
	"github.com/aristath/ats/internal/screener"
)

const (
	candleUnit        = "minutes/60"
	candleCount       = 200
	topNScored        = 10
	btcMarket         = "KRW-BTC"
	defaultBaseWeight = 1.0
)

// Worker owns one trader's decision loop. cmd/trader builds it once with New
// and does not rebuild it when the trader's strategy_id, risk_mode or
// run_mode change. RunOnce re-reads the trader row every iteration, so such a
// change takes effect on the next iteration, while the in-process position
// map and scoring aggregator (EMA history, add-buy counts) carry over.
//
// Every store-shaped field is an interface (deps.go): a worker is an
// isolated process with no shared memory (§5), so in production each call
// crosses the Control Store's RPC surface via internal/csclient. Tests
// inject their own fakes directly.
type Worker struct {
	traderName string
	callDelay  time.Duration

	client   *gateway.Client
	screen   *screener.Screener
	executor *gateway.Executor
	agg      *scoring.Aggregator

	traders  TraderStore
	signals  SignalStore
	holdings HoldingsStore
	regimes  RegimeStore
	bandits  BanditStore
	configs  ConfigStore
	safety   SafetyReporter
	events   EventStore

	positions map[string]domain.Position

	log zerolog.Logger
}

// Config wires a Worker's dependencies; every field is required except
// CallDelay, which defaults to 140ms when zero or negative.
type Config struct {
	TraderName string
	CallDelay  time.Duration

	Client   *gateway.Client
	Screener *screener.Screener
	Executor *gateway.Executor

	Traders  TraderStore
	Signals  SignalStore
	Holdings HoldingsStore
	Regimes  RegimeStore
	Bandits  BanditStore
	Configs  ConfigStore
	Safety   SafetyReporter
	Events   EventStore

	Log zerolog.Logger
}

// New builds a Worker and reconstructs its in-memory position map from the
// order ledger, resolving the §9 cold-start ambiguity from the authoritative
// source of truth rather than assuming no positions are open.
func New(cfg Config) (*Worker, error) {
	positions, err := cfg.Holdings.Reconstruct(cfg.TraderName)
	if err != nil {
		return nil, err
	}

	callDelay := cfg.CallDelay
	if callDelay <= 0 {
		callDelay = 140 * time.Millisecond
	}

	return &Worker{
		traderName: cfg.TraderName,
		callDelay:  callDelay,
		client:     cfg.Client,
		screen:     cfg.Screener,
		executor:   cfg.Executor,
		agg:        scoring.NewAggregator(scoring.DefaultWeights),
		traders:    cfg.Traders,
		signals:    cfg.Signals,
		holdings:   cfg.Holdings,
		regimes:    cfg.Regimes,
		bandits:    cfg.Bandits,
		configs:    cfg.Configs,
		safety:     cfg.Safety,
		events:     cfg.Events,
		positions:  positions,
		log:        cfg.Log.With().Str("component", "engine").Str("trader", cfg.TraderName).Logger(),
	}, nil
}

func (w *Worker) logEvent(level, kind, msg string) {
	if _, err := w.events.Create(domain.Event{
		TraderName: w.traderName, Level: level, Kind: kind, Message: msg,
	}); err != nil {
		w.log.Error().Err(err).Msg("failed to persist event")
	}
}

func (w *Worker) sleepBetweenCalls() {
	time.Sleep(w.callDelay)
}

func closesOf(candles []indicators.Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

func regimeGate(label domain.RegimeLabel, confidence float64) float64 {
	return regimeengine.RegimeWeight(label, confidence, defaultBaseWeight)
}

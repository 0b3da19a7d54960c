package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/ats/internal/domain"
	"github.com/aristath/ats/internal/gateway"
	"github.com/aristath/ats/internal/indicators"
	"github.com/aristath/ats/internal/pretrade"
	"github.com/aristath/ats/internal/screener"
	"github.com/aristath/ats/internal/scoring"
	"github.com/aristath/ats/internal/sizer"
)

// Run executes the periodic decision loop until ctx is canceled. Cadence
// discipline (§4.1): iterations never overlap; the next one starts interval
// after the previous one started, or one second after it returned when it
// ran longer than interval - 1s. A panic inside an iteration is recovered
// at the loop boundary and reported like any other iteration error.
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		err := func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("decision loop panic: %v", p)
				}
			}()
			return w.RunOnce(ctx)
		}()
		if err != nil {
			w.log.Error().Err(err).Msg("decision loop iteration failed")
			w.logEvent("ERROR", "loop_error", err.Error())
		}

		elapsed := time.Since(start)
		sleep := interval - elapsed
		if sleep < time.Second {
			sleep = time.Second
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// RunOnce runs one full pass of the §4.1 decision loop: (a) load config,
// (b) gating weights, (c) PANIC short-circuit, (d) screen, (e) score,
// (f) aggregate, (g) entry gate, (h) position management, (i) heartbeat.
func (w *Worker) RunOnce(ctx context.Context) error {
	// (a) load trader identity and merged strategy params.
	trader, err := w.traders.GetByName(w.traderName)
	if err != nil {
		return fmt.Errorf("load trader: %w", err)
	}
	if trader.Status == domain.StatusStop {
		w.log.Debug().Msg("trader stopped, skipping iteration")
		return nil
	}

	params, err := loadParams(w.configs, trader.StrategyID)
	if err != nil {
		return fmt.Errorf("load strategy params: %w", err)
	}

	// (b) fetch the most recent regime snapshot and compute gating weights.
	regimeSnap, err := w.regimes.Latest(btcMarket)
	if err != nil {
		return fmt.Errorf("load regime snapshot: %w", err)
	}
	rWeight := regimeGate(regimeSnap.Label, regimeSnap.Confidence)

	bWeight, err := w.bandits.Weight(regimeSnap.Label, trader.StrategyID)
	if err != nil {
		return fmt.Errorf("load bandit weight: %w", err)
	}
	riskMult := trader.RiskMode.Multiplier()

	// (c) PANIC: skip the entry phase entirely, go straight to reduce-only
	// position management, and trip the Runtime Guard once per episode.
	if regimeSnap.Label == domain.RegimePanic {
		w.log.Warn().Msg("PANIC regime: entry phase skipped, reducing positions")
		if err := w.safety.ReportPanic(w.traderName); err != nil {
			w.log.Error().Err(err).Msg("failed to report PANIC to runtime guard")
		}
		w.managePositions(ctx, trader, params, regimeSnap.Label, true)
		w.heartbeat()
		return nil
	}

	guardDecision, err := w.safety.CheckEntry(w.traderName)
	if err != nil {
		return fmt.Errorf("check runtime guard: %w", err)
	}
	if guardDecision.Blocked {
		w.log.Warn().Str("reason", guardDecision.Reason).Msg("runtime guard hard block: entry phase skipped")
		w.managePositions(ctx, trader, params, regimeSnap.Label, false)
		w.heartbeat()
		return nil
	}

	// (d) screen the universe.
	candidates, err := w.screen.Screen(ctx, screener.DefaultParams)
	if err != nil {
		if reportErr := w.safety.ReportAPIError(w.traderName); reportErr != nil {
			w.log.Error().Err(reportErr).Msg("failed to report API error to runtime guard")
		}
		return fmt.Errorf("screen universe: %w", err)
	}

	btcCloses, err := w.fetchCloses(ctx, btcMarket)
	if err != nil {
		w.log.Warn().Err(err).Msg("failed to fetch BTC closes for leader/follower score")
	}

	// (e)+(f) score and aggregate each candidate.
	type scored struct {
		candidate screener.Candidate
		base      float64
		final     float64
	}
	results := make([]scored, 0, len(candidates))
	for _, cand := range candidates {
		candles, err := w.client.GetCandles(ctx, cand.Symbol, candleUnit, candleCount)
		w.sleepBetweenCalls()
		if err != nil {
			w.log.Warn().Err(err).Str("symbol", cand.Symbol).Msg("candle fetch failed, skipping candidate")
			continue
		}
		closes := closesOf(candles)

		tp, _ := scoring.TrendPullback(closes)
		vcb, _ := scoring.VolatilityContractionBreakout(closes)
		lsr, _ := scoring.LiquiditySweepReversal(candles)
		lf, _ := scoring.LeaderFollower(closes, btcCloses)
		regimeMod := scoring.RegimeModifier(string(regimeSnap.Label), regimeSnap.Confidence)

		agg := w.agg.Aggregate(cand.Symbol, map[string]float64{
			"tp": tp, "vcb": vcb, "regime": regimeMod, "lsr": lsr, "lf": lf,
		})
		final := scoring.FinalScore(agg.SmoothedScore, rWeight, bWeight, riskMult)
		results = append(results, scored{candidate: cand, base: agg.SmoothedScore, final: final})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].final > results[j].final })
	if len(results) > topNScored {
		results = results[:topNScored]
	}

	// (g) entry gate. DB holdings are the authoritative "is this symbol
	// held" answer (§9); add-buy additionally requires the in-memory
	// position record to agree, resolving the cold-start ambiguity.
	dbHoldings, err := w.holdings.Reconstruct(w.traderName)
	if err != nil {
		return fmt.Errorf("reconstruct holdings: %w", err)
	}

	equity := trader.SeedKRW + trader.RealizedPnLKRW
	usedKRW := 0.0
	openRiskKRW := 0.0
	for _, pos := range w.positions {
		usedKRW += pos.Size * pos.CurrentPrice
		riskPerUnit := pos.AvgEntryPrice - pos.StopPrice
		if riskPerUnit < 0 {
			riskPerUnit = -riskPerUnit
		}
		openRiskKRW += pos.Size * riskPerUnit
	}
	openRiskFraction := 0.0
	if equity > 0 {
		openRiskFraction = openRiskKRW / equity
	}

	for _, r := range results {
		if guardDecision.SoftBlocked {
			if err := w.signals.CreateSignal(domain.Signal{
				TraderName: w.traderName, Symbol: r.candidate.Symbol, TotalScore: r.final,
				Regime: regimeSnap.Label, Action: domain.ActionEntry, ReasonCodes: []string{"runtime guard soft block: " + guardDecision.Reason},
			}); err != nil {
				w.log.Error().Err(err).Msg("failed to persist soft-blocked signal")
			}
			continue
		}

		_, heldInDB := dbHoldings[r.candidate.Symbol]
		existing, heldInMemory := w.positions[r.candidate.Symbol]
		hasPosition := heldInDB || heldInMemory

		if hasPosition && (!heldInDB || !heldInMemory) {
			// Cold-start ambiguity: the two sources disagree. Skip entries
			// for this symbol entirely this cycle rather than guess.
			w.log.Warn().Str("symbol", r.candidate.Symbol).Msg("holdings ambiguity: DB and in-memory disagree, skipping")
			continue
		}

		isAddBuy := hasPosition && params.AllowAddBuy &&
			existing.BuyCount < 1+params.MaxAddCount && r.base >= params.AddMinBaseScore

		if hasPosition && !isAddBuy {
			continue
		}

		ob, err := w.client.GetOrderbook(ctx, r.candidate.Symbol)
		w.sleepBetweenCalls()
		if err != nil {
			w.log.Warn().Err(err).Str("symbol", r.candidate.Symbol).Msg("orderbook fetch failed, skipping candidate")
			continue
		}

		stopPct := 0.02
		if candles, err := w.client.GetCandles(ctx, r.candidate.Symbol, candleUnit, 20); err == nil {
			if atr := indicators.ATRPct(candles, 14); atr > 0 {
				stopPct = atr / 100 * 2
			}
		}
		w.sleepBetweenCalls()
		entryPrice := r.candidate.CurrentPrice
		stopPrice := entryPrice * (1 - stopPct)

		sizeResult := sizer.Size(entryPrice, stopPrice, openRiskFraction, sizer.Params{
			Equity: equity, RiskPerTrade: params.RiskPerTrade, MaxPortfolioRisk: params.MaxPortfolioRisk,
		})
		if isAddBuy {
			sizeResult.ExpectedOrderKRW *= params.AddPositionRatio
		}

		check := pretrade.Check(pretrade.Inputs{
			BaseScore:           r.base,
			EntryThreshold:      params.EntryThreshold,
			Regime:              regimeSnap.Label,
			ExpectedOrderKRW:    sizeResult.ExpectedOrderKRW,
			Top5DepthKRW:        ob.Depth5KRW(),
			RemainingBudgetKRW:  equity - usedKRW,
			PerTradeRiskKRW:     sizeResult.DollarRisk,
			HasExistingPosition: hasPosition,
			IsAddBuy:            isAddBuy,
			ExchangeHealthy:     true,
		})

		action := domain.ActionEntry
		if !check.Passed {
			if err := w.signals.CreateSignal(domain.Signal{
				TraderName: w.traderName, Symbol: r.candidate.Symbol, TotalScore: r.final,
				Regime: regimeSnap.Label, Action: action, ReasonCodes: check.Reasons,
			}); err != nil {
				w.log.Error().Err(err).Msg("failed to persist rejected signal")
			}
			continue
		}

		result := w.executor.ExecuteOrder(ctx, trader, r.candidate.Symbol, domain.SideBuy,
			entryPrice, sizeResult.ExpectedOrderKRW, 1, 3)
		reasons := []string{"checklist_passed"}
		if !result.Success {
			reasons = []string{"execution_failed: " + result.Error}
		}
		if err := w.signals.CreateSignal(domain.Signal{
			TraderName: w.traderName, Symbol: r.candidate.Symbol, TotalScore: r.final,
			Regime: regimeSnap.Label, Action: action, ReasonCodes: reasons,
		}); err != nil {
			w.log.Error().Err(err).Msg("failed to persist accepted signal")
		}
		if result.Success {
			w.checkFillSlippage(entryPrice, result.AvgPrice)
			w.recordEntry(r.candidate.Symbol, result, stopPrice, sizeResult, r.base, regimeSnap.Label, isAddBuy)
			usedKRW += result.FilledQty * result.AvgPrice
		}
	}

	// (h) position management for every remaining position.
	w.managePositions(ctx, trader, params, regimeSnap.Label, false)

	// (i) heartbeat.
	w.heartbeat()
	return nil
}

func (w *Worker) fetchCloses(ctx context.Context, symbol string) ([]float64, error) {
	candles, err := w.client.GetCandles(ctx, symbol, candleUnit, candleCount)
	w.sleepBetweenCalls()
	if err != nil {
		return nil, err
	}
	return closesOf(candles), nil
}

// checkFillSlippage reports a BUY fill's actual-vs-expected deviation to the
// Runtime Guard (§4.6: |actual-expected|/expected > 0.5% is an anomaly).
func (w *Worker) checkFillSlippage(expected, actual float64) {
	if err := w.safety.ReportSlippage(w.traderName, expected, actual); err != nil {
		w.log.Error().Err(err).Msg("failed to report slippage")
	}
}

func (w *Worker) recordEntry(symbol string, result gateway.ExecResult, stopPrice float64, sizeResult sizer.Result, baseScore float64, regime domain.RegimeLabel, wasAdd bool) {
	pos, existed := w.positions[symbol]
	if existed && wasAdd {
		totalSize := pos.Size + result.FilledQty
		pos.AvgEntryPrice = (pos.AvgEntryPrice*pos.Size + result.AvgPrice*result.FilledQty) / totalSize
		pos.Size = totalSize
		pos.BuyCount++
	} else {
		pos = domain.Position{
			TraderName: w.traderName, Symbol: symbol, Size: result.FilledQty,
			AvgEntryPrice: result.AvgPrice, StopPrice: stopPrice, TakePrices: sizeResult.TakePrices,
			EntryScore: baseScore, EntryRegime: regime, BuyCount: 1, CurrentPrice: result.AvgPrice,
		}
	}
	w.positions[symbol] = pos
}

func (w *Worker) heartbeat() {
	if err := w.traders.Heartbeat(w.traderName); err != nil {
		w.log.Error().Err(err).Msg("failed to record heartbeat")
	}
}

package trainer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ats/internal/domain"
	"github.com/aristath/ats/internal/gateway"
	"github.com/aristath/ats/internal/indicators"
	"github.com/aristath/ats/internal/scoring"
	"github.com/aristath/ats/internal/screener"
	"github.com/aristath/ats/internal/store"
)

const candleBars = 200

// Scanner builds labeled training examples for one strategy: a Scan pass
// records the five sub-scores for each screened candidate, and UpdateLabels
// backfills forward-looking outcome labels once enough time has elapsed
// (§4.8's scan / update-labels trainer operations).
type Scanner struct {
	client   *gateway.Client
	screener *screener.Screener
	scan     *store.ScanRepository
	log      zerolog.Logger
}

func NewScanner(client *gateway.Client, scr *screener.Screener, scan *store.ScanRepository, log zerolog.Logger) *Scanner {
	return &Scanner{client: client, screener: scr, scan: scan, log: log.With().Str("component", "trainer_scan").Logger()}
}

// Scan screens the universe, scores each candidate, and persists one
// FeatureSnapshot per candidate under a fresh ScanRun.
func (s *Scanner) Scan(ctx context.Context, strategyID string, regimeLabel string, regimeConfidence float64) (int64, int, error) {
	runID, err := s.scan.StartRun(strategyID)
	if err != nil {
		return 0, 0, fmt.Errorf("start scan run: %w", err)
	}

	candidates, err := s.screener.Screen(ctx, screener.DefaultParams)
	if err != nil {
		return runID, 0, fmt.Errorf("screen universe: %w", err)
	}

	btcCandles, err := s.client.GetCandles(ctx, "KRW-BTC", "minutes/60", candleBars)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to fetch BTC candles for leader-follower scoring")
	}
	btcCloses := closesOf(btcCandles)

	count := 0
	for _, c := range candidates {
		candles, err := s.client.GetCandles(ctx, c.Symbol, "minutes/60", candleBars)
		if err != nil || len(candles) == 0 {
			s.log.Warn().Err(err).Str("symbol", c.Symbol).Msg("failed to fetch candles, skipping candidate")
			continue
		}
		closes := closesOf(candles)

		tp, _ := scoring.TrendPullback(closes)
		vcb, _ := scoring.VolatilityContractionBreakout(closes)
		lsr, _ := scoring.LiquiditySweepReversal(candles)
		lf, _ := scoring.LeaderFollower(closes, btcCloses)
		regime := scoring.RegimeModifier(regimeLabel, regimeConfidence)

		rec := featureRecord{Price: closes[len(closes)-1], TP: tp, VCB: vcb, Regime: regime, LSR: lsr, LF: lf}
		featuresJSON, err := json.Marshal(rec)
		if err != nil {
			continue
		}

		if _, err := s.scan.AddFeatureSnapshot(domain.FeatureSnapshot{
			ScanRunID:    runID,
			Symbol:       c.Symbol,
			FeaturesJSON: string(featuresJSON),
		}); err != nil {
			s.log.Warn().Err(err).Str("symbol", c.Symbol).Msg("failed to persist feature snapshot")
			continue
		}
		count++
	}

	if err := s.scan.FinishRun(runID); err != nil {
		s.log.Warn().Err(err).Int64("run_id", runID).Msg("failed to mark scan run finished")
	}
	return runID, count, nil
}

// UpdateLabels backfills ret_60m/ret_240m/mfe/mae/dd labels for snapshots
// older than minAge, using the price range observed since the snapshot.
func (s *Scanner) UpdateLabels(ctx context.Context, minAge time.Duration) (int, error) {
	pending, err := s.scan.UnlabeledSnapshots(minAge)
	if err != nil {
		return 0, fmt.Errorf("list unlabeled snapshots: %w", err)
	}

	updated := 0
	for _, snap := range pending {
		var rec featureRecord
		if err := json.Unmarshal([]byte(snap.FeaturesJSON), &rec); err != nil || rec.Price == 0 {
			continue
		}

		candles, err := s.client.GetCandles(ctx, snap.Symbol, "minutes/60", 6)
		if err != nil || len(candles) == 0 {
			s.log.Warn().Err(err).Str("symbol", snap.Symbol).Msg("failed to fetch candles for label backfill")
			continue
		}

		entry := rec.Price
		last := candles[len(candles)-1].Close
		ret240m := (last - entry) / entry
		ret60m := ret240m
		if len(candles) >= 2 {
			ret60m = (candles[len(candles)-2].Close - entry) / entry
		}

		var mfe, mae float64
		for _, c := range candles {
			if hi := (c.High - entry) / entry; hi > mfe {
				mfe = hi
			}
			if lo := (c.Low - entry) / entry; lo < mae {
				mae = lo
			}
		}
		dd := mae

		if err := s.scan.UpdateLabels(snap.ID, ret60m, ret240m, mfe, mae, dd); err != nil {
			s.log.Warn().Err(err).Int64("snapshot_id", snap.ID).Msg("failed to update labels")
			continue
		}
		updated++
	}
	return updated, nil
}

func closesOf(candles []indicators.Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

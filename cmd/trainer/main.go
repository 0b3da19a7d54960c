// Command trainer runs the Trainer: a periodic offline loop that drives
// the Control Store's scan, labeling and auto-tuning endpoints for one
// strategy (§4.8). All computation lives in the Control Store process; this
// process only schedules the calls.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ats/internal/config"
	"github.com/aristath/ats/internal/csclient"
	"github.com/aristath/ats/internal/domain"
	"github.com/aristath/ats/pkg/logger"
)

func main() {
	cfg, err := config.LoadTrainerConfig()
	if err != nil {
		panic(err)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: false})
	log.Info().Str("strategy_id", cfg.StrategyID).Msg("starting trainer")

	cs := csclient.New(cfg.APIBase, cfg.APIKey)

	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info().Msg("trainer shutting down")
		cancel()
	}()

	ticker := time.NewTicker(time.Duration(cfg.IntervalSec) * time.Second)
	defer ticker.Stop()

	runCycle(ctx, cs, cfg, log)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("trainer stopped")
			return
		case <-ticker.C:
			runCycle(ctx, cs, cfg, log)
		}
	}
}

func runCycle(ctx context.Context, cs *csclient.Client, cfg config.TrainerConfig, log zerolog.Logger) {
	regime, err := cs.LatestRegime(ctx, "KRW-BTC")
	regimeLabel := string(domain.RegimeRange)
	regimeConfidence := 0.5
	if err == nil {
		regimeLabel = string(regime.Label)
		regimeConfidence = regime.Confidence
	}

	scanResult, err := cs.TrainerScan(ctx, cfg.StrategyID, regimeLabel, regimeConfidence)
	if err != nil {
		log.Error().Err(err).Msg("trainer scan failed")
		return
	}
	log.Info().Int64("run_id", scanResult.RunID).Int64("snapshots", scanResult.SnapshotCount).Msg("scan complete")

	minAge := time.Duration(cfg.LabelMinAgeMin) * time.Minute
	updated, err := cs.TrainerUpdateLabels(ctx, minAge)
	if err != nil {
		log.Error().Err(err).Msg("label update failed")
		return
	}
	log.Info().Int("updated", updated).Msg("labels updated")

	if _, err := cs.TrainerTune(ctx, cfg.StrategyID, cfg.TrialCount); err != nil {
		log.Error().Err(err).Msg("tuning run failed")
		return
	}
	log.Info().Msg("tuning cycle complete")
}

// Command regime runs the Regime Classifier: an isolated process that
// periodically samples market-wide indicators and writes a labeled
// RegimeSnapshot to the Control Store (§4.2).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ats/internal/config"
	"github.com/aristath/ats/internal/csclient"
	"github.com/aristath/ats/internal/domain"
	"github.com/aristath/ats/internal/gateway"
	"github.com/aristath/ats/internal/indicators"
	"github.com/aristath/ats/internal/regimeengine"
	"github.com/aristath/ats/pkg/logger"
)

const (
	btcMarket     = "KRW-BTC"
	adxUnit       = "minutes/240"
	adxBars       = 200
	breadthUnit   = "minutes/60"
	breadthBars   = 24
	whipsawUnit   = "minutes/5"
	whipsawBars   = 100
	whipsawWindow = 5
)

func main() {
	cfg := config.LoadRegimeConfig()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: false})
	log.Info().Msg("starting regime classifier")

	gwClient := gateway.NewClient(gateway.Config{
		BaseURL:    "https://api.upbit.com",
		GroupRPS:   cfg.GroupRPS,
		ChunkSize:  cfg.BatchChunkSize,
		MaxRetries: cfg.APIMaxRetry,
		CallDelay:  140 * time.Millisecond,
	}, log)
	cs := csclient.New(cfg.APIBase, cfg.APIKey)

	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info().Msg("regime classifier shutting down")
		cancel()
	}()

	panicAlerted := false
	ticker := time.NewTicker(time.Duration(cfg.IntervalSec) * time.Second)
	defer ticker.Stop()

	runTick(ctx, gwClient, cs, cfg.BreadthMarkets, log, &panicAlerted)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("regime classifier stopped")
			return
		case <-ticker.C:
			runTick(ctx, gwClient, cs, cfg.BreadthMarkets, log, &panicAlerted)
		}
	}
}

func runTick(ctx context.Context, gw *gateway.Client, cs *csclient.Client, breadthMarkets []string, log zerolog.Logger, panicAlerted *bool) {
	in, err := sampleInputs(ctx, gw, breadthMarkets)
	if err != nil {
		log.Error().Err(err).Msg("failed to sample regime inputs")
		return
	}

	cls := regimeengine.Classify(in)
	metrics := fmt.Sprintf(
		`{"adx":%.4f,"atr_pct":%.4f,"breadth_up":%.4f,"dispersion":%.6f,"top5_share":%.4f,"whipsaw":%.4f}`,
		in.ADX, in.ATRPct, in.BreadthUp, in.Dispersion, in.Top5Share, in.Whipsaw,
	)

	snap := domain.RegimeSnapshot{
		Market:      btcMarket,
		Timestamp:   time.Now(),
		RegimeID:    cls.RegimeID,
		Label:       cls.Label,
		Confidence:  cls.Confidence,
		MetricsJSON: metrics,
	}
	if err := cs.CreateRegimeSnapshot(ctx, snap); err != nil {
		log.Error().Err(err).Msg("failed to persist regime snapshot")
		return
	}
	log.Info().Str("label", string(cls.Label)).Float64("confidence", cls.Confidence).Msg("regime classified")

	if cls.Label == domain.RegimePanic {
		if !*panicAlerted {
			log.Warn().Msg("PANIC regime detected — once-per-episode alert")
			*panicAlerted = true
		}
	} else {
		*panicAlerted = false
	}
}

// sampleInputs gathers the three §4.2 candle fetches and reduces them to the
// classifier's indicator snapshot.
func sampleInputs(ctx context.Context, gw *gateway.Client, breadthMarkets []string) (regimeengine.Inputs, error) {
	adxCandles, err := gw.GetCandles(ctx, btcMarket, adxUnit, adxBars)
	if err != nil {
		return regimeengine.Inputs{}, fmt.Errorf("fetch ADX/ATR candles: %w", err)
	}
	adx := indicators.ADX(adxCandles, 14)
	atrPct := indicators.ATRPct(adxCandles, 14)

	whipsawCandles, err := gw.GetCandles(ctx, btcMarket, whipsawUnit, whipsawBars)
	if err != nil {
		return regimeengine.Inputs{}, fmt.Errorf("fetch whipsaw candles: %w", err)
	}
	whipsaw := indicators.Whipsaw(closesOf(whipsawCandles), whipsawWindow)

	var lastTwo [][2]float64
	var values []indicators.MarketValue
	for _, market := range breadthMarkets {
		candles, err := gw.GetCandles(ctx, market, breadthUnit, breadthBars)
		if err != nil || len(candles) < 2 {
			continue
		}
		prev := candles[len(candles)-2].Close
		curr := candles[len(candles)-1].Close
		lastTwo = append(lastTwo, [2]float64{prev, curr})
		values = append(values, indicators.MarketValue{Market: market, Close: curr, Volume: candles[len(candles)-1].Volume})
	}

	return regimeengine.Inputs{
		ADX:        adx,
		ATRPct:     atrPct,
		BreadthUp:  indicators.BreadthUp(lastTwo),
		Dispersion: indicators.Dispersion(lastTwo),
		Top5Share:  indicators.Top5ValueShare(values),
		Whipsaw:    whipsaw,
	}, nil
}

func closesOf(candles []indicators.Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

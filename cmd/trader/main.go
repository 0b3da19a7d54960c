// Command trader runs a single trader worker: one isolated OS process per
// trader, holding no shared memory with the Control Store or with any other
// trader (§5). Everything it needs — the trader row, active config, regime
// snapshot, bandit weight, credential plaintext — crosses the Control
// Store's RPC surface over HTTP via internal/csclient.
package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/ats/internal/config"
	"github.com/aristath/ats/internal/csclient"
	"github.com/aristath/ats/internal/engine"
	"github.com/aristath/ats/internal/gateway"
	"github.com/aristath/ats/internal/screener"
	"github.com/aristath/ats/pkg/logger"
)

func main() {
	cfg, err := config.LoadTraderConfig()
	if err != nil {
		panic(err)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: false})
	log.Info().Str("trader", cfg.TraderName).Msg("starting trader worker")

	jitter := time.Duration(rand.Intn(cfg.StartupJitterSec+1)) * time.Second
	log.Info().Dur("jitter", jitter).Msg("applying startup jitter")
	time.Sleep(jitter)

	cs := csclient.New(cfg.APIBase, cfg.APIKey)
	store := csclient.NewAdapter(cs)

	trader, err := store.GetByName(cfg.TraderName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to fetch trader row")
	}

	gwClient := gateway.NewClient(gateway.Config{
		BaseURL:    "https://api.upbit.com",
		GroupRPS:   cfg.GroupRPS,
		ChunkSize:  cfg.BatchChunkSize,
		MaxRetries: cfg.APIMaxRetry,
		CallDelay:  time.Duration(cfg.OHLCVCallIntervalMs) * time.Millisecond,
	}, log)
	scr := screener.New(gwClient, log)

	submitter, err := buildSubmitter(context.Background(), cs, trader.CredentialName)
	if err != nil {
		log.Warn().Err(err).Msg("no live submitter available, LIVE-mode orders will fail until a credential is set")
	}
	executor := gateway.NewExecutor(gwClient, store, submitter, log)

	worker, err := engine.New(engine.Config{
		TraderName: cfg.TraderName,
		CallDelay:  time.Duration(cfg.OHLCVCallIntervalMs) * time.Millisecond,
		Client:     gwClient,
		Screener:   scr,
		Executor:   executor,
		Traders:    store,
		Signals:    store,
		Holdings:   store,
		Regimes:    store,
		Bandits:    store,
		Configs:    store,
		Safety:     store,
		Events:     store,
		Log:        log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build trader worker")
	}

	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info().Msg("trader worker shutting down")
		cancel()
	}()

	worker.Run(ctx, time.Duration(cfg.TradingIntervalSec)*time.Second)
	log.Info().Msg("trader worker stopped")
}

// buildSubmitter decrypts the trader's credential and wires a live submitter.
// A trader running PAPER-only for its whole life may never have a credential
// row yet; that is not fatal here since the executor only reaches the
// submitter on a LIVE-mode order.
func buildSubmitter(ctx context.Context, cs *csclient.Client, credentialName string) (gateway.OrderSubmitter, error) {
	if credentialName == "" {
		return nil, nil
	}
	accessKey, secretKey, err := cs.DecryptCredential(ctx, credentialName)
	if err != nil {
		return nil, err
	}
	return gateway.NewUpbitSubmitter("https://api.upbit.com", accessKey, secretKey), nil
}

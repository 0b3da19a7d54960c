// Command controlstore runs the Control Store: the single process that owns
// the SQLite database, enforces the Runtime Guard and model lifecycle, and
// exposes the §6 HTTP surface every other process in the fleet calls.
package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/ats/internal/backup"
	"github.com/aristath/ats/internal/bandit"
	"github.com/aristath/ats/internal/config"
	"github.com/aristath/ats/internal/controlstore"
	"github.com/aristath/ats/internal/crypto"
	"github.com/aristath/ats/internal/database"
	"github.com/aristath/ats/internal/gateway"
	"github.com/aristath/ats/internal/lifecycle"
	"github.com/aristath/ats/internal/safety"
	"github.com/aristath/ats/internal/scheduler"
	"github.com/aristath/ats/internal/screener"
	"github.com/aristath/ats/internal/store"
	"github.com/aristath/ats/internal/trainer"
	"github.com/aristath/ats/pkg/logger"
)

func main() {
	cfg := config.LoadControlStoreConfig()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Msg("starting control store")

	db, err := database.New(database.Config{Path: cfg.DatabaseURL, Profile: database.ProfileLedger})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	box, err := crypto.NewBox(cfg.CryptoMasterKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build credential crypto box")
	}

	traders := store.NewTraderRepository(db.Conn(), log)
	credentials := store.NewCredentialRepository(db.Conn(), log)
	regimes := store.NewRegimeRepository(db.Conn(), log)
	banditStore := store.NewBanditRepository(db.Conn(), log)
	trades := store.NewTradeRepository(db.Conn(), log)
	holdings := store.NewHoldingsRepository(trades, log)
	safetyRepo := store.NewSafetyRepository(db.Conn(), log)
	models := store.NewModelRepository(db.Conn(), log)
	configs := store.NewConfigRepository(db.Conn(), log)
	scan := store.NewScanRepository(db.Conn(), log)
	events := store.NewEventRepository(db.Conn(), log)

	guard := safety.NewGuard(safetyRepo, log)
	sampler := bandit.NewSampler(rand.New(rand.NewSource(time.Now().UnixNano())))
	lc := lifecycle.New(models, scan, traders, safetyRepo, events, log)

	gwClient := gateway.NewClient(gateway.Config{
		BaseURL: "https://api.upbit.com", GroupRPS: 8, ChunkSize: 70, MaxRetries: 4, CallDelay: 140 * time.Millisecond,
	}, log)
	scr := screener.New(gwClient, log)
	scanner := trainer.NewScanner(gwClient, scr, scan, log)
	tuner := trainer.New(scan, nil, log)

	srv := controlstore.New(controlstore.Config{
		Log: log, Port: cfg.Port, DevMode: cfg.DevMode, Safety: cfg.Safety,
		Traders: traders, Credentials: credentials, Regimes: regimes, Bandits: banditStore,
		Trades: trades, Holdings: holdings, SafetyRepo: safetyRepo, Models: models,
		Configs: configs, Scan: scan, Events: events,
		CryptoBox: box, Guard: guard, Sampler: sampler, Lifecycle: lc, Scanner: scanner, Tuner: tuner,
	})

	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	if cfg.BackupBucket != "" {
		uploader, err := backup.NewUploaderWithCredentials(context.Background(), cfg.BackupBucket, cfg.BackupPrefix,
			cfg.BackupEndpoint, cfg.BackupAccessKey, cfg.BackupSecretKey, log)
		if err != nil {
			log.Error().Err(err).Msg("failed to build backup uploader, periodic backups disabled")
		} else {
			job := backup.NewJob(uploader, db.Path(), log)
			schedule := "@every " + itoaMinutes(cfg.BackupEveryMin) + "m"
			if err := sched.AddJob(schedule, job); err != nil {
				log.Error().Err(err).Msg("failed to schedule backup job")
			}
		}
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("control store HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("control store forced to shutdown")
	}
	log.Info().Msg("control store stopped")
}

func itoaMinutes(n int) string {
	if n <= 0 {
		n = 60
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

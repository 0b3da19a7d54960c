// Package config provides environment-variable configuration loading shared by
// every ATS process. Each process (control store, regime classifier, trader
// worker, trainer) loads the common Base and then its own process-specific fields.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Base holds configuration common to every process in the fleet.
type Base struct {
	APIKey          string // shared control-store API key
	DatabaseURL     string // control store's sqlite path
	CryptoMasterKey string // credential-encryption master key
	CORSOrigins     string
	DockerNetwork   string
	LogLevel        string
}

// LoadBase reads the common environment variables, loading .env if present.
func LoadBase() Base {
	_ = godotenv.Load()

	return Base{
		APIKey:          getEnv("API_KEY", ""),
		DatabaseURL:     getEnv("DATABASE_URL", "./data/ats.db"),
		CryptoMasterKey: getEnv("CRYPTO_MASTER_KEY", ""),
		CORSOrigins:     getEnv("CORS_ALLOW_ORIGINS", "*"),
		DockerNetwork:   getEnv("DOCKER_NETWORK", "ats-net"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
}

// TraderConfig holds the environment-derived knobs for a single trader worker process.
type TraderConfig struct {
	Base
	TraderName          string
	APIBase             string
	PaperProtectHours   float64
	TradingIntervalSec  int
	StartupJitterSec    int
	GroupRPS            int
	BatchChunkSize      int
	APIMaxRetry         int
	OHLCVCallIntervalMs int
}

// LoadTraderConfig reads TraderConfig from the environment plus the worker's
// own identity, which the supervisor passes in as TRADER_NAME.
func LoadTraderConfig() (TraderConfig, error) {
	cfg := TraderConfig{
		Base:                LoadBase(),
		TraderName:          getEnv("TRADER_NAME", ""),
		APIBase:             getEnv("DASHBOARD_API_BASE", "http://localhost:8000"),
		PaperProtectHours:   getEnvAsFloat("PAPER_PROTECT_HOURS", 24),
		TradingIntervalSec:  getEnvAsInt("TRADING_INTERVAL_SEC", 300),
		StartupJitterSec:    getEnvAsInt("TRADER_STARTUP_JITTER_SEC", 30),
		GroupRPS:            getEnvAsInt("UPBIT_GROUP_RPS", 8),
		BatchChunkSize:      getEnvAsInt("UPBIT_BATCH_CHUNK_SIZE", 70),
		APIMaxRetry:         getEnvAsInt("UPBIT_API_MAX_RETRY", 4),
		OHLCVCallIntervalMs: int(getEnvAsFloat("UPBIT_OHLCV_CALL_INTERVAL_SEC", 0.14) * 1000),
	}

	if cfg.TraderName == "" {
		return cfg, fmt.Errorf("TRADER_NAME is required")
	}
	return cfg, nil
}

// SafetyLimits holds the Runtime Guard thresholds (§4.6), shared by the control
// store (which enforces them) and the trainer (which reads them for rollback checks).
type SafetyLimits struct {
	DailyLossLimitPct   float64
	ConsecutiveLossLim  int
}

// LoadSafetyLimits reads the Runtime Guard thresholds from the environment.
func LoadSafetyLimits() SafetyLimits {
	return SafetyLimits{
		DailyLossLimitPct:  getEnvAsFloat("DAILY_LOSS_LIMIT_PCT", 0.05),
		ConsecutiveLossLim: getEnvAsInt("CONSECUTIVE_LOSS_LIMIT", 5),
	}
}

// ControlStoreConfig holds the environment-derived knobs for the control-plane
// HTTP process: the one that owns the database and exposes the §6 surface.
type ControlStoreConfig struct {
	Base
	Port            int
	DevMode         bool
	Safety          SafetyLimits
	BackupBucket    string
	BackupPrefix    string
	BackupEveryMin  int
	BackupEndpoint  string
	BackupAccessKey string
	BackupSecretKey string
}

// LoadControlStoreConfig reads ControlStoreConfig from the environment.
func LoadControlStoreConfig() ControlStoreConfig {
	return ControlStoreConfig{
		Base:            LoadBase(),
		Port:            getEnvAsInt("PORT", 8000),
		DevMode:         getEnv("ENV", "production") != "production",
		Safety:          LoadSafetyLimits(),
		BackupBucket:    getEnv("BACKUP_BUCKET", ""),
		BackupPrefix:    getEnv("BACKUP_PREFIX", "ats"),
		BackupEveryMin:  getEnvAsInt("BACKUP_INTERVAL_MIN", 60),
		BackupEndpoint:  getEnv("BACKUP_R2_ENDPOINT", ""),
		BackupAccessKey: getEnv("BACKUP_R2_ACCESS_KEY", ""),
		BackupSecretKey: getEnv("BACKUP_R2_SECRET_KEY", ""),
	}
}

// RegimeConfig holds the environment-derived knobs for the regime classifier process.
type RegimeConfig struct {
	Base
	APIBase             string
	IntervalSec         int
	GroupRPS            int
	BatchChunkSize      int
	APIMaxRetry         int
	TelegramBotToken    string
	TelegramChatID      string
	BreadthMarkets      []string
}

// LoadRegimeConfig reads RegimeConfig from the environment.
func LoadRegimeConfig() RegimeConfig {
	return RegimeConfig{
		Base:             LoadBase(),
		APIBase:          getEnv("DASHBOARD_API_BASE", "http://localhost:8000"),
		IntervalSec:      getEnvAsInt("REGIME_INTERVAL_SEC", 300),
		GroupRPS:         getEnvAsInt("UPBIT_GROUP_RPS", 8),
		BatchChunkSize:   getEnvAsInt("UPBIT_BATCH_CHUNK_SIZE", 70),
		APIMaxRetry:      getEnvAsInt("UPBIT_API_MAX_RETRY", 4),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		BreadthMarkets:   splitCSV(getEnv("REGIME_BREADTH_MARKETS", "KRW-BTC,KRW-ETH,KRW-XRP,KRW-SOL,KRW-ADA")),
	}
}

// TrainerConfig holds the environment-derived knobs for the auto-tuning trainer process.
type TrainerConfig struct {
	Base
	APIBase        string
	StrategyID     string
	IntervalSec    int
	TrialCount     int
	LabelMinAgeMin int
}

// LoadTrainerConfig reads TrainerConfig from the environment.
func LoadTrainerConfig() (TrainerConfig, error) {
	cfg := TrainerConfig{
		Base:           LoadBase(),
		APIBase:        getEnv("DASHBOARD_API_BASE", "http://localhost:8000"),
		StrategyID:     getEnv("TRAINER_STRATEGY_ID", ""),
		IntervalSec:    getEnvAsInt("TRAINER_INTERVAL_SEC", 3600),
		TrialCount:     getEnvAsInt("TRAINER_TRIAL_COUNT", 60),
		LabelMinAgeMin: getEnvAsInt("TRAINER_LABEL_MIN_AGE_MIN", 240),
	}
	if cfg.StrategyID == "" {
		return cfg, fmt.Errorf("TRAINER_STRATEGY_ID is required")
	}
	return cfg, nil
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// PaperProtectDuration returns the configured paper-protection window as a duration.
func (c TraderConfig) PaperProtectDuration() time.Duration {
	return time.Duration(c.PaperProtectHours * float64(time.Hour))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Package database provides the Control Store's SQLite connection and schema
// migration. Every other process (regime classifier, trader worker, trainer)
// talks to the Control Store over HTTP, never opening the database file
// directly — this package exists only inside cmd/controlstore.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// Profile selects PRAGMA tuning for the database's access pattern.
type Profile string

const (
	// ProfileLedger favors durability over throughput: every order, signal and
	// safety-state mutation goes through this profile.
	ProfileLedger Profile = "ledger"
	// ProfileStandard balances durability and throughput for everything else.
	ProfileStandard Profile = "standard"
)

// Config holds database configuration.
type Config struct {
	Path    string
	Profile Profile
}

// DB wraps *sql.DB with the connection-pool and PRAGMA tuning the Control
// Store needs for a long-running single-writer process.
type DB struct {
	conn    *sql.DB
	path    string
	profile Profile
}

// New opens (creating if absent) the Control Store's SQLite database and
// applies the schema migration.
func New(cfg Config) (*DB, error) {
	if !strings.HasPrefix(cfg.Path, "file:") {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		cfg.Path = absPath
	}

	if cfg.Profile == "" {
		cfg.Profile = ProfileLedger
	}

	conn, err := sql.Open("sqlite", buildConnectionString(cfg.Path, cfg.Profile))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	configureConnectionPool(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{conn: conn, path: cfg.Path, profile: cfg.Profile}
	if err := db.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func buildConnectionString(path string, profile Profile) string {
	connStr := path + "?_pragma=journal_mode(WAL)"
	switch profile {
	case ProfileLedger:
		connStr += "&_pragma=synchronous(FULL)"
	default:
		connStr += "&_pragma=synchronous(NORMAL)"
	}
	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=busy_timeout(5000)"
	connStr += "&_pragma=cache_size(-64000)"
	return connStr
}

func configureConnectionPool(conn *sql.DB) {
	// SQLite tolerates only one writer; keep the pool small so callers queue on
	// SQLite's own lock rather than opening connections that all contend.
	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(time.Hour)
}

// Conn returns the underlying *sql.DB, for repositories.
func (db *DB) Conn() *sql.DB { return db.conn }

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// Close closes the database connection.
func (db *DB) Close() error { return db.conn.Close() }

// HealthCheck pings and integrity-checks the database.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	var result string
	if err := db.conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// WithTransaction runs fn inside a transaction, rolling back on error or panic
// and committing otherwise.
func WithTransaction(db *sql.DB, fn func(*sql.Tx) error) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
			return
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}

// Migrate applies the idempotent DDL for every entity in internal/domain.
// Tables are created with CREATE TABLE IF NOT EXISTS so re-running on an
// existing database is always safe. A table that already exists is left as
// it is; columns added to its definition later are not applied to it.
func (db *DB) Migrate(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return tx.Commit()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS traders (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	name              TEXT NOT NULL UNIQUE,
	strategy_id       TEXT NOT NULL,
	risk_mode         TEXT NOT NULL DEFAULT 'STANDARD',
	run_mode          TEXT NOT NULL DEFAULT 'PAPER',
	seed_krw          REAL NOT NULL DEFAULT 0,
	credential_name   TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'STOP',
	paper_started_at  DATETIME NOT NULL,
	armed_at          DATETIME,
	last_heartbeat_at DATETIME,
	realized_pnl_krw  REAL NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS credentials (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	name                 TEXT NOT NULL,
	encrypted_access_key TEXT NOT NULL,
	encrypted_secret_key TEXT NOT NULL,
	nonce_access         TEXT NOT NULL,
	nonce_secret         TEXT NOT NULL,
	created_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_credentials_name ON credentials(name, created_at DESC);

CREATE TABLE IF NOT EXISTS regime_snapshots (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	market       TEXT NOT NULL,
	timestamp    DATETIME NOT NULL,
	regime_id    INTEGER NOT NULL,
	label        TEXT NOT NULL,
	confidence   REAL NOT NULL,
	metrics_json TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_regime_snapshots_market_ts ON regime_snapshots(market, timestamp DESC);

CREATE TABLE IF NOT EXISTS bandit_state (
	regime_label TEXT NOT NULL,
	strategy_id  TEXT NOT NULL,
	alpha        REAL NOT NULL DEFAULT 1,
	beta         REAL NOT NULL DEFAULT 1,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (regime_label, strategy_id)
);

CREATE TABLE IF NOT EXISTS model_versions (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy_id     TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'DRAFT',
	metrics_json    TEXT NOT NULL DEFAULT '{}',
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	deployed_at     DATETIME,
	rolled_back_at  DATETIME,
	rollback_reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_model_versions_strategy ON model_versions(strategy_id, created_at DESC);

CREATE TABLE IF NOT EXISTS trader_safety_state (
	trader_name            TEXT PRIMARY KEY,
	daily_loss_krw         REAL NOT NULL DEFAULT 0,
	consecutive_losses     INTEGER NOT NULL DEFAULT 0,
	slippage_anomaly_count INTEGER NOT NULL DEFAULT 0,
	api_error_count        INTEGER NOT NULL DEFAULT 0,
	db_error_count         INTEGER NOT NULL DEFAULT 0,
	blocked                INTEGER NOT NULL DEFAULT 0,
	block_reason           TEXT NOT NULL DEFAULT '',
	updated_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS signals (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	trader_name  TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	total_score  REAL NOT NULL,
	scores_json  TEXT NOT NULL DEFAULT '{}',
	regime       TEXT NOT NULL,
	action       TEXT NOT NULL,
	reason_codes TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_signals_trader_symbol ON signals(trader_name, symbol, created_at DESC);

CREATE TABLE IF NOT EXISTS orders (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	trader_name TEXT NOT NULL,
	order_id    TEXT NOT NULL UNIQUE,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	price       REAL NOT NULL,
	size        REAL NOT NULL,
	status      TEXT NOT NULL,
	filled_qty  REAL NOT NULL DEFAULT 0,
	avg_price   REAL NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_orders_trader_symbol ON orders(trader_name, symbol, created_at);

CREATE TABLE IF NOT EXISTS config_versions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy_id TEXT NOT NULL,
	version     INTEGER NOT NULL,
	params_json TEXT NOT NULL,
	is_active   INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(strategy_id, version)
);
CREATE INDEX IF NOT EXISTS idx_config_versions_active ON config_versions(strategy_id, is_active);

CREATE TABLE IF NOT EXISTS scan_runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy_id TEXT NOT NULL,
	started_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS feature_snapshots (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	scan_run_id   INTEGER NOT NULL REFERENCES scan_runs(id),
	symbol        TEXT NOT NULL,
	features_json TEXT NOT NULL,
	ret_60m       REAL,
	ret_240m      REAL,
	mfe_240m      REAL,
	mae_240m      REAL,
	dd_240m       REAL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_feature_snapshots_run ON feature_snapshots(scan_run_id);

CREATE TABLE IF NOT EXISTS model_baselines (
	strategy_id      TEXT PRIMARY KEY,
	window_days      INTEGER NOT NULL,
	sharpe           REAL NOT NULL,
	mean_return      REAL NOT NULL,
	drift_warn_count INTEGER NOT NULL DEFAULT 0,
	pinned_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS model_metrics_24h (
	model_id       INTEGER NOT NULL REFERENCES model_versions(id),
	net_return_24h REAL NOT NULL,
	sharpe         REAL NOT NULL,
	recorded_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (model_id, recorded_at)
);

CREATE TABLE IF NOT EXISTS model_candidates (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy_id TEXT NOT NULL,
	trial_index INTEGER NOT NULL,
	params_json TEXT NOT NULL,
	score       REAL NOT NULL,
	gate_status TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_model_candidates_strategy ON model_candidates(strategy_id, score DESC);

CREATE TABLE IF NOT EXISTS events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	trader_name TEXT NOT NULL DEFAULT '',
	level       TEXT NOT NULL,
	kind        TEXT NOT NULL,
	message     TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_events_trader ON events(trader_name, created_at DESC);
`

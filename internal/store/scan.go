package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ats/internal/domain"
)

// ScanRepository persists trainer scan runs, labeled feature snapshots, drift
// baselines and rolling 24h model metrics (§4.7, §4.8).
type ScanRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewScanRepository(db *sql.DB, log zerolog.Logger) *ScanRepository {
	return &ScanRepository{db: db, log: log.With().Str("repo", "scan").Logger()}
}

func (r *ScanRepository) StartRun(strategyID string) (int64, error) {
	res, err := r.db.Exec(`INSERT INTO scan_runs (strategy_id) VALUES (?)`, strategyID)
	if err != nil {
		return 0, fmt.Errorf("start scan run for %s: %w", strategyID, err)
	}
	return res.LastInsertId()
}

func (r *ScanRepository) FinishRun(runID int64) error {
	_, err := r.db.Exec(`UPDATE scan_runs SET finished_at = ? WHERE id = ?`, time.Now(), runID)
	if err != nil {
		return fmt.Errorf("finish scan run %d: %w", runID, err)
	}
	return nil
}

func (r *ScanRepository) AddFeatureSnapshot(s domain.FeatureSnapshot) (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO feature_snapshots (scan_run_id, symbol, features_json)
		VALUES (?, ?, ?)`, s.ScanRunID, s.Symbol, s.FeaturesJSON)
	if err != nil {
		return 0, fmt.Errorf("add feature snapshot for run %d: %w", s.ScanRunID, err)
	}
	return res.LastInsertId()
}

// UpdateLabels backfills the forward-looking labels once enough time has
// elapsed to observe 60m/240m outcomes (§4.8).
func (r *ScanRepository) UpdateLabels(id int64, ret60m, ret240m, mfe240m, mae240m, dd240m float64) error {
	_, err := r.db.Exec(`
		UPDATE feature_snapshots
		SET ret_60m = ?, ret_240m = ?, mfe_240m = ?, mae_240m = ?, dd_240m = ?
		WHERE id = ?`, ret60m, ret240m, mfe240m, mae240m, dd240m, id)
	if err != nil {
		return fmt.Errorf("update labels for snapshot %d: %w", id, err)
	}
	return nil
}

// UnlabeledSnapshots returns feature snapshots older than minAge with no
// ret_60m label yet — the trainer's backfill candidate set.
func (r *ScanRepository) UnlabeledSnapshots(minAge time.Duration) ([]domain.FeatureSnapshot, error) {
	cutoff := time.Now().Add(-minAge)
	rows, err := r.db.Query(`
		SELECT id, scan_run_id, symbol, features_json, ret_60m, ret_240m, mfe_240m, mae_240m, dd_240m, created_at
		FROM feature_snapshots WHERE ret_60m IS NULL AND created_at <= ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list unlabeled snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.FeatureSnapshot
	for rows.Next() {
		var s domain.FeatureSnapshot
		if err := rows.Scan(&s.ID, &s.ScanRunID, &s.Symbol, &s.FeaturesJSON,
			&s.Ret60m, &s.Ret240m, &s.MFE240m, &s.MAE240m, &s.DD240m, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feature snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LabeledSnapshots returns every feature snapshot belonging to strategyID's
// scan runs that has already been backfilled with outcome labels — the
// evaluation input for lifecycle.Evaluate (§4.7).
func (r *ScanRepository) LabeledSnapshots(strategyID string) ([]domain.FeatureSnapshot, error) {
	rows, err := r.db.Query(`
		SELECT fs.id, fs.scan_run_id, fs.symbol, fs.features_json,
		       fs.ret_60m, fs.ret_240m, fs.mfe_240m, fs.mae_240m, fs.dd_240m, fs.created_at
		FROM feature_snapshots fs
		JOIN scan_runs sr ON sr.id = fs.scan_run_id
		WHERE sr.strategy_id = ? AND fs.ret_240m IS NOT NULL`, strategyID)
	if err != nil {
		return nil, fmt.Errorf("list labeled snapshots for %s: %w", strategyID, err)
	}
	defer rows.Close()

	var out []domain.FeatureSnapshot
	for rows.Next() {
		var s domain.FeatureSnapshot
		if err := rows.Scan(&s.ID, &s.ScanRunID, &s.Symbol, &s.FeaturesJSON,
			&s.Ret60m, &s.Ret240m, &s.MFE240m, &s.MAE240m, &s.DD240m, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan labeled feature snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ScanRepository) PinBaseline(b domain.ModelBaseline) error {
	_, err := r.db.Exec(`
		INSERT INTO model_baselines (strategy_id, window_days, sharpe, mean_return, drift_warn_count)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(strategy_id) DO UPDATE SET
			window_days = excluded.window_days, sharpe = excluded.sharpe,
			mean_return = excluded.mean_return, drift_warn_count = 0, pinned_at = CURRENT_TIMESTAMP`,
		b.StrategyID, b.WindowDays, b.Sharpe, b.MeanReturn)
	if err != nil {
		return fmt.Errorf("pin baseline for %s: %w", b.StrategyID, err)
	}
	return nil
}

func (r *ScanRepository) Baseline(strategyID string) (domain.ModelBaseline, error) {
	row := r.db.QueryRow(`
		SELECT strategy_id, window_days, sharpe, mean_return, drift_warn_count, pinned_at
		FROM model_baselines WHERE strategy_id = ?`, strategyID)
	var b domain.ModelBaseline
	err := row.Scan(&b.StrategyID, &b.WindowDays, &b.Sharpe, &b.MeanReturn, &b.DriftWarnCount, &b.PinnedAt)
	if err != nil {
		return domain.ModelBaseline{}, fmt.Errorf("get baseline for %s: %w", strategyID, err)
	}
	return b, nil
}

func (r *ScanRepository) IncrementDriftWarn(strategyID string) (int, error) {
	var n int
	err := r.db.QueryRow(`
		UPDATE model_baselines SET drift_warn_count = drift_warn_count + 1 WHERE strategy_id = ?
		RETURNING drift_warn_count`, strategyID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment drift warn for %s: %w", strategyID, err)
	}
	return n, nil
}

func (r *ScanRepository) RecordMetrics24h(m domain.ModelMetrics24h) error {
	_, err := r.db.Exec(`
		INSERT INTO model_metrics_24h (model_id, net_return_24h, sharpe) VALUES (?, ?, ?)`,
		m.ModelID, m.NetReturn24h, m.Sharpe)
	if err != nil {
		return fmt.Errorf("record 24h metrics for model %d: %w", m.ModelID, err)
	}
	return nil
}

// AddCandidate appends one trainer trial's parameters and score (§4.8).
func (r *ScanRepository) AddCandidate(c domain.ModelCandidate) (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO model_candidates (strategy_id, trial_index, params_json, score, gate_status)
		VALUES (?, ?, ?, ?, ?)`, c.StrategyID, c.TrialIndex, c.ParamsJSON, c.Score, c.GateStatus)
	if err != nil {
		return 0, fmt.Errorf("add model candidate for %s: %w", c.StrategyID, err)
	}
	return res.LastInsertId()
}

// Candidates returns every trial recorded for a strategy, across all tuning
// runs, ordered by trial index.
func (r *ScanRepository) Candidates(strategyID string) ([]domain.ModelCandidate, error) {
	rows, err := r.db.Query(`
		SELECT id, strategy_id, trial_index, params_json, score, gate_status, created_at
		FROM model_candidates WHERE strategy_id = ? ORDER BY trial_index ASC`, strategyID)
	if err != nil {
		return nil, fmt.Errorf("list model candidates for %s: %w", strategyID, err)
	}
	defer rows.Close()

	var out []domain.ModelCandidate
	for rows.Next() {
		var c domain.ModelCandidate
		if err := rows.Scan(&c.ID, &c.StrategyID, &c.TrialIndex, &c.ParamsJSON, &c.Score, &c.GateStatus, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan model candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// BestCandidate returns the highest-scoring trial for a strategy.
func (r *ScanRepository) BestCandidate(strategyID string) (domain.ModelCandidate, error) {
	row := r.db.QueryRow(`
		SELECT id, strategy_id, trial_index, params_json, score, gate_status, created_at
		FROM model_candidates WHERE strategy_id = ? ORDER BY score DESC LIMIT 1`, strategyID)
	var c domain.ModelCandidate
	err := row.Scan(&c.ID, &c.StrategyID, &c.TrialIndex, &c.ParamsJSON, &c.Score, &c.GateStatus, &c.CreatedAt)
	if err != nil {
		return domain.ModelCandidate{}, fmt.Errorf("get best candidate for %s: %w", strategyID, err)
	}
	return c, nil
}

func (r *ScanRepository) LatestMetrics24h(modelID int64) (domain.ModelMetrics24h, error) {
	row := r.db.QueryRow(`
		SELECT model_id, net_return_24h, sharpe, recorded_at
		FROM model_metrics_24h WHERE model_id = ? ORDER BY recorded_at DESC LIMIT 1`, modelID)
	var m domain.ModelMetrics24h
	err := row.Scan(&m.ModelID, &m.NetReturn24h, &m.Sharpe, &m.RecordedAt)
	if err != nil {
		return domain.ModelMetrics24h{}, fmt.Errorf("get latest 24h metrics for model %d: %w", modelID, err)
	}
	return m, nil
}

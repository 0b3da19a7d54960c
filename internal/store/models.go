package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ats/internal/domain"
)

// ModelRepository persists ModelVersion rows and their lifecycle transitions (§4.7).
type ModelRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewModelRepository(db *sql.DB, log zerolog.Logger) *ModelRepository {
	return &ModelRepository{db: db, log: log.With().Str("repo", "model").Logger()}
}

func (r *ModelRepository) Create(strategyID, metricsJSON string) (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO model_versions (strategy_id, status, metrics_json) VALUES (?, 'DRAFT', ?)`,
		strategyID, metricsJSON)
	if err != nil {
		return 0, fmt.Errorf("create model version for %s: %w", strategyID, err)
	}
	return res.LastInsertId()
}

func (r *ModelRepository) Get(id int64) (domain.ModelVersion, error) {
	row := r.db.QueryRow(`
		SELECT id, strategy_id, status, metrics_json, created_at, deployed_at, rolled_back_at, rollback_reason
		FROM model_versions WHERE id = ?`, id)
	return scanModel(row)
}

func (r *ModelRepository) Latest(strategyID string, status domain.ModelStatus) (domain.ModelVersion, error) {
	row := r.db.QueryRow(`
		SELECT id, strategy_id, status, metrics_json, created_at, deployed_at, rolled_back_at, rollback_reason
		FROM model_versions WHERE strategy_id = ? AND status = ? ORDER BY created_at DESC LIMIT 1`,
		strategyID, string(status))
	return scanModel(row)
}

// SetStatus applies a lifecycle transition; callers (internal/lifecycle)
// decide whether the transition itself is legal.
func (r *ModelRepository) SetStatus(id int64, status domain.ModelStatus) error {
	var res sql.Result
	var err error
	switch status {
	case domain.ModelPaperDeployed, domain.ModelLiveArmed:
		res, err = r.db.Exec(`UPDATE model_versions SET status = ?, deployed_at = ? WHERE id = ?`,
			string(status), time.Now(), id)
	default:
		res, err = r.db.Exec(`UPDATE model_versions SET status = ? WHERE id = ?`, string(status), id)
	}
	if err != nil {
		return fmt.Errorf("set model %d status %s: %w", id, status, err)
	}
	return requireRowsAffectedID(res, id)
}

// UpdateMetrics overwrites a model's stored evaluation metrics JSON, used by
// internal/lifecycle after computing validation metrics.
func (r *ModelRepository) UpdateMetrics(id int64, metricsJSON string) error {
	res, err := r.db.Exec(`UPDATE model_versions SET metrics_json = ? WHERE id = ?`, metricsJSON, id)
	if err != nil {
		return fmt.Errorf("update metrics for model %d: %w", id, err)
	}
	return requireRowsAffectedID(res, id)
}

func (r *ModelRepository) Rollback(id int64, reason string) error {
	res, err := r.db.Exec(`
		UPDATE model_versions SET status = 'DRAFT', rolled_back_at = ?, rollback_reason = ? WHERE id = ?`,
		time.Now(), reason, id)
	if err != nil {
		return fmt.Errorf("rollback model %d: %w", id, err)
	}
	r.log.Warn().Int64("model_id", id).Str("reason", reason).Msg("model rolled back")
	return requireRowsAffectedID(res, id)
}

func scanModel(row *sql.Row) (domain.ModelVersion, error) {
	var m domain.ModelVersion
	var status string
	var deployedAt, rolledBackAt sql.NullTime
	err := row.Scan(&m.ID, &m.StrategyID, &status, &m.MetricsJSON, &m.CreatedAt, &deployedAt, &rolledBackAt, &m.RollbackReason)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ModelVersion{}, ErrNotFound
	}
	if err != nil {
		return domain.ModelVersion{}, fmt.Errorf("scan model version: %w", err)
	}
	m.Status = domain.ModelStatus(status)
	if deployedAt.Valid {
		m.DeployedAt = &deployedAt.Time
	}
	if rolledBackAt.Valid {
		m.RolledBackAt = &rolledBackAt.Time
	}
	return m, nil
}

func requireRowsAffectedID(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("model %d: %w", id, ErrNotFound)
	}
	return nil
}

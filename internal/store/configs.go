package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/ats/internal/database"
	"github.com/aristath/ats/internal/domain"
)

// ConfigRepository persists versioned strategy parameter sets; exactly one
// version per strategy_id is active at a time.
type ConfigRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewConfigRepository(db *sql.DB, log zerolog.Logger) *ConfigRepository {
	return &ConfigRepository{db: db, log: log.With().Str("repo", "config").Logger()}
}

func (r *ConfigRepository) Create(strategyID string, paramsJSON string) (domain.ConfigVersion, error) {
	var out domain.ConfigVersion
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		var nextVersion int
		if err := tx.QueryRow(`
			SELECT COALESCE(MAX(version), 0) + 1 FROM config_versions WHERE strategy_id = ?`, strategyID).
			Scan(&nextVersion); err != nil {
			return fmt.Errorf("compute next version: %w", err)
		}

		res, err := tx.Exec(`
			INSERT INTO config_versions (strategy_id, version, params_json, is_active) VALUES (?, ?, ?, 0)`,
			strategyID, nextVersion, paramsJSON)
		if err != nil {
			return fmt.Errorf("insert config version: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		out = domain.ConfigVersion{ID: id, StrategyID: strategyID, Version: nextVersion, ParamsJSON: paramsJSON}
		return nil
	})
	return out, err
}

// Activate flips the named version active and every other version for the
// same strategy inactive, inside one transaction — the single-active-per-
// strategy invariant can never be observed half-applied.
func (r *ConfigRepository) Activate(strategyID string, version int) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`UPDATE config_versions SET is_active = 0 WHERE strategy_id = ?`, strategyID); err != nil {
			return fmt.Errorf("deactivate existing versions: %w", err)
		}
		res, err := tx.Exec(`
			UPDATE config_versions SET is_active = 1 WHERE strategy_id = ? AND version = ?`, strategyID, version)
		if err != nil {
			return fmt.Errorf("activate version %d: %w", version, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("config version %s/%d: %w", strategyID, version, ErrNotFound)
		}
		return nil
	})
}

func (r *ConfigRepository) Active(strategyID string) (domain.ConfigVersion, error) {
	row := r.db.QueryRow(`
		SELECT id, strategy_id, version, params_json, is_active, created_at
		FROM config_versions WHERE strategy_id = ? AND is_active = 1`, strategyID)

	var c domain.ConfigVersion
	var active int
	err := row.Scan(&c.ID, &c.StrategyID, &c.Version, &c.ParamsJSON, &active, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ConfigVersion{}, ErrNotFound
	}
	if err != nil {
		return domain.ConfigVersion{}, fmt.Errorf("get active config for %s: %w", strategyID, err)
	}
	c.IsActive = active != 0
	return c, nil
}

package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/ats/internal/domain"
)

// BanditRepository persists the Thompson-sampling posterior per (regime, strategy).
type BanditRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewBanditRepository(db *sql.DB, log zerolog.Logger) *BanditRepository {
	return &BanditRepository{db: db, log: log.With().Str("repo", "bandit").Logger()}
}

// EnsureSeeded inserts an alpha=beta=1 (uninformative) prior for every
// regime label under strategyID if no row yet exists — the bandit always has
// a well-defined prior to sample from (§4.2, "missing row defaults to 1.0").
func (r *BanditRepository) EnsureSeeded(strategyID string) error {
	for _, label := range domain.AllRegimeLabels {
		_, err := r.db.Exec(`
			INSERT INTO bandit_state (regime_label, strategy_id, alpha, beta)
			VALUES (?, ?, 1, 1)
			ON CONFLICT(regime_label, strategy_id) DO NOTHING`,
			string(label), strategyID)
		if err != nil {
			return fmt.Errorf("seed bandit state %s/%s: %w", label, strategyID, err)
		}
	}
	return nil
}

// Get returns the posterior for (regime, strategy), defaulting to alpha=beta=1
// if no row has been written yet.
func (r *BanditRepository) Get(label domain.RegimeLabel, strategyID string) (domain.BanditState, error) {
	row := r.db.QueryRow(`
		SELECT regime_label, strategy_id, alpha, beta, updated_at
		FROM bandit_state WHERE regime_label = ? AND strategy_id = ?`, string(label), strategyID)

	var s domain.BanditState
	var lbl string
	err := row.Scan(&lbl, &s.StrategyID, &s.Alpha, &s.Beta, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BanditState{RegimeLabel: label, StrategyID: strategyID, Alpha: 1, Beta: 1}, nil
	}
	if err != nil {
		return domain.BanditState{}, fmt.Errorf("get bandit state %s/%s: %w", label, strategyID, err)
	}
	s.RegimeLabel = domain.RegimeLabel(lbl)
	return s, nil
}

// Update applies a Beta-posterior update after a trade outcome: alpha += win,
// beta += loss, matching the Thompson-sampling recurrence used by the bandit
// package.
func (r *BanditRepository) Update(label domain.RegimeLabel, strategyID string, win bool) error {
	alphaDelta, betaDelta := 0.0, 0.0
	if win {
		alphaDelta = 1
	} else {
		betaDelta = 1
	}
	_, err := r.db.Exec(`
		INSERT INTO bandit_state (regime_label, strategy_id, alpha, beta, updated_at)
		VALUES (?, ?, 1 + ?, 1 + ?, CURRENT_TIMESTAMP)
		ON CONFLICT(regime_label, strategy_id) DO UPDATE SET
			alpha = alpha + excluded.alpha - 1,
			beta = beta + excluded.beta - 1,
			updated_at = CURRENT_TIMESTAMP`,
		string(label), strategyID, alphaDelta, betaDelta)
	if err != nil {
		return fmt.Errorf("update bandit state %s/%s: %w", label, strategyID, err)
	}
	return nil
}

package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/ats/internal/database"
	"github.com/aristath/ats/internal/domain"
)

// SafetyRepository persists the Runtime Guard's per-trader rolling counters (§4.6).
type SafetyRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewSafetyRepository(db *sql.DB, log zerolog.Logger) *SafetyRepository {
	return &SafetyRepository{db: db, log: log.With().Str("repo", "safety").Logger()}
}

func (r *SafetyRepository) Get(traderName string) (domain.TraderSafetyState, error) {
	row := r.db.QueryRow(`
		SELECT trader_name, daily_loss_krw, consecutive_losses, slippage_anomaly_count,
		       api_error_count, db_error_count, blocked, block_reason, updated_at
		FROM trader_safety_state WHERE trader_name = ?`, traderName)

	s, err := scanSafety(row)
	if errors.Is(err, ErrNotFound) {
		return domain.TraderSafetyState{TraderName: traderName}, nil
	}
	return s, err
}

// UpdatePnL applies a realized-trade outcome under a single transaction:
// bumps daily loss (if negative) and the consecutive-loss streak (reset on a
// win), so a crash mid-update can never leave the counters half-applied.
func (r *SafetyRepository) UpdatePnL(traderName string, realizedKRW float64) (domain.TraderSafetyState, error) {
	var out domain.TraderSafetyState
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO trader_safety_state (trader_name) VALUES (?)
			ON CONFLICT(trader_name) DO NOTHING`, traderName); err != nil {
			return fmt.Errorf("ensure safety row: %w", err)
		}

		lossDelta := 0.0
		if realizedKRW < 0 {
			lossDelta = -realizedKRW
		}
		streakReset := realizedKRW >= 0

		if streakReset {
			if _, err := tx.Exec(`
				UPDATE trader_safety_state
				SET daily_loss_krw = daily_loss_krw + ?, consecutive_losses = 0, updated_at = CURRENT_TIMESTAMP
				WHERE trader_name = ?`, lossDelta, traderName); err != nil {
				return fmt.Errorf("reset streak: %w", err)
			}
		} else {
			if _, err := tx.Exec(`
				UPDATE trader_safety_state
				SET daily_loss_krw = daily_loss_krw + ?, consecutive_losses = consecutive_losses + 1, updated_at = CURRENT_TIMESTAMP
				WHERE trader_name = ?`, lossDelta, traderName); err != nil {
				return fmt.Errorf("bump streak: %w", err)
			}
		}

		row := tx.QueryRow(`
			SELECT trader_name, daily_loss_krw, consecutive_losses, slippage_anomaly_count,
			       api_error_count, db_error_count, blocked, block_reason, updated_at
			FROM trader_safety_state WHERE trader_name = ?`, traderName)
		s, err := scanSafety(row)
		if err != nil {
			return fmt.Errorf("reread safety state: %w", err)
		}
		out = s
		return nil
	})
	return out, err
}

func (r *SafetyRepository) IncrementSlippageAnomaly(traderName string) (int, error) {
	return r.incrementCounter(traderName, "slippage_anomaly_count")
}

func (r *SafetyRepository) IncrementAPIError(traderName string) (int, error) {
	return r.incrementCounter(traderName, "api_error_count")
}

func (r *SafetyRepository) IncrementDBError(traderName string) (int, error) {
	return r.incrementCounter(traderName, "db_error_count")
}

func (r *SafetyRepository) incrementCounter(traderName, column string) (int, error) {
	var newValue int
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO trader_safety_state (trader_name) VALUES (?)
			ON CONFLICT(trader_name) DO NOTHING`, traderName); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE trader_safety_state SET `+column+` = `+column+` + 1, updated_at = CURRENT_TIMESTAMP WHERE trader_name = ?`, traderName); err != nil {
			return err
		}
		return tx.QueryRow(`SELECT `+column+` FROM trader_safety_state WHERE trader_name = ?`, traderName).Scan(&newValue)
	})
	if err != nil {
		return 0, fmt.Errorf("increment %s for %s: %w", column, traderName, err)
	}
	return newValue, nil
}

func (r *SafetyRepository) Block(traderName, reason string) error {
	_, err := r.db.Exec(`
		INSERT INTO trader_safety_state (trader_name, blocked, block_reason) VALUES (?, 1, ?)
		ON CONFLICT(trader_name) DO UPDATE SET blocked = 1, block_reason = excluded.block_reason, updated_at = CURRENT_TIMESTAMP`,
		traderName, reason)
	if err != nil {
		return fmt.Errorf("block trader %s: %w", traderName, err)
	}
	r.log.Warn().Str("trader", traderName).Str("reason", reason).Msg("trader blocked by runtime guard")
	return nil
}

// ResetDaily clears the daily loss counter only; nothing in this module
// calls it.
func (r *SafetyRepository) ResetDaily(traderName string) error {
	_, err := r.db.Exec(`
		UPDATE trader_safety_state SET daily_loss_krw = 0, updated_at = CURRENT_TIMESTAMP WHERE trader_name = ?`,
		traderName)
	if err != nil {
		return fmt.Errorf("reset daily counters for %s: %w", traderName, err)
	}
	return nil
}

// ResetAll zeroes every counter and clears the block flag (§4.6: "Reset is
// explicit (admin endpoint), zeroing counters and the block flag").
func (r *SafetyRepository) ResetAll(traderName string) error {
	_, err := r.db.Exec(`
		UPDATE trader_safety_state
		SET daily_loss_krw = 0, consecutive_losses = 0, slippage_anomaly_count = 0,
		    api_error_count = 0, db_error_count = 0, blocked = 0, block_reason = '',
		    updated_at = CURRENT_TIMESTAMP
		WHERE trader_name = ?`, traderName)
	if err != nil {
		return fmt.Errorf("reset all counters for %s: %w", traderName, err)
	}
	r.log.Info().Str("trader", traderName).Msg("safety counters reset by admin")
	return nil
}

func scanSafety(row *sql.Row) (domain.TraderSafetyState, error) {
	var s domain.TraderSafetyState
	var blocked int
	err := row.Scan(&s.TraderName, &s.DailyLossKRW, &s.ConsecutiveLosses, &s.SlippageAnomalyCount,
		&s.APIErrorCount, &s.DBErrorCount, &blocked, &s.BlockReason, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TraderSafetyState{}, ErrNotFound
	}
	if err != nil {
		return domain.TraderSafetyState{}, fmt.Errorf("scan safety state: %w", err)
	}
	s.Blocked = blocked != 0
	return s, nil
}

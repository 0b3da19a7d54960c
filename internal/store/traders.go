// Package store holds the Control Store's SQLite repositories. Each file
// covers one entity family from internal/domain, following the teacher's
// one-repository-per-concern layout (internal/modules/*/repository.go).
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ats/internal/domain"
)

// ErrNotFound is returned by single-row lookups that match no row.
var ErrNotFound = errors.New("not found")

const traderColumns = `id, name, strategy_id, risk_mode, run_mode, seed_krw, credential_name, status, paper_started_at, armed_at, last_heartbeat_at, realized_pnl_krw, created_at`

// TraderRepository persists trader rows.
type TraderRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewTraderRepository(db *sql.DB, log zerolog.Logger) *TraderRepository {
	return &TraderRepository{db: db, log: log.With().Str("repo", "trader").Logger()}
}

func (r *TraderRepository) Create(t domain.Trader) (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO traders (name, strategy_id, risk_mode, run_mode, seed_krw, credential_name, status, paper_started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Name, t.StrategyID, string(t.RiskMode), string(t.RunMode), t.SeedKRW, t.CredentialName, string(t.Status), t.PaperStartedAt)
	if err != nil {
		return 0, fmt.Errorf("create trader: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read trader id: %w", err)
	}
	r.log.Info().Str("trader", t.Name).Msg("trader created")
	return id, nil
}

func (r *TraderRepository) GetByName(name string) (domain.Trader, error) {
	row := r.db.QueryRow(`SELECT `+traderColumns+` FROM traders WHERE name = ?`, name)
	t, err := scanTrader(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Trader{}, ErrNotFound
	}
	if err != nil {
		return domain.Trader{}, fmt.Errorf("get trader %s: %w", name, err)
	}
	return t, nil
}

func (r *TraderRepository) List() ([]domain.Trader, error) {
	rows, err := r.db.Query(`SELECT ` + traderColumns + ` FROM traders ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list traders: %w", err)
	}
	defer rows.Close()

	var out []domain.Trader
	for rows.Next() {
		t, err := scanTraderRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trader: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateSelfConfig applies the operator-editable fields (risk mode, seed, credential).
func (r *TraderRepository) UpdateSelfConfig(name string, riskMode domain.RiskMode, credentialName string) error {
	res, err := r.db.Exec(`UPDATE traders SET risk_mode = ?, credential_name = ? WHERE name = ?`,
		string(riskMode), credentialName, name)
	if err != nil {
		return fmt.Errorf("update trader config %s: %w", name, err)
	}
	return requireRowsAffected(res, name)
}

// Arm marks a trader armed-for-live at the given time; CanGoLive still gates
// on the paper-protection window independently (domain.Trader.CanGoLive).
func (r *TraderRepository) Arm(name string, at time.Time) error {
	res, err := r.db.Exec(`UPDATE traders SET armed_at = ? WHERE name = ?`, at, name)
	if err != nil {
		return fmt.Errorf("arm trader %s: %w", name, err)
	}
	return requireRowsAffected(res, name)
}

func (r *TraderRepository) SetRunMode(name string, mode domain.RunMode) error {
	res, err := r.db.Exec(`UPDATE traders SET run_mode = ? WHERE name = ?`, string(mode), name)
	if err != nil {
		return fmt.Errorf("set run mode for %s: %w", name, err)
	}
	return requireRowsAffected(res, name)
}

func (r *TraderRepository) SetStatus(name string, status domain.TraderStatus) error {
	res, err := r.db.Exec(`UPDATE traders SET status = ?, last_heartbeat_at = ? WHERE name = ?`,
		string(status), time.Now(), name)
	if err != nil {
		return fmt.Errorf("set status for %s: %w", name, err)
	}
	return requireRowsAffected(res, name)
}

func (r *TraderRepository) Heartbeat(name string) error {
	res, err := r.db.Exec(`UPDATE traders SET last_heartbeat_at = ? WHERE name = ?`, time.Now(), name)
	if err != nil {
		return fmt.Errorf("heartbeat %s: %w", name, err)
	}
	return requireRowsAffected(res, name)
}

func (r *TraderRepository) AddRealizedPnL(name string, deltaKRW float64) error {
	res, err := r.db.Exec(`UPDATE traders SET realized_pnl_krw = realized_pnl_krw + ? WHERE name = ?`, deltaKRW, name)
	if err != nil {
		return fmt.Errorf("add realized pnl for %s: %w", name, err)
	}
	return requireRowsAffected(res, name)
}

func requireRowsAffected(res sql.Result, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("trader %s: %w", name, ErrNotFound)
	}
	return nil
}

func scanTrader(row *sql.Row) (domain.Trader, error) {
	var t domain.Trader
	var riskMode, runMode, status string
	var armedAt, lastHeartbeat sql.NullTime
	err := row.Scan(&t.ID, &t.Name, &t.StrategyID, &riskMode, &runMode, &t.SeedKRW, &t.CredentialName,
		&status, &t.PaperStartedAt, &armedAt, &lastHeartbeat, &t.RealizedPnLKRW, &t.CreatedAt)
	if err != nil {
		return t, err
	}
	fillTrader(&t, riskMode, runMode, status, armedAt, lastHeartbeat)
	return t, nil
}

func scanTraderRows(rows *sql.Rows) (domain.Trader, error) {
	var t domain.Trader
	var riskMode, runMode, status string
	var armedAt, lastHeartbeat sql.NullTime
	err := rows.Scan(&t.ID, &t.Name, &t.StrategyID, &riskMode, &runMode, &t.SeedKRW, &t.CredentialName,
		&status, &t.PaperStartedAt, &armedAt, &lastHeartbeat, &t.RealizedPnLKRW, &t.CreatedAt)
	if err != nil {
		return t, err
	}
	fillTrader(&t, riskMode, runMode, status, armedAt, lastHeartbeat)
	return t, nil
}

func fillTrader(t *domain.Trader, riskMode, runMode, status string, armedAt, lastHeartbeat sql.NullTime) {
	t.RiskMode = domain.RiskMode(riskMode)
	t.RunMode = domain.RunMode(runMode)
	t.Status = domain.TraderStatus(status)
	if armedAt.Valid {
		t.ArmedAt = &armedAt.Time
	}
	if lastHeartbeat.Valid {
		t.LastHeartbeatAt = &lastHeartbeat.Time
	}
}

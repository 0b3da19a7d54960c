package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/ats/internal/domain"
)

// RegimeRepository persists the classifier's append-only snapshots.
type RegimeRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewRegimeRepository(db *sql.DB, log zerolog.Logger) *RegimeRepository {
	return &RegimeRepository{db: db, log: log.With().Str("repo", "regime").Logger()}
}

func (r *RegimeRepository) Create(s domain.RegimeSnapshot) (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO regime_snapshots (market, timestamp, regime_id, label, confidence, metrics_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.Market, s.Timestamp, s.RegimeID, string(s.Label), s.Confidence, s.MetricsJSON)
	if err != nil {
		return 0, fmt.Errorf("create regime snapshot for %s: %w", s.Market, err)
	}
	return res.LastInsertId()
}

// Latest returns the most recent snapshot for a market (§4.2's "most recent per market").
func (r *RegimeRepository) Latest(market string) (domain.RegimeSnapshot, error) {
	row := r.db.QueryRow(`
		SELECT id, market, timestamp, regime_id, label, confidence, metrics_json
		FROM regime_snapshots WHERE market = ? ORDER BY timestamp DESC LIMIT 1`, market)
	s, err := scanRegime(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RegimeSnapshot{}, ErrNotFound
	}
	if err != nil {
		return domain.RegimeSnapshot{}, fmt.Errorf("get latest regime for %s: %w", market, err)
	}
	return s, nil
}

// RecentByMarket returns the last limit snapshots for a market, most recent first.
func (r *RegimeRepository) RecentByMarket(market string, limit int) ([]domain.RegimeSnapshot, error) {
	rows, err := r.db.Query(`
		SELECT id, market, timestamp, regime_id, label, confidence, metrics_json
		FROM regime_snapshots WHERE market = ? ORDER BY timestamp DESC LIMIT ?`, market, limit)
	if err != nil {
		return nil, fmt.Errorf("list regime snapshots for %s: %w", market, err)
	}
	defer rows.Close()

	var out []domain.RegimeSnapshot
	for rows.Next() {
		var s domain.RegimeSnapshot
		var label string
		if err := rows.Scan(&s.ID, &s.Market, &s.Timestamp, &s.RegimeID, &label, &s.Confidence, &s.MetricsJSON); err != nil {
			return nil, fmt.Errorf("scan regime snapshot: %w", err)
		}
		s.Label = domain.RegimeLabel(label)
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanRegime(row *sql.Row) (domain.RegimeSnapshot, error) {
	var s domain.RegimeSnapshot
	var label string
	err := row.Scan(&s.ID, &s.Market, &s.Timestamp, &s.RegimeID, &label, &s.Confidence, &s.MetricsJSON)
	if err != nil {
		return s, err
	}
	s.Label = domain.RegimeLabel(label)
	return s, nil
}

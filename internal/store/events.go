package store

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/ats/internal/domain"
)

// EventRepository persists operator-facing events (§4.6's "post_event" calls).
type EventRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewEventRepository(db *sql.DB, log zerolog.Logger) *EventRepository {
	return &EventRepository{db: db, log: log.With().Str("repo", "event").Logger()}
}

func (r *EventRepository) Create(e domain.Event) (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO events (trader_name, level, kind, message) VALUES (?, ?, ?, ?)`,
		e.TraderName, e.Level, e.Kind, e.Message)
	if err != nil {
		return 0, fmt.Errorf("create event: %w", err)
	}

	logEvt := r.log.Info()
	switch e.Level {
	case "WARN":
		logEvt = r.log.Warn()
	case "ERROR", "CRITICAL":
		logEvt = r.log.Error()
	}
	logEvt.Str("trader", e.TraderName).Str("kind", e.Kind).Msg(e.Message)

	return res.LastInsertId()
}

func (r *EventRepository) Recent(traderName string, limit int) ([]domain.Event, error) {
	rows, err := r.db.Query(`
		SELECT id, trader_name, level, kind, message, created_at
		FROM events WHERE trader_name = ? ORDER BY created_at DESC LIMIT ?`, traderName, limit)
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", traderName, err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TraderName, &e.Level, &e.Kind, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/ats/internal/domain"
)

// TradeRepository persists signals and orders; the order ledger it keeps is
// what HoldingsRepository.Reconstruct replays to decide "is this symbol
// held", never a cached Position row (spec.md §9 cold-start resolution).
type TradeRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewTradeRepository(db *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{db: db, log: log.With().Str("repo", "trade").Logger()}
}

func (r *TradeRepository) CreateSignal(s domain.Signal) (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO signals (trader_name, symbol, total_score, scores_json, regime, action, reason_codes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.TraderName, s.Symbol, s.TotalScore, s.ScoresJSON, string(s.Regime), string(s.Action), strings.Join(s.ReasonCodes, ","))
	if err != nil {
		return 0, fmt.Errorf("create signal for %s/%s: %w", s.TraderName, s.Symbol, err)
	}
	return res.LastInsertId()
}

func (r *TradeRepository) CreateOrder(o domain.Order) (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO orders (trader_name, order_id, symbol, side, price, size, status, filled_qty, avg_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.TraderName, o.OrderID, o.Symbol, string(o.Side), o.Price, o.Size, string(o.Status), o.FilledQty, o.AvgPrice)
	if err != nil {
		return 0, fmt.Errorf("create order %s: %w", o.OrderID, err)
	}
	r.log.Info().Str("trader", o.TraderName).Str("symbol", o.Symbol).Str("side", string(o.Side)).
		Float64("filled_qty", o.FilledQty).Msg("order recorded")
	return res.LastInsertId()
}

// OrdersFor returns every order for (trader, symbol) oldest first — the
// replay order HoldingsRepository.Reconstruct depends on.
func (r *TradeRepository) OrdersFor(traderName, symbol string) ([]domain.Order, error) {
	rows, err := r.db.Query(`
		SELECT id, trader_name, order_id, symbol, side, price, size, status, filled_qty, avg_price, created_at
		FROM orders WHERE trader_name = ? AND symbol = ? ORDER BY created_at ASC`, traderName, symbol)
	if err != nil {
		return nil, fmt.Errorf("list orders for %s/%s: %w", traderName, symbol, err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SymbolsTraded returns every distinct symbol a trader has ever ordered,
// the candidate set HoldingsRepository.Reconstruct must replay.
func (r *TradeRepository) SymbolsTraded(traderName string) ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT symbol FROM orders WHERE trader_name = ?`, traderName)
	if err != nil {
		return nil, fmt.Errorf("list traded symbols for %s: %w", traderName, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

func scanOrder(rows *sql.Rows) (domain.Order, error) {
	var o domain.Order
	var side, status string
	err := rows.Scan(&o.ID, &o.TraderName, &o.OrderID, &o.Symbol, &side, &o.Price, &o.Size, &status,
		&o.FilledQty, &o.AvgPrice, &o.CreatedAt)
	if err != nil {
		return o, err
	}
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/ats/internal/domain"
)

const blacklistCooldown = 10 * time.Minute

// OrderSubmitter places one market order part on the live exchange. Implemented
// per-credential by whatever package wires real exchange auth; the executor
// itself stays exchange-agnostic.
type OrderSubmitter interface {
	SubmitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, size float64) (orderID string, filledQty, avgPrice float64, err error)
}

// OrderRecorder appends a FILLED/PARTIAL order row to the ledger. Satisfied
// directly by store.TradeRepository in-process, or by an csclient adapter
// when the executor runs inside an isolated trader worker process (§5).
type OrderRecorder interface {
	CreateOrder(domain.Order) (int64, error)
}

// ExecResult is execute_order's unified paper/live return contract (§4.5).
type ExecResult struct {
	Success   bool
	OrderID   string
	FilledQty float64
	AvgPrice  float64
	Error     string
}

// Executor unifies paper simulation and live split-fill execution behind one
// entry point, with a time-boxed symbol blacklist on repeated failure.
type Executor struct {
	client    *Client
	trades    OrderRecorder
	submitter OrderSubmitter
	mu        sync.Mutex
	blacklist map[string]time.Time
	log       zerolog.Logger
}

func NewExecutor(client *Client, trades OrderRecorder, submitter OrderSubmitter, log zerolog.Logger) *Executor {
	return &Executor{
		client:    client,
		trades:    trades,
		submitter: submitter,
		blacklist: make(map[string]time.Time),
		log:       log.With().Str("component", "executor").Logger(),
	}
}

// isBlacklisted reports whether symbol is within its cooldown window.
func (e *Executor) isBlacklisted(symbol string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	until, ok := e.blacklist[symbol]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(e.blacklist, symbol)
		return false
	}
	return true
}

func (e *Executor) blacklistSymbol(symbol string) {
	e.mu.Lock()
	e.blacklist[symbol] = time.Now().Add(blacklistCooldown)
	e.mu.Unlock()
	e.log.Warn().Str("symbol", symbol).Dur("cooldown", blacklistCooldown).Msg("symbol blacklisted after repeated order failure")
}

// ExecuteOrder is the single order-execution entry point for both run modes.
func (e *Executor) ExecuteOrder(ctx context.Context, trader domain.Trader, symbol string, side domain.OrderSide, price, size float64, splitCount, maxRetries int) ExecResult {
	if e.isBlacklisted(symbol) {
		return ExecResult{Success: false, Error: "블랙리스트 차단"}
	}

	var result ExecResult
	if trader.RunMode == domain.RunPaper {
		result = e.executePaper(ctx, trader, symbol, side, size)
	} else {
		if splitCount < 1 {
			splitCount = 1
		}
		if maxRetries < 1 {
			maxRetries = 1
		}
		result = e.executeLive(ctx, trader, symbol, side, size, splitCount, maxRetries)
	}
	return result
}

// executePaper simulates a fill against the current ticker with uniform
// +/-0.1% slippage and records a FILLED order row.
func (e *Executor) executePaper(ctx context.Context, trader domain.Trader, symbol string, side domain.OrderSide, size float64) ExecResult {
	ticker, err := e.client.GetTicker(ctx, symbol)
	if err != nil {
		return ExecResult{Success: false, Error: fmt.Sprintf("paper fetch ticker: %v", err)}
	}

	slippage := (rand.Float64()*2 - 1) * 0.001 // uniform in [-0.1%, +0.1%]
	fillPrice := ticker.Price * (1 + slippage)

	var filledQty float64
	switch side {
	case domain.SideBuy:
		// size is a KRW notional for BUY; filled quantity is the coin amount.
		filledQty = size / fillPrice
	default:
		filledQty = size
	}

	orderID := "paper-" + uuid.NewString()
	order := domain.Order{
		TraderName: trader.Name,
		OrderID:    orderID,
		Symbol:     symbol,
		Side:       side,
		Price:      fillPrice,
		Size:       size,
		Status:     domain.OrderFilled,
		FilledQty:  filledQty,
		AvgPrice:   fillPrice,
	}
	if _, err := e.trades.CreateOrder(order); err != nil {
		return ExecResult{Success: false, Error: fmt.Sprintf("record paper order: %v", err)}
	}

	return ExecResult{Success: true, OrderID: orderID, FilledQty: filledQty, AvgPrice: fillPrice}
}

// executeLive splits size into splitCount equal parts and retries each part
// independently, blacklisting the symbol if a part exhausts its retries.
func (e *Executor) executeLive(ctx context.Context, trader domain.Trader, symbol string, side domain.OrderSide, size float64, splitCount, maxRetries int) ExecResult {
	partSize := size / float64(splitCount)
	var totalFilled, weightedPriceSum float64
	var lastErr error
	anyFilled := false
	var orderIDs []string

	for part := 0; part < splitCount; part++ {
		filledQty, avgPrice, orderID, err := e.submitPartWithRetry(ctx, symbol, side, partSize, maxRetries)
		if err != nil {
			lastErr = err
			e.blacklistSymbol(symbol)
			continue
		}
		anyFilled = true
		totalFilled += filledQty
		weightedPriceSum += filledQty * avgPrice
		orderIDs = append(orderIDs, orderID)
	}

	if !anyFilled {
		return ExecResult{Success: false, Error: fmt.Sprintf("all %d parts failed: %v", splitCount, lastErr)}
	}

	avgPrice := weightedPriceSum / totalFilled
	status := domain.OrderFilled
	if len(orderIDs) < splitCount {
		status = domain.OrderPartial
	}

	orderID := orderIDs[0]
	order := domain.Order{
		TraderName: trader.Name,
		OrderID:    orderID,
		Symbol:     symbol,
		Side:       side,
		Price:      avgPrice,
		Size:       size,
		Status:     status,
		FilledQty:  totalFilled,
		AvgPrice:   avgPrice,
	}
	if _, err := e.trades.CreateOrder(order); err != nil {
		return ExecResult{Success: false, Error: fmt.Sprintf("record live order: %v", err)}
	}

	return ExecResult{Success: status == domain.OrderFilled || status == domain.OrderPartial, OrderID: orderID, FilledQty: totalFilled, AvgPrice: avgPrice}
}

func (e *Executor) submitPartWithRetry(ctx context.Context, symbol string, side domain.OrderSide, size float64, maxRetries int) (filledQty, avgPrice float64, orderID string, err error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		orderID, filledQty, avgPrice, err = e.submitter.SubmitMarketOrder(ctx, symbol, side, size)
		if err == nil {
			return filledQty, avgPrice, orderID, nil
		}
		e.log.Warn().Err(err).Str("symbol", symbol).Int("attempt", attempt+1).Msg("order part failed")
		time.Sleep(backoffOther(attempt))
	}
	return 0, 0, "", fmt.Errorf("exhausted %d retries: %w", maxRetries, err)
}

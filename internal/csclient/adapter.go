package csclient

import (
	"context"

	"github.com/aristath/ats/internal/domain"
	"github.com/aristath/ats/internal/safety"
)

// Adapter presents Client through the no-context, store-shaped method sets
// internal/engine and internal/gateway depend on, so a trader worker process
// wires exactly the same interfaces whether it talks to the Control Store
// over HTTP (here) or, in a test, to an in-memory fake. Every method uses a
// background context with the Client's own per-call deadline (§5: "every
// outbound HTTP call has a per-call deadline (3-10s)").
type Adapter struct {
	*Client
}

// NewAdapter wraps c for engine/gateway consumption.
func NewAdapter(c *Client) Adapter { return Adapter{Client: c} }

func (a Adapter) GetByName(name string) (domain.Trader, error) {
	return a.Client.GetTrader(context.Background(), name)
}

func (a Adapter) Heartbeat(name string) error {
	return a.Client.Heartbeat(context.Background(), name)
}

func (a Adapter) Latest(market string) (domain.RegimeSnapshot, error) {
	return a.Client.LatestRegime(context.Background(), market)
}

func (a Adapter) Weight(label domain.RegimeLabel, strategyID string) (float64, error) {
	return a.Client.BanditWeight(context.Background(), label, strategyID)
}

func (a Adapter) Update(label domain.RegimeLabel, strategyID string, win bool) error {
	return a.Client.UpdateBandit(context.Background(), label, strategyID, win)
}

func (a Adapter) Active(strategyID string) (domain.ConfigVersion, error) {
	return a.Client.ActiveConfig(context.Background(), strategyID)
}

func (a Adapter) CreateSignal(s domain.Signal) error {
	return a.Client.CreateSignal(context.Background(), s)
}

func (a Adapter) CreateOrder(o domain.Order) (int64, error) {
	return a.Client.CreateOrder(context.Background(), o)
}

func (a Adapter) Reconstruct(traderName string) (map[string]domain.Position, error) {
	return a.Client.Holdings(context.Background(), traderName)
}

func (a Adapter) UpdatePnL(traderName string, realizedKRW float64) (domain.TraderSafetyState, error) {
	return a.Client.UpdatePnL(context.Background(), traderName, realizedKRW)
}

func (a Adapter) ReportSlippage(traderName string, expected, actual float64) error {
	return a.Client.ReportSlippage(context.Background(), traderName, expected, actual)
}

func (a Adapter) ReportAPIError(traderName string) error {
	return a.Client.ReportAPIError(context.Background(), traderName)
}

func (a Adapter) ReportDBError(traderName string) error {
	return a.Client.ReportDBError(context.Background(), traderName)
}

func (a Adapter) ReportPanic(traderName string) error {
	return a.Client.ReportPanic(context.Background(), traderName)
}

func (a Adapter) CheckEntry(traderName string) (safety.Decision, error) {
	return a.Client.CheckEntry(context.Background(), traderName)
}

func (a Adapter) Create(e domain.Event) (int64, error) {
	return 0, a.Client.CreateEvent(context.Background(), e.TraderName, e.Level, e.Kind, e.Message)
}

// Package csclient is the HTTP client every fleet process other than the
// Control Store itself uses to reach its RPC surface (§6). It is the only
// way a Trader Worker, Regime Classifier or Trainer process touches
// persistent state: per §5, processes are isolated with no shared memory,
// so every read of trader config, regime/bandit weights, or holdings, and
// every write of a signal, order, safety event or regime snapshot, crosses
// this client as one JSON request/response.
package csclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aristath/ats/internal/domain"
	"github.com/aristath/ats/internal/safety"
)

// defaultTimeout bounds every outbound call (§5: "every outbound HTTP call
// has a per-call deadline (3-10s)").
const defaultTimeout = 8 * time.Second

// Client wraps the Control Store's base URL; one instance is shared by a
// single worker process across its whole lifetime.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New builds a Client pointed at the Control Store's API_BASE.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// ErrNotFound mirrors store.ErrNotFound for callers that need to distinguish
// "missing" from other failures without depending on the control store's
// internal package.
var ErrNotFound = fmt.Errorf("control store: not found")

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetTrader fetches a trader's self-config row.
func (c *Client) GetTrader(ctx context.Context, name string) (domain.Trader, error) {
	var t domain.Trader
	err := c.do(ctx, http.MethodGet, "/api/traders/"+url.PathEscape(name), nil, nil, &t)
	return t, err
}

// Heartbeat records that a trader process completed an iteration.
func (c *Client) Heartbeat(ctx context.Context, traderName string) error {
	return c.do(ctx, http.MethodPost, "/api/traders/"+url.PathEscape(traderName)+"/heartbeat", nil, nil, nil)
}

// DecryptCredential returns the plaintext access/secret key pair for a named credential.
func (c *Client) DecryptCredential(ctx context.Context, name string) (accessKey, secretKey string, err error) {
	var out struct {
		AccessKey string `json:"access_key"`
		SecretKey string `json:"secret_key"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/credentials/"+url.PathEscape(name)+"/decrypt", nil, nil, &out); err != nil {
		return "", "", err
	}
	return out.AccessKey, out.SecretKey, nil
}

// LatestRegime returns the most recent RegimeSnapshot for market.
func (c *Client) LatestRegime(ctx context.Context, market string) (domain.RegimeSnapshot, error) {
	q := url.Values{"market": {market}, "limit": {"1"}}
	var snapshots []domain.RegimeSnapshot
	if err := c.do(ctx, http.MethodGet, "/api/regimes/snapshots", q, nil, &snapshots); err != nil {
		return domain.RegimeSnapshot{}, err
	}
	if len(snapshots) == 0 {
		return domain.RegimeSnapshot{}, ErrNotFound
	}
	return snapshots[0], nil
}

// CreateRegimeSnapshot appends a new classification tick.
func (c *Client) CreateRegimeSnapshot(ctx context.Context, snap domain.RegimeSnapshot) error {
	req := map[string]interface{}{
		"market":       snap.Market,
		"regime_id":    snap.RegimeID,
		"label":        string(snap.Label),
		"confidence":   snap.Confidence,
		"metrics_json": snap.MetricsJSON,
	}
	return c.do(ctx, http.MethodPost, "/api/regimes/snapshot", nil, req, nil)
}

// BanditWeight returns the Thompson-sampled weight for (label, strategy),
// the value the §4.1f final-score formula multiplies by directly.
func (c *Client) BanditWeight(ctx context.Context, label domain.RegimeLabel, strategyID string) (float64, error) {
	var out struct {
		Weight float64 `json:"weight"`
	}
	path := "/api/regimes/weight/" + url.PathEscape(string(label)) + "/" + url.PathEscape(strategyID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return 1.0, err
	}
	return out.Weight, nil
}

// UpdateBandit applies a realized trade outcome to (label, strategy)'s posterior.
func (c *Client) UpdateBandit(ctx context.Context, label domain.RegimeLabel, strategyID string, win bool) error {
	path := "/api/regimes/bandit/" + url.PathEscape(string(label)) + "/" + url.PathEscape(strategyID) + "/update"
	return c.do(ctx, http.MethodPost, path, nil, map[string]bool{"win": win}, nil)
}

// RegimeWeight returns the confidence-scaled regime weight for label given a
// caller-supplied base weight.
func (c *Client) RegimeWeight(ctx context.Context, label domain.RegimeLabel, market string, baseWeight float64) (float64, error) {
	q := url.Values{"market": {market}, "base_weight": {fmt.Sprintf("%g", baseWeight)}}
	var out struct {
		Weight float64 `json:"weight"`
	}
	path := "/api/regimes/regime-weight/" + url.PathEscape(string(label))
	if err := c.do(ctx, http.MethodGet, path, q, nil, &out); err != nil {
		return 0, err
	}
	return out.Weight, nil
}

// ActiveConfig fetches strategyID's active ConfigVersion. ErrNotFound means
// the strategy has never activated one; callers fall back to built-in defaults.
func (c *Client) ActiveConfig(ctx context.Context, strategyID string) (domain.ConfigVersion, error) {
	var cfg domain.ConfigVersion
	q := url.Values{"strategy_id": {strategyID}}
	err := c.do(ctx, http.MethodGet, "/api/configs/active", q, nil, &cfg)
	return cfg, err
}

// CreateSignal appends a Signal row.
func (c *Client) CreateSignal(ctx context.Context, s domain.Signal) error {
	req := map[string]interface{}{
		"trader_name":  s.TraderName,
		"symbol":       s.Symbol,
		"total_score":  s.TotalScore,
		"scores_json":  s.ScoresJSON,
		"regime":       string(s.Regime),
		"action":       string(s.Action),
		"reason_codes": s.ReasonCodes,
	}
	return c.do(ctx, http.MethodPost, "/api/trades/signal", nil, req, nil)
}

// CreateOrder appends an Order row and returns its assigned id.
func (c *Client) CreateOrder(ctx context.Context, o domain.Order) (int64, error) {
	req := map[string]interface{}{
		"trader_name": o.TraderName,
		"order_id":    o.OrderID,
		"symbol":      o.Symbol,
		"side":        string(o.Side),
		"price":       o.Price,
		"size":        o.Size,
		"status":      string(o.Status),
		"filled_qty":  o.FilledQty,
		"avg_price":   o.AvgPrice,
	}
	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/trades/order", nil, req, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// Holdings reconstructs currently-open positions for traderName from the order ledger.
func (c *Client) Holdings(ctx context.Context, traderName string) (map[string]domain.Position, error) {
	q := url.Values{"trader_name": {traderName}}
	var out map[string]domain.Position
	if err := c.do(ctx, http.MethodGet, "/api/trades/holdings", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdatePnL reports a closed trade's realized PnL, applying it to the
// Runtime Guard's loss counters and the trader's cumulative PnL in one
// Control Store request; the two are separate writes, not one transaction.
func (c *Client) UpdatePnL(ctx context.Context, traderName string, realizedKRW float64) (domain.TraderSafetyState, error) {
	var state domain.TraderSafetyState
	req := map[string]float64{"realized_krw": realizedKRW}
	err := c.do(ctx, http.MethodPost, "/api/safety/"+url.PathEscape(traderName)+"/update_pnl", nil, req, &state)
	return state, err
}

// ReportSlippage registers one fill's actual-vs-expected slippage.
func (c *Client) ReportSlippage(ctx context.Context, traderName string, expected, actual float64) error {
	req := map[string]float64{"expected": expected, "actual": actual}
	return c.do(ctx, http.MethodPost, "/api/safety/"+url.PathEscape(traderName)+"/slippage", nil, req, nil)
}

// ReportAPIError registers one exchange-gateway failure.
func (c *Client) ReportAPIError(ctx context.Context, traderName string) error {
	return c.do(ctx, http.MethodPost, "/api/safety/"+url.PathEscape(traderName)+"/api_error", nil, nil, nil)
}

// ReportDBError registers one Control Store call failure.
func (c *Client) ReportDBError(ctx context.Context, traderName string) error {
	return c.do(ctx, http.MethodPost, "/api/safety/"+url.PathEscape(traderName)+"/db_error", nil, nil, nil)
}

// ReportPanic registers that the current tick's regime classification is PANIC.
func (c *Client) ReportPanic(ctx context.Context, traderName string) error {
	return c.do(ctx, http.MethodPost, "/api/safety/"+url.PathEscape(traderName)+"/panic", nil, nil, nil)
}

// CheckEntry returns whether traderName may emit an ENTRY this cycle.
func (c *Client) CheckEntry(ctx context.Context, traderName string) (safety.Decision, error) {
	var d safety.Decision
	err := c.do(ctx, http.MethodGet, "/api/safety/"+url.PathEscape(traderName)+"/check_entry", nil, nil, &d)
	return d, err
}

// CreateEvent appends a trader event row (heartbeats, loop errors, reason-coded diagnostics).
func (c *Client) CreateEvent(ctx context.Context, traderName, level, kind, message string) error {
	req := map[string]string{"trader_name": traderName, "level": level, "kind": kind, "message": message}
	return c.do(ctx, http.MethodPost, "/api/events/", nil, req, nil)
}

// TrainerScanResult is the trainer scan endpoint's response (§4.8).
type TrainerScanResult struct {
	RunID         int64 `json:"run_id"`
	SnapshotCount int64 `json:"snapshot_count"`
}

// TrainerScan runs one training-time feature scan for strategyID under the
// given regime label/confidence.
func (c *Client) TrainerScan(ctx context.Context, strategyID, regimeLabel string, regimeConfidence float64) (TrainerScanResult, error) {
	var res TrainerScanResult
	req := map[string]interface{}{
		"strategy_id":       strategyID,
		"regime_label":      regimeLabel,
		"regime_confidence": regimeConfidence,
	}
	err := c.do(ctx, http.MethodPost, "/api/trainer/scan", nil, req, &res)
	return res, err
}

// TrainerUpdateLabels attaches forward-return labels to feature snapshots
// old enough (minAge) to have realized outcomes.
func (c *Client) TrainerUpdateLabels(ctx context.Context, minAge time.Duration) (int, error) {
	var res struct {
		Updated int `json:"updated"`
	}
	req := map[string]int{"min_age_minutes": int(minAge.Minutes())}
	err := c.do(ctx, http.MethodPost, "/api/trainer/update-labels", nil, req, &res)
	return res.Updated, err
}

// TrainerTune runs the auto-tuning search over strategyID's latest labeled
// snapshots and returns the best trial's params as raw JSON.
func (c *Client) TrainerTune(ctx context.Context, strategyID string, trialCount int) (json.RawMessage, error) {
	var res json.RawMessage
	req := map[string]interface{}{"strategy_id": strategyID, "trial_count": trialCount}
	err := c.do(ctx, http.MethodPost, "/api/trainer/tune", nil, req, &res)
	return res, err
}

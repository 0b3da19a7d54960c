package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ats/internal/indicators"
)

// Ticker is one symbol's latest trade snapshot.
type Ticker struct {
	Symbol     string
	Price      float64
	High24h    float64
	Low24h     float64
	AccVolume  float64 // 24h coin volume
}

// Notional24h returns the approximate 24h KRW notional (price*volume).
func (t Ticker) Notional24h() float64 { return t.Price * t.AccVolume }

// OrderbookLevel is one bid or ask level.
type OrderbookLevel struct {
	Price float64
	Size  float64
}

// Orderbook holds the top-5 bid/ask levels for a symbol.
type Orderbook struct {
	Symbol string
	Bids   []OrderbookLevel
	Asks   []OrderbookLevel
}

// SpreadPct returns the best bid/ask spread as a percentage of mid price.
func (ob Orderbook) SpreadPct() float64 {
	if len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return 999
	}
	bid, ask := ob.Bids[0].Price, ob.Asks[0].Price
	if bid == 0 {
		return 999
	}
	return (ask - bid) / bid * 100
}

// Depth5KRW is the combined top-5 bid+ask notional, averaged (screener.py's avg_depth5).
func (ob Orderbook) Depth5KRW() float64 {
	sum := 0.0
	for _, l := range ob.Bids {
		sum += l.Price * l.Size
	}
	for _, l := range ob.Asks {
		sum += l.Price * l.Size
	}
	return sum / 2
}

// Client is the Exchange Gateway's REST client: batched fetches with
// per-group rate limiting and the §4.5 retry policy.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	buckets     *Buckets
	chunkSize   int
	maxRetries  int
	callDelay   time.Duration
	log         zerolog.Logger
}

// Config configures a Client from the trader worker's environment (§6).
type Config struct {
	BaseURL    string
	GroupRPS   int
	ChunkSize  int
	MaxRetries int
	CallDelay  time.Duration
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    cfg.BaseURL,
		buckets:    NewBuckets(cfg.GroupRPS),
		chunkSize:  cfg.ChunkSize,
		maxRetries: cfg.MaxRetries,
		callDelay:  cfg.CallDelay,
		log:        log.With().Str("component", "gateway-client").Logger(),
	}
}

// errAborted signals an 418 temp-ban: the caller treats it as missing data,
// never retries within this call.
var errAborted = fmt.Errorf("exchange temp ban (418)")

// doWithRetry issues req up to c.maxRetries times with the §4.5 backoff
// policy, returning the successful *http.Response (the caller reads and
// closes its body) or an error. A 418 response
// aborts immediately without exhausting retries.
func (c *Client) doWithRetry(ctx context.Context, bucket *Bucket, req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		bucket.Wait()

		resp, err := c.httpClient.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = err
			sleep(backoffNetwork(attempt))
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			sleep(backoff429(attempt))
			continue
		case resp.StatusCode == 418:
			resp.Body.Close()
			time.Sleep(tempBanSleep())
			return nil, errAborted
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			c.applyRemainingHeader(bucket, resp)
			return resp, nil
		default:
			resp.Body.Close()
			sleep(backoffOther(attempt))
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("exhausted retries")
	}
	return nil, lastErr
}

func (c *Client) applyRemainingHeader(bucket *Bucket, resp *http.Response) {
	remaining := resp.Header.Get("Remaining-Req")
	if remaining == "" {
		return
	}
	// vendor header shape: "group=market; min=59; sec=0"
	for _, part := range strings.Split(remaining, ";") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 && kv[0] == "sec" {
			if sec, err := strconv.Atoi(kv[1]); err == nil {
				bucket.NoteRemaining(sec, jitterDuration(150, 350))
			}
		}
	}
}

func sleep(d time.Duration) { time.Sleep(d) }

func backoff429(attempt int) time.Duration {
	base := 0.25 * pow2(attempt)
	return jitterAround(base)
}

func backoffNetwork(attempt int) time.Duration {
	base := 0.2 * pow2(attempt)
	return jitterAround(base)
}

func backoffOther(attempt int) time.Duration {
	return time.Duration(0.15*float64(attempt+1)*1000) * time.Millisecond
}

func tempBanSleep() time.Duration {
	return jitterDuration(3000, 5000)
}

func pow2(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 2
	}
	return v
}

func jitterAround(baseSeconds float64) time.Duration {
	jitterMs := rand.Intn(100)
	return time.Duration(baseSeconds*1000)*time.Millisecond + time.Duration(jitterMs)*time.Millisecond
}

func jitterDuration(minMs, maxMs int) time.Duration {
	return time.Duration(minMs+rand.Intn(maxMs-minMs+1)) * time.Millisecond
}

// GetTickers batches a dedup'd symbol list into chunkSize-sized requests and
// merges the results into a symbol-keyed map (§4.5 batching).
func (c *Client) GetTickers(ctx context.Context, symbols []string) (map[string]Ticker, error) {
	out := make(map[string]Ticker, len(symbols))
	for _, chunk := range chunkStrings(dedupe(symbols), c.chunkSize) {
		q := url.Values{"markets": {strings.Join(chunk, ",")}}
		req, err := http.NewRequest(http.MethodGet, c.baseURL+"/v1/ticker?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("build ticker request: %w", err)
		}
		resp, err := c.doWithRetry(ctx, c.buckets.Ticker, req)
		if err != nil {
			c.log.Warn().Err(err).Int("chunk_size", len(chunk)).Msg("ticker fetch failed")
			continue
		}
		var payload []struct {
			Market         string  `json:"market"`
			TradePrice     float64 `json:"trade_price"`
			HighPrice      float64 `json:"high_price"`
			LowPrice       float64 `json:"low_price"`
			AccTradeVolume float64 `json:"acc_trade_volume_24h"`
		}
		err = json.NewDecoder(resp.Body).Decode(&payload)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode ticker response: %w", err)
		}
		for _, t := range payload {
			out[t.Market] = Ticker{Symbol: t.Market, Price: t.TradePrice, High24h: t.HighPrice, Low24h: t.LowPrice, AccVolume: t.AccTradeVolume}
		}
	}
	return out, nil
}

// GetTicker routes through the batched path so it inherits rate limits.
func (c *Client) GetTicker(ctx context.Context, symbol string) (Ticker, error) {
	all, err := c.GetTickers(ctx, []string{symbol})
	if err != nil {
		return Ticker{}, err
	}
	t, ok := all[symbol]
	if !ok {
		return Ticker{}, fmt.Errorf("no ticker for %s", symbol)
	}
	return t, nil
}

// GetOrderbooks batches an orderbook fetch exactly like GetTickers.
func (c *Client) GetOrderbooks(ctx context.Context, symbols []string) (map[string]Orderbook, error) {
	out := make(map[string]Orderbook, len(symbols))
	for _, chunk := range chunkStrings(dedupe(symbols), c.chunkSize) {
		q := url.Values{"markets": {strings.Join(chunk, ",")}}
		req, err := http.NewRequest(http.MethodGet, c.baseURL+"/v1/orderbook?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("build orderbook request: %w", err)
		}
		resp, err := c.doWithRetry(ctx, c.buckets.Orderbook, req)
		if err != nil {
			c.log.Warn().Err(err).Msg("orderbook fetch failed")
			continue
		}
		var payload []struct {
			Market          string `json:"market"`
			OrderbookUnits []struct {
				AskPrice float64 `json:"ask_price"`
				BidPrice float64 `json:"bid_price"`
				AskSize  float64 `json:"ask_size"`
				BidSize  float64 `json:"bid_size"`
			} `json:"orderbook_units"`
		}
		err = json.NewDecoder(resp.Body).Decode(&payload)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode orderbook response: %w", err)
		}
		for _, p := range payload {
			ob := Orderbook{Symbol: p.Market}
			for i, u := range p.OrderbookUnits {
				if i >= 5 {
					break
				}
				ob.Bids = append(ob.Bids, OrderbookLevel{Price: u.BidPrice, Size: u.BidSize})
				ob.Asks = append(ob.Asks, OrderbookLevel{Price: u.AskPrice, Size: u.AskSize})
			}
			out[p.Market] = ob
		}
	}
	return out, nil
}

func (c *Client) GetOrderbook(ctx context.Context, symbol string) (Orderbook, error) {
	all, err := c.GetOrderbooks(ctx, []string{symbol})
	if err != nil {
		return Orderbook{}, err
	}
	ob, ok := all[symbol]
	if !ok {
		return Orderbook{}, fmt.Errorf("no orderbook for %s", symbol)
	}
	return ob, nil
}

// GetCandles fetches count hourly (or other unit) candles for one symbol,
// oldest-first. Single-symbol calls still go through the market bucket, with
// the configured inter-call sleep between successive calls within one
// scoring pass (§4.1's "minimum inter-call sleep").
func (c *Client) GetCandles(ctx context.Context, symbol, unit string, count int) ([]indicators.Candle, error) {
	q := url.Values{"market": {symbol}, "count": {strconv.Itoa(count)}}
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/v1/candles/"+unit+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build candle request: %w", err)
	}
	resp, err := c.doWithRetry(ctx, c.buckets.Market, req)
	if err != nil {
		return nil, fmt.Errorf("fetch candles for %s: %w", symbol, err)
	}
	defer resp.Body.Close()
	time.Sleep(c.callDelay)

	var payload []struct {
		Open  float64 `json:"opening_price"`
		High  float64 `json:"high_price"`
		Low   float64 `json:"low_price"`
		Close float64 `json:"trade_price"`
		Vol   float64 `json:"candle_acc_trade_volume"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode candle response for %s: %w", symbol, err)
	}

	candles := make([]indicators.Candle, len(payload))
	// exchange APIs return newest-first; reverse to oldest-first for indicators.
	for i, p := range payload {
		candles[len(payload)-1-i] = indicators.Candle{Open: p.Open, High: p.High, Low: p.Low, Close: p.Close, Volume: p.Vol}
	}
	return candles, nil
}

// AllKRWMarkets lists every KRW-quoted market symbol.
func (c *Client) AllKRWMarkets(ctx context.Context) ([]string, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/v1/market/all", nil)
	if err != nil {
		return nil, fmt.Errorf("build market list request: %w", err)
	}
	resp, err := c.doWithRetry(ctx, c.buckets.Market, req)
	if err != nil {
		return nil, fmt.Errorf("fetch market list: %w", err)
	}
	defer resp.Body.Close()

	var payload []struct {
		Market string `json:"market"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode market list: %w", err)
	}
	var out []string
	for _, m := range payload {
		if strings.HasPrefix(m.Market, "KRW-") {
			out = append(out, m.Market)
		}
	}
	return out, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func chunkStrings(in []string, size int) [][]string {
	if size <= 0 {
		size = len(in)
	}
	var out [][]string
	for i := 0; i < len(in); i += size {
		end := i + size
		if end > len(in) {
			end = len(in)
		}
		out = append(out, in[i:end])
	}
	return out
}

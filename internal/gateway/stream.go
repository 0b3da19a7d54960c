package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	streamWriteWait          = 10 * time.Second
	streamDialTimeout        = 30 * time.Second
	streamBaseReconnectDelay = 5 * time.Second
	streamMaxReconnectDelay  = 5 * time.Minute
	streamMaxReconnectAttempts = 10
	streamCacheStaleThreshold = 5 * time.Minute
)

// TickerStream maintains a realtime ticker cache fed by a websocket
// subscription, falling back to REST polling whenever the socket is down
// (adapted from the teacher's Tradernet market-status websocket client).
type TickerStream struct {
	url     string
	symbols []string
	fallback *Client

	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	mu         sync.RWMutex
	connected  bool
	stopped    bool
	stopChan   chan struct{}

	cache    map[string]Ticker
	lastUpdate time.Time
	cacheMu  sync.RWMutex

	pollInterval time.Duration
	log          zerolog.Logger
}

func NewTickerStream(url string, symbols []string, fallback *Client, pollInterval time.Duration, log zerolog.Logger) *TickerStream {
	return &TickerStream{
		url:          url,
		symbols:      symbols,
		fallback:     fallback,
		cache:        make(map[string]Ticker),
		stopChan:     make(chan struct{}),
		pollInterval: pollInterval,
		log:          log.With().Str("component", "ticker_stream").Logger(),
	}
}

// Start dials the websocket and, on failure, begins REST-polling fallback
// immediately while the reconnect loop keeps retrying in the background.
func (s *TickerStream) Start(ctx context.Context) {
	go s.pollFallback(ctx)

	if err := s.connect(ctx); err != nil {
		s.log.Warn().Err(err).Msg("initial ticker stream connect failed, relying on REST fallback")
		go s.reconnectLoop(ctx)
		return
	}
	s.mu.RLock()
	connCtx := s.connCtx
	s.mu.RUnlock()
	go s.readLoop(connCtx)
}

func (s *TickerStream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	close(s.stopChan)
	s.disconnect()
}

func (s *TickerStream) connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, streamDialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial ticker stream: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	s.conn = conn
	s.connCtx = connCtx
	s.cancelFunc = connCancel
	s.connected = true

	sub, err := json.Marshal([]map[string]interface{}{
		{"ticket": "ats-ticker-stream"},
		{"type": "ticker", "codes": s.symbols},
	})
	if err != nil {
		return fmt.Errorf("marshal subscription: %w", err)
	}
	writeCtx, writeCancel := context.WithTimeout(connCtx, streamWriteWait)
	defer writeCancel()
	if err := conn.Write(writeCtx, websocket.MessageText, sub); err != nil {
		connCancel()
		conn.Close(websocket.StatusNormalClosure, "subscribe failed")
		s.conn, s.connCtx, s.cancelFunc, s.connected = nil, nil, nil, false
		return fmt.Errorf("subscribe ticker stream: %w", err)
	}
	return nil
}

func (s *TickerStream) disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.conn.Close(websocket.StatusNormalClosure, "")
	s.conn, s.connCtx, s.cancelFunc, s.connected = nil, nil, nil, false
}

func (s *TickerStream) readLoop(ctx context.Context) {
	defer func() {
		s.mu.RLock()
		stopped := s.stopped
		s.mu.RUnlock()
		if !stopped {
			go s.reconnectLoop(ctx)
		}
	}()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		msgType, data, err := conn.Read(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("ticker stream read error, will reconnect")
			return
		}
		if msgType != websocket.MessageText && msgType != websocket.MessageBinary {
			continue
		}
		if err := s.handleMessage(data); err != nil {
			s.log.Error().Err(err).Msg("failed to handle ticker stream message")
		}
	}
}

func (s *TickerStream) handleMessage(data []byte) error {
	var payload struct {
		Code           string  `json:"code"`
		TradePrice     float64 `json:"trade_price"`
		HighPrice      float64 `json:"high_price"`
		LowPrice       float64 `json:"low_price"`
		AccTradeVolume float64 `json:"acc_trade_volume_24h"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("unmarshal ticker message: %w", err)
	}
	if payload.Code == "" {
		return nil
	}

	s.cacheMu.Lock()
	s.cache[payload.Code] = Ticker{
		Symbol:    payload.Code,
		Price:     payload.TradePrice,
		High24h:   payload.HighPrice,
		Low24h:    payload.LowPrice,
		AccVolume: payload.AccTradeVolume,
	}
	s.lastUpdate = time.Now()
	s.cacheMu.Unlock()
	return nil
}

func (s *TickerStream) reconnectLoop(ctx context.Context) {
	attempt := 0
	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		attempt++
		delay := s.backoff(attempt)
		select {
		case <-time.After(delay):
		case <-s.stopChan:
			return
		}

		if err := s.connect(ctx); err != nil {
			s.log.Warn().Err(err).Int("attempt", attempt).Msg("ticker stream reconnect failed")
			continue
		}
		s.log.Info().Int("attempt", attempt).Msg("ticker stream reconnected")
		s.mu.RLock()
		connCtx := s.connCtx
		s.mu.RUnlock()
		go s.readLoop(connCtx)
		return
	}
}

func (s *TickerStream) backoff(attempt int) time.Duration {
	delay := float64(streamBaseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(streamMaxReconnectDelay) {
		delay = float64(streamMaxReconnectDelay)
	}
	return time.Duration(delay)
}

// pollFallback keeps the cache fresh via REST whenever the socket is
// disconnected or the cache has gone stale.
func (s *TickerStream) pollFallback(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.IsConnected() && !s.IsStale() {
				continue
			}
			tickers, err := s.fallback.GetTickers(ctx, s.symbols)
			if err != nil {
				s.log.Warn().Err(err).Msg("REST fallback ticker fetch failed")
				continue
			}
			s.cacheMu.Lock()
			for sym, t := range tickers {
				s.cache[sym] = t
			}
			s.lastUpdate = time.Now()
			s.cacheMu.Unlock()
		}
	}
}

func (s *TickerStream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *TickerStream) IsStale() bool {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	if s.lastUpdate.IsZero() {
		return true
	}
	return time.Since(s.lastUpdate) > streamCacheStaleThreshold
}

func (s *TickerStream) Get(symbol string) (Ticker, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	t, ok := s.cache[symbol]
	return t, ok
}

func (s *TickerStream) Snapshot() map[string]Ticker {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	out := make(map[string]Ticker, len(s.cache))
	for k, v := range s.cache {
		out[k] = v
	}
	return out
}

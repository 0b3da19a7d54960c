// Package screener filters the full KRW market list down to liquid,
// tight-spread, well-depthed candidates for scoring (§4.1b), grounded on the
// reference screener's volume/spread/depth filter chain.
package screener

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/ats/internal/gateway"
)

// Candidate is one market that survived the screen.
type Candidate struct {
	Symbol      string
	Volume24h   float64
	Spread      float64
	AvgDepth5   float64
	Volatility  float64
	CurrentPrice float64
	ReasonFlags []string
}

// Params configures one screening pass.
type Params struct {
	TopN          int
	MinVolume24h  float64
	MaxSpreadPct  float64
}

// DefaultParams mirrors the reference screener's defaults.
var DefaultParams = Params{TopN: 30, MinVolume24h: 100_000_000, MaxSpreadPct: 0.5}

type Screener struct {
	client *gateway.Client
	log    zerolog.Logger
}

func New(client *gateway.Client, log zerolog.Logger) *Screener {
	return &Screener{client: client, log: log.With().Str("component", "screener").Logger()}
}

// Screen fetches every KRW market's ticker and top-5 orderbook in batches,
// applies the volume/spread filters, tags reason flags, and returns the
// top params.TopN candidates sorted by descending 24h volume.
func (s *Screener) Screen(ctx context.Context, params Params) ([]Candidate, error) {
	markets, err := s.client.AllKRWMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}

	tickers, err := s.client.GetTickers(ctx, markets)
	if err != nil {
		return nil, fmt.Errorf("fetch tickers: %w", err)
	}

	// Only fetch orderbooks for symbols that already clear the volume bar;
	// this keeps the orderbook batch small on wide-market sweeps.
	var volumeSurvivors []string
	for _, symbol := range markets {
		t, ok := tickers[symbol]
		if !ok {
			continue
		}
		if t.Notional24h() >= params.MinVolume24h {
			volumeSurvivors = append(volumeSurvivors, symbol)
		}
	}

	orderbooks, err := s.client.GetOrderbooks(ctx, volumeSurvivors)
	if err != nil {
		return nil, fmt.Errorf("fetch orderbooks: %w", err)
	}

	var candidates []Candidate
	for _, symbol := range volumeSurvivors {
		t := tickers[symbol]
		ob, ok := orderbooks[symbol]
		if !ok || len(ob.Bids) == 0 || len(ob.Asks) == 0 {
			continue
		}

		currentPrice := t.Price
		if currentPrice <= 0 {
			currentPrice = ob.Bids[0].Price
		}
		if currentPrice <= 0 {
			continue
		}

		spread := ob.SpreadPct()
		if spread > params.MaxSpreadPct {
			continue
		}

		volume24h := t.Notional24h()
		avgDepth5 := ob.Depth5KRW()
		volatility := (t.High24h - t.Low24h) / currentPrice * 100

		var flags []string
		if volume24h > params.MinVolume24h*5 {
			flags = append(flags, "HIGH_VOLUME")
		}
		if spread < params.MaxSpreadPct*0.5 {
			flags = append(flags, "TIGHT_SPREAD")
		}
		if avgDepth5 > volume24h*0.01 {
			flags = append(flags, "GOOD_DEPTH")
		}

		candidates = append(candidates, Candidate{
			Symbol:       symbol,
			Volume24h:    volume24h,
			Spread:       spread,
			AvgDepth5:    avgDepth5,
			Volatility:   volatility,
			CurrentPrice: currentPrice,
			ReasonFlags:  flags,
		})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Volume24h > candidates[j].Volume24h })

	if len(candidates) > params.TopN {
		candidates = candidates[:params.TopN]
	}

	s.log.Debug().Int("markets_scanned", len(markets)).Int("candidates", len(candidates)).Msg("screen complete")
	return candidates, nil
}

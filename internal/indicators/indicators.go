// Package indicators wraps github.com/markcheno/go-talib for the pure-function
// technical indicators the regime classifier and scorer need, plus the
// hand-written breadth/dispersion/whipsaw statistics spec.md §4.2 defines
// directly over candle closes rather than as named indicators.
package indicators

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// Candle is one OHLCV bar. Series are oldest-first, matching go-talib's
// expected ordering.
type Candle struct {
	Open, High, Low, Close, Volume float64
}

func split(candles []Candle) (open, high, low, close, volume []float64) {
	n := len(candles)
	open, high, low, close, volume = make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
	for i, c := range candles {
		open[i], high[i], low[i], close[i], volume[i] = c.Open, c.High, c.Low, c.Close, c.Volume
	}
	return
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i]
		}
	}
	return 0
}

// ADX returns the most recent Average Directional Index value over period bars.
func ADX(candles []Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}
	_, high, low, close, _ := split(candles)
	return lastValid(talib.Adx(high, low, close, period))
}

// ATRPct returns ATR as a percentage of the latest close (ATR/close*100).
func ATRPct(candles []Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}
	_, high, low, close, _ := split(candles)
	atr := lastValid(talib.Atr(high, low, close, period))
	lastClose := close[len(close)-1]
	if lastClose == 0 {
		return 0
	}
	return atr / lastClose * 100
}

// EMA returns the full EMA series for period, for callers (scorer) that need
// the trend of the line rather than just the latest value.
func EMA(closes []float64, period int) []float64 {
	if len(closes) < period {
		return nil
	}
	return talib.Ema(closes, period)
}

// RSI returns the most recent RSI value over period bars.
func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50
	}
	return lastValid(talib.Rsi(closes, period))
}

// BollingerBands returns the most recent upper/middle/lower band values.
func BollingerBands(closes []float64, period int, numStdDev float64) (upper, middle, lower float64) {
	if len(closes) < period {
		return 0, 0, 0
	}
	u, m, l := talib.BBands(closes, period, numStdDev, numStdDev, talib.SMA)
	return lastValid(u), lastValid(m), lastValid(l)
}

// Whipsaw measures directional-change density across the whole series: it
// slides a window+1-bar window over closes, counts up/down flips between
// consecutive non-flat bars in each, and divides the total by window*2,
// capped at 1. It returns 0 when closes has fewer than window*2 bars
// (original_source/regime-engine/indicators.py's calculate_whipsaw).
func Whipsaw(closes []float64, window int) float64 {
	if len(closes) < window*2 {
		return 0
	}
	directionChanges := 0
	for i := window; i < len(closes); i++ {
		recent := closes[i-window : i+1]
		var directions []int
		for j := 1; j < len(recent); j++ {
			switch {
			case recent[j] > recent[j-1]:
				directions = append(directions, 1)
			case recent[j] < recent[j-1]:
				directions = append(directions, -1)
			default:
				directions = append(directions, 0)
			}
		}
		for k := 1; k < len(directions); k++ {
			if directions[k] != directions[k-1] && directions[k] != 0 && directions[k-1] != 0 {
				directionChanges++
			}
		}
	}
	maxChanges := window * 2
	score := float64(directionChanges) / float64(maxChanges)
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// BreadthUp is the fraction of markets whose latest close is above their
// prior close.
func BreadthUp(lastTwoCloses [][2]float64) float64 {
	up, total := 0, 0
	for _, pair := range lastTwoCloses {
		prev, curr := pair[0], pair[1]
		if prev <= 0 {
			continue
		}
		total++
		if curr > prev {
			up++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(up) / float64(total)
}

// Dispersion is the standard deviation of per-market single-bar returns.
func Dispersion(lastTwoCloses [][2]float64) float64 {
	var returns []float64
	for _, pair := range lastTwoCloses {
		prev, curr := pair[0], pair[1]
		if prev <= 0 {
			continue
		}
		returns = append(returns, (curr-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}

// MarketValue is a market's latest close and trade volume, used to compute
// top-5 notional share.
type MarketValue struct {
	Market string
	Close  float64
	Volume float64
}

// Top5ValueShare returns the fraction of aggregate notional (close*volume)
// held by the top 5 markets by notional.
func Top5ValueShare(values []MarketValue) float64 {
	if len(values) < 5 {
		return 0
	}
	notional := make([]float64, len(values))
	total := 0.0
	for i, v := range values {
		notional[i] = v.Close * v.Volume
		total += notional[i]
	}
	if total == 0 {
		return 0
	}
	// partial selection sort for the top 5 — values are few dozen markets at most.
	sorted := append([]float64(nil), notional...)
	for i := 0; i < 5; i++ {
		maxIdx := i
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j] > sorted[maxIdx] {
				maxIdx = j
			}
		}
		sorted[i], sorted[maxIdx] = sorted[maxIdx], sorted[i]
	}
	top5 := 0.0
	for i := 0; i < 5; i++ {
		top5 += sorted[i]
	}
	return top5 / total
}

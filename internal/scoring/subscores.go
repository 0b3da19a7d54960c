// Package scoring computes the five §4.1(e) sub-scores, aggregates them with
// the default weights, and EMA-smooths the result per symbol (§4.1f).
package scoring

import (
	"math"

	"github.com/aristath/ats/internal/indicators"
)

// clamp bounds a sub-score into [0, 100].
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// TrendPullback rewards a pullback depth of 0.3-0.7 within the recent swing
// range (peak reward at 0.5), gated on EMA50 > EMA200.
func TrendPullback(closes []float64) (score float64, passed bool) {
	ema50 := indicators.EMA(closes, 50)
	ema200 := indicators.EMA(closes, 200)
	if len(ema50) == 0 || len(ema200) == 0 {
		return 0, false
	}
	if ema50[len(ema50)-1] <= ema200[len(ema200)-1] {
		return 0, false
	}

	window := closes
	if len(window) > 50 {
		window = window[len(window)-50:]
	}
	swingHigh, swingLow := window[0], window[0]
	for _, c := range window {
		if c > swingHigh {
			swingHigh = c
		}
		if c < swingLow {
			swingLow = c
		}
	}
	if swingHigh == swingLow {
		return 0, true
	}

	current := closes[len(closes)-1]
	depth := (swingHigh - current) / (swingHigh - swingLow)
	// triangular reward peaking at depth=0.5 within [0.3, 0.7], zero outside.
	if depth < 0.3 || depth > 0.7 {
		return 0, true
	}
	distanceFromPeak := math.Abs(depth - 0.5)
	score = clamp(100 * (1 - distanceFromPeak/0.2))
	return score, true
}

// VolatilityContractionBreakout requires the recent/prior 10-bar realized
// vol ratio under 0.8, then rewards an upward Bollinger breakout scaled by
// how tight the contraction was.
func VolatilityContractionBreakout(closes []float64) (score float64, passed bool) {
	if len(closes) < 21 {
		return 0, false
	}
	recent := closes[len(closes)-10:]
	prior := closes[len(closes)-20 : len(closes)-10]

	recentVol := stdDevOfReturns(recent)
	priorVol := stdDevOfReturns(prior)
	if priorVol == 0 || recentVol/priorVol >= 0.8 {
		return 0, false
	}
	contraction := 1 - recentVol/priorVol

	upper, _, _ := indicators.BollingerBands(closes, 20, 2.0)
	current := closes[len(closes)-1]
	if current <= upper {
		return 0, true
	}
	breakoutDepth := (current - upper) / upper
	score = clamp(50 + contraction*50 + breakoutDepth*1000)
	return score, true
}

func stdDevOfReturns(closes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}
	var returns []float64
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
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
	return math.Sqrt(variance / float64(len(returns)))
}

// LiquiditySweepReversal rewards a long-wicked last candle that pierces the
// 20-bar high/low and closes back on the opposite side.
func LiquiditySweepReversal(candles []indicators.Candle) (score float64, passed bool) {
	if len(candles) < 21 {
		return 0, false
	}
	window := candles[len(candles)-21 : len(candles)-1]
	high20, low20 := window[0].High, window[0].Low
	for _, c := range window {
		if c.High > high20 {
			high20 = c.High
		}
		if c.Low < low20 {
			low20 = c.Low
		}
	}

	last := candles[len(candles)-1]
	bodyHigh, bodyLow := math.Max(last.Open, last.Close), math.Min(last.Open, last.Close)

	switch {
	case last.Low < low20 && last.Close > last.Open:
		// swept the low, closed bullish: reward wick depth below the range.
		wick := bodyLow - last.Low
		rangeSize := high20 - low20
		if rangeSize <= 0 {
			return 0, true
		}
		return clamp(100 * wick / rangeSize * 3), true
	case last.High > high20 && last.Close < last.Open:
		wick := last.High - bodyHigh
		rangeSize := high20 - low20
		if rangeSize <= 0 {
			return 0, true
		}
		return clamp(100 * wick / rangeSize * 3), true
	default:
		return 0, true
	}
}

// LeaderFollower rewards outperformance vs. BTC's 20-bar return: pure
// outperformance in a BTC uptrend, relative resilience in a BTC downtrend.
func LeaderFollower(symbolCloses, btcCloses []float64) (score float64, passed bool) {
	if len(symbolCloses) < 21 || len(btcCloses) < 21 {
		return 0, false
	}
	symRet := ret20(symbolCloses)
	btcRet := ret20(btcCloses)
	relative := symRet - btcRet

	if btcRet >= 0 {
		score = clamp(50 + relative*1000)
	} else {
		// resilience: being flatter than BTC's decline is rewarded.
		score = clamp(50 + relative*500)
	}
	return score, true
}

func ret20(closes []float64) float64 {
	n := len(closes)
	start := closes[n-21]
	if start == 0 {
		return 0
	}
	return (closes[n-1] - start) / start
}

// RegimeModifier is the fixed per-regime table scaled by confidence (§4.1e).
var regimeModifierTable = map[string]float64{
	"TREND":             80,
	"RANGE":             50,
	"CHOP":              20,
	"PANIC":             0,
	"BREAKOUT_ROTATION": 70,
}

func RegimeModifier(label string, confidence float64) float64 {
	base, ok := regimeModifierTable[label]
	if !ok {
		base = 50
	}
	return clamp(base * confidence)
}

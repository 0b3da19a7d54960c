package sizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeRiskAtStop(t *testing.T) {
	res := Size(100, 95, 0, Params{Equity: 1_000_000, RiskPerTrade: 0.01, MaxPortfolioRisk: 0.06})

	assert.InDelta(t, 10_000.0, res.DollarRisk, 1e-6)
	assert.InDelta(t, 2000.0, res.PositionSize, 1e-6) // 10000 / 5
	assert.InDelta(t, 200_000.0, res.ExpectedOrderKRW, 1e-6)
	assert.InDelta(t, 200.0, res.EstimatedFee, 1e-6) // 200000*0.0005*2
	assert.InDelta(t, 107.5, res.TakePrices[0], 1e-6)
	assert.InDelta(t, 112.5, res.TakePrices[1], 1e-6)
	assert.InDelta(t, 120.0, res.TakePrices[2], 1e-6)
}

func TestSizeClampedByRemainingPortfolioRisk(t *testing.T) {
	res := Size(100, 95, 0.055, Params{Equity: 1_000_000, RiskPerTrade: 0.01, MaxPortfolioRisk: 0.06})
	// remaining budget is 0.005 of equity => max dollar risk 5000 => max size 1000
	assert.InDelta(t, 1000.0, res.PositionSize, 1e-6)
}

func TestSizeZeroWhenPortfolioRiskExhausted(t *testing.T) {
	res := Size(100, 95, 0.06, Params{Equity: 1_000_000, RiskPerTrade: 0.01, MaxPortfolioRisk: 0.06})
	assert.Equal(t, 0.0, res.PositionSize)
}

func TestSizeInvalidInputs(t *testing.T) {
	res := Size(0, 95, 0, Params{Equity: 1_000_000, RiskPerTrade: 0.01, MaxPortfolioRisk: 0.06})
	assert.Equal(t, 0.0, res.PositionSize)

	res = Size(100, 100, 0, Params{Equity: 1_000_000, RiskPerTrade: 0.01, MaxPortfolioRisk: 0.06})
	assert.Equal(t, 0.0, res.PositionSize)
}

func TestCheckSlippageWithinLimit(t *testing.T) {
	ok, pct := CheckSlippage(100, 100.2, 0.003)
	assert.True(t, ok)
	assert.InDelta(t, 0.002, pct, 1e-9)
}

func TestCheckSlippageExceedsLimit(t *testing.T) {
	ok, pct := CheckSlippage(100, 101, 0.003)
	assert.False(t, ok)
	assert.InDelta(t, 0.01, pct, 1e-9)
}

func TestCheckSlippageZeroExpected(t *testing.T) {
	ok, pct := CheckSlippage(0, 100, 0.003)
	assert.False(t, ok)
	assert.Equal(t, 999.0, pct)
}

// Package sizer computes risk-at-stop position sizes, portfolio-risk
// clamping and scale-out take-profit levels (§4.1d), grounded on the
// reference position sizer's dollar-risk math.
package sizer

const takerFeeRate = 0.0005 // Upbit-style taker fee, charged on both legs.

// Params configures one sizing pass, merged from a trader's StrategyParams.
type Params struct {
	Equity           float64
	RiskPerTrade     float64
	MaxPortfolioRisk float64
}

// Result is the computed size and the scale-out plan for one entry.
type Result struct {
	PositionSize        float64
	DollarRisk          float64
	ExpectedOrderKRW    float64
	StopPrice           float64
	TakePrices          [3]float64
	EstimatedFee        float64
	MaxPositionSize     float64
}

// Size computes a risk-at-stop position size, clamped by remaining portfolio
// risk budget, and the 1.5R/2.5R/4.0R scale-out take levels.
func Size(entryPrice, stopPrice float64, currentOpenPositionsRisk float64, params Params) Result {
	if entryPrice <= 0 || stopPrice <= 0 {
		return Result{StopPrice: stopPrice}
	}

	priceRiskPerUnit := entryPrice - stopPrice
	if priceRiskPerUnit < 0 {
		priceRiskPerUnit = -priceRiskPerUnit
	}
	if priceRiskPerUnit == 0 {
		return Result{StopPrice: stopPrice}
	}

	dollarRisk := params.Equity * params.RiskPerTrade
	positionSize := dollarRisk / priceRiskPerUnit

	remainingPortfolioRisk := params.MaxPortfolioRisk - currentOpenPositionsRisk
	var maxPositionSize float64
	if remainingPortfolioRisk <= 0 {
		positionSize = 0
	} else {
		maxDollarRisk := params.Equity * remainingPortfolioRisk
		maxPositionSize = maxDollarRisk / priceRiskPerUnit
		if positionSize > maxPositionSize {
			positionSize = maxPositionSize
		}
	}

	expectedOrderKRW := positionSize * entryPrice
	estimatedFee := expectedOrderKRW * takerFeeRate * 2

	var takePrices [3]float64
	if entryPrice > stopPrice {
		risk := entryPrice - stopPrice
		takePrices = [3]float64{entryPrice + risk*1.5, entryPrice + risk*2.5, entryPrice + risk*4.0}
	} else {
		risk := stopPrice - entryPrice
		takePrices = [3]float64{entryPrice - risk*1.5, entryPrice - risk*2.5, entryPrice - risk*4.0}
	}

	return Result{
		PositionSize:     positionSize,
		DollarRisk:       dollarRisk,
		ExpectedOrderKRW: expectedOrderKRW,
		StopPrice:        stopPrice,
		TakePrices:       takePrices,
		EstimatedFee:     estimatedFee,
		MaxPositionSize:  maxPositionSize,
	}
}

// CheckSlippage reports whether actualPrice stayed within limit of
// expectedPrice, and the realized slippage fraction.
func CheckSlippage(expectedPrice, actualPrice, limit float64) (acceptable bool, slippagePct float64) {
	if expectedPrice == 0 {
		return false, 999.0
	}
	diff := actualPrice - expectedPrice
	if diff < 0 {
		diff = -diff
	}
	slippagePct = diff / expectedPrice
	return slippagePct <= limit, slippagePct
}

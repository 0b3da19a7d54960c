// Package lifecycle implements the model-lifecycle state machine and
// drift-driven rollback described for the auto-tuned strategy models
// (validate, deploy, 24h auto-promotion, arm, rollback).
package lifecycle

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/ats/internal/domain"
)

// Round-trip trading cost assumed when netting labeled returns: two taker
// fills plus two slippage events, matching the Gateway's paper-mode
// simulation and the sizer's fee assumption.
const (
	feeRate       = 0.0005
	slippageRate  = 0.001
	roundTripCost = 2*feeRate + 2*slippageRate

	minSampleCount = 100
)

// Metrics is the evaluation vector computed from a batch of labeled feature
// snapshots, net of round-trip trading cost (§4.7).
type Metrics struct {
	E           float64 // mean net 240m return
	Sharpe      float64 // mean / stddev of net returns
	Q05         float64 // 5th percentile net return
	Q01         float64 // 1st percentile net return
	MAEMean     float64 // mean maximum-adverse-excursion
	MAE95       float64 // 5th percentile (worst-tail) maximum-adverse-excursion
	SPD         float64 // mean net return per unit of mean drawdown
	SampleCount int
}

// GateStatus is the outcome of evaluating a model's metrics against the
// validation thresholds.
type GateStatus string

const (
	GatePass   GateStatus = "PASS"
	GateHold   GateStatus = "HOLD"
	GateReject GateStatus = "REJECT"
)

// Evaluate computes Metrics from labeled snapshots and returns the gate
// decision with a human-readable reason.
func Evaluate(snapshots []domain.FeatureSnapshot) (Metrics, GateStatus, string) {
	var netReturns, maes, dds []float64
	for _, s := range snapshots {
		if s.Ret240m == nil {
			continue
		}
		netReturns = append(netReturns, *s.Ret240m-roundTripCost)
		if s.MAE240m != nil {
			maes = append(maes, *s.MAE240m)
		}
		if s.DD240m != nil {
			dds = append(dds, *s.DD240m)
		}
	}

	m := Metrics{SampleCount: len(netReturns)}
	if m.SampleCount == 0 {
		return m, GateReject, "insufficient sample_count: 0"
	}

	m.E = mean(netReturns)
	m.Sharpe = sharpe(netReturns)
	m.Q05 = quantile(netReturns, 0.05)
	m.Q01 = quantile(netReturns, 0.01)
	m.MAEMean = mean(maes)
	m.MAE95 = quantile(maes, 0.05)
	if meanDD := math.Abs(mean(dds)); meanDD > 0 {
		m.SPD = m.E / meanDD
	}

	if m.SampleCount < minSampleCount {
		return m, GateReject, fmt.Sprintf("insufficient sample_count: %d < %d", m.SampleCount, minSampleCount)
	}
	if m.E < -0.05 {
		return m, GateReject, fmt.Sprintf("E %.4f below -5%%", m.E)
	}
	if m.Sharpe < -1 {
		return m, GateReject, fmt.Sprintf("Sharpe %.4f below -1", m.Sharpe)
	}
	if m.Q01 < -0.10 {
		return m, GateReject, fmt.Sprintf("Q01 %.4f below -10%%", m.Q01)
	}

	if m.E > 0.01 && m.Sharpe > 0.5 && m.Q05 > -0.03 {
		return m, GatePass, "E/Sharpe/Q05 all clear validation thresholds"
	}
	return m, GateHold, "metrics in between reject and pass thresholds"
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func sharpe(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mu := mean(xs)
	var sumSq float64
	for _, x := range xs {
		d := x - mu
		sumSq += d * d
	}
	sd := math.Sqrt(sumSq / float64(len(xs)-1))
	if sd == 0 {
		return 0
	}
	return mu / sd
}

// quantile returns the value at the given fraction (0..1) of the sorted
// sample using linear interpolation between closest ranks.
func quantile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

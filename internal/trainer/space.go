// Package trainer implements TPE-style auto-tuning over a strategy's scoring
// and sizing parameters (§4.8), evaluated against the labeled feature
// snapshots a trainer scan run has accumulated.
package trainer

import "math/rand"

// Params is one point in the tuned parameter space: feature weights, the
// entry threshold gate, the screener's candidate count, and the regime
// weighting multiplier.
type Params struct {
	WeightTP         float64
	WeightVCB        float64
	WeightRegime     float64
	WeightLSR        float64
	WeightLF         float64
	EntryThreshold   float64
	TopN             int
	RegimeMultiplier float64
}

// bound is a [min,max] range for one tuned dimension.
type bound struct{ min, max float64 }

var bounds = struct {
	weight           bound
	entryThreshold   bound
	topN             bound
	regimeMultiplier bound
}{
	weight:           bound{0.05, 0.45},
	entryThreshold:   bound{40, 80},
	topN:             bound{5, 30},
	regimeMultiplier: bound{0.5, 1.5},
}

// sampleUniform draws a Params uniformly across the search space, then
// renormalizes the five sub-score weights so they sum to 1 (matching the
// aggregator's weighted-sum contract).
func sampleUniform(rng *rand.Rand) Params {
	p := Params{
		WeightTP:         sampleRange(rng, bounds.weight),
		WeightVCB:        sampleRange(rng, bounds.weight),
		WeightRegime:     sampleRange(rng, bounds.weight),
		WeightLSR:        sampleRange(rng, bounds.weight),
		WeightLF:         sampleRange(rng, bounds.weight),
		EntryThreshold:   sampleRange(rng, bounds.entryThreshold),
		TopN:             int(sampleRange(rng, bounds.topN)),
		RegimeMultiplier: sampleRange(rng, bounds.regimeMultiplier),
	}
	return normalizeWeights(p)
}

// sampleNear draws a Params with each dimension centered on mean's value and
// a standard deviation of 15% of that dimension's range, clipped to bounds —
// the Gaussian-near-good-trials step of the TPE-style search.
func sampleNear(rng *rand.Rand, mean Params) Params {
	p := Params{
		WeightTP:         gaussianNear(rng, mean.WeightTP, bounds.weight),
		WeightVCB:        gaussianNear(rng, mean.WeightVCB, bounds.weight),
		WeightRegime:     gaussianNear(rng, mean.WeightRegime, bounds.weight),
		WeightLSR:        gaussianNear(rng, mean.WeightLSR, bounds.weight),
		WeightLF:         gaussianNear(rng, mean.WeightLF, bounds.weight),
		EntryThreshold:   gaussianNear(rng, mean.EntryThreshold, bounds.entryThreshold),
		TopN:             int(gaussianNear(rng, float64(mean.TopN), bounds.topN)),
		RegimeMultiplier: gaussianNear(rng, mean.RegimeMultiplier, bounds.regimeMultiplier),
	}
	return normalizeWeights(p)
}

func sampleRange(rng *rand.Rand, b bound) float64 {
	return b.min + rng.Float64()*(b.max-b.min)
}

func gaussianNear(rng *rand.Rand, center float64, b bound) float64 {
	sigma := 0.15 * (b.max - b.min)
	v := rng.NormFloat64()*sigma + center
	if v < b.min {
		return b.min
	}
	if v > b.max {
		return b.max
	}
	return v
}

func normalizeWeights(p Params) Params {
	sum := p.WeightTP + p.WeightVCB + p.WeightRegime + p.WeightLSR + p.WeightLF
	if sum == 0 {
		return p
	}
	p.WeightTP /= sum
	p.WeightVCB /= sum
	p.WeightRegime /= sum
	p.WeightLSR /= sum
	p.WeightLF /= sum
	return p
}

// meanOf averages a set of good trials' params dimension-by-dimension, used
// to center the next round of Gaussian sampling.
func meanOf(trials []Params) Params {
	var m Params
	n := float64(len(trials))
	if n == 0 {
		return m
	}
	for _, t := range trials {
		m.WeightTP += t.WeightTP
		m.WeightVCB += t.WeightVCB
		m.WeightRegime += t.WeightRegime
		m.WeightLSR += t.WeightLSR
		m.WeightLF += t.WeightLF
		m.EntryThreshold += t.EntryThreshold
		m.TopN += t.TopN
		m.RegimeMultiplier += t.RegimeMultiplier
	}
	m.WeightTP /= n
	m.WeightVCB /= n
	m.WeightRegime /= n
	m.WeightLSR /= n
	m.WeightLF /= n
	m.EntryThreshold /= n
	m.TopN = int(float64(m.TopN) / n)
	m.RegimeMultiplier /= n
	return m
}

// Package bandit implements the Thompson-sampling weight used to favor
// strategies that have historically performed well in a given regime (§4.2).
package bandit

import (
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/ats/internal/domain"
)

// Sampler draws Thompson-sampling weights from Beta(α, β) posteriors.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler builds a Sampler; pass a seeded *rand.Rand in tests for
// deterministic draws.
func NewSampler(rng *rand.Rand) *Sampler {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Sampler{rng: rng}
}

// Weight draws u ~ Beta(α, β) and returns 0.5 + u, the [0.5, 1.5] multiplier
// spec.md §4.2 defines. A missing row (α=β=1, the uninformative prior) still
// draws from Beta(1,1) = Uniform(0,1), which is the spec's "missing rows
// sample as weight 1.0" only in expectation; call WeightOrDefault when the
// caller has no row at all and wants the literal constant instead.
func (s *Sampler) Weight(state domain.BanditState) float64 {
	alpha, beta := state.Alpha, state.Beta
	if alpha < 1 {
		alpha = 1
	}
	if beta < 1 {
		beta = 1
	}
	dist := distuv.Beta{Alpha: alpha, Beta: beta, Src: s.rng}
	return 0.5 + dist.Rand()
}

// WeightOrDefault returns 1.0 when hasRow is false (no persisted posterior
// yet for this regime/strategy pair), otherwise samples Weight.
func (s *Sampler) WeightOrDefault(state domain.BanditState, hasRow bool) float64 {
	if !hasRow {
		return 1.0
	}
	return s.Weight(state)
}

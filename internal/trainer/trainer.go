package trainer

import (
	"encoding/json"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ats/internal/domain"
	"github.com/aristath/ats/internal/lifecycle"
	"github.com/aristath/ats/internal/store"
)

const defaultTrialCount = 60

// featureRecord is the decoded shape of a FeatureSnapshot's features_json:
// the price observed at scan time plus the five §4.1(e) sub-scores, in
// [0,100], recorded so the trainer can re-rank snapshots under any trial's
// weights without re-fetching market data.
type featureRecord struct {
	Price  float64 `json:"price"`
	TP     float64 `json:"tp"`
	VCB    float64 `json:"vcb"`
	Regime float64 `json:"regime"`
	LSR    float64 `json:"lsr"`
	LF     float64 `json:"lf"`
}

// Trial is one evaluated point in the search space.
type Trial struct {
	Index  int
	Params Params
	Score  float64
	Gate   lifecycle.GateStatus
}

// Tuner runs the TPE-style auto-tuning search for one strategy (§4.8).
type Tuner struct {
	scan *store.ScanRepository
	rng  *rand.Rand
	log  zerolog.Logger
}

func New(scan *store.ScanRepository, rng *rand.Rand, log zerolog.Logger) *Tuner {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Tuner{scan: scan, rng: rng, log: log.With().Str("component", "trainer").Logger()}
}

// Tune runs trials (60 by default, per §4.8) against a strategy's latest
// labeled feature snapshots and returns the best-scoring trial's params.
// trialCount <= 0 falls back to the default.
func (t *Tuner) Tune(strategyID string, snapshots []domain.FeatureSnapshot, trialCount int) (Params, error) {
	if trialCount <= 0 {
		trialCount = defaultTrialCount
	}
	var good []Params
	var best Trial
	haveBest := false

	for i := 0; i < trialCount; i++ {
		var p Params
		if i == 0 || len(good) == 0 {
			p = sampleUniform(t.rng)
		} else {
			p = sampleNear(t.rng, meanOf(good))
		}

		score, gate := t.evaluate(p, snapshots)
		trial := Trial{Index: i, Params: p, Score: score, Gate: gate}

		paramsJSON, _ := json.Marshal(p)
		if _, err := t.scan.AddCandidate(domain.ModelCandidate{
			StrategyID: strategyID,
			TrialIndex: i,
			ParamsJSON: string(paramsJSON),
			Score:      score,
			GateStatus: string(gate),
		}); err != nil {
			t.log.Warn().Err(err).Int("trial", i).Msg("failed to record trial candidate")
		}

		if score > 0 {
			good = append(good, p)
		}
		if !haveBest || score > best.Score {
			best = trial
			haveBest = true
		}
	}

	t.log.Info().Str("strategy_id", strategyID).Float64("best_score", best.Score).Msg("tuning complete")
	return best.Params, nil
}

// evaluate scores one trial: filter and rank the strategy's labeled snapshots
// by the trial's weighted composite and entry threshold, run the lifecycle
// evaluation metrics over the surviving set, and reward Sharpe plus a PASS
// bonus (§4.8).
func (t *Tuner) evaluate(p Params, snapshots []domain.FeatureSnapshot) (float64, lifecycle.GateStatus) {
	type scored struct {
		snap domain.FeatureSnapshot
		comp float64
	}
	var candidates []scored
	for _, s := range snapshots {
		var sub featureRecord
		if err := json.Unmarshal([]byte(s.FeaturesJSON), &sub); err != nil {
			continue
		}
		composite := p.WeightTP*sub.TP + p.WeightVCB*sub.VCB + p.WeightRegime*sub.Regime*p.RegimeMultiplier +
			p.WeightLSR*sub.LSR + p.WeightLF*sub.LF
		if composite < p.EntryThreshold {
			continue
		}
		candidates = append(candidates, scored{snap: s, comp: composite})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].comp > candidates[j].comp })
	topN := p.TopN
	if topN > len(candidates) {
		topN = len(candidates)
	}
	selected := make([]domain.FeatureSnapshot, 0, topN)
	for i := 0; i < topN; i++ {
		selected = append(selected, candidates[i].snap)
	}

	metrics, gate, _ := lifecycle.Evaluate(selected)
	score := metrics.Sharpe
	if gate == lifecycle.GatePass {
		score += 1.0
	}
	return score, gate
}

package scoring

// DefaultWeights are the default §4.1(f) aggregation weights.
var DefaultWeights = map[string]float64{
	"tp":     0.30,
	"vcb":    0.25,
	"regime": 0.20,
	"lsr":    0.15,
	"lf":     0.10,
}

const emaAlpha = 0.3
const historyLimit = 10

// Aggregator owns the per-symbol EMA score history for one worker. It is not
// shared across processes (spec.md §9's "model as a stateful value owned by
// the worker").
type Aggregator struct {
	weights map[string]float64
	history map[string][]float64
}

func NewAggregator(weights map[string]float64) *Aggregator {
	if weights == nil {
		weights = DefaultWeights
	}
	return &Aggregator{weights: weights, history: make(map[string][]float64)}
}

// Result is one symbol's aggregation output for the current tick.
type Result struct {
	TotalScore    float64
	SmoothedScore float64
	Weighted      map[string]float64
}

// Aggregate weighted-sums scores then EMA-smooths against the symbol's prior
// raw total (matching the reference aggregator's recurrence: smoothed uses
// the previous raw total_score, not the previous smoothed value, so a single
// volatile tick cannot compound across iterations).
func (a *Aggregator) Aggregate(symbol string, scores map[string]float64) Result {
	total := 0.0
	weighted := make(map[string]float64, len(scores))
	for module, score := range scores {
		w := a.weights[module]
		weighted[module] = score * w
		total += score * w
	}

	hist := a.history[symbol]
	hist = append(hist, total)
	if len(hist) > historyLimit {
		hist = hist[len(hist)-historyLimit:]
	}
	a.history[symbol] = hist

	smoothed := total
	if len(hist) > 1 {
		prevRaw := hist[len(hist)-2]
		smoothed = emaAlpha*total + (1-emaAlpha)*prevRaw
	}

	return Result{TotalScore: total, SmoothedScore: smoothed, Weighted: weighted}
}

// FinalScore applies regime weight, bandit weight and risk multiplier on top
// of the smoothed base_score (§4.1f).
func FinalScore(baseScore, regimeWeight, banditWeight, riskMultiplier float64) float64 {
	return baseScore * regimeWeight * banditWeight * riskMultiplier
}

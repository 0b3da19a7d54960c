// Package regimeengine implements the market-regime classifier (§4.2):
// ordered threshold rules over ADX, ATR%, breadth, dispersion, top-5 value
// share and whipsaw, plus the regime- and bandit-weighting formulas.
package regimeengine

import "github.com/aristath/ats/internal/domain"

// Inputs holds one tick's computed indicator snapshot.
type Inputs struct {
	ADX          float64
	ATRPct       float64
	BreadthUp    float64
	Dispersion   float64
	Top5Share    float64
	Whipsaw      float64
}

// Classification is the classifier's output for one tick.
type Classification struct {
	RegimeID   int64
	Label      domain.RegimeLabel
	Confidence float64
}

// Classify applies the ordered rules from spec.md §4.2; first match wins.
func Classify(in Inputs) Classification {
	switch {
	case in.ATRPct > 5.0 && in.BreadthUp < 0.3:
		return Classification{RegimeID: 3, Label: domain.RegimePanic, Confidence: 0.80}
	case in.Whipsaw > 0.6 && in.ADX < 20:
		return Classification{RegimeID: 2, Label: domain.RegimeChop, Confidence: 0.70}
	case in.ADX > 25 && in.Whipsaw < 0.3:
		conf := 0.65
		if in.BreadthUp > 0.6 {
			conf = 0.75
		}
		return Classification{RegimeID: 1, Label: domain.RegimeTrend, Confidence: conf}
	case in.Dispersion > 0.05 && in.Top5Share < 0.4:
		return Classification{RegimeID: 4, Label: domain.RegimeBreakoutRotation, Confidence: 0.70}
	default:
		conf := 0.60
		if in.ADX < 20 && in.Whipsaw < 0.5 {
			conf = 0.70
		}
		return Classification{RegimeID: 0, Label: domain.RegimeRange, Confidence: conf}
	}
}

// RegimeWeight applies the hard entry block for CHOP/PANIC and otherwise
// scales a base weight w toward 1.0 by confidence (§4.2).
func RegimeWeight(label domain.RegimeLabel, confidence, baseWeight float64) float64 {
	if label == domain.RegimeChop || label == domain.RegimePanic {
		return 0.0
	}
	return 1 + (baseWeight-1)*confidence
}

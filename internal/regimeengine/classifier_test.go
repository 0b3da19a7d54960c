package regimeengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/ats/internal/domain"
)

func TestClassifyPanic(t *testing.T) {
	cls := Classify(Inputs{ATRPct: 6.0, BreadthUp: 0.2, ADX: 10, Whipsaw: 0.1})
	assert.Equal(t, domain.RegimePanic, cls.Label)
	assert.Equal(t, 0.80, cls.Confidence)
}

func TestClassifyChopBeatsTrendWhenFirstInOrder(t *testing.T) {
	// Whipsaw>0.6 and ADX<20 takes priority over any later rule.
	cls := Classify(Inputs{ATRPct: 1.0, BreadthUp: 0.9, ADX: 15, Whipsaw: 0.7})
	assert.Equal(t, domain.RegimeChop, cls.Label)
	assert.Equal(t, 0.70, cls.Confidence)
}

func TestClassifyTrendHighBreadth(t *testing.T) {
	cls := Classify(Inputs{ATRPct: 1.0, BreadthUp: 0.7, ADX: 30, Whipsaw: 0.1})
	assert.Equal(t, domain.RegimeTrend, cls.Label)
	assert.Equal(t, 0.75, cls.Confidence)
}

func TestClassifyTrendLowBreadth(t *testing.T) {
	cls := Classify(Inputs{ATRPct: 1.0, BreadthUp: 0.4, ADX: 30, Whipsaw: 0.1})
	assert.Equal(t, domain.RegimeTrend, cls.Label)
	assert.Equal(t, 0.65, cls.Confidence)
}

func TestClassifyBreakoutRotation(t *testing.T) {
	cls := Classify(Inputs{ATRPct: 1.0, BreadthUp: 0.5, ADX: 10, Whipsaw: 0.1, Dispersion: 0.06, Top5Share: 0.3})
	assert.Equal(t, domain.RegimeBreakoutRotation, cls.Label)
	assert.Equal(t, 0.70, cls.Confidence)
}

func TestClassifyRangeDefault(t *testing.T) {
	cls := Classify(Inputs{ATRPct: 1.0, BreadthUp: 0.5, ADX: 10, Whipsaw: 0.2, Dispersion: 0.01, Top5Share: 0.8})
	assert.Equal(t, domain.RegimeRange, cls.Label)
	assert.Equal(t, 0.70, cls.Confidence)
}

func TestClassifyRangeLowConfidence(t *testing.T) {
	cls := Classify(Inputs{ATRPct: 1.0, BreadthUp: 0.5, ADX: 22, Whipsaw: 0.2, Dispersion: 0.01, Top5Share: 0.8})
	assert.Equal(t, domain.RegimeRange, cls.Label)
	assert.Equal(t, 0.60, cls.Confidence)
}

func TestRegimeWeightHardBlocksChopAndPanic(t *testing.T) {
	assert.Equal(t, 0.0, RegimeWeight(domain.RegimeChop, 0.9, 1.5))
	assert.Equal(t, 0.0, RegimeWeight(domain.RegimePanic, 0.9, 1.5))
}

func TestRegimeWeightScalesByConfidence(t *testing.T) {
	w := RegimeWeight(domain.RegimeTrend, 0.5, 1.5)
	assert.InDelta(t, 1.25, w, 1e-9)

	w = RegimeWeight(domain.RegimeRange, 1.0, 1.5)
	assert.InDelta(t, 1.5, w, 1e-9)
}

package positionmanager

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/ats/internal/domain"
)

func basePosition() domain.Position {
	return domain.Position{
		Symbol:        "KRW-BTC",
		Size:          1.0,
		AvgEntryPrice: 100,
		StopPrice:     90,
		TakePrices:    [3]float64{110, 120, 140},
	}
}

func TestUpdateTrailingStopActivates(t *testing.T) {
	pos := basePosition()
	updated, closed, _ := Update(pos, 103, domain.RegimeRange) // +3% triggers trailing
	assert.False(t, closed)
	assert.InDelta(t, 101.0, updated.StopPrice, 1e-9) // entry*1.01
}

func TestUpdateTrailingStopNeverLowersExistingStop(t *testing.T) {
	pos := basePosition()
	pos.StopPrice = 105 // already above the lock-in level
	updated, _, _ := Update(pos, 103, domain.RegimeRange)
	assert.Equal(t, 105.0, updated.StopPrice)
}

func TestUpdateScaleOutFirstLevel(t *testing.T) {
	pos := basePosition()
	updated, closed, _ := Update(pos, 111, domain.RegimeRange)
	assert.False(t, closed)
	assert.True(t, updated.ScaleOut1Done)
	assert.InDelta(t, 2.0/3.0, updated.Size, 1e-9)
}

func TestUpdateScaleOutSecondLevelFiresOnceEach(t *testing.T) {
	pos := basePosition()
	pos.ScaleOut1Done = true
	updated, closed, _ := Update(pos, 121, domain.RegimeRange)
	assert.False(t, closed)
	assert.True(t, updated.ScaleOut2Done)
	assert.InDelta(t, 1.0/3.0, updated.Size, 1e-9)
}

func TestUpdateChopDrawdownCloses(t *testing.T) {
	pos := basePosition()
	updated, closed, reason := Update(pos, 98, domain.RegimeChop) // -2%
	assert.True(t, closed)
	assert.Equal(t, "CHOP regime drawdown", reason)
	_ = updated
}

func TestUpdateStopHitCloses(t *testing.T) {
	pos := basePosition()
	_, closed, reason := Update(pos, 89, domain.RegimeRange)
	assert.True(t, closed)
	assert.Equal(t, "stop hit", reason)
}

func TestUpdateInvalidPriceNoOp(t *testing.T) {
	pos := basePosition()
	updated, closed, reason := Update(pos, 0, domain.RegimeRange)
	assert.False(t, closed)
	assert.Equal(t, "", reason)
	assert.Equal(t, pos, updated)
}

func TestShouldCloseOnScoreDecay(t *testing.T) {
	pos := basePosition()
	pos.EntryScore = 0.2
	shouldClose, reason := ShouldClose(pos, 105, 0.35)
	assert.True(t, shouldClose)
	assert.Contains(t, reason, "score decay")
}

func TestShouldCloseOnStopHit(t *testing.T) {
	pos := basePosition()
	pos.EntryScore = 0.9
	shouldClose, reason := ShouldClose(pos, 89, 0.35)
	assert.True(t, shouldClose)
	assert.Contains(t, reason, "stop hit")
}

func TestShouldCloseFalse(t *testing.T) {
	pos := basePosition()
	pos.EntryScore = 0.9
	shouldClose, _ := ShouldClose(pos, 105, 0.35)
	assert.False(t, shouldClose)
}

func TestReduceOnlyHalvesSize(t *testing.T) {
	pos := basePosition()
	sellQty, updated := ReduceOnly(pos)
	assert.InDelta(t, 0.5, sellQty, 1e-9)
	assert.InDelta(t, 0.5, updated.Size, 1e-9)
}

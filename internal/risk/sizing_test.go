package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intraday/internal/types"
)

var lotEco = Economics{Kind: types.InstrumentLot, Premium: 100, LotSize: 25}

func TestSizeLotAffordable(t *testing.T) {
	got := Size(10000, lotEco, Config{AllocationFraction: 0.30})
	assert.True(t, got.Affordable)
	assert.Equal(t, 1, got.Lots)
	assert.Equal(t, 2500.0, got.Cost)
	assert.Equal(t, 25.0, got.Quantity)
	assert.Equal(t, ReasonNone, got.Reason)
}

func TestSizeLotUnaffordable(t *testing.T) {
	got := Size(2000, lotEco, Config{AllocationFraction: 0.30})
	assert.False(t, got.Affordable)
	assert.Equal(t, 0, got.Lots)
	assert.True(t, got.InsufficientCapital())
}

func TestSizeLotMultipleLots(t *testing.T) {
	got := Size(100000, Economics{Kind: types.InstrumentLot, Premium: 120.5, LotSize: 50}, Config{AllocationFraction: 0.25})
	// 25000 / 6025 = 4.149...
	assert.Equal(t, 4, got.Lots)
	assert.Equal(t, 24100.0, got.Cost)
	assert.Equal(t, 200.0, got.Quantity)
}

func TestSizeUnit(t *testing.T) {
	cfg := Config{RiskFraction: 0.01}
	got := Size(50000, Economics{Kind: types.InstrumentUnit, Entry: 200, StopLoss: 196}, cfg)
	require.True(t, got.Affordable)
	assert.Equal(t, 125.0, got.Quantity)
	assert.Equal(t, 25000.0, got.Cost)

	short := Size(50000, Economics{Kind: types.InstrumentUnit, Entry: 196, StopLoss: 200}, cfg)
	assert.Equal(t, got.Quantity, short.Quantity)
}

func TestSizeUnitRejections(t *testing.T) {
	cfg := Config{RiskFraction: 0.02}
	zero := Size(10000, Economics{Kind: types.InstrumentUnit, Entry: 100, StopLoss: 100}, cfg)
	assert.False(t, zero.Affordable)
	assert.Equal(t, ReasonZeroStopDistance, zero.Reason)

	tight := Size(10000, Economics{Kind: types.InstrumentUnit, Entry: 100, StopLoss: 99.9}, cfg)
	assert.False(t, tight.Affordable)
	assert.Equal(t, ReasonCostExceedsCapital, tight.Reason)
	assert.False(t, tight.InsufficientCapital())

	wide := Size(100, Economics{Kind: types.InstrumentUnit, Entry: 100, StopLoss: 10}, cfg)
	assert.True(t, wide.InsufficientCapital())
}

func TestSizeIsDeterministic(t *testing.T) {
	cfg := Config{AllocationFraction: 0.3, RiskFraction: 0.01}
	eco := Economics{Kind: types.InstrumentLot, Premium: 87.35, LotSize: 15}
	first := Size(123456.78, eco, cfg)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Size(123456.78, eco, cfg))
	}
}

func TestSizeInvalidInput(t *testing.T) {
	assert.Equal(t, ReasonInvalidInput, Size(1000, Economics{Kind: "FUTURE"}, Config{}).Reason)
	assert.Equal(t, ReasonInvalidInput, Size(1000, Economics{Kind: types.InstrumentLot}, Config{AllocationFraction: 0.3}).Reason)
	assert.Equal(t, ReasonInsufficientCapital, Size(0, lotEco, Config{AllocationFraction: 0.3}).Reason)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{AllocationFraction: 0.3, RiskFraction: 0.01}.Validate())
	assert.Error(t, Config{AllocationFraction: 1.5, RiskFraction: 0.01}.Validate())
	assert.Error(t, Config{AllocationFraction: 0.3}.Validate())
}

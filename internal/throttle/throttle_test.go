package throttle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intraday/internal/types"
)

func singleSlab(rate int) Config {
	return Config{
		Slabs:                  []Slab{{MinCapital: 0, MaxCapital: 0, MaxTradesPerHour: rate}},
		MaxHourlyCap:           5,
		DrawdownTriggerPct:     0.02,
		HardDrawdownTriggerPct: 0.05,
		DrawdownReducePct:      0.5,
	}
}

func TestEvaluateReduced(t *testing.T) {
	got, err := Evaluate(100000, -2500, singleSlab(3))
	require.NoError(t, err)
	assert.Equal(t, types.FrequencyReduced, got.Mode)
	assert.Equal(t, 1, got.MaxTradesThisHour)
	assert.InDelta(t, 0.025, got.DrawdownPct, 1e-12)
}

func TestEvaluateHardLimit(t *testing.T) {
	got, err := Evaluate(100000, -6000, singleSlab(3))
	require.NoError(t, err)
	assert.Equal(t, types.FrequencyHardLimit, got.Mode)
	assert.Equal(t, 1, got.MaxTradesThisHour)
}

func TestEvaluateNormal(t *testing.T) {
	got, err := Evaluate(100000, 1500, singleSlab(3))
	require.NoError(t, err)
	assert.Equal(t, types.FrequencyNormal, got.Mode)
	assert.Equal(t, 3, got.MaxTradesThisHour)
	assert.Zero(t, got.DrawdownPct)
}

func TestEvaluateNormalCappedByHourlyCap(t *testing.T) {
	cfg := singleSlab(4)
	cfg.MaxHourlyCap = 2
	got, err := Evaluate(1000, 0, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MaxTradesThisHour)
}

func TestEvaluateReducedFloorsAtOne(t *testing.T) {
	cfg := singleSlab(4)
	cfg.DrawdownReducePct = 0.1
	got, err := Evaluate(100000, -3000, cfg)
	require.NoError(t, err)
	assert.Equal(t, types.FrequencyReduced, got.Mode)
	assert.Equal(t, 1, got.MaxTradesThisHour)

	cfg.DrawdownReducePct = 0.7
	got, err = Evaluate(100000, -3000, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MaxTradesThisHour)
}

func TestEvaluateSlabBoundaries(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	for capital, want := range map[float64]int{0.01: 2, 49999.99: 2, 50000: 3, 199999: 3, 200000: 4, 5e7: 4} {
		got, err := Evaluate(capital, 0, cfg)
		require.NoError(t, err)
		assert.Equal(t, want, got.MaxTradesThisHour, "capital=%v", capital)
	}
}

func TestEvaluateIsPure(t *testing.T) {
	cfg := DefaultConfig()
	first, err := Evaluate(75000, -1700, cfg)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		got, err := Evaluate(75000, -1700, cfg)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
}

func TestEvaluateNoSlab(t *testing.T) {
	cfg := Config{Slabs: []Slab{{MinCapital: 1000, MaxCapital: 2000, MaxTradesPerHour: 1}}, MaxHourlyCap: 2, DrawdownTriggerPct: 0.02, HardDrawdownTriggerPct: 0.05, DrawdownReducePct: 0.5}
	_, err := Evaluate(500, 0, cfg)
	assert.ErrorIs(t, err, ErrNoSlab)
	_, err = Evaluate(0, 0, DefaultConfig())
	assert.ErrorIs(t, err, ErrNoSlab)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"no slabs":          func(c *Config) { c.Slabs = nil },
		"zero cap":          func(c *Config) { c.MaxHourlyCap = 0 },
		"gap":               func(c *Config) { c.Slabs[1].MinCapital = 60000 },
		"overlap":           func(c *Config) { c.Slabs[1].MinCapital = 40000 },
		"not from zero":     func(c *Config) { c.Slabs[0].MinCapital = 100 },
		"rate above cap":    func(c *Config) { c.Slabs[2].MaxTradesPerHour = 9 },
		"zero rate":         func(c *Config) { c.Slabs[0].MaxTradesPerHour = 0 },
		"bounded last":      func(c *Config) { c.Slabs[2].MaxCapital = 1e6 },
		"unbounded middle":  func(c *Config) { c.Slabs[1].MaxCapital = 0 },
		"inverted slab":     func(c *Config) { c.Slabs[0].MaxCapital = -1 },
		"hard below soft":   func(c *Config) { c.HardDrawdownTriggerPct = 0.01 },
		"reduce pct zero":   func(c *Config) { c.DrawdownReducePct = 0 },
		"trigger above one": func(c *Config) { c.DrawdownTriggerPct = 1.5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrConfiguration)
		})
	}
}

package throttle

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"intraday/internal/types"
)

var (
	// ErrConfiguration 表示频率配置不合法，只在加载/保存时触发。
	ErrConfiguration = errors.New("frequency configuration error")
	// ErrNoSlab 表示运行时资金落在所有档位之外。
	ErrNoSlab = errors.New("no capital slab matches")
)

// Slab 将资金区间 [MinCapital, MaxCapital) 映射到每小时交易上限；MaxCapital=0 表示无上界。
type Slab struct {
	MinCapital       float64 `yaml:"min_capital" json:"min_capital" mapstructure:"min_capital"`
	MaxCapital       float64 `yaml:"max_capital" json:"max_capital" mapstructure:"max_capital"`
	MaxTradesPerHour int     `yaml:"max_trades_per_hour" json:"max_trades_per_hour" mapstructure:"max_trades_per_hour"`
}

func (s Slab) unbounded() bool { return s.MaxCapital == 0 }

func (s Slab) contains(capital float64) bool {
	if capital < s.MinCapital {
		return false
	}
	return s.unbounded() || capital < s.MaxCapital
}

// Config 是全局频率策略。
type Config struct {
	Slabs                  []Slab  `yaml:"slabs" json:"slabs" mapstructure:"slabs"`
	MaxHourlyCap           int     `yaml:"max_hourly_cap" json:"max_hourly_cap" mapstructure:"max_hourly_cap"`
	DrawdownTriggerPct     float64 `yaml:"drawdown_trigger_pct" json:"drawdown_trigger_pct" mapstructure:"drawdown_trigger_pct"`
	HardDrawdownTriggerPct float64 `yaml:"hard_drawdown_trigger_pct" json:"hard_drawdown_trigger_pct" mapstructure:"hard_drawdown_trigger_pct"`
	DrawdownReducePct      float64 `yaml:"drawdown_reduce_pct" json:"drawdown_reduce_pct" mapstructure:"drawdown_reduce_pct"`
}

// DefaultConfig 返回一份覆盖 [0, ∞) 的保守配置。
func DefaultConfig() Config {
	return Config{
		Slabs: []Slab{
			{MinCapital: 0, MaxCapital: 50000, MaxTradesPerHour: 2},
			{MinCapital: 50000, MaxCapital: 200000, MaxTradesPerHour: 3},
			{MinCapital: 200000, MaxCapital: 0, MaxTradesPerHour: 4},
		},
		MaxHourlyCap:           4,
		DrawdownTriggerPct:     0.02,
		HardDrawdownTriggerPct: 0.05,
		DrawdownReducePct:      0.5,
	}
}

// Validate 要求档位从 0 开始首尾相接、仅最后一档无上界且速率不超过 MaxHourlyCap。
func (c Config) Validate() error {
	if c.MaxHourlyCap < 1 {
		return fmt.Errorf("%w: max_hourly_cap must be >= 1", ErrConfiguration)
	}
	if len(c.Slabs) == 0 {
		return fmt.Errorf("%w: at least one slab is required", ErrConfiguration)
	}
	if c.Slabs[0].MinCapital != 0 {
		return fmt.Errorf("%w: first slab must start at 0, got %v", ErrConfiguration, c.Slabs[0].MinCapital)
	}
	last := len(c.Slabs) - 1
	for i, s := range c.Slabs {
		if s.MaxTradesPerHour < 1 || s.MaxTradesPerHour > c.MaxHourlyCap {
			return fmt.Errorf("%w: slab %d rate %d outside [1, %d]", ErrConfiguration, i, s.MaxTradesPerHour, c.MaxHourlyCap)
		}
		if s.unbounded() {
			if i != last {
				return fmt.Errorf("%w: only the last slab may be unbounded (slab %d)", ErrConfiguration, i)
			}
		} else if s.MaxCapital <= s.MinCapital {
			return fmt.Errorf("%w: slab %d max_capital %v <= min_capital %v", ErrConfiguration, i, s.MaxCapital, s.MinCapital)
		}
		if i > 0 && s.MinCapital != c.Slabs[i-1].MaxCapital {
			return fmt.Errorf("%w: slab %d starts at %v but previous ends at %v", ErrConfiguration, i, s.MinCapital, c.Slabs[i-1].MaxCapital)
		}
	}
	if !c.Slabs[last].unbounded() {
		return fmt.Errorf("%w: last slab must be unbounded (max_capital 0)", ErrConfiguration)
	}
	if c.DrawdownTriggerPct <= 0 || c.DrawdownTriggerPct > 1 {
		return fmt.Errorf("%w: drawdown_trigger_pct must be in (0, 1]", ErrConfiguration)
	}
	if c.HardDrawdownTriggerPct < c.DrawdownTriggerPct || c.HardDrawdownTriggerPct > 1 {
		return fmt.Errorf("%w: hard_drawdown_trigger_pct must be in [drawdown_trigger_pct, 1]", ErrConfiguration)
	}
	if c.DrawdownReducePct <= 0 || c.DrawdownReducePct > 1 {
		return fmt.Errorf("%w: drawdown_reduce_pct must be in (0, 1]", ErrConfiguration)
	}
	return nil
}

// SlabRate 返回资金所在档位的速率。
func (c Config) SlabRate(capital float64) (int, error) {
	for _, s := range c.Slabs {
		if s.contains(capital) {
			return s.MaxTradesPerHour, nil
		}
	}
	return 0, fmt.Errorf("%w: capital %v", ErrNoSlab, capital)
}

func (c Config) clone() Config {
	out := c
	out.Slabs = append([]Slab(nil), c.Slabs...)
	return out
}

type Decision struct {
	MaxTradesThisHour int                 `json:"max_trades_this_hour"`
	Mode              types.FrequencyMode `json:"frequency_mode"`
	DrawdownPct       float64             `json:"drawdown_pct"`
}

// Evaluate 是纯函数，每个 tick 重新计算，不持有状态。
func Evaluate(capital, dailyPnL float64, cfg Config) (Decision, error) {
	if capital <= 0 {
		return Decision{}, fmt.Errorf("%w: capital %v", ErrNoSlab, capital)
	}
	drawdown := math.Max(0, -dailyPnL) / capital
	if drawdown >= cfg.HardDrawdownTriggerPct {
		return Decision{MaxTradesThisHour: 1, Mode: types.FrequencyHardLimit, DrawdownPct: drawdown}, nil
	}
	rate, err := cfg.SlabRate(capital)
	if err != nil {
		return Decision{}, err
	}
	if drawdown >= cfg.DrawdownTriggerPct {
		reduced := decimal.NewFromInt(int64(rate)).Mul(decimal.NewFromFloat(cfg.DrawdownReducePct)).Floor().IntPart()
		if reduced < 1 {
			reduced = 1
		}
		return Decision{MaxTradesThisHour: int(reduced), Mode: types.FrequencyReduced, DrawdownPct: drawdown}, nil
	}
	if cfg.MaxHourlyCap > 0 && rate > cfg.MaxHourlyCap {
		rate = cfg.MaxHourlyCap
	}
	return Decision{MaxTradesThisHour: rate, Mode: types.FrequencyNormal, DrawdownPct: drawdown}, nil
}

package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"intraday/internal/types"
)

// Levels 以入场价的固定比例给出止损/止盈。
type Levels struct {
	StopPct   float64 `mapstructure:"stop_pct"`
	TargetPct float64 `mapstructure:"target_pct"`
}

func (l Levels) validate() error {
	if l.StopPct <= 0 || l.StopPct >= 1 {
		return fmt.Errorf("stop_pct must be in (0, 1)")
	}
	if l.TargetPct <= 0 {
		return fmt.Errorf("target_pct must be > 0")
	}
	return nil
}

func (l Levels) StopLoss(entry float64, dir types.Direction) float64 {
	return offset(entry, -l.StopPct*float64(dir.Sign()))
}

func (l Levels) Target(entry float64, dir types.Direction) float64 {
	return offset(entry, l.TargetPct*float64(dir.Sign()))
}

func offset(entry, pct float64) float64 {
	d := decimal.NewFromFloat(entry).Mul(decimal.NewFromFloat(1 + pct))
	return d.Round(4).InexactFloat64()
}

// exitOnLevels 在价格触及止损/止盈时给出离场信号。
func exitOnLevels(trade types.Trade, price float64) (types.StrategySignal, bool) {
	switch {
	case HitStopLoss(trade.Direction, price, trade.StopLoss):
		return types.StrategySignal{CanExit: true, Price: price, Reason: "stop loss hit"}, true
	case HitTarget(trade.Direction, price, trade.Target):
		return types.StrategySignal{CanExit: true, Price: price, Reason: "target hit"}, true
	}
	return types.StrategySignal{}, false
}

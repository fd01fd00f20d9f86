package strategy

import (
	"context"
	"fmt"

	"github.com/markcheno/go-talib"

	"intraday/internal/types"
)

const RangeBreakoutID = "range_breakout"

type rangeBreakoutParams struct {
	Levels `mapstructure:",squash"`

	Lookback   int  `mapstructure:"lookback"`
	AllowShort bool `mapstructure:"allow_short"`
}

// RangeBreakout 收盘突破前 Lookback 根 K 线的高点做多、跌破低点做空（可选），回落到区间中轴离场。
type RangeBreakout struct {
	p rangeBreakoutParams
}

func NewRangeBreakout(params map[string]any) (Strategy, error) {
	p := rangeBreakoutParams{Lookback: 15, Levels: Levels{StopPct: 0.004, TargetPct: 0.01}}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Lookback < 2 {
		return nil, fmt.Errorf("range_breakout: lookback must be >= 2")
	}
	if err := p.Levels.validate(); err != nil {
		return nil, fmt.Errorf("range_breakout: %w", err)
	}
	return &RangeBreakout{p: p}, nil
}

func (s *RangeBreakout) ID() string { return RangeBreakoutID }

func (s *RangeBreakout) StopLoss(entry float64, dir types.Direction) float64 {
	return s.p.Levels.StopLoss(entry, dir)
}

func (s *RangeBreakout) Target(entry float64, dir types.Direction) float64 {
	return s.p.Levels.Target(entry, dir)
}

// band 返回最后一根之前 Lookback 根 K 线的最高/最低价。
func (s *RangeBreakout) band(in Input) (high, low float64, ok bool) {
	n := len(in.Candles)
	if n < s.p.Lookback+1 {
		return 0, 0, false
	}
	prior := in.Candles[:n-1]
	highs := talib.Max(prior.Highs(), s.p.Lookback)
	lows := talib.Min(prior.Lows(), s.p.Lookback)
	return highs[len(highs)-1], lows[len(lows)-1], true
}

func (s *RangeBreakout) CheckEntry(ctx context.Context, in Input) (types.StrategySignal, error) {
	high, low, ok := s.band(in)
	if !ok {
		return types.StrategySignal{}, nil
	}
	last := in.Candles[len(in.Candles)-1]
	var direction types.Direction
	var reason string
	switch {
	case last.Close > high:
		direction, reason = types.Long, fmt.Sprintf("close %.4f broke %d-bar high %.4f", last.Close, s.p.Lookback, high)
	case last.Close < low && s.p.AllowShort:
		direction, reason = types.Short, fmt.Sprintf("close %.4f broke %d-bar low %.4f", last.Close, s.p.Lookback, low)
	default:
		return types.StrategySignal{}, nil
	}
	price, err := TradePrice(ctx, in, "", "")
	if err != nil {
		return types.StrategySignal{}, err
	}
	return types.StrategySignal{
		CanEnter:  true,
		Direction: direction,
		Price:     price,
		StopLoss:  s.StopLoss(price, direction),
		Target:    s.Target(price, direction),
		Reason:    reason,
	}, nil
}

func (s *RangeBreakout) CheckExit(ctx context.Context, in Input, trade types.Trade) (types.StrategySignal, error) {
	price, err := TradePrice(ctx, in, trade.Symbol, trade.Exchange)
	if err != nil {
		return types.StrategySignal{}, err
	}
	if sig, ok := exitOnLevels(trade, price); ok {
		return sig, nil
	}
	high, low, ok := s.band(in)
	if !ok {
		return types.StrategySignal{}, nil
	}
	mid := (high + low) / 2
	last := in.Candles[len(in.Candles)-1]
	if (trade.Direction == types.Long && last.Close < mid) || (trade.Direction == types.Short && last.Close > mid) {
		return types.StrategySignal{CanExit: true, Price: price, Reason: "breakout failed back into range"}, nil
	}
	return types.StrategySignal{}, nil
}

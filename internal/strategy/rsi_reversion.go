package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"intraday/internal/types"
)

const RSIReversionID = "rsi_reversion"

type rsiReversionParams struct {
	Levels `mapstructure:",squash"`

	Period     int     `mapstructure:"period"`
	Oversold   float64 `mapstructure:"oversold"`
	Overbought float64 `mapstructure:"overbought"`
	ExitLevel  float64 `mapstructure:"exit_level"`
	AllowShort bool    `mapstructure:"allow_short"`
}

// RSIReversion 在超卖做多、超买做空（可选），RSI 回到 ExitLevel 附近离场。
type RSIReversion struct {
	p rsiReversionParams
}

func NewRSIReversion(params map[string]any) (Strategy, error) {
	p := rsiReversionParams{Period: 14, Oversold: 30, Overbought: 70, ExitLevel: 50, Levels: Levels{StopPct: 0.006, TargetPct: 0.012}}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Period < 2 {
		return nil, fmt.Errorf("rsi_reversion: period must be >= 2")
	}
	if !(0 < p.Oversold && p.Oversold < p.ExitLevel && p.ExitLevel < p.Overbought && p.Overbought < 100) {
		return nil, fmt.Errorf("rsi_reversion: need 0 < oversold < exit_level < overbought < 100")
	}
	if err := p.Levels.validate(); err != nil {
		return nil, fmt.Errorf("rsi_reversion: %w", err)
	}
	return &RSIReversion{p: p}, nil
}

func (s *RSIReversion) ID() string { return RSIReversionID }

func (s *RSIReversion) StopLoss(entry float64, dir types.Direction) float64 {
	return s.p.Levels.StopLoss(entry, dir)
}

func (s *RSIReversion) Target(entry float64, dir types.Direction) float64 {
	return s.p.Levels.Target(entry, dir)
}

func (s *RSIReversion) rsi(in Input) (float64, bool) {
	closes := in.Candles.Closes()
	if len(closes) < s.p.Period+1 {
		return 0, false
	}
	series := talib.Rsi(closes, s.p.Period)
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func (s *RSIReversion) CheckEntry(ctx context.Context, in Input) (types.StrategySignal, error) {
	rsi, ok := s.rsi(in)
	if !ok {
		return types.StrategySignal{}, nil
	}
	var direction types.Direction
	switch {
	case rsi <= s.p.Oversold:
		direction = types.Long
	case rsi >= s.p.Overbought && s.p.AllowShort:
		direction = types.Short
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
		Reason:    fmt.Sprintf("rsi%d=%.2f", s.p.Period, rsi),
	}, nil
}

func (s *RSIReversion) CheckExit(ctx context.Context, in Input, trade types.Trade) (types.StrategySignal, error) {
	price, err := TradePrice(ctx, in, trade.Symbol, trade.Exchange)
	if err != nil {
		return types.StrategySignal{}, err
	}
	if sig, ok := exitOnLevels(trade, price); ok {
		return sig, nil
	}
	rsi, ok := s.rsi(in)
	if !ok {
		return types.StrategySignal{}, nil
	}
	if (trade.Direction == types.Long && rsi >= s.p.ExitLevel) || (trade.Direction == types.Short && rsi <= s.p.ExitLevel) {
		return types.StrategySignal{CanExit: true, Price: price, Reason: fmt.Sprintf("rsi reverted to %.2f", rsi)}, nil
	}
	return types.StrategySignal{}, nil
}

package strategy

import (
	"context"
	"fmt"

	"github.com/markcheno/go-talib"

	"intraday/internal/types"
)

const EMACrossoverID = "ema_crossover"

type emaCrossoverParams struct {
	Levels `mapstructure:",squash"`

	Fast       int  `mapstructure:"fast"`
	Slow       int  `mapstructure:"slow"`
	AllowShort bool `mapstructure:"allow_short"`
}

// EMACrossover 在快慢 EMA 金叉做多、死叉做空（可选），反向交叉离场。
type EMACrossover struct {
	p emaCrossoverParams
}

func NewEMACrossover(params map[string]any) (Strategy, error) {
	p := emaCrossoverParams{Fast: 9, Slow: 21, Levels: Levels{StopPct: 0.005, TargetPct: 0.01}}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Fast <= 1 || p.Slow <= p.Fast {
		return nil, fmt.Errorf("ema_crossover: need 1 < fast < slow, got fast=%d slow=%d", p.Fast, p.Slow)
	}
	if err := p.Levels.validate(); err != nil {
		return nil, fmt.Errorf("ema_crossover: %w", err)
	}
	return &EMACrossover{p: p}, nil
}

func (s *EMACrossover) ID() string { return EMACrossoverID }

func (s *EMACrossover) StopLoss(entry float64, dir types.Direction) float64 {
	return s.p.Levels.StopLoss(entry, dir)
}

func (s *EMACrossover) Target(entry float64, dir types.Direction) float64 {
	return s.p.Levels.Target(entry, dir)
}

// cross 返回最后一根 K 线上的交叉方向：+1 金叉，-1 死叉，0 无。
func (s *EMACrossover) cross(in Input) (int, bool) {
	closes := in.Candles.Closes()
	if len(closes) < s.p.Slow+1 {
		return 0, false
	}
	fast := talib.Ema(closes, s.p.Fast)
	slow := talib.Ema(closes, s.p.Slow)
	n := len(closes)
	prevDiff := fast[n-2] - slow[n-2]
	diff := fast[n-1] - slow[n-1]
	switch {
	case prevDiff <= 0 && diff > 0:
		return 1, true
	case prevDiff >= 0 && diff < 0:
		return -1, true
	}
	return 0, true
}

func (s *EMACrossover) CheckEntry(ctx context.Context, in Input) (types.StrategySignal, error) {
	dir, ok := s.cross(in)
	if !ok || dir == 0 {
		return types.StrategySignal{}, nil
	}
	direction := types.Long
	reason := fmt.Sprintf("ema%d crossed above ema%d", s.p.Fast, s.p.Slow)
	if dir < 0 {
		if !s.p.AllowShort {
			return types.StrategySignal{}, nil
		}
		direction = types.Short
		reason = fmt.Sprintf("ema%d crossed below ema%d", s.p.Fast, s.p.Slow)
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

func (s *EMACrossover) CheckExit(ctx context.Context, in Input, trade types.Trade) (types.StrategySignal, error) {
	price, err := TradePrice(ctx, in, trade.Symbol, trade.Exchange)
	if err != nil {
		return types.StrategySignal{}, err
	}
	if sig, ok := exitOnLevels(trade, price); ok {
		return sig, nil
	}
	dir, _ := s.cross(in)
	if (trade.Direction == types.Long && dir < 0) || (trade.Direction == types.Short && dir > 0) {
		return types.StrategySignal{CanExit: true, Price: price, Reason: "opposite ema crossover"}, nil
	}
	return types.StrategySignal{}, nil
}

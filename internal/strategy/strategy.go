package strategy

import (
	"context"
	"time"

	"intraday/internal/market"
	"intraday/internal/types"
)

// Quoter 提供衍生品权利金报价。
type Quoter interface {
	Quote(ctx context.Context, symbol, exchange string) (float64, error)
}

// Input 是策略单次判断所需的行情快照。
type Input struct {
	SessionID  string
	Instrument string
	Exchange   string
	Kind       types.InstrumentKind
	Timeframe  string
	Now        time.Time
	Candles    market.Candles
	LastPrice  float64
	Quoter     Quoter
}

// Strategy 是可插拔的进出场逻辑。实现必须无副作用：同样的 Input 给出同样的信号。
type Strategy interface {
	ID() string
	CheckEntry(ctx context.Context, in Input) (types.StrategySignal, error)
	// CheckExit 只对由本策略实例开出的持仓调用。
	CheckExit(ctx context.Context, in Input, trade types.Trade) (types.StrategySignal, error)
	StopLoss(entry float64, dir types.Direction) float64
	Target(entry float64, dir types.Direction) float64
}

// TradePrice 返回持仓当前应参考的价格：合约与标的不同时取权利金报价。
func TradePrice(ctx context.Context, in Input, symbol, exchange string) (float64, error) {
	if symbol == "" || symbol == in.Instrument || in.Quoter == nil {
		if in.Kind == types.InstrumentLot && in.Quoter != nil {
			return in.Quoter.Quote(ctx, in.Instrument, in.Exchange)
		}
		return in.LastPrice, nil
	}
	return in.Quoter.Quote(ctx, symbol, exchange)
}

// HitStopLoss 判断价格是否触及止损。
func HitStopLoss(dir types.Direction, price, stop float64) bool {
	if stop <= 0 || price <= 0 {
		return false
	}
	if dir == types.Short {
		return price >= stop
	}
	return price <= stop
}

// HitTarget 判断价格是否触及止盈。
func HitTarget(dir types.Direction, price, target float64) bool {
	if target <= 0 || price <= 0 {
		return false
	}
	if dir == types.Short {
		return price <= target
	}
	return price >= target
}

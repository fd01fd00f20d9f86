package execution

import (
	"context"
	"fmt"

	"intraday/internal/logger"
	"intraday/internal/types"
)

// SimRouter 按意图价格立即成交，PAPER 与 BACKTEST 共用；时间取意图/平仓请求自带的时刻，
// 不读墙钟。
type SimRouter struct {
	mode types.Mode
}

func NewPaperRouter() *SimRouter { return &SimRouter{mode: types.ModePaper} }

func NewBacktestRouter() *SimRouter { return &SimRouter{mode: types.ModeBacktest} }

func (r *SimRouter) Open(_ context.Context, sess types.Session, intent types.TradeIntent) (types.Trade, error) {
	if intent.Price <= 0 || intent.Quantity <= 0 {
		return types.Trade{}, fmt.Errorf("%w: invalid intent price=%v qty=%v", ErrExecutionFailed, intent.Price, intent.Quantity)
	}
	trade := tradeFromIntent(sess, intent, intent.Price, intent.CreatedAt)
	logger.Debugf("Execution[%s]: open %s %s qty=%v @ %.4f", r.mode, trade.ID, trade.Symbol, trade.Quantity, trade.EntryPrice)
	return trade, nil
}

func (r *SimRouter) Close(_ context.Context, _ types.Session, trade types.Trade, exit ExitOrder) (types.Trade, error) {
	if exit.Price <= 0 {
		return types.Trade{}, fmt.Errorf("%w: invalid exit price %v", ErrExecutionFailed, exit.Price)
	}
	if err := trade.Close(exit.Price, exit.At, exit.Reason); err != nil {
		return types.Trade{}, err
	}
	logger.Debugf("Execution[%s]: close %s @ %.4f reason=%s pnl=%.2f", r.mode, trade.ID, trade.ExitPrice, trade.ExitReason, trade.PnL)
	return trade, nil
}

package execution

import (
	"context"
	"errors"
	"time"

	"intraday/internal/types"
)

// ErrExecutionFailed 表示下单/平仓未能确认成交；调用方不得伪造成交。
var ErrExecutionFailed = errors.New("execution failed")

// ExitOrder 描述一次平仓请求。
type ExitOrder struct {
	IntentID string
	Price    float64
	Reason   types.ExitReason
	At       time.Time
}

// Router 按会话模式执行开平仓，各模式返回相同形状的 Trade。
type Router interface {
	Open(ctx context.Context, sess types.Session, intent types.TradeIntent) (types.Trade, error)
	Close(ctx context.Context, sess types.Session, trade types.Trade, exit ExitOrder) (types.Trade, error)
}

// Reconciler 由能查询券商订单状态的路由实现，用于重启后处理 PENDING 意图。
// found=false 表示券商侧没有该订单。
type Reconciler interface {
	Reconcile(ctx context.Context, sess types.Session, intent types.TradeIntent) (trade types.Trade, found bool, err error)
}

// ByMode 按会话模式选择路由。
type ByMode map[types.Mode]Router

func (m ByMode) For(mode types.Mode) (Router, bool) {
	r, ok := m[mode]
	return r, ok && r != nil
}

func tradeFromIntent(sess types.Session, intent types.TradeIntent, price float64, at time.Time) types.Trade {
	return types.Trade{
		ID:         intent.TradeID,
		SessionID:  sess.ID,
		StrategyID: intent.StrategyID,
		Symbol:     intent.Symbol,
		Exchange:   intent.Exchange,
		Direction:  intent.Direction,
		Mode:       sess.Mode,
		EntryPrice: price,
		StopLoss:   intent.StopLoss,
		Target:     intent.Target,
		Quantity:   intent.Quantity,
		Lots:       intent.Lots,
		EntryTime:  at,
		Status:     types.TradeOpen,
	}
}

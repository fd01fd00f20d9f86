package execution

import (
	"context"
	"errors"
	"fmt"

	"intraday/internal/logger"
	"intraday/internal/types"
)

// LiveRouter 把意图转成券商市价单；没有确认成交就返回 ErrExecutionFailed。
type LiveRouter struct {
	broker Broker
}

func NewLiveRouter(broker Broker) *LiveRouter {
	return &LiveRouter{broker: broker}
}

func entrySide(dir types.Direction) Side {
	if dir == types.Short {
		return SideSell
	}
	return SideBuy
}

func exitSide(dir types.Direction) Side {
	if dir == types.Short {
		return SideBuy
	}
	return SideSell
}

func (r *LiveRouter) Open(ctx context.Context, sess types.Session, intent types.TradeIntent) (types.Trade, error) {
	if r.broker == nil {
		return types.Trade{}, fmt.Errorf("%w: no broker configured", ErrExecutionFailed)
	}
	fill, err := r.broker.PlaceMarketOrder(ctx, Order{
		ClientOrderID: intent.ID,
		Symbol:        intent.Symbol,
		Exchange:      intent.Exchange,
		Side:          entrySide(intent.Direction),
		Quantity:      intent.Quantity,
	})
	if err != nil {
		return types.Trade{}, fmt.Errorf("%w: open %s: %v", ErrExecutionFailed, intent.Symbol, err)
	}
	if err := checkFill(fill); err != nil {
		return types.Trade{}, err
	}
	at := fill.At
	if at.IsZero() {
		at = intent.CreatedAt
	}
	trade := tradeFromIntent(sess, intent, fill.Price, at)
	trade.Quantity = fill.Quantity
	trade.BrokerOrderID = fill.OrderID
	logger.Infof("Execution[LIVE]: open %s %s %s qty=%v @ %.4f order=%s",
		trade.ID, trade.Direction, trade.Symbol, trade.Quantity, trade.EntryPrice, fill.OrderID)
	return trade, nil
}

func (r *LiveRouter) Close(ctx context.Context, _ types.Session, trade types.Trade, exit ExitOrder) (types.Trade, error) {
	if r.broker == nil {
		return types.Trade{}, fmt.Errorf("%w: no broker configured", ErrExecutionFailed)
	}
	fill, err := r.broker.PlaceMarketOrder(ctx, Order{
		ClientOrderID: exit.IntentID,
		Symbol:        trade.Symbol,
		Exchange:      trade.Exchange,
		Side:          exitSide(trade.Direction),
		Quantity:      trade.Quantity,
	})
	if err != nil {
		return types.Trade{}, fmt.Errorf("%w: close %s: %v", ErrExecutionFailed, trade.ID, err)
	}
	if err := checkFill(fill); err != nil {
		return types.Trade{}, err
	}
	at := fill.At
	if at.IsZero() {
		at = exit.At
	}
	if err := trade.Close(fill.Price, at, exit.Reason); err != nil {
		return types.Trade{}, err
	}
	logger.Infof("Execution[LIVE]: close %s @ %.4f reason=%s pnl=%.2f", trade.ID, trade.ExitPrice, trade.ExitReason, trade.PnL)
	return trade, nil
}

// Reconcile 查询 PENDING 意图对应的券商订单。
func (r *LiveRouter) Reconcile(ctx context.Context, sess types.Session, intent types.TradeIntent) (types.Trade, bool, error) {
	lookup, ok := r.broker.(OrderLookup)
	if !ok {
		return types.Trade{}, false, fmt.Errorf("broker does not support order lookup")
	}
	fill, err := lookup.LookupOrder(ctx, intent.Symbol, intent.ID)
	if errors.Is(err, ErrOrderNotFound) {
		return types.Trade{}, false, nil
	}
	if err != nil {
		return types.Trade{}, false, err
	}
	if err := checkFill(fill); err != nil {
		return types.Trade{}, false, nil
	}
	switch intent.Kind {
	case types.IntentOpen:
		at := fill.At
		if at.IsZero() {
			at = intent.CreatedAt
		}
		trade := tradeFromIntent(sess, intent, fill.Price, at)
		trade.Quantity = fill.Quantity
		trade.BrokerOrderID = fill.OrderID
		return trade, true, nil
	case types.IntentClose:
		if sess.CurrentTrade == nil || sess.CurrentTrade.ID != intent.TradeID {
			return types.Trade{}, false, fmt.Errorf("close intent %s does not match open trade", intent.ID)
		}
		at := fill.At
		if at.IsZero() {
			at = intent.CreatedAt
		}
		trade := *sess.CurrentTrade
		if err := trade.Close(fill.Price, at, intent.ExitReason); err != nil {
			return types.Trade{}, false, err
		}
		return trade, true, nil
	}
	return types.Trade{}, false, fmt.Errorf("unknown intent kind %q", intent.Kind)
}

func checkFill(f Fill) error {
	if f.Price <= 0 || f.Quantity <= 0 {
		return fmt.Errorf("%w: unconfirmed fill price=%v qty=%v", ErrExecutionFailed, f.Price, f.Quantity)
	}
	return nil
}

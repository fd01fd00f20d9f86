package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"intraday/internal/execution"
	"intraday/internal/logger"
	"intraday/internal/store"
	"intraday/internal/strategy"
	"intraday/internal/types"
)

func (e *Engine) manageOpenTrade(ctx context.Context, sess *types.Session, now time.Time, out Outcome) Outcome {
	trade := *sess.CurrentTrade
	out.TradeID = trade.ID
	out.StrategyID = trade.StrategyID

	strat, err := e.strategyForTrade(trade)
	if err != nil {
		e.quarantine(ctx, sess, now, fmt.Errorf("%w: %s: %v", types.ErrInvalidSession, sess.ID, err))
		out.Action = ActionQuarantined
		out.Err = err.Error()
		return out
	}
	in, err := e.snapshot(ctx, sess, now)
	if err != nil {
		return e.skipped(sess, out, err)
	}
	sig, err := strat.CheckExit(ctx, in, trade)
	if err != nil {
		return e.skipped(sess, out, err)
	}
	if !sig.CanExit {
		out.Action = ActionHeld
		return out
	}
	price := sig.Price
	if price <= 0 {
		if price, err = e.markPrice(ctx, sess, trade); err != nil {
			return e.skipped(sess, out, err)
		}
	}
	reason := classifyExit(trade, price)
	if _, err := e.closeTrade(ctx, sess, price, reason, now); err != nil {
		out.Action = ActionFailed
		out.Reason = string(reason)
		out.Err = err.Error()
		return out
	}
	out.Action = ActionExited
	out.Reason = string(reason)
	logger.Infof("Engine: session %s exit %s @%.4f reason=%s (%s) pnl_today=%.2f",
		sess.ID, trade.ID, price, reason, sig.Reason, sess.DailyPnL)
	return out
}

// classifyExit 以成交参考价与止损止盈位判定平仓原因。
func classifyExit(trade types.Trade, price float64) types.ExitReason {
	switch {
	case strategy.HitStopLoss(trade.Direction, price, trade.StopLoss):
		return types.ExitStopLoss
	case strategy.HitTarget(trade.Direction, price, trade.Target):
		return types.ExitTarget
	default:
		return types.ExitStrategy
	}
}

// strategyForTrade 优先返回开仓时的实例；重启后按持仓记录的策略 ID 重建。
func (e *Engine) strategyForTrade(trade types.Trade) (strategy.Strategy, error) {
	if s, ok := e.bound[trade.ID]; ok {
		return s, nil
	}
	s, err := e.registry.New(trade.StrategyID)
	if err != nil {
		return nil, err
	}
	e.bound[trade.ID] = s
	return s, nil
}

// closeTrade 先落盘 CLOSE 意图再调用路由；失败时意图标记 FAILED，会话持仓保持不变。
func (e *Engine) closeTrade(ctx context.Context, sess *types.Session, price float64, reason types.ExitReason, now time.Time) (types.Trade, error) {
	trade := *sess.CurrentTrade
	router, ok := e.routers.For(sess.Mode)
	if !ok {
		err := fmt.Errorf("no execution router for mode %s", sess.Mode)
		e.recordError(ctx, sess.ID, types.ErrKindConfiguration, err.Error(), now)
		return types.Trade{}, err
	}
	intent := types.TradeIntent{
		ID:         e.ids.NewID(),
		SessionID:  sess.ID,
		Kind:       types.IntentClose,
		TradeID:    trade.ID,
		StrategyID: trade.StrategyID,
		Symbol:     trade.Symbol,
		Exchange:   trade.Exchange,
		Direction:  trade.Direction,
		Price:      price,
		Quantity:   trade.Quantity,
		Lots:       trade.Lots,
		ExitReason: reason,
		Status:     types.IntentPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.store.SaveIntent(ctx, intent); err != nil {
		return types.Trade{}, fmt.Errorf("persist close intent: %w", err)
	}
	closed, err := router.Close(ctx, *sess, trade, execution.ExitOrder{IntentID: intent.ID, Price: price, Reason: reason, At: now})
	if err != nil {
		e.failIntent(ctx, intent, err, now)
		return types.Trade{}, err
	}

	next := sess.Clone()
	next.DailyPnL = addPnL(sess.DailyPnL, closed.PnL)
	next.CurrentTrade = nil
	e.persistFill(ctx, next, closed, intent, now)
	*sess = *next
	delete(e.bound, trade.ID)
	metricTradesClosed.WithLabelValues(string(sess.Mode), string(reason)).Inc()
	return closed, nil
}

// persistFill 在同一事务内写入成交、意图与会话。
// 事务失败时调用方照常推进内存状态，会话由 processSafe 的 Save 补写。
func (e *Engine) persistFill(ctx context.Context, next *types.Session, trade types.Trade, intent types.TradeIntent, now time.Time) {
	intent.Status = types.IntentDone
	intent.UpdatedAt = now
	err := e.store.Tx(ctx, func(tx store.Store) error {
		if err := tx.SaveTrade(ctx, trade); err != nil {
			return err
		}
		if err := tx.SaveIntent(ctx, intent); err != nil {
			return err
		}
		return tx.Save(ctx, *next)
	})
	if err == nil {
		return
	}
	logger.Errorf("Engine: persist %s fill %s of session %s failed: %v", intent.Kind, trade.ID, next.ID, err)
	if err := e.store.SaveTrade(ctx, trade); err != nil {
		logger.Errorf("Engine: save trade %s: %v", trade.ID, err)
	}
	if err := e.store.SaveIntent(ctx, intent); err != nil {
		logger.Errorf("Engine: save intent %s: %v", intent.ID, err)
	}
	e.recordError(ctx, next.ID, types.ErrKindExecutionFailure,
		fmt.Sprintf("persist %s fill %s: %v", intent.Kind, trade.ID, err), now)
}

func (e *Engine) failIntent(ctx context.Context, intent types.TradeIntent, cause error, now time.Time) {
	intent.Status = types.IntentFailed
	intent.Error = cause.Error()
	intent.UpdatedAt = now
	if err := e.store.SaveIntent(ctx, intent); err != nil {
		logger.Errorf("Engine: mark intent %s failed: %v", intent.ID, err)
	}
	e.recordError(ctx, intent.SessionID, types.ErrKindExecutionFailure,
		fmt.Sprintf("%s %s: %v", intent.Kind, intent.TradeID, cause), now)
}

// skipped 处理行情不可用等可恢复错误：本轮跳过决策。
func (e *Engine) skipped(sess *types.Session, out Outcome, err error) Outcome {
	out.Err = err.Error()
	if isDataUnavailable(err) {
		out.Action = ActionSkipped
		logger.Warnf("Engine: session %s skip decision: %v", sess.ID, err)
		return out
	}
	out.Action = ActionFailed
	logger.Errorf("Engine: session %s strategy evaluation failed: %v", sess.ID, err)
	return out
}

func addPnL(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Round(8).InexactFloat64()
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"intraday/internal/execution"
	"intraday/internal/logger"
	"intraday/internal/market"
	"intraday/internal/scheduler"
	"intraday/internal/store"
	"intraday/internal/types"
)

var (
	ErrNoOpenTrade = errors.New("session has no open trade")
	ErrNotStopped  = errors.New("session is not stopped")
)

// BootstrapReport 汇总启动时的隔离与对账结果。
type BootstrapReport struct {
	Sessions    int `json:"sessions"`
	Quarantined int `json:"quarantined"`
	Reconciled  int `json:"reconciled"`
	Abandoned   int `json:"abandoned"`
}

// EnsureSessions 写入库中尚不存在的会话，已存在的保持原状。
func (e *Engine) EnsureSessions(ctx context.Context, seeds []types.Session) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	created := 0
	for _, seed := range seeds {
		_, err := e.store.Get(ctx, seed.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return created, fmt.Errorf("lookup session %s: %w", seed.ID, err)
		}
		if !e.registry.Has(seed.CurrentStrategyID) {
			return created, fmt.Errorf("session %s: unknown strategy %q", seed.ID, seed.CurrentStrategyID)
		}
		if err := e.store.Save(ctx, seed); err != nil {
			return created, fmt.Errorf("seed session %s: %w", seed.ID, err)
		}
		created++
		logger.Infof("Engine: seeded session %s instrument=%s mode=%s strategy=%s capital=%.2f",
			seed.ID, seed.Instrument, seed.Mode, seed.CurrentStrategyID, seed.Capital)
	}
	return created, nil
}

// Bootstrap 在首个 tick 前运行：隔离无效会话，并对 PENDING 意图对账。
func (e *Engine) Bootstrap(ctx context.Context, now time.Time) (BootstrapReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var rep BootstrapReport
	sessions, err := e.store.Load(ctx)
	if err != nil {
		return rep, fmt.Errorf("load sessions: %w", err)
	}
	rep.Sessions = len(sessions)
	for i := range sessions {
		sess := sessions[i]
		if sess.Status == types.StatusStopped && sess.StopReason == types.StopQuarantined {
			continue
		}
		if err := sess.Validate(); err != nil {
			e.quarantine(ctx, &sess, now, err)
			if err := e.store.Save(ctx, sess); err != nil {
				return rep, fmt.Errorf("persist quarantined session %s: %w", sess.ID, err)
			}
			rep.Quarantined++
		}
	}

	intents, err := e.store.PendingIntents(ctx)
	if err != nil {
		return rep, fmt.Errorf("load pending intents: %w", err)
	}
	for _, intent := range intents {
		ok, err := e.reconcile(ctx, intent, now)
		if err != nil {
			return rep, err
		}
		if ok {
			rep.Reconciled++
		} else {
			rep.Abandoned++
		}
	}
	logger.Infof("Engine: bootstrap sessions=%d quarantined=%d reconciled=%d abandoned=%d",
		rep.Sessions, rep.Quarantined, rep.Reconciled, rep.Abandoned)
	return rep, nil
}

// reconcile 向券商确认 PENDING 意图；无法确认的标记 ABANDONED，不补造成交。
func (e *Engine) reconcile(ctx context.Context, intent types.TradeIntent, now time.Time) (bool, error) {
	sess, err := e.store.Get(ctx, intent.SessionID)
	if err != nil {
		return false, e.abandon(ctx, intent, fmt.Sprintf("session lookup: %v", err), now)
	}
	router, ok := e.routers.For(sess.Mode)
	if !ok {
		return false, e.abandon(ctx, intent, "no router for mode "+string(sess.Mode), now)
	}
	rec, ok := router.(execution.Reconciler)
	if !ok {
		return false, e.abandon(ctx, intent, "unconfirmed simulated fill", now)
	}
	trade, found, err := rec.Reconcile(ctx, sess, intent)
	if err != nil {
		return false, e.abandon(ctx, intent, fmt.Sprintf("reconcile: %v", err), now)
	}
	if !found {
		return false, e.abandon(ctx, intent, "order not found at broker", now)
	}

	next := sess.Clone()
	switch intent.Kind {
	case types.IntentOpen:
		if next.HasOpenTrade() && next.CurrentTrade.ID == trade.ID {
			// 会话已记入该持仓，只需补记意图。
			break
		}
		if next.HasOpenTrade() {
			return false, e.abandon(ctx, intent, "session already holds trade "+next.CurrentTrade.ID, now)
		}
		next.CurrentTrade = &trade
		next.TradesToday++
		if scheduler.HourBlock(intent.CreatedAt, e.opts.Location).Equal(next.CurrentHourBlock) {
			next.HourlyTradeCount++
		}
	case types.IntentClose:
		if next.CurrentTrade != nil && next.CurrentTrade.ID == trade.ID {
			next.DailyPnL = addPnL(next.DailyPnL, trade.PnL)
			next.CurrentTrade = nil
		}
	}
	next.UpdatedAt = now
	intent.Status = types.IntentDone
	intent.UpdatedAt = now
	err = e.store.Tx(ctx, func(tx store.Store) error {
		if err := tx.SaveTrade(ctx, trade); err != nil {
			return err
		}
		if err := tx.SaveIntent(ctx, intent); err != nil {
			return err
		}
		return tx.Save(ctx, *next)
	})
	if err != nil {
		return false, fmt.Errorf("persist reconciled intent %s: %w", intent.ID, err)
	}
	logger.Infof("Engine: reconciled %s intent %s for session %s trade=%s", intent.Kind, intent.ID, sess.ID, trade.ID)
	return true, nil
}

func (e *Engine) abandon(ctx context.Context, intent types.TradeIntent, why string, now time.Time) error {
	intent.Status = types.IntentAbandoned
	intent.Error = why
	intent.UpdatedAt = now
	if err := e.store.SaveIntent(ctx, intent); err != nil {
		return fmt.Errorf("abandon intent %s: %w", intent.ID, err)
	}
	e.recordError(ctx, intent.SessionID, types.ErrKindExecutionFailure,
		fmt.Sprintf("abandoned %s intent %s: %s", intent.Kind, intent.ID, why), now)
	logger.Warnf("Engine: abandoned %s intent %s of session %s: %s", intent.Kind, intent.ID, intent.SessionID, why)
	return nil
}

// Approve 将 STOPPED 会话重新置为 ACTIVE，并清零当日统计。被隔离的会话需先修复数据。
func (e *Engine) Approve(ctx context.Context, id string, now time.Time) (types.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, err := e.store.Get(ctx, id)
	if err != nil {
		return types.Session{}, err
	}
	if sess.Status != types.StatusStopped {
		return sess, fmt.Errorf("%w: %s is %s", ErrNotStopped, id, sess.Status)
	}
	prev := sess.StopReason
	sess.Status = types.StatusActive
	sess.StopReason = ""
	if err := sess.Validate(); err != nil {
		return types.Session{}, err
	}
	sess.DailyPnL = 0
	sess.TradesToday = 0
	sess.HourlyTradeCount = 0
	sess.TradingDay = scheduler.TradingDay(now, e.opts.Location)
	sess.CurrentHourBlock = scheduler.HourBlock(now, e.opts.Location)
	sess.FrequencyMode = types.FrequencyNormal
	sess.UpdatedAt = now
	if err := e.store.Save(ctx, sess); err != nil {
		return types.Session{}, err
	}
	logger.Infof("Engine: session %s approved (was %s)", id, prev)
	return sess, nil
}

// CloseManual 以 MANUAL 原因平掉当前持仓，会话状态不变。
func (e *Engine) CloseManual(ctx context.Context, id string, now time.Time) (types.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeByID(ctx, id, now, types.ExitManual, "")
}

// Stop 平掉持仓（如有）并以 MANUAL 原因停止会话。
func (e *Engine) Stop(ctx context.Context, id string, now time.Time) (types.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.closeByID(ctx, id, now, types.ExitManual, types.StopManual); err != nil && !errors.Is(err, ErrNoOpenTrade) {
		return types.Session{}, err
	}
	return e.store.Get(ctx, id)
}

// ForceClose 供回测在交易日结束时平仓并停止会话。
// 平仓价取持仓合约自身的行情，取不到时才用 fallback。
func (e *Engine) ForceClose(ctx context.Context, id string, fallback float64, now time.Time) (types.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess, err := e.store.Get(ctx, id)
	if err != nil {
		return types.Trade{}, err
	}
	var closed types.Trade
	if sess.HasOpenTrade() {
		price, err := e.markPrice(ctx, &sess, *sess.CurrentTrade)
		if err != nil {
			if !errors.Is(err, market.ErrDataUnavailable) || fallback <= 0 {
				return types.Trade{}, err
			}
			logger.Warnf("Engine: session %s no mark price for %s, closing at fallback %.4f: %v", id, sess.CurrentTrade.Symbol, fallback, err)
			price = fallback
		}
		if closed, err = e.closeTrade(ctx, &sess, price, types.ExitCutoff, now); err != nil {
			return types.Trade{}, err
		}
	}
	sess.Stop(types.StopCutoff, now)
	if err := e.store.Save(ctx, sess); err != nil {
		return types.Trade{}, err
	}
	if closed.ID == "" {
		return closed, ErrNoOpenTrade
	}
	return closed, nil
}

func (e *Engine) closeByID(ctx context.Context, id string, now time.Time, exit types.ExitReason, stop types.StopReason) (types.Trade, error) {
	sess, err := e.store.Get(ctx, id)
	if err != nil {
		return types.Trade{}, err
	}
	var closed types.Trade
	if sess.HasOpenTrade() {
		price, err := e.markPrice(ctx, &sess, *sess.CurrentTrade)
		if err != nil {
			return types.Trade{}, err
		}
		if closed, err = e.closeTrade(ctx, &sess, price, exit, now); err != nil {
			return types.Trade{}, err
		}
		logger.Infof("Engine: session %s trade %s closed manually @%.4f pnl=%.2f", id, closed.ID, price, closed.PnL)
	}
	if stop != "" {
		sess.Stop(stop, now)
		if err := e.store.Save(ctx, sess); err != nil {
			return types.Trade{}, err
		}
	}
	if closed.ID == "" {
		return closed, fmt.Errorf("%w: %s", ErrNoOpenTrade, id)
	}
	return closed, nil
}

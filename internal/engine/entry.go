package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"intraday/internal/advisor"
	"intraday/internal/logger"
	"intraday/internal/risk"
	"intraday/internal/strategy"
	"intraday/internal/types"
)

func (e *Engine) tryEntry(ctx context.Context, sess *types.Session, now time.Time, out Outcome) Outcome {
	in, err := e.snapshot(ctx, sess, now)
	if err != nil {
		return e.skipped(sess, out, err)
	}
	e.consultAdvisor(ctx, sess, now, in)

	strat, err := e.registry.New(sess.CurrentStrategyID)
	if err != nil {
		e.quarantine(ctx, sess, now, fmt.Errorf("%w: %s: %v", types.ErrInvalidSession, sess.ID, err))
		out.Action = ActionQuarantined
		out.Err = err.Error()
		return out
	}
	out.StrategyID = strat.ID()

	sig, err := strat.CheckEntry(ctx, in)
	if err != nil {
		return e.skipped(sess, out, err)
	}
	if !sig.CanEnter {
		return out
	}
	if sig.Price <= 0 {
		out.Action = ActionRejected
		out.Reason = "signal without price"
		return out
	}
	if sig.Direction == "" {
		sig.Direction = types.Long
	}
	if sig.Symbol == "" {
		sig.Symbol = sess.Instrument
	}
	if sig.Exchange == "" {
		sig.Exchange = sess.Exchange
	}
	if sig.StopLoss <= 0 {
		sig.StopLoss = strat.StopLoss(sig.Price, sig.Direction)
	}
	if sig.Target <= 0 {
		sig.Target = strat.Target(sig.Price, sig.Direction)
	}

	sizing := risk.Size(availableCapital(sess), economics(sess, sig), e.opts.Risk)
	if !sizing.Affordable {
		out.Action = ActionRejected
		out.Reason = string(sizing.Reason)
		logger.Infof("Engine: session %s entry rejected strategy=%s price=%.4f reason=%s", sess.ID, strat.ID(), sig.Price, sizing.Reason)
		return out
	}

	trade, err := e.openTrade(ctx, sess, strat, sig, sizing, now)
	if err != nil {
		out.Action = ActionFailed
		out.Err = err.Error()
		return out
	}
	out.Action = ActionEntered
	out.TradeID = trade.ID
	out.Reason = sig.Reason
	logger.Infof("Engine: session %s entered %s %s %s qty=%v @%.4f sl=%.4f tp=%.4f (%s)",
		sess.ID, trade.ID, trade.Direction, trade.Symbol, trade.Quantity, trade.EntryPrice, trade.StopLoss, trade.Target, sig.Reason)
	return out
}

// availableCapital 为当日资金加已实现盈亏。
func availableCapital(sess *types.Session) float64 {
	return addPnL(sess.Capital, sess.DailyPnL)
}

func economics(sess *types.Session, sig types.StrategySignal) risk.Economics {
	if sess.InstrumentKind == types.InstrumentLot {
		return risk.Economics{Kind: types.InstrumentLot, Premium: sig.Price, LotSize: sess.LotSize}
	}
	return risk.Economics{Kind: types.InstrumentUnit, Entry: sig.Price, StopLoss: sig.StopLoss}
}

// openTrade 先落盘 OPEN 意图再调用路由；成交后在同一事务内写入持仓、意图与会话。
func (e *Engine) openTrade(ctx context.Context, sess *types.Session, strat strategy.Strategy, sig types.StrategySignal, sizing risk.Sizing, now time.Time) (types.Trade, error) {
	router, ok := e.routers.For(sess.Mode)
	if !ok {
		err := fmt.Errorf("no execution router for mode %s", sess.Mode)
		e.recordError(ctx, sess.ID, types.ErrKindConfiguration, err.Error(), now)
		return types.Trade{}, err
	}
	intent := types.TradeIntent{
		ID:         e.ids.NewID(),
		SessionID:  sess.ID,
		Kind:       types.IntentOpen,
		TradeID:    e.ids.NewID(),
		StrategyID: strat.ID(),
		Symbol:     sig.Symbol,
		Exchange:   sig.Exchange,
		Direction:  sig.Direction,
		Price:      sig.Price,
		StopLoss:   sig.StopLoss,
		Target:     sig.Target,
		Quantity:   sizing.Quantity,
		Lots:       sizing.Lots,
		Status:     types.IntentPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.store.SaveIntent(ctx, intent); err != nil {
		return types.Trade{}, fmt.Errorf("persist open intent: %w", err)
	}
	trade, err := router.Open(ctx, *sess, intent)
	if err != nil {
		e.failIntent(ctx, intent, err, now)
		return types.Trade{}, err
	}

	next := sess.Clone()
	next.CurrentTrade = &trade
	next.HourlyTradeCount++
	next.TradesToday++
	e.persistFill(ctx, next, trade, intent, now)
	*sess = *next
	e.bound[trade.ID] = strat
	metricTradesOpened.WithLabelValues(string(sess.Mode)).Inc()
	return trade, nil
}

// consultAdvisor 到达间隔时询问顾问，仅在建议策略已注册、与当前不同且置信度足够时切换。
// 顾问不可用时保持当前策略。
func (e *Engine) consultAdvisor(ctx context.Context, sess *types.Session, now time.Time, in strategy.Input) {
	if e.advisor == nil {
		return
	}
	if !sess.LastAdvisoryAt.IsZero() && now.Sub(sess.LastAdvisoryAt) < e.opts.AdvisoryInterval {
		return
	}
	sess.LastAdvisoryAt = now

	actx := advisor.Context{
		SessionID:     sess.ID,
		Instrument:    sess.Instrument,
		Exchange:      sess.Exchange,
		Mode:          sess.Mode,
		Now:           now,
		Capital:       sess.Capital,
		DailyPnL:      sess.DailyPnL,
		TradesToday:   sess.TradesToday,
		FrequencyMode: sess.FrequencyMode,
		Available:     e.registry.IDs(),
		MarketSummary: in.Candles.Snapshot(e.opts.Timeframe),
	}
	rec, err := e.advisor.Recommend(ctx, actx, sess.CurrentStrategyID)
	if err != nil {
		metricAdvisorCalls.WithLabelValues("unavailable").Inc()
		logger.Warnf("Engine: advisor unavailable for %s, keep %s: %v", sess.ID, sess.CurrentStrategyID, err)
		return
	}
	if rec == nil {
		metricAdvisorCalls.WithLabelValues("no_change").Inc()
		return
	}
	next := strings.ToLower(strings.TrimSpace(rec.StrategyID))
	switch {
	case next == "" || next == sess.CurrentStrategyID:
		metricAdvisorCalls.WithLabelValues("no_change").Inc()
	case !e.registry.Has(next):
		metricAdvisorCalls.WithLabelValues("unknown_strategy").Inc()
		logger.Warnf("Engine: advisor recommended unknown strategy %q for %s", rec.StrategyID, sess.ID)
	case rec.Confidence < e.opts.MinConfidence:
		metricAdvisorCalls.WithLabelValues("low_confidence").Inc()
		logger.Infof("Engine: advisor suggests %s for %s with confidence %.2f < %.2f, keep %s",
			next, sess.ID, rec.Confidence, e.opts.MinConfidence, sess.CurrentStrategyID)
	default:
		metricAdvisorCalls.WithLabelValues("switched").Inc()
		logger.Infof("Engine: session %s switches strategy %s -> %s (confidence %.2f): %s",
			sess.ID, sess.CurrentStrategyID, next, rec.Confidence, rec.Reasoning)
		sess.CurrentStrategyID = next
	}
}

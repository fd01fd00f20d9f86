package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"intraday/internal/advisor"
	"intraday/internal/execution"
	"intraday/internal/logger"
	"intraday/internal/market"
	"intraday/internal/risk"
	"intraday/internal/scheduler"
	"intraday/internal/store"
	"intraday/internal/strategy"
	"intraday/internal/throttle"
	"intraday/internal/types"
)

// ThrottleSource 返回当前生效的频率配置，throttle.FileStore 满足该接口。
type ThrottleSource interface {
	Current() throttle.Config
}

// StaticThrottle 固定配置，回测与测试使用。
type StaticThrottle throttle.Config

func (s StaticThrottle) Current() throttle.Config { return throttle.Config(s) }

type Options struct {
	Location         *time.Location
	Timeframe        string
	Candles          int
	AdvisoryInterval time.Duration
	MinConfidence    float64
	Risk             risk.Config
}

type Deps struct {
	Store    store.Store
	Market   market.Provider
	Registry *strategy.Registry
	// Advisor 可为空，此时会话始终使用当前策略。
	Advisor  advisor.Advisor
	Routers  execution.ByMode
	Throttle ThrottleSource
	IDs      execution.IDSource
}

// Engine 按 tick 推进所有 ACTIVE 会话。Tick 与管理操作互斥执行。
type Engine struct {
	opts Options

	store    store.Store
	market   market.Provider
	registry *strategy.Registry
	advisor  advisor.Advisor
	routers  execution.ByMode
	throttle ThrottleSource
	ids      execution.IDSource

	mu sync.Mutex
	// bound 记录持仓 ID 到开仓策略实例，平仓判断只交给开仓的实例。
	bound map[string]strategy.Strategy
}

func New(opts Options, deps Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if deps.Market == nil {
		return nil, errors.New("engine: market provider is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("engine: strategy registry is required")
	}
	if deps.Throttle == nil {
		return nil, errors.New("engine: throttle source is required")
	}
	if len(deps.Routers) == 0 {
		return nil, errors.New("engine: at least one execution router is required")
	}
	if deps.IDs == nil {
		deps.IDs = execution.RandomIDs{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Candles <= 0 {
		opts.Candles = 100
	}
	if opts.Timeframe == "" {
		opts.Timeframe = "1m"
	}
	return &Engine{
		opts:     opts,
		store:    deps.Store,
		market:   deps.Market,
		registry: deps.Registry,
		advisor:  deps.Advisor,
		routers:  deps.Routers,
		throttle: deps.Throttle,
		ids:      deps.IDs,
		bound:    make(map[string]strategy.Strategy),
	}, nil
}

// Tick 依次处理全部 ACTIVE 会话；单个会话的错误或 panic 只记录，不影响其他会话。
// 只有加载会话失败时返回 error。
func (e *Engine) Tick(ctx context.Context, now time.Time) (TickReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	defer func() { metricTickDuration.Observe(time.Since(started).Seconds()) }()
	metricTicks.Inc()

	report := TickReport{At: now}
	sessions, err := e.store.Load(ctx)
	if err != nil {
		metricTickErrors.Inc()
		return report, fmt.Errorf("load sessions: %w", err)
	}
	cfg := e.throttle.Current()
	active := 0
	for i := range sessions {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		sess := sessions[i]
		if !sess.IsActive() {
			continue
		}
		active++
		out := e.processSafe(ctx, &sess, now, cfg)
		metricOutcomes.WithLabelValues(string(out.Action)).Inc()
		metricHourlyTrades.WithLabelValues(sess.ID).Set(float64(sess.HourlyTradeCount))
		report.Sessions = append(report.Sessions, out)
	}
	metricActiveSessions.Set(float64(active))
	return report, nil
}

func (e *Engine) processSafe(ctx context.Context, sess *types.Session, now time.Time, cfg throttle.Config) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			metricPanics.Inc()
			logger.L().Error("session panic recovered",
				zap.String("session", sess.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			out = Outcome{SessionID: sess.ID, Status: sess.Status, Action: ActionFailed, Err: fmt.Sprintf("panic: %v", r)}
		}
	}()
	out = e.process(ctx, sess, now, cfg)
	if err := e.store.Save(ctx, *sess); err != nil {
		logger.Errorf("Engine: persist session %s failed: %v", sess.ID, err)
		out.Action = ActionFailed
		out.Err = joinErr(out.Err, err.Error())
	}
	out.Status = sess.Status
	out.FrequencyMode = sess.FrequencyMode
	out.HourlyTradeCount = sess.HourlyTradeCount
	out.MaxTradesThisHour = sess.MaxTradesThisHour
	e.logOutcome(out)
	return out
}

func (e *Engine) process(ctx context.Context, sess *types.Session, now time.Time, cfg throttle.Config) Outcome {
	out := Outcome{SessionID: sess.ID, Action: ActionIdle}
	if err := sess.Validate(); err != nil {
		e.quarantine(ctx, sess, now, err)
		out.Action = ActionQuarantined
		out.Err = err.Error()
		return out
	}
	sess.UpdatedAt = now

	e.rollDay(sess, now)

	if reason, exit, ok := e.terminal(sess, now); ok {
		return e.stopWithClose(ctx, sess, now, reason, exit)
	}

	hb := scheduler.HourBlock(now, e.opts.Location)
	if !hb.Equal(sess.CurrentHourBlock) {
		sess.CurrentHourBlock = hb
		sess.HourlyTradeCount = 0
	}

	decision, err := throttle.Evaluate(sess.Capital, sess.DailyPnL, cfg)
	if err != nil {
		// 档位缺失时本轮禁止开仓，持仓仍照常管理。
		e.recordError(ctx, sess.ID, types.ErrKindConfiguration, err.Error(), now)
		sess.MaxTradesThisHour = 0
		out.Err = err.Error()
	} else {
		sess.MaxTradesThisHour = decision.MaxTradesThisHour
		sess.FrequencyMode = decision.Mode
	}

	if sess.HasOpenTrade() {
		out = e.manageOpenTrade(ctx, sess, now, out)
		if !sess.HasOpenTrade() && sess.TradesToday >= sess.MaxTradesAllowed {
			sess.Stop(types.StopTradeCap, now)
			out.Action = ActionStopped
			out.Reason = string(types.StopTradeCap)
		}
		return out
	}
	if sess.HourlyTradeCount >= sess.MaxTradesThisHour {
		if out.Err == "" {
			out.Action = ActionThrottled
			out.Reason = fmt.Sprintf("hourly trades %d/%d", sess.HourlyTradeCount, sess.MaxTradesThisHour)
		}
		return out
	}
	return e.tryEntry(ctx, sess, now, out)
}

// rollDay 在交易日变化时清零当日统计。
func (e *Engine) rollDay(sess *types.Session, now time.Time) {
	day := scheduler.TradingDay(now, e.opts.Location)
	if sess.TradingDay == day {
		return
	}
	if sess.TradingDay != "" {
		logger.Infof("Engine: session %s rolls to trading day %s (pnl=%.2f trades=%d)", sess.ID, day, sess.DailyPnL, sess.TradesToday)
		sess.DailyPnL = 0
		sess.TradesToday = 0
		sess.HourlyTradeCount = 0
	}
	sess.TradingDay = day
}

// terminal 判断是否需要结束会话。交易次数上限只在空仓时生效。
func (e *Engine) terminal(sess *types.Session, now time.Time) (types.StopReason, types.ExitReason, bool) {
	h, m, _ := types.ParseClock(sess.CutoffTime)
	if scheduler.AtOrAfterClock(now, e.opts.Location, h, m) {
		return types.StopCutoff, types.ExitCutoff, true
	}
	if lossLimitHit(sess) {
		return types.StopLossLimit, types.ExitLossLimit, true
	}
	// 次数上限不强平持仓：上限为 1 时否则每笔开仓都会在下一轮被平掉。
	if !sess.HasOpenTrade() && sess.TradesToday >= sess.MaxTradesAllowed {
		return types.StopTradeCap, "", true
	}
	return "", "", false
}

// DailyLossLimit 为 0 表示不限制。
func lossLimitHit(sess *types.Session) bool {
	return sess.DailyLossLimit > 0 && sess.DailyPnL <= -sess.DailyLossLimit
}

func (e *Engine) stopWithClose(ctx context.Context, sess *types.Session, now time.Time, reason types.StopReason, exit types.ExitReason) Outcome {
	out := Outcome{SessionID: sess.ID, Action: ActionStopped, Reason: string(reason)}
	if sess.HasOpenTrade() {
		tradeID := sess.CurrentTrade.ID
		price, err := e.markPrice(ctx, sess, *sess.CurrentTrade)
		if err == nil {
			_, err = e.closeTrade(ctx, sess, price, exit, now)
		}
		if err != nil {
			logger.Warnf("Engine: force-close %s of session %s failed, retry next tick: %v", tradeID, sess.ID, err)
			return Outcome{SessionID: sess.ID, Action: ActionFailed, TradeID: tradeID, Reason: string(exit), Err: err.Error()}
		}
		out.TradeID = tradeID
	}
	sess.Stop(reason, now)
	logger.Infof("Engine: session %s stopped reason=%s pnl=%.2f trades=%d", sess.ID, reason, sess.DailyPnL, sess.TradesToday)
	return out
}

func (e *Engine) quarantine(ctx context.Context, sess *types.Session, now time.Time, cause error) {
	logger.Errorf("Engine: quarantine session %s: %v", sess.ID, cause)
	sess.Status = types.StatusStopped
	sess.StopReason = types.StopQuarantined
	sess.UpdatedAt = now
	e.recordError(ctx, sess.ID, types.ErrKindInvalidSession, cause.Error(), now)
	metricQuarantined.Inc()
}

func (e *Engine) recordError(ctx context.Context, sessionID, kind, msg string, now time.Time) {
	rec := types.ErrorRecord{SessionID: sessionID, Kind: kind, Message: msg, At: now}
	if err := e.store.RecordError(ctx, rec); err != nil {
		logger.Errorf("Engine: record %s error for %s failed: %v", kind, sessionID, err)
	}
}

// snapshot 拉取策略所需的行情。
func (e *Engine) snapshot(ctx context.Context, sess *types.Session, now time.Time) (strategy.Input, error) {
	candles, err := e.market.RecentCandles(ctx, sess.Instrument, e.opts.Timeframe, e.opts.Candles)
	if err != nil {
		return strategy.Input{}, err
	}
	last, err := e.market.LastPrice(ctx, sess.Instrument)
	if err != nil {
		return strategy.Input{}, err
	}
	return strategy.Input{
		SessionID:  sess.ID,
		Instrument: sess.Instrument,
		Exchange:   sess.Exchange,
		Kind:       sess.InstrumentKind,
		Timeframe:  e.opts.Timeframe,
		Now:        now,
		Candles:    candles,
		LastPrice:  last,
		Quoter:     e.market,
	}, nil
}

// markPrice 返回持仓合约的当前价格，用于强平与手动平仓。
func (e *Engine) markPrice(ctx context.Context, sess *types.Session, trade types.Trade) (float64, error) {
	if trade.Symbol == sess.Instrument && sess.InstrumentKind != types.InstrumentLot {
		return e.market.LastPrice(ctx, sess.Instrument)
	}
	return e.market.Quote(ctx, trade.Symbol, trade.Exchange)
}

func (e *Engine) logOutcome(out Outcome) {
	if out.Action == ActionIdle && out.Err == "" {
		return
	}
	fields := []zap.Field{
		zap.String("session", out.SessionID),
		zap.String("action", string(out.Action)),
		zap.String("status", string(out.Status)),
		zap.String("frequency_mode", string(out.FrequencyMode)),
		zap.Int("hourly_trades", out.HourlyTradeCount),
		zap.Int("max_trades_this_hour", out.MaxTradesThisHour),
	}
	if out.TradeID != "" {
		fields = append(fields, zap.String("trade", out.TradeID))
	}
	if out.Reason != "" {
		fields = append(fields, zap.String("reason", out.Reason))
	}
	if out.Err != "" {
		logger.L().Warn("session tick", append(fields, zap.String("error", out.Err))...)
		return
	}
	logger.L().Info("session tick", fields...)
}

func joinErr(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

func isDataUnavailable(err error) bool {
	return errors.Is(err, market.ErrDataUnavailable)
}

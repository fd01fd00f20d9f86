package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"intraday/internal/advisor"
	"intraday/internal/execution"
	"intraday/internal/market"
	"intraday/internal/risk"
	"intraday/internal/store"
	"intraday/internal/store/memstore"
	"intraday/internal/strategy"
	"intraday/internal/throttle"
	"intraday/internal/types"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, ist)
}

type fakeMarket struct {
	price  float64
	quotes map[string]float64
	err    error
}

func (m *fakeMarket) RecentCandles(_ context.Context, _ string, _ string, _ int) ([]market.Candle, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []market.Candle{{Open: m.price, High: m.price, Low: m.price, Close: m.price, Volume: 1}}, nil
}

func (m *fakeMarket) LastPrice(context.Context, string) (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.price, nil
}

func (m *fakeMarket) Quote(_ context.Context, symbol, _ string) (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	if px, ok := m.quotes[symbol]; ok {
		return px, nil
	}
	return m.price, nil
}

type stubStrategy struct {
	id         string
	enter      bool
	exit       bool
	exitPrice  float64
	panicEntry bool
	entryCalls int
	exitCalls  int
}

func (s *stubStrategy) ID() string { return s.id }

func (s *stubStrategy) CheckEntry(_ context.Context, in strategy.Input) (types.StrategySignal, error) {
	s.entryCalls++
	if s.panicEntry {
		panic("boom")
	}
	if !s.enter {
		return types.StrategySignal{}, nil
	}
	return types.StrategySignal{CanEnter: true, Direction: types.Long, Price: in.LastPrice, Reason: s.id + " entry"}, nil
}

func (s *stubStrategy) CheckExit(_ context.Context, _ strategy.Input, _ types.Trade) (types.StrategySignal, error) {
	s.exitCalls++
	if !s.exit {
		return types.StrategySignal{}, nil
	}
	return types.StrategySignal{CanExit: true, Price: s.exitPrice, Reason: s.id + " exit"}, nil
}

func (s *stubStrategy) StopLoss(entry float64, _ types.Direction) float64 { return entry - 2 }

func (s *stubStrategy) Target(entry float64, _ types.Direction) float64 { return entry + 4 }

type mockAdvisor struct{ mock.Mock }

func (m *mockAdvisor) Recommend(_ context.Context, in advisor.Context, current string) (*advisor.Recommendation, error) {
	args := m.Called(in.SessionID, current)
	rec, _ := args.Get(0).(*advisor.Recommendation)
	return rec, args.Error(1)
}

type mockRouter struct{ mock.Mock }

func (m *mockRouter) Open(_ context.Context, _ types.Session, intent types.TradeIntent) (types.Trade, error) {
	args := m.Called(intent.Kind)
	trade, _ := args.Get(0).(types.Trade)
	return trade, args.Error(1)
}

func (m *mockRouter) Close(_ context.Context, _ types.Session, trade types.Trade, _ execution.ExitOrder) (types.Trade, error) {
	args := m.Called(trade.ID)
	closed, _ := args.Get(0).(types.Trade)
	return closed, args.Error(1)
}

func (m *mockRouter) Reconcile(_ context.Context, _ types.Session, intent types.TradeIntent) (types.Trade, bool, error) {
	args := m.Called(intent.ID)
	trade, _ := args.Get(0).(types.Trade)
	return trade, args.Bool(1), args.Error(2)
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	store  *memstore.Store
	market *fakeMarket
	alpha  *stubStrategy
	beta   *stubStrategy
	engine *Engine
}

func newHarness(t *testing.T, mutate ...func(*Deps)) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		ctx:    context.Background(),
		store:  memstore.New(),
		market: &fakeMarket{price: 100},
		alpha:  &stubStrategy{id: "alpha"},
		beta:   &stubStrategy{id: "beta"},
	}
	reg := strategy.NewRegistry()
	require.NoError(t, reg.Register("alpha", func(map[string]any) (strategy.Strategy, error) { return h.alpha, nil }))
	require.NoError(t, reg.Register("beta", func(map[string]any) (strategy.Strategy, error) { return h.beta, nil }))
	deps := Deps{
		Store:    h.store,
		Market:   h.market,
		Registry: reg,
		Routers:  execution.ByMode{types.ModePaper: execution.NewPaperRouter()},
		Throttle: StaticThrottle(throttle.DefaultConfig()),
		IDs:      execution.NewSequentialIDs("engine-test"),
	}
	for _, fn := range mutate {
		fn(&deps)
	}
	eng, err := New(Options{
		Location:         ist,
		Timeframe:        "1m",
		Candles:          10,
		AdvisoryInterval: 15 * time.Minute,
		MinConfidence:    0.6,
		Risk:             risk.Config{AllocationFraction: 0.3, RiskFraction: 0.01},
	}, deps)
	require.NoError(t, err)
	h.engine = eng
	return h
}

func newSession(id string) types.Session {
	return types.Session{
		ID:                id,
		Instrument:        "BTCUSDT",
		Exchange:          "BINANCE",
		Mode:              types.ModePaper,
		InstrumentKind:    types.InstrumentUnit,
		Status:            types.StatusActive,
		Capital:           10000,
		MaxTradesAllowed:  3,
		DailyLossLimit:    500,
		CutoffTime:        "15:15",
		CurrentStrategyID: "alpha",
		FrequencyMode:     types.FrequencyNormal,
	}
}

func (h *harness) seed(sessions ...types.Session) {
	for _, s := range sessions {
		require.NoError(h.t, h.store.Save(h.ctx, s))
	}
}

func (h *harness) session(id string) types.Session {
	s, err := h.store.Get(h.ctx, id)
	require.NoError(h.t, err)
	return s
}

func (h *harness) tick(now time.Time) TickReport {
	rep, err := h.engine.Tick(h.ctx, now)
	require.NoError(h.t, err)
	return rep
}

func outcome(t *testing.T, rep TickReport, id string) Outcome {
	t.Helper()
	o, ok := rep.Find(id)
	require.True(t, ok, "no outcome for %s", id)
	return o
}

func TestTickEntersTrade(t *testing.T) {
	h := newHarness(t)
	h.alpha.enter = true
	h.seed(newSession("s1"))

	out := outcome(t, h.tick(at(10, 5)), "s1")
	assert.Equal(t, ActionEntered, out.Action)
	assert.Equal(t, types.FrequencyNormal, out.FrequencyMode)
	assert.Equal(t, 2, out.MaxTradesThisHour)

	sess := h.session("s1")
	require.NotNil(t, sess.CurrentTrade)
	tr := sess.CurrentTrade
	assert.Equal(t, "alpha", tr.StrategyID)
	assert.Equal(t, 100.0, tr.EntryPrice)
	assert.Equal(t, 98.0, tr.StopLoss)
	assert.Equal(t, 104.0, tr.Target)
	assert.Equal(t, 50.0, tr.Quantity)
	assert.Equal(t, types.ModePaper, tr.Mode)
	assert.Equal(t, 1, sess.HourlyTradeCount)
	assert.Equal(t, 1, sess.TradesToday)
	assert.Equal(t, "2026-03-02", sess.TradingDay)
	assert.True(t, sess.CurrentHourBlock.Equal(at(10, 0)))

	ids := execution.NewSequentialIDs("engine-test")
	intent, ok := h.store.Intent(ids.NewID())
	require.True(t, ok)
	assert.Equal(t, types.IntentDone, intent.Status)
	assert.Equal(t, types.IntentOpen, intent.Kind)
	assert.Equal(t, tr.ID, intent.TradeID)

	stored, err := h.store.GetTrade(h.ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TradeOpen, stored.Status)
}

func TestTickKeepsSingleOpenTrade(t *testing.T) {
	h := newHarness(t)
	h.alpha.enter = true
	h.seed(newSession("s1"))

	h.tick(at(10, 5))
	out := outcome(t, h.tick(at(10, 6)), "s1")
	assert.Equal(t, ActionHeld, out.Action)
	assert.Equal(t, 1, h.alpha.entryCalls)

	trades, err := h.store.ListTrades(h.ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

// flakyTxStore 让接下来的 failures 次事务失败。
type flakyTxStore struct {
	*memstore.Store
	failures int
}

func (s *flakyTxStore) Tx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("database is locked")
	}
	return s.Store.Tx(ctx, fn)
}

type countingRouter struct {
	execution.Router
	opens  int
	closes int
}

func (r *countingRouter) Open(ctx context.Context, sess types.Session, intent types.TradeIntent) (types.Trade, error) {
	r.opens++
	return r.Router.Open(ctx, sess, intent)
}

func (r *countingRouter) Close(ctx context.Context, sess types.Session, trade types.Trade, order execution.ExitOrder) (types.Trade, error) {
	r.closes++
	return r.Router.Close(ctx, sess, trade, order)
}

func TestFillSurvivesFailedPersistence(t *testing.T) {
	router := &countingRouter{Router: execution.NewPaperRouter()}
	var flaky *flakyTxStore
	h := newHarness(t, func(d *Deps) {
		flaky = &flakyTxStore{Store: d.Store.(*memstore.Store), failures: 1}
		d.Store = flaky
		d.Routers = execution.ByMode{types.ModePaper: router}
	})
	h.alpha.enter = true
	h.seed(newSession("s1"))

	out := outcome(t, h.tick(at(10, 5)), "s1")
	assert.Equal(t, ActionEntered, out.Action)
	sess := h.session("s1")
	require.NotNil(t, sess.CurrentTrade)
	assert.Equal(t, 1, sess.HourlyTradeCount)
	assert.Equal(t, 1, sess.TradesToday)

	pending, err := h.store.PendingIntents(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	errs, err := h.store.ListErrors(h.ctx, "s1", 10)
	require.NoError(t, err)
	require.NotEmpty(t, errs)
	assert.Equal(t, types.ErrKindExecutionFailure, errs[0].Kind)

	out = outcome(t, h.tick(at(10, 6)), "s1")
	assert.Equal(t, ActionHeld, out.Action)
	assert.Equal(t, 1, router.opens)
	trades, err := h.store.ListTrades(h.ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, trades, 1)

	flaky.failures = 1
	h.alpha.enter = false
	h.alpha.exit = true
	h.alpha.exitPrice = 103
	out = outcome(t, h.tick(at(10, 7)), "s1")
	assert.Equal(t, ActionExited, out.Action)
	sess = h.session("s1")
	assert.Nil(t, sess.CurrentTrade)
	assert.Equal(t, 150.0, sess.DailyPnL)

	h.tick(at(10, 8))
	assert.Equal(t, 1, router.closes)
	stored, err := h.store.GetTrade(h.ctx, trades[0].ID)
	require.NoError(t, err)
	assert.Equal(t, types.TradeClosed, stored.Status)
}

func TestExitUsesOriginatingStrategy(t *testing.T) {
	h := newHarness(t)
	h.alpha.enter = true
	h.seed(newSession("s1"))
	h.tick(at(10, 5))

	sess := h.session("s1")
	sess.CurrentStrategyID = "beta"
	h.seed(sess)

	h.alpha.exit = true
	h.alpha.exitPrice = 104
	h.beta.exit = true
	out := outcome(t, h.tick(at(10, 10)), "s1")

	assert.Equal(t, ActionExited, out.Action)
	assert.Equal(t, string(types.ExitTarget), out.Reason)
	assert.Equal(t, 1, h.alpha.exitCalls)
	assert.Zero(t, h.beta.exitCalls)

	sess = h.session("s1")
	assert.Nil(t, sess.CurrentTrade)
	assert.Equal(t, 200.0, sess.DailyPnL)

	trades, err := h.store.ListTrades(h.ctx, "s1")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, types.TradeClosed, trades[0].Status)
	assert.Equal(t, types.ExitTarget, trades[0].ExitReason)
	assert.False(t, trades[0].ExitTime.Before(trades[0].EntryTime))
}

func TestClassifyExit(t *testing.T) {
	long := types.Trade{Direction: types.Long, StopLoss: 98, Target: 104}
	short := types.Trade{Direction: types.Short, StopLoss: 102, Target: 96}
	assert.Equal(t, types.ExitStopLoss, classifyExit(long, 97.5))
	assert.Equal(t, types.ExitTarget, classifyExit(long, 104))
	assert.Equal(t, types.ExitStrategy, classifyExit(long, 101))
	assert.Equal(t, types.ExitStopLoss, classifyExit(short, 102))
	assert.Equal(t, types.ExitTarget, classifyExit(short, 95))
}

func TestHourlyCapAndRollover(t *testing.T) {
	h := newHarness(t)
	sess := newSession("s1")
	sess.MaxTradesAllowed = 10
	h.seed(sess)
	h.alpha.enter = true
	h.alpha.exitPrice = 101

	steps := []struct {
		now    time.Time
		exit   bool
		action Action
		hourly int
	}{
		{at(10, 5), false, ActionEntered, 1},
		{at(10, 10), true, ActionExited, 1},
		{at(10, 15), false, ActionEntered, 2},
		{at(10, 20), true, ActionExited, 2},
		{at(10, 25), false, ActionThrottled, 2},
		{at(11, 1), false, ActionEntered, 1},
	}
	for i, st := range steps {
		h.alpha.exit = st.exit
		out := outcome(t, h.tick(st.now), "s1")
		assert.Equal(t, st.action, out.Action, "step %d", i)
		assert.Equal(t, st.hourly, out.HourlyTradeCount, "step %d", i)
		assert.LessOrEqual(t, out.HourlyTradeCount, out.MaxTradesThisHour, "step %d", i)
	}
	assert.Equal(t, 3, h.session("s1").TradesToday)
}

func TestThrottleModesFollowDrawdown(t *testing.T) {
	cases := []struct {
		name string
		pnl  float64
		mode types.FrequencyMode
		max  int
	}{
		{"normal", 0, types.FrequencyNormal, 2},
		{"reduced", -250, types.FrequencyReduced, 1},
		{"hard", -600, types.FrequencyHardLimit, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			sess := newSession("s1")
			sess.DailyLossLimit = 0
			sess.DailyPnL = tc.pnl
			sess.TradingDay = "2026-03-02"
			h.seed(sess)

			out := outcome(t, h.tick(at(10, 5)), "s1")
			assert.Equal(t, tc.mode, out.FrequencyMode)
			assert.Equal(t, tc.max, out.MaxTradesThisHour)
			assert.Equal(t, tc.mode, h.session("s1").FrequencyMode)
		})
	}
}

func TestCutoffForceClosesAndStops(t *testing.T) {
	h := newHarness(t)
	h.alpha.enter = true
	h.seed(newSession("s1"))
	h.tick(at(15, 10))
	require.NotNil(t, h.session("s1").CurrentTrade)

	h.market.price = 101
	out := outcome(t, h.tick(at(15, 15)), "s1")
	assert.Equal(t, ActionStopped, out.Action)
	assert.Equal(t, string(types.StopCutoff), out.Reason)

	sess := h.session("s1")
	assert.Equal(t, types.StatusStopped, sess.Status)
	assert.Equal(t, types.StopCutoff, sess.StopReason)
	assert.Nil(t, sess.CurrentTrade)
	assert.Equal(t, 50.0, sess.DailyPnL)

	trades, err := h.store.ListTrades(h.ctx, "s1")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, types.ExitCutoff, trades[0].ExitReason)

	rep := h.tick(at(15, 20))
	_, ok := rep.Find("s1")
	assert.False(t, ok, "stopped sessions are not processed")
	assert.Equal(t, 1, h.alpha.entryCalls)
}

func TestForceCloseFailureKeepsSessionActive(t *testing.T) {
	h := newHarness(t)
	h.alpha.enter = true
	h.seed(newSession("s1"))
	h.tick(at(15, 10))

	h.market.err = fmt.Errorf("%w: feed down", market.ErrDataUnavailable)
	out := outcome(t, h.tick(at(15, 16)), "s1")
	assert.Equal(t, ActionFailed, out.Action)
	sess := h.session("s1")
	assert.Equal(t, types.StatusActive, sess.Status)
	require.NotNil(t, sess.CurrentTrade)

	h.market.err = nil
	out = outcome(t, h.tick(at(15, 17)), "s1")
	assert.Equal(t, ActionStopped, out.Action)
	assert.Nil(t, h.session("s1").CurrentTrade)
	assert.Equal(t, 1, h.alpha.entryCalls)
}

func TestLossLimitStopsSession(t *testing.T) {
	h := newHarness(t)
	h.alpha.enter = true
	sess := newSession("s1")
	sess.TradingDay = "2026-03-02"
	sess.DailyPnL = -500
	h.seed(sess)

	out := outcome(t, h.tick(at(11, 0)), "s1")
	assert.Equal(t, ActionStopped, out.Action)
	assert.Equal(t, types.StopLossLimit, h.session("s1").StopReason)
	assert.Zero(t, h.alpha.entryCalls)
}

func TestTradeCapStopsOnceFlat(t *testing.T) {
	h := newHarness(t)
	h.alpha.enter = true
	sess := newSession("s1")
	sess.MaxTradesAllowed = 1
	h.seed(sess)

	assert.Equal(t, ActionEntered, outcome(t, h.tick(at(10, 5)), "s1").Action)
	assert.Equal(t, ActionHeld, outcome(t, h.tick(at(10, 6)), "s1").Action)
	assert.Equal(t, types.StatusActive, h.session("s1").Status)

	h.alpha.exit = true
	h.alpha.exitPrice = 97
	out := outcome(t, h.tick(at(10, 7)), "s1")
	assert.Equal(t, ActionStopped, out.Action)
	sess = h.session("s1")
	assert.Equal(t, types.StopTradeCap, sess.StopReason)
	assert.Equal(t, -150.0, sess.DailyPnL)

	trades, err := h.store.ListTrades(h.ctx, "s1")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, types.ExitStopLoss, trades[0].ExitReason)
}

func TestDayRolloverResetsCounters(t *testing.T) {
	h := newHarness(t)
	h.alpha.enter = true
	sess := newSession("s1")
	sess.TradingDay = "2026-03-01"
	sess.TradesToday = 3
	sess.DailyPnL = -300
	sess.HourlyTradeCount = 2
	sess.CurrentHourBlock = at(10, 0)
	h.seed(sess)

	out := outcome(t, h.tick(at(10, 5)), "s1")
	assert.Equal(t, ActionEntered, out.Action)
	sess = h.session("s1")
	assert.Equal(t, "2026-03-02", sess.TradingDay)
	assert.Equal(t, 1, sess.TradesToday)
	assert.Zero(t, sess.DailyPnL)
	assert.Equal(t, 1, sess.HourlyTradeCount)
}

func TestDataUnavailableSkipsDecision(t *testing.T) {
	h := newHarness(t)
	h.alpha.enter = true
	h.seed(newSession("s1"))
	h.market.err = fmt.Errorf("%w: timeout", market.ErrDataUnavailable)

	out := outcome(t, h.tick(at(10, 5)), "s1")
	assert.Equal(t, ActionSkipped, out.Action)
	assert.Zero(t, h.alpha.entryCalls)
	assert.Equal(t, types.StatusActive, h.session("s1").Status)
}

func TestRiskRejectionDoesNotTrade(t *testing.T) {
	h := newHarness(t)
	h.alpha.enter = true
	sess := newSession("s1")
	sess.Capital = 100
	h.seed(sess)

	out := outcome(t, h.tick(at(10, 5)), "s1")
	assert.Equal(t, ActionRejected, out.Action)
	assert.Equal(t, string(risk.ReasonInsufficientCapital), out.Reason)
	assert.Nil(t, h.session("s1").CurrentTrade)
}

func TestLotSizingUsesPremiumQuote(t *testing.T) {
	h := newHarness(t)
	h.alpha.enter = true
	h.market.price = 25
	sess := newSession("s1")
	sess.InstrumentKind = types.InstrumentLot
	sess.LotSize = 100
	h.seed(sess)

	out := outcome(t, h.tick(at(10, 5)), "s1")
	require.Equal(t, ActionEntered, out.Action)
	tr := h.session("s1").CurrentTrade
	require.NotNil(t, tr)
	assert.Equal(t, 1, tr.Lots)
	assert.Equal(t, 100.0, tr.Quantity)
}

func TestExecutionFailureMarksIntentFailed(t *testing.T) {
	router := &mockRouter{}
	router.On("Open", types.IntentOpen).Return(nil, fmt.Errorf("%w: rejected", execution.ErrExecutionFailed))
	h := newHarness(t, func(d *Deps) { d.Routers = execution.ByMode{types.ModePaper: router} })
	h.alpha.enter = true
	h.seed(newSession("s1"))

	out := outcome(t, h.tick(at(10, 5)), "s1")
	assert.Equal(t, ActionFailed, out.Action)

	sess := h.session("s1")
	assert.Equal(t, types.StatusActive, sess.Status)
	assert.Nil(t, sess.CurrentTrade)
	assert.Zero(t, sess.TradesToday)
	assert.Zero(t, sess.HourlyTradeCount)

	ids := execution.NewSequentialIDs("engine-test")
	intent, ok := h.store.Intent(ids.NewID())
	require.True(t, ok)
	assert.Equal(t, types.IntentFailed, intent.Status)
	assert.Contains(t, intent.Error, "rejected")

	errs, err := h.store.ListErrors(h.ctx, "s1", 10)
	require.NoError(t, err)
	require.NotEmpty(t, errs)
	assert.Equal(t, types.ErrKindExecutionFailure, errs[0].Kind)

	trades, err := h.store.ListTrades(h.ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, trades)
	router.AssertExpectations(t)
}

func TestInvalidSessionIsQuarantined(t *testing.T) {
	h := newHarness(t)
	h.alpha.enter = true
	bad := newSession("s1")
	bad.CurrentTrade = &types.Trade{ID: "t-x", SessionID: "s1", Status: "CORRUPT"}
	h.seed(bad, newSession("s2"))

	rep := h.tick(at(10, 5))
	assert.Equal(t, ActionQuarantined, outcome(t, rep, "s1").Action)
	assert.Equal(t, ActionEntered, outcome(t, rep, "s2").Action)

	sess := h.session("s1")
	assert.Equal(t, types.StatusStopped, sess.Status)
	assert.Equal(t, types.StopQuarantined, sess.StopReason)
	errs, err := h.store.ListErrors(h.ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, types.ErrKindInvalidSession, errs[0].Kind)
}

func TestPanicInOneSessionDoesNotAbortTick(t *testing.T) {
	h := newHarness(t)
	h.alpha.panicEntry = true
	h.beta.enter = true
	s2 := newSession("s2")
	s2.CurrentStrategyID = "beta"
	h.seed(newSession("s1"), s2)

	rep := h.tick(at(10, 5))
	out := outcome(t, rep, "s1")
	assert.Equal(t, ActionFailed, out.Action)
	assert.Contains(t, out.Err, "panic")
	assert.Equal(t, ActionEntered, outcome(t, rep, "s2").Action)
	assert.Equal(t, types.StatusActive, h.session("s1").Status)
}

func TestAdvisorSwitchesStrategy(t *testing.T) {
	adv := &mockAdvisor{}
	adv.On("Recommend", "s1", "alpha").Return(&advisor.Recommendation{StrategyID: "beta", Confidence: 0.8, Reasoning: "trend"}, nil).Once()
	h := newHarness(t, func(d *Deps) { d.Advisor = adv })
	h.beta.enter = true
	h.seed(newSession("s1"))

	out := outcome(t, h.tick(at(10, 5)), "s1")
	assert.Equal(t, ActionEntered, out.Action)
	assert.Equal(t, "beta", out.StrategyID)
	sess := h.session("s1")
	assert.Equal(t, "beta", sess.CurrentStrategyID)
	assert.Equal(t, "beta", sess.CurrentTrade.StrategyID)
	assert.True(t, sess.LastAdvisoryAt.Equal(at(10, 5)))
	adv.AssertExpectations(t)
}

func TestAdvisorRespectsInterval(t *testing.T) {
	adv := &mockAdvisor{}
	adv.On("Recommend", "s1", "alpha").Return(nil, nil)
	h := newHarness(t, func(d *Deps) { d.Advisor = adv })
	h.seed(newSession("s1"))

	h.tick(at(10, 0))
	h.tick(at(10, 5))
	h.tick(at(10, 14))
	adv.AssertNumberOfCalls(t, "Recommend", 1)
	h.tick(at(10, 15))
	adv.AssertNumberOfCalls(t, "Recommend", 2)
}

func TestAdvisorRecommendationsThatKeepStrategy(t *testing.T) {
	cases := []struct {
		name string
		rec  *advisor.Recommendation
		err  error
	}{
		{"low confidence", &advisor.Recommendation{StrategyID: "beta", Confidence: 0.4}, nil},
		{"unknown strategy", &advisor.Recommendation{StrategyID: "gamma", Confidence: 0.9}, nil},
		{"same strategy", &advisor.Recommendation{StrategyID: "alpha", Confidence: 0.9}, nil},
		{"unavailable", nil, advisor.ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			adv := &mockAdvisor{}
			adv.On("Recommend", "s1", "alpha").Return(tc.rec, tc.err)
			h := newHarness(t, func(d *Deps) { d.Advisor = adv })
			h.seed(newSession("s1"))

			h.tick(at(10, 5))
			assert.Equal(t, "alpha", h.session("s1").CurrentStrategyID)
			assert.Equal(t, 1, h.alpha.entryCalls)
			assert.Zero(t, h.beta.entryCalls)
		})
	}
}

func TestStoppedSessionBlocksEntries(t *testing.T) {
	h := newHarness(t)
	h.alpha.enter = true
	sess := newSession("s1")
	sess.Status = types.StatusStopped
	sess.StopReason = types.StopManual
	h.seed(sess)

	rep := h.tick(at(10, 5))
	assert.Empty(t, rep.Sessions)
	assert.Zero(t, h.alpha.entryCalls)
}

func TestEnsureSessions(t *testing.T) {
	h := newHarness(t)
	existing := newSession("s1")
	existing.DailyPnL = 42
	h.seed(existing)

	fresh := newSession("s1")
	n, err := h.engine.EnsureSessions(h.ctx, []types.Session{fresh, newSession("s2")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 42.0, h.session("s1").DailyPnL)
	assert.Equal(t, "alpha", h.session("s2").CurrentStrategyID)

	unknown := newSession("s3")
	unknown.CurrentStrategyID = "gamma"
	_, err = h.engine.EnsureSessions(h.ctx, []types.Session{unknown})
	assert.Error(t, err)
}

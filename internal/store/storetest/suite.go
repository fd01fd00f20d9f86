// Package storetest 提供 store.Store 实现共用的一致性测试。
package storetest

import (
	"context"
	"errors"
	"time"

	"github.com/stretchr/testify/suite"

	"intraday/internal/store"
	"intraday/internal/types"
)

type Suite struct {
	suite.Suite
	Factory func() store.Store

	st  store.Store
	ctx context.Context
}

var base = time.Date(2024, 5, 2, 4, 0, 0, 0, time.UTC)

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.st = s.Factory()
}

func (s *Suite) TearDownTest() {
	s.Require().NoError(s.st.Close())
}

func sampleSession(id string) types.Session {
	return types.Session{
		ID:                id,
		Instrument:        "NIFTY",
		Exchange:          "NSE",
		Mode:              types.ModePaper,
		InstrumentKind:    types.InstrumentLot,
		LotSize:           25,
		Status:            types.StatusActive,
		Capital:           100000,
		MaxTradesAllowed:  5,
		DailyLossLimit:    3000,
		CutoffTime:        "15:15",
		TradingDay:        "2024-05-02",
		CurrentStrategyID: "ema_crossover",
		CurrentHourBlock:  base,
		FrequencyMode:     types.FrequencyNormal,
		MaxTradesThisHour: 3,
		CreatedAt:         base,
		UpdatedAt:         base,
	}
}

func sampleTrade(id, sessionID string, at time.Time) types.Trade {
	return types.Trade{
		ID:         id,
		SessionID:  sessionID,
		StrategyID: "ema_crossover",
		Symbol:     "NIFTY24MAY22500CE",
		Exchange:   "NFO",
		Direction:  types.Long,
		Mode:       types.ModePaper,
		EntryPrice: 100,
		StopLoss:   95,
		Target:     110,
		Quantity:   25,
		Lots:       1,
		EntryTime:  at,
		Status:     types.TradeOpen,
	}
}

func (s *Suite) TestSessionRoundTrip() {
	sess := sampleSession("s1")
	trade := sampleTrade("t1", "s1", base.Add(5*time.Minute))
	sess.CurrentTrade = &trade
	sess.LastAdvisoryAt = base.Add(time.Minute)
	s.Require().NoError(s.st.Save(s.ctx, sess))

	got, err := s.st.Get(s.ctx, "s1")
	s.Require().NoError(err)
	s.Equal(sess.Capital, got.Capital)
	s.Equal(sess.CutoffTime, got.CutoffTime)
	s.True(sess.CurrentHourBlock.Equal(got.CurrentHourBlock))
	s.True(sess.LastAdvisoryAt.Equal(got.LastAdvisoryAt))
	s.Require().NotNil(got.CurrentTrade)
	s.Equal("t1", got.CurrentTrade.ID)
	s.NoError(got.Validate())

	got.CurrentTrade = nil
	got.DailyPnL = -250
	s.Require().NoError(s.st.Save(s.ctx, got))
	again, err := s.st.Get(s.ctx, "s1")
	s.Require().NoError(err)
	s.Nil(again.CurrentTrade)
	s.Equal(-250.0, again.DailyPnL)
}

func (s *Suite) TestGetMissing() {
	_, err := s.st.Get(s.ctx, "nope")
	s.True(errors.Is(err, store.ErrNotFound))
	_, err = s.st.GetTrade(s.ctx, "nope")
	s.True(errors.Is(err, store.ErrNotFound))
}

func (s *Suite) TestListOrderAndFilter() {
	b := sampleSession("b")
	b.Status = types.StatusStopped
	b.StopReason = types.StopCutoff
	s.Require().NoError(s.st.Save(s.ctx, b))
	s.Require().NoError(s.st.Save(s.ctx, sampleSession("c")))
	s.Require().NoError(s.st.Save(s.ctx, sampleSession("a")))

	all, err := s.st.Load(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal([]string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})

	active, err := s.st.List(s.ctx, types.StatusActive)
	s.Require().NoError(err)
	s.Len(active, 2)
	stopped, err := s.st.List(s.ctx, types.StatusStopped)
	s.Require().NoError(err)
	s.Require().Len(stopped, 1)
	s.Equal(types.StopCutoff, stopped[0].StopReason)
}

func (s *Suite) TestTrades() {
	t2 := sampleTrade("t2", "s1", base.Add(10*time.Minute))
	t1 := sampleTrade("t1", "s1", base.Add(5*time.Minute))
	s.Require().NoError(s.st.SaveTrade(s.ctx, t2))
	s.Require().NoError(s.st.SaveTrade(s.ctx, t1))
	s.Require().NoError(s.st.SaveTrade(s.ctx, sampleTrade("x", "other", base)))

	s.Require().NoError(t1.Close(108, base.Add(20*time.Minute), types.ExitStrategy))
	s.Require().NoError(s.st.SaveTrade(s.ctx, t1))

	list, err := s.st.ListTrades(s.ctx, "s1")
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("t1", list[0].ID)
	s.Equal(types.TradeClosed, list[0].Status)
	s.InDelta(200, list[0].PnL, 1e-9)
	s.False(list[0].ExitTime.Before(list[0].EntryTime))

	got, err := s.st.GetTrade(s.ctx, "t2")
	s.Require().NoError(err)
	s.Equal(types.TradeOpen, got.Status)
}

func (s *Suite) TestIntents() {
	open := types.TradeIntent{ID: "i1", SessionID: "s1", Kind: types.IntentOpen, TradeID: "t1", Status: types.IntentPending, CreatedAt: base}
	closing := types.TradeIntent{ID: "i2", SessionID: "s1", Kind: types.IntentClose, TradeID: "t1", ExitReason: types.ExitCutoff, Status: types.IntentPending, CreatedAt: base.Add(time.Minute)}
	s.Require().NoError(s.st.SaveIntent(s.ctx, closing))
	s.Require().NoError(s.st.SaveIntent(s.ctx, open))

	pending, err := s.st.PendingIntents(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal("i1", pending[0].ID)
	s.Equal(types.ExitCutoff, pending[1].ExitReason)

	open.Status = types.IntentDone
	s.Require().NoError(s.st.SaveIntent(s.ctx, open))
	pending, err = s.st.PendingIntents(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal("i2", pending[0].ID)
}

func (s *Suite) TestErrors() {
	for i, kind := range []string{types.ErrKindDataUnavailable, types.ErrKindExecutionFailure, types.ErrKindInvalidSession} {
		s.Require().NoError(s.st.RecordError(s.ctx, types.ErrorRecord{
			SessionID: "s1", Kind: kind, Message: kind, At: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	s.Require().NoError(s.st.RecordError(s.ctx, types.ErrorRecord{SessionID: "s2", Kind: "X", At: base}))

	recs, err := s.st.ListErrors(s.ctx, "s1", 2)
	s.Require().NoError(err)
	s.Require().Len(recs, 2)
	s.Equal(types.ErrKindInvalidSession, recs[0].Kind)
	s.Equal(types.ErrKindExecutionFailure, recs[1].Kind)

	all, err := s.st.ListErrors(s.ctx, "", 0)
	s.Require().NoError(err)
	s.Len(all, 4)
}

func (s *Suite) TestTxRollback() {
	s.Require().NoError(s.st.Save(s.ctx, sampleSession("s1")))
	boom := errors.New("boom")
	err := s.st.Tx(s.ctx, func(tx store.Store) error {
		sess := sampleSession("s1")
		sess.DailyPnL = -999
		if err := tx.Save(s.ctx, sess); err != nil {
			return err
		}
		if err := tx.SaveTrade(s.ctx, sampleTrade("t1", "s1", base)); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	got, err := s.st.Get(s.ctx, "s1")
	s.Require().NoError(err)
	s.Equal(0.0, got.DailyPnL)
	_, err = s.st.GetTrade(s.ctx, "t1")
	s.ErrorIs(err, store.ErrNotFound)

	s.Require().NoError(s.st.Tx(s.ctx, func(tx store.Store) error {
		return tx.SaveTrade(s.ctx, sampleTrade("t1", "s1", base))
	}))
	_, err = s.st.GetTrade(s.ctx, "t1")
	s.NoError(err)
}

func (s *Suite) TestBacktestRuns() {
	s.Require().NoError(s.st.SaveBacktestRun(s.ctx, store.BacktestRun{ID: "r1", SessionID: "bt", Days: 2, TotalPnL: 120, Report: []byte(`{"days":2}`), CreatedAt: base}))
	s.Require().NoError(s.st.SaveBacktestRun(s.ctx, store.BacktestRun{ID: "r2", SessionID: "bt", Days: 3, CreatedAt: base.Add(time.Hour)}))

	runs, err := s.st.ListBacktestRuns(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(runs, 2)
	s.Equal("r2", runs[0].ID)
	s.Equal("r1", runs[1].ID)
	s.JSONEq(`{"days":2}`, string(runs[1].Report))
	s.Equal(120.0, runs[1].TotalPnL)
}

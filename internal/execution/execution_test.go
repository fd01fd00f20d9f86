package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"intraday/internal/types"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func testSession(mode types.Mode) types.Session {
	return types.Session{ID: "s1", Instrument: "NIFTY", Mode: mode}
}

func testIntent() types.TradeIntent {
	return types.TradeIntent{
		ID:         "intent-1",
		SessionID:  "s1",
		Kind:       types.IntentOpen,
		TradeID:    "trade-1",
		StrategyID: "ema_crossover",
		Symbol:     "NIFTY24MAY22500CE",
		Exchange:   "NFO",
		Direction:  types.Long,
		Price:      100,
		StopLoss:   95,
		Target:     110,
		Quantity:   25,
		Lots:       1,
		CreatedAt:  t0,
	}
}

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) PlaceMarketOrder(ctx context.Context, order Order) (Fill, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(Fill), args.Error(1)
}

func (m *mockBroker) LookupOrder(ctx context.Context, sym, id string) (Fill, error) {
	args := m.Called(ctx, sym, id)
	return args.Get(0).(Fill), args.Error(1)
}

func TestSimRouterOpenClose(t *testing.T) {
	r := NewBacktestRouter()
	sess := testSession(types.ModeBacktest)
	trade, err := r.Open(context.Background(), sess, testIntent())
	require.NoError(t, err)
	assert.Equal(t, "trade-1", trade.ID)
	assert.Equal(t, types.ModeBacktest, trade.Mode)
	assert.Equal(t, types.TradeOpen, trade.Status)
	assert.Equal(t, t0, trade.EntryTime)
	require.NoError(t, trade.Validate())

	closed, err := r.Close(context.Background(), sess, trade, ExitOrder{Price: 110, Reason: types.ExitTarget, At: t0.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, types.TradeClosed, closed.Status)
	assert.InDelta(t, 250, closed.PnL, 1e-9)
	assert.Equal(t, types.TradeOpen, trade.Status, "input trade is not mutated")

	_, err = r.Close(context.Background(), sess, closed, ExitOrder{Price: 111, At: t0})
	assert.ErrorIs(t, err, types.ErrTradeClosed)
}

func TestSimRouterRejectsInvalidIntent(t *testing.T) {
	in := testIntent()
	in.Price = 0
	_, err := NewPaperRouter().Open(context.Background(), testSession(types.ModePaper), in)
	assert.ErrorIs(t, err, ErrExecutionFailed)
}

func TestSequentialIDsDeterministic(t *testing.T) {
	a, b := NewSequentialIDs("run-1"), NewSequentialIDs("run-1")
	for i := 0; i < 3; i++ {
		assert.Equal(t, a.NewID(), b.NewID())
	}
	assert.NotEqual(t, NewSequentialIDs("run-2").NewID(), NewSequentialIDs("run-1").NewID())
	assert.NotEqual(t, RandomIDs{}.NewID(), RandomIDs{}.NewID())
}

func TestLiveRouterOpenUsesBrokerFill(t *testing.T) {
	b := new(mockBroker)
	b.On("PlaceMarketOrder", mock.Anything, Order{
		ClientOrderID: "intent-1", Symbol: "NIFTY24MAY22500CE", Exchange: "NFO", Side: SideBuy, Quantity: 25,
	}).Return(Fill{OrderID: "o-1", Price: 100.5, Quantity: 25, At: t0.Add(time.Second)}, nil)

	trade, err := NewLiveRouter(b).Open(context.Background(), testSession(types.ModeLive), testIntent())
	require.NoError(t, err)
	assert.Equal(t, 100.5, trade.EntryPrice)
	assert.Equal(t, "o-1", trade.BrokerOrderID)
	assert.Equal(t, types.ModeLive, trade.Mode)
	b.AssertExpectations(t)
}

func TestLiveRouterRefusesUnconfirmedFill(t *testing.T) {
	b := new(mockBroker)
	b.On("PlaceMarketOrder", mock.Anything, mock.Anything).Return(Fill{OrderID: "o-1"}, nil).Once()
	_, err := NewLiveRouter(b).Open(context.Background(), testSession(types.ModeLive), testIntent())
	assert.ErrorIs(t, err, ErrExecutionFailed)

	b.On("PlaceMarketOrder", mock.Anything, mock.Anything).Return(Fill{}, errors.New("rejected")).Once()
	_, err = NewLiveRouter(b).Open(context.Background(), testSession(types.ModeLive), testIntent())
	assert.ErrorIs(t, err, ErrExecutionFailed)

	_, err = NewLiveRouter(nil).Open(context.Background(), testSession(types.ModeLive), testIntent())
	assert.ErrorIs(t, err, ErrExecutionFailed)
}

func TestLiveRouterCloseShortBuysBack(t *testing.T) {
	b := new(mockBroker)
	b.On("PlaceMarketOrder", mock.Anything, mock.MatchedBy(func(o Order) bool {
		return o.Side == SideBuy && o.ClientOrderID == "intent-2"
	})).Return(Fill{OrderID: "o-2", Price: 90, Quantity: 10}, nil)

	trade := types.Trade{ID: "t1", Symbol: "X", Direction: types.Short, EntryPrice: 100, Quantity: 10, EntryTime: t0, Status: types.TradeOpen}
	closed, err := NewLiveRouter(b).Close(context.Background(), testSession(types.ModeLive), trade,
		ExitOrder{IntentID: "intent-2", Reason: types.ExitTarget, At: t0.Add(time.Minute)})
	require.NoError(t, err)
	assert.InDelta(t, 100, closed.PnL, 1e-9)
	assert.Equal(t, t0.Add(time.Minute), closed.ExitTime)
}

func TestLiveRouterReconcile(t *testing.T) {
	b := new(mockBroker)
	b.On("LookupOrder", mock.Anything, "NIFTY24MAY22500CE", "intent-1").
		Return(Fill{OrderID: "o-9", Price: 101, Quantity: 25}, nil).Once()
	r := NewLiveRouter(b)
	trade, found, err := r.Reconcile(context.Background(), testSession(types.ModeLive), testIntent())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "trade-1", trade.ID)
	assert.Equal(t, 101.0, trade.EntryPrice)

	b.On("LookupOrder", mock.Anything, mock.Anything, mock.Anything).Return(Fill{}, ErrOrderNotFound).Once()
	_, found, err = r.Reconcile(context.Background(), testSession(types.ModeLive), testIntent())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestByMode(t *testing.T) {
	m := ByMode{types.ModePaper: NewPaperRouter()}
	_, ok := m.For(types.ModePaper)
	assert.True(t, ok)
	_, ok = m.For(types.ModeLive)
	assert.False(t, ok)
}

package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(n int, start time.Time, step time.Duration) []Candle {
	out := make([]Candle, n)
	for i := range out {
		open := start.Add(time.Duration(i) * step)
		px := 100 + float64(i)
		out[i] = Candle{
			OpenTime:  open.UnixMilli(),
			CloseTime: open.Add(step).UnixMilli() - 1,
			Open:      px - 0.5, High: px + 1, Low: px - 1, Close: px, Volume: 10,
		}
	}
	return out
}

func TestReplayProviderHidesFuture(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
	p := NewReplayProvider("nifty", series(10, start, time.Minute))

	_, err := p.LastPrice(ctx, "NIFTY")
	assert.ErrorIs(t, err, ErrDataUnavailable)

	p.Seek(4)
	got, err := p.RecentCandles(ctx, "NIFTY", "1m", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 104.0, got[2].Close)
	assert.Equal(t, 102.0, got[0].Close)

	all, err := p.RecentCandles(ctx, "NIFTY", "1m", 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	px, err := p.LastPrice(ctx, "nifty")
	require.NoError(t, err)
	assert.Equal(t, 104.0, px)

	_, err = p.RecentCandles(ctx, "BANKNIFTY", "1m", 3)
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestReplayProviderQuoteSeries(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
	p := NewReplayProvider("NIFTY", series(10, start, time.Minute))
	opt := series(10, start.Add(2*time.Minute), time.Minute)
	for i := range opt {
		opt[i].Close = 50 + float64(i)
	}
	p.AddQuoteSeries("NIFTY24JAN21500CE", opt)

	p.Seek(1)
	_, err := p.Quote(ctx, "NIFTY24JAN21500CE", "NFO")
	assert.ErrorIs(t, err, ErrDataUnavailable)

	p.Seek(5)
	q, err := p.Quote(ctx, "NIFTY24JAN21500CE", "NFO")
	require.NoError(t, err)
	assert.Equal(t, 53.0, q)

	under, err := p.Quote(ctx, "NIFTY", "NSE")
	require.NoError(t, err)
	assert.Equal(t, 105.0, under)

	_, err = p.Quote(ctx, "UNKNOWN", "NFO")
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

type failingProvider struct{ delay time.Duration }

func (f failingProvider) RecentCandles(ctx context.Context, _, _ string, _ int) ([]Candle, error) {
	select {
	case <-time.After(f.delay):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f failingProvider) LastPrice(context.Context, string) (float64, error) {
	return 0, errors.New("boom")
}

func (f failingProvider) Quote(context.Context, string, string) (float64, error) { return -1, nil }

func TestTimeoutProviderWrapsFailures(t *testing.T) {
	p := NewTimeoutProvider(failingProvider{delay: time.Second}, 10*time.Millisecond)
	ctx := context.Background()

	_, err := p.RecentCandles(ctx, "X", "1m", 5)
	assert.ErrorIs(t, err, ErrDataUnavailable)
	assert.ErrorContains(t, err, "deadline exceeded")

	_, err = p.LastPrice(ctx, "X")
	assert.ErrorIs(t, err, ErrDataUnavailable)

	_, err = p.Quote(ctx, "X", "NSE")
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestDropUnclosed(t *testing.T) {
	start := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
	ks := series(3, start, time.Minute)
	lastOpen := start.Add(2 * time.Minute)
	assert.Len(t, DropUnclosed(ks, time.Minute, lastOpen.Add(30*time.Second), DefaultKlineGrace), 2)
	assert.Len(t, DropUnclosed(ks, time.Minute, lastOpen.Add(71*time.Second), DefaultKlineGrace), 3)
}

func TestCandlesSnapshot(t *testing.T) {
	cs := Candles(series(3, time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC), time.Minute))
	snap := cs.Snapshot("1m")
	assert.Contains(t, snap, "close=102")
	assert.Contains(t, snap, "range 99-103")
	assert.Equal(t, []float64{100, 101, 102}, cs.Closes())
}

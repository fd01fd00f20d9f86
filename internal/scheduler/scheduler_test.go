package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignedSchedulerFiresOnBoundaries(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 15, 20, 0, time.UTC)
	clock := NewManualClock(start)
	s := NewAlignedScheduler(time.Minute, 2*time.Second, clock)
	var waits []time.Duration
	s.after = func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		ch := make(chan time.Time, 1)
		ch <- clock.Advance(d)
		return ch
	}

	ctx, cancel := context.WithCancel(context.Background())
	var fired []time.Time
	err := s.Start(ctx, func(_ context.Context, now time.Time) {
		fired = append(fired, now)
		if len(fired) == 3 {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, fired, 3)
	assert.Equal(t, time.Date(2024, 3, 4, 9, 16, 2, 0, time.UTC), fired[0])
	assert.Equal(t, time.Date(2024, 3, 4, 9, 17, 2, 0, time.UTC), fired[1])
	assert.Equal(t, time.Date(2024, 3, 4, 9, 18, 2, 0, time.UTC), fired[2])
	assert.Equal(t, 42*time.Second, waits[0])
}

func TestAlignedSchedulerRunImmediately(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC)
	clock := NewManualClock(start)
	s := NewAlignedScheduler(5*time.Minute, 0, clock)
	s.RunImmediately = true
	ctx, cancel := context.WithCancel(context.Background())
	s.after = func(d time.Duration) <-chan time.Time {
		cancel()
		return make(chan time.Time)
	}
	var fired []time.Time
	err := s.Start(ctx, func(_ context.Context, now time.Time) { fired = append(fired, now) })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []time.Time{start}, fired)
}

func TestAlignedSchedulerInvalidInterval(t *testing.T) {
	s := NewAlignedScheduler(0, 0, nil)
	called := false
	assert.NoError(t, s.Start(context.Background(), func(context.Context, time.Time) { called = true }))
	assert.False(t, called)
}

func TestHourBlockHalfHourZone(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+30*60)
	now := time.Date(2024, 3, 4, 10, 45, 0, 0, ist)
	block := HourBlock(now, ist)
	assert.Equal(t, time.Date(2024, 3, 4, 10, 0, 0, 0, ist), block)
	assert.NotEqual(t, now.Truncate(time.Hour), block)
	assert.Equal(t, block, HourBlock(now.Add(14*time.Minute), ist))
	assert.NotEqual(t, block, HourBlock(now.Add(15*time.Minute), ist))
}

func TestTradingDayAndClock(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+30*60)
	utc := time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-05", TradingDay(utc, ist))
	assert.Equal(t, "2024-03-04", TradingDay(utc, time.UTC))

	at := time.Date(2024, 3, 4, 15, 14, 59, 0, ist)
	assert.False(t, AtOrAfterClock(at, ist, 15, 15))
	assert.True(t, AtOrAfterClock(at.Add(time.Second), ist, 15, 15))
}

func TestParseIntervalDuration(t *testing.T) {
	for in, want := range map[string]time.Duration{"1m": time.Minute, "15m": 15 * time.Minute, "1h": time.Hour, "1d": 24 * time.Hour, "30s": 30 * time.Second} {
		got, ok := ParseIntervalDuration(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "m", "0m", "-1h", "5x"} {
		_, ok := ParseIntervalDuration(in)
		assert.False(t, ok, in)
	}
}

func TestManualClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	assert.Equal(t, start.Add(time.Minute), c.Advance(time.Minute))
	c.Set(start)
	assert.Equal(t, start, c.Now())
}

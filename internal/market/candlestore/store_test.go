package candlestore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `open_time,open,high,low,close,volume
2024-01-02T09:15:00+05:30,100,101,99,100.5,10
2024-01-02T09:16:00+05:30,100.5,102,100,101.5,12
1704167280000,101.5,101.8,101,101.2,3
`

func TestParseCSV(t *testing.T) {
	got, err := ParseCSV(strings.NewReader(sampleCSV), time.Minute)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 45, 0, 0, time.UTC).UnixMilli(), got[0].OpenTime)
	assert.Equal(t, got[0].OpenTime+59999, got[0].CloseTime)
	assert.Equal(t, 101.2, got[2].Close)
}

func TestParseCSVErrors(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("open_time,open,high,low\n1,2,3,4\n"), time.Minute)
	assert.ErrorContains(t, err, "close")
	_, err = ParseCSV(strings.NewReader("open_time,open,high,low,close\nyesterday,1,2,0.5,1\n"), time.Minute)
	assert.ErrorContains(t, err, "line 2")
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	st, err := Open(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	candles, err := ParseCSV(strings.NewReader(sampleCSV), time.Minute)
	require.NoError(t, err)
	n, err := st.InsertCandles(ctx, "nifty", "1m", candles)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	candles[1].Close = 999
	_, err = st.InsertCandles(ctx, "NIFTY", "1M", candles[1:2])
	require.NoError(t, err)

	all, err := st.RangeCandles(ctx, "NIFTY", "1m", 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 999.0, all[1].Close)

	part, err := st.RangeCandles(ctx, "NIFTY", "1m", candles[1].OpenTime, candles[2].OpenTime)
	require.NoError(t, err)
	assert.Len(t, part, 2)

	m, err := st.Manifest(ctx, "NIFTY", "1m")
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.Rows)
	assert.Equal(t, "NIFTY", m.Symbol)
	assert.Equal(t, candles[0].OpenTime, m.MinTime)
}

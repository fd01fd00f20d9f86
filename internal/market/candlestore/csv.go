package candlestore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"intraday/internal/market"
)

// ParseCSV 读取带表头的 K 线 CSV。必需列：open_time, open, high, low, close；
// 可选列：close_time, volume, trades。时间列接受毫秒时间戳或 RFC3339。
func ParseCSV(r io.Reader, interval time.Duration) ([]market.Candle, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range []string{"open_time", "open", "high", "low", "close"} {
		if _, ok := cols[req]; !ok {
			return nil, fmt.Errorf("csv missing column %q", req)
		}
	}
	var out []market.Candle
	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		c, err := parseRecord(rec, cols, interval)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseRecord(rec []string, cols map[string]int, interval time.Duration) (market.Candle, error) {
	get := func(name string) (string, bool) {
		idx, ok := cols[name]
		if !ok || idx >= len(rec) {
			return "", false
		}
		return strings.TrimSpace(rec[idx]), true
	}
	var c market.Candle
	raw, _ := get("open_time")
	openTime, err := parseTime(raw)
	if err != nil {
		return c, err
	}
	c.OpenTime = openTime
	if raw, ok := get("close_time"); ok && raw != "" {
		if c.CloseTime, err = parseTime(raw); err != nil {
			return c, err
		}
	} else if interval > 0 {
		c.CloseTime = openTime + interval.Milliseconds() - 1
	}
	fields := []struct {
		name string
		dst  *float64
		opt  bool
	}{
		{"open", &c.Open, false},
		{"high", &c.High, false},
		{"low", &c.Low, false},
		{"close", &c.Close, false},
		{"volume", &c.Volume, true},
	}
	for _, f := range fields {
		raw, ok := get(f.name)
		if !ok || raw == "" {
			if f.opt {
				continue
			}
			return c, fmt.Errorf("empty %s", f.name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return c, fmt.Errorf("parse %s: %w", f.name, err)
		}
		*f.dst = v
	}
	if raw, ok := get("trades"); ok && raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c, fmt.Errorf("parse trades: %w", err)
		}
		c.Trades = n
	}
	return c, nil
}

func parseTime(raw string) (int64, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, fmt.Errorf("parse time %q: expected unix millis or RFC3339", raw)
	}
	return t.UnixMilli(), nil
}

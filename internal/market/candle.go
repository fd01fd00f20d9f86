package market

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Candle 的时间字段为毫秒时间戳。
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

func (c Candle) OpenAt() time.Time { return time.UnixMilli(c.OpenTime) }

// CloseAt 返回收盘时刻；缺少 close_time 时退回 open_time。
func (c Candle) CloseAt() time.Time {
	if c.CloseTime > 0 {
		return time.UnixMilli(c.CloseTime)
	}
	return time.UnixMilli(c.OpenTime)
}

type Candles []Candle

func (cs Candles) Closes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

func (cs Candles) Highs() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.High
	}
	return out
}

func (cs Candles) Lows() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Low
	}
	return out
}

func (cs Candles) Last() (Candle, bool) {
	if len(cs) == 0 {
		return Candle{}, false
	}
	return cs[len(cs)-1], true
}

// Snapshot 生成一行窗口摘要，用于顾问提示词。
func (cs Candles) Snapshot(interval string) string {
	if len(cs) == 0 {
		return ""
	}
	first := cs[0]
	last := cs[len(cs)-1]
	base := first.Close
	if base == 0 {
		base = first.Open
	}
	low := math.MaxFloat64
	high := -math.MaxFloat64
	var volume float64
	for _, bar := range cs {
		low = math.Min(low, bar.Low)
		high = math.Max(high, bar.High)
		volume += bar.Volume
	}
	var sb strings.Builder
	sb.WriteString("close=" + formatPrice(last.Close))
	iv := strings.TrimSpace(interval)
	if iv == "" {
		iv = "window"
	}
	if base != 0 {
		sb.WriteString(fmt.Sprintf(" (%+.2f%%/%d×%s)", (last.Close-base)/base*100, len(cs), iv))
	}
	sb.WriteString(", range " + formatPrice(low) + "-" + formatPrice(high))
	sb.WriteString(", volume " + formatPrice(volume))
	return sb.String()
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

const DefaultKlineGrace = 10 * time.Second

// DropUnclosed 去掉尚未收盘的最后一根 K 线（交易所接口会返回当前进行中的那根）。
func DropUnclosed(klines []Candle, interval time.Duration, now time.Time, grace time.Duration) []Candle {
	if len(klines) == 0 || interval <= 0 {
		return klines
	}
	if grace < 0 {
		grace = 0
	}
	last := klines[len(klines)-1]
	if last.OpenTime <= 0 {
		return klines
	}
	cutoffMs := last.OpenTime + interval.Milliseconds() + grace.Milliseconds()
	if now.UnixMilli() < cutoffMs {
		return klines[:len(klines)-1]
	}
	return klines
}

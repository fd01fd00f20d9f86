package scheduler

import (
	"sync"
	"time"
)

// Clock 是注入给引擎的时间源：实盘/模拟盘用墙钟，回测用 K 线驱动的合成时钟。
type Clock interface {
	Now() time.Time
}

type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }

// ManualClock 只在调用方推进时变化，回测与测试使用。
type ManualClock struct {
	mu  sync.RWMutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// HourBlock 返回 t 在 loc 时区内所在整点。
// 不能用 Truncate：它按 UTC 纪元取整，遇到 +05:30 这类时区会错位半小时。
func HourBlock(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), 0, 0, 0, loc)
}

// TradingDay 返回 t 在 loc 时区内的日期字符串 (2006-01-02)。
func TradingDay(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}

// AtOrAfterClock 判断 t 在 loc 时区内是否已到达 hour:minute。
func AtOrAfterClock(t time.Time, loc *time.Location, hour, minute int) bool {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	mark := time.Date(lt.Year(), lt.Month(), lt.Day(), hour, minute, 0, 0, loc)
	return !lt.Before(mark)
}

package scheduler

import (
	"context"
	"time"

	"intraday/internal/logger"
)

// AlignedScheduler 在每个周期边界（加 Offset）触发任务；上一轮返回后才计算下一轮，不会重叠执行。
type AlignedScheduler struct {
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	clock Clock
	after func(time.Duration) <-chan time.Time
}

func NewAlignedScheduler(interval, offset time.Duration, clock Clock) *AlignedScheduler {
	if clock == nil {
		clock = WallClock{}
	}
	return &AlignedScheduler{
		Interval: interval,
		Offset:   offset,
		clock:    clock,
		after:    time.After,
	}
}

// Start 阻塞运行直到 ctx 取消，返回 ctx.Err()。
func (s *AlignedScheduler) Start(ctx context.Context, task func(ctx context.Context, now time.Time)) error {
	if task == nil {
		logger.Warnf("AlignedScheduler: task is nil, exit")
		return nil
	}
	if s.Interval <= 0 {
		logger.Warnf("AlignedScheduler: invalid interval=%s, exit", s.Interval)
		return nil
	}
	if s.Offset < 0 {
		logger.Warnf("AlignedScheduler: negative offset=%s, clamp to 0", s.Offset)
		s.Offset = 0
	}
	if s.clock == nil {
		s.clock = WallClock{}
	}
	if s.after == nil {
		s.after = time.After
	}

	startAt := s.clock.Now()
	_, wakeAt, wait := s.nextTimes(startAt)
	logger.Infof("AlignedScheduler: started interval=%s offset=%s run_immediately=%v first=%s (in %s)",
		s.Interval, s.Offset, s.RunImmediately, wakeAt.Format(time.RFC3339), wait.Truncate(time.Second))

	if s.RunImmediately {
		if err := ctx.Err(); err != nil {
			return err
		}
		task(ctx, startAt)
	}

	for {
		if err := ctx.Err(); err != nil {
			logger.Infof("AlignedScheduler: ctx done, exit")
			return err
		}
		now := s.clock.Now()
		_, wakeAt, wait := s.nextTimes(now)
		logger.Debugf("AlignedScheduler: next=%s (in %s) uptime=%s",
			wakeAt.Format(time.RFC3339), wait.Truncate(time.Second), now.Sub(startAt).Truncate(time.Second))

		if wait > 0 {
			select {
			case <-ctx.Done():
				logger.Infof("AlignedScheduler: ctx done, exit")
				return ctx.Err()
			case <-s.after(wait):
			}
		}
		task(ctx, s.clock.Now())
	}
}

func (s *AlignedScheduler) nextTimes(now time.Time) (nextClose, wakeAt time.Time, wait time.Duration) {
	nextClose = now.Truncate(s.Interval).Add(s.Interval)
	wakeAt = nextClose.Add(s.Offset)
	return nextClose, wakeAt, wakeAt.Sub(now)
}

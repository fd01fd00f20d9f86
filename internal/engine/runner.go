package engine

import (
	"context"
	"time"

	"intraday/internal/logger"
	"intraday/internal/scheduler"
)

// Runner 用对齐调度器驱动 Tick；上一轮返回后才开始下一轮。
type Runner struct {
	engine *Engine
	sched  *scheduler.AlignedScheduler
}

func NewRunner(e *Engine, sched *scheduler.AlignedScheduler) *Runner {
	return &Runner{engine: e, sched: sched}
}

// Run 阻塞直到 ctx 取消。
func (r *Runner) Run(ctx context.Context) error {
	if _, err := r.engine.Bootstrap(ctx, time.Now()); err != nil {
		return err
	}
	return r.sched.Start(ctx, func(ctx context.Context, now time.Time) {
		rep, err := r.engine.Tick(ctx, now)
		if err != nil {
			logger.Errorf("Runner: tick at %s failed: %v", now.Format(time.RFC3339), err)
			return
		}
		logger.Debugf("Runner: tick at %s sessions=%d entered=%d exited=%d stopped=%d failed=%d",
			now.Format(time.RFC3339), len(rep.Sessions), rep.Count(ActionEntered), rep.Count(ActionExited),
			rep.Count(ActionStopped), rep.Count(ActionFailed))
	})
}

package advisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"intraday/internal/logger"
	"intraday/internal/pkg/circuit"
)

// Guard 为顾问调用加超时与熔断，所有失败统一为 ErrUnavailable。
type Guard struct {
	inner   Advisor
	timeout time.Duration
	breaker *circuit.CircuitBreaker
}

type GuardConfig struct {
	Timeout          time.Duration
	FailureThreshold int
	Cooldown         time.Duration
	// NowFn 驱动熔断器计时；回测注入合成时钟。
	NowFn func() time.Time
}

func NewGuard(inner Advisor, cfg GuardConfig) *Guard {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	cb := circuit.NewCircuitBreaker("advisor", cfg.FailureThreshold, cfg.Cooldown).WithClock(cfg.NowFn)
	return &Guard{inner: inner, timeout: cfg.Timeout, breaker: cb}
}

func (g *Guard) Breaker() *circuit.CircuitBreaker { return g.breaker }

func (g *Guard) Recommend(ctx context.Context, in Context, currentStrategyID string) (*Recommendation, error) {
	if g.inner == nil {
		return nil, nil
	}
	if !g.breaker.Allow() {
		return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
	}
	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	rec, err := g.inner.Recommend(callCtx, in, currentStrategyID)
	if err != nil {
		g.breaker.RecordFailure()
		logger.Warnf("Advisor: session=%s recommend failed: %v", in.SessionID, err)
		if errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	g.breaker.RecordSuccess()
	return rec, nil
}

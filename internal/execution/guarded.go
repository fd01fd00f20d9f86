package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"intraday/internal/logger"
	"intraday/internal/pkg/circuit"
)

var (
	metricOrdersAttempted  = prometheus.NewCounter(prometheus.CounterOpts{Name: "intraday_orders_attempted_total", Help: "Orders handed to the guarded broker"})
	metricOrdersPlaced     = prometheus.NewCounter(prometheus.CounterOpts{Name: "intraday_orders_placed_total", Help: "Orders confirmed by the broker"})
	metricOrdersFailed     = prometheus.NewCounter(prometheus.CounterOpts{Name: "intraday_orders_failed_total", Help: "Orders that failed after retries"})
	metricOrdersSuppressed = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "intraday_orders_suppressed_total", Help: "Orders blocked by the safety layer"}, []string{"reason"})
	metricOrdersDuplicate  = prometheus.NewCounter(prometheus.CounterOpts{Name: "intraday_orders_duplicate_total", Help: "Orders answered from the idempotency cache"})
	metricBreakerState     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "intraday_broker_breaker_state", Help: "0=closed, 1=open, 2=half_open"})
)

func init() {
	prometheus.MustRegister(
		metricOrdersAttempted, metricOrdersPlaced, metricOrdersFailed,
		metricOrdersSuppressed, metricOrdersDuplicate, metricBreakerState,
	)
}

var (
	ErrRateLimited = errors.New("order rate limit hit")
	ErrBreakerOpen = errors.New("broker circuit open")
)

type GuardConfig struct {
	PerMinuteCap     int           `toml:"per_minute_cap" validate:"gte=0"`
	MaxRetries       int           `toml:"max_retries" validate:"gte=0"`
	Backoff          time.Duration `toml:"backoff"`
	BreakerThreshold int           `toml:"breaker_threshold" validate:"gte=0"`
	BreakerCooldown  time.Duration `toml:"breaker_cooldown"`
}

// GuardedBroker 给券商调用加每分钟上限、重试退避、熔断和按 ClientOrderID 的幂等。
type GuardedBroker struct {
	inner   Broker
	cfg     GuardConfig
	breaker *circuit.CircuitBreaker
	nowFn   func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	orderTimes []time.Time
	filled     map[string]Fill
}

func NewGuardedBroker(inner Broker, cfg GuardConfig) *GuardedBroker {
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 3
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = time.Minute
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	g := &GuardedBroker{
		inner:  inner,
		cfg:    cfg,
		nowFn:  time.Now,
		sleep:  sleepCtx,
		filled: make(map[string]Fill),
	}
	g.breaker = circuit.NewCircuitBreaker("broker", cfg.BreakerThreshold, cfg.BreakerCooldown).
		WithClock(func() time.Time { return g.nowFn() })
	g.breaker.SetStateChangeHandler(func(name string, from, to circuit.State) {
		metricBreakerState.Set(float64(to))
		logger.Warnf("Execution: breaker %s %s -> %s", name, from, to)
	})
	return g
}

func (g *GuardedBroker) PlaceMarketOrder(ctx context.Context, order Order) (Fill, error) {
	metricOrdersAttempted.Inc()
	now := g.nowFn()

	if order.ClientOrderID != "" {
		g.mu.Lock()
		prev, ok := g.filled[order.ClientOrderID]
		g.mu.Unlock()
		if ok {
			metricOrdersDuplicate.Inc()
			logger.Warnf("Execution: duplicate order %s answered from cache", order.ClientOrderID)
			return prev, nil
		}
	}
	if !g.breaker.Allow() {
		metricOrdersSuppressed.WithLabelValues("breaker").Inc()
		return Fill{}, ErrBreakerOpen
	}
	if g.rateExceeded(now) {
		metricOrdersSuppressed.WithLabelValues("rate").Inc()
		return Fill{}, ErrRateLimited
	}

	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := g.sleep(ctx, time.Duration(attempt)*g.cfg.Backoff); err != nil {
				lastErr = err
				break
			}
		}
		fill, err := g.inner.PlaceMarketOrder(ctx, order)
		if err == nil {
			g.noteSuccess(now, order.ClientOrderID, fill)
			return fill, nil
		}
		lastErr = err
		logger.Warnf("Execution: order %s %s attempt %d failed: %v", order.Symbol, order.Side, attempt+1, err)
	}
	g.breaker.RecordFailure()
	metricOrdersFailed.Inc()
	return Fill{}, fmt.Errorf("after %d attempts: %w", g.cfg.MaxRetries+1, lastErr)
}

// LookupOrder 先查本地幂等缓存，再转发给支持查询的券商。
func (g *GuardedBroker) LookupOrder(ctx context.Context, symbol, clientOrderID string) (Fill, error) {
	g.mu.Lock()
	prev, ok := g.filled[clientOrderID]
	g.mu.Unlock()
	if ok {
		return prev, nil
	}
	lookup, ok := g.inner.(OrderLookup)
	if !ok {
		return Fill{}, ErrOrderNotFound
	}
	return lookup.LookupOrder(ctx, symbol, clientOrderID)
}

func (g *GuardedBroker) rateExceeded(now time.Time) bool {
	if g.cfg.PerMinuteCap <= 0 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	cutoff := now.Add(-time.Minute)
	j := 0
	for _, t := range g.orderTimes {
		if t.After(cutoff) {
			g.orderTimes[j] = t
			j++
		}
	}
	g.orderTimes = g.orderTimes[:j]
	return len(g.orderTimes) >= g.cfg.PerMinuteCap
}

func (g *GuardedBroker) noteSuccess(now time.Time, clientOrderID string, fill Fill) {
	g.mu.Lock()
	g.orderTimes = append(g.orderTimes, now)
	if clientOrderID != "" {
		g.filled[clientOrderID] = fill
	}
	g.mu.Unlock()
	g.breaker.RecordSuccess()
	metricOrdersPlaced.Inc()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

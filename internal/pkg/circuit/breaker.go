// Package circuit 为外部调用（顾问、券商）提供熔断保护。
package circuit

import (
	"sync"
	"time"

	"intraday/internal/logger"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{
	StateClosed:   "CLOSED",
	StateOpen:     "OPEN",
	StateHalfOpen: "HALF-OPEN",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// CircuitBreaker 连续失败 threshold 次后熔断；熔断满 cooldown 后放行试探请求，
// 试探成功恢复，失败则重新计时。
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	now      func() time.Time
	notify   func(name string, from, to State)
}

func NewCircuitBreaker(name string, threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:      name,
		threshold: max(threshold, 1),
		cooldown:  cooldown,
		now:       time.Now,
	}
}

func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	if now == nil {
		return cb
	}
	cb.mu.Lock()
	cb.now = now
	cb.mu.Unlock()
	return cb
}

// SetStateChangeHandler 的回调持锁同步执行，回调内不可再调用本熔断器。
// 未设置时状态变化写 warn 日志。
func (cb *CircuitBreaker) SetStateChangeHandler(fn func(name string, from, to State)) {
	cb.mu.Lock()
	cb.notify = fn
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) Name() string { return cb.name }

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow 报告本次调用能否放行。
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return true
	}
	if cb.now().Sub(cb.openedAt) < cb.cooldown {
		return false
	}
	cb.setState(StateHalfOpen)
	return true
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.setState(StateClosed)
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	trip := cb.state == StateHalfOpen || (cb.state == StateClosed && cb.failures >= cb.threshold)
	if trip {
		cb.openedAt = cb.now()
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	cb.state = to
	if cb.notify != nil {
		cb.notify(cb.name, from, to)
		return
	}
	logger.Warnf("circuit %s: %s -> %s failures=%d/%d cooldown=%s", cb.name, from, to, cb.failures, cb.threshold, cb.cooldown)
}

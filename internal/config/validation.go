package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"intraday/internal/scheduler"
	"intraday/internal/types"
)

// ErrInvalidConfig 包装所有配置错误，启动时视为致命。
var ErrInvalidConfig = errors.New("invalid config")

var structValidator = validator.New()

func validate(c *Config) error {
	checks := []func() error{
		c.Engine.validate,
		c.Risk.Validate,
		c.Advisor.validate,
		c.Execution.validate,
		c.validateSessions,
		c.Backtest.validate,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if _, err := time.LoadLocation(e.Timezone); err != nil {
		return fmt.Errorf("engine.timezone %q: %w", e.Timezone, err)
	}
	if _, ok := scheduler.ParseIntervalDuration(e.Interval); !ok {
		return fmt.Errorf("engine.interval %q is not a valid interval", e.Interval)
	}
	if _, ok := scheduler.ParseIntervalDuration(e.Timeframe); !ok {
		return fmt.Errorf("engine.timeframe %q is not a valid interval", e.Timeframe)
	}
	if e.OffsetSeconds < 0 {
		return fmt.Errorf("engine.offset_seconds must be >= 0")
	}
	if e.Candles < 2 {
		return fmt.Errorf("engine.candles must be >= 2")
	}
	if e.MinConfidence < 0 || e.MinConfidence > 1 {
		return fmt.Errorf("engine.min_confidence must be within [0,1]")
	}
	if strings.TrimSpace(e.FrequencyFile) == "" {
		return fmt.Errorf("engine.frequency_file is required")
	}
	return nil
}

func (a *AdvisorConfig) validate() error {
	if !a.Enabled {
		return nil
	}
	if strings.TrimSpace(a.Model) == "" {
		return fmt.Errorf("advisor.model is required when advisor is enabled")
	}
	if strings.TrimSpace(a.BaseURL) == "" {
		return fmt.Errorf("advisor.base_url is required when advisor is enabled")
	}
	if a.MaxRetries < 0 {
		return fmt.Errorf("advisor.max_retries must be >= 0")
	}
	return nil
}

func (x *ExecutionConfig) validate() error {
	if err := structValidator.Struct(x.Guard); err != nil {
		return fmt.Errorf("execution.guard: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(x.Broker)) {
	case "":
	case "binance":
		if strings.TrimSpace(x.Binance.APIKey) == "" || strings.TrimSpace(x.Binance.SecretKey) == "" {
			return fmt.Errorf("execution.binance requires api_key and secret_key (or BINANCE_API_KEY / BINANCE_SECRET_KEY)")
		}
	default:
		return fmt.Errorf("execution.broker %q is not supported", x.Broker)
	}
	return nil
}

func (c *Config) validateSessions() error {
	seen := make(map[string]bool, len(c.Sessions))
	for i := range c.Sessions {
		s := &c.Sessions[i]
		if err := structValidator.Struct(s); err != nil {
			return fmt.Errorf("sessions[%d]: %w", i, err)
		}
		if seen[s.ID] {
			return fmt.Errorf("sessions[%d]: duplicate id %s", i, s.ID)
		}
		seen[s.ID] = true
		if _, _, err := types.ParseClock(s.CutoffTime); err != nil {
			return fmt.Errorf("sessions.%s.cutoff_time: %w", s.ID, err)
		}
		if s.InstrumentKind == string(types.InstrumentLot) && s.LotSize <= 0 {
			return fmt.Errorf("sessions.%s: lot_size is required for LOT instruments", s.ID)
		}
		if s.Mode == string(types.ModeLive) && strings.TrimSpace(c.Execution.Broker) == "" {
			return fmt.Errorf("sessions.%s: LIVE mode requires execution.broker", s.ID)
		}
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	for key, v := range map[string]string{"backtest.from": b.From, "backtest.to": b.To} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(types.TradingDayLayout, v); err != nil {
			return fmt.Errorf("%s %q: expected YYYY-MM-DD", key, v)
		}
	}
	if b.From != "" && b.To != "" && b.To < b.From {
		return fmt.Errorf("backtest.to must not be before backtest.from")
	}
	return nil
}

package config

import (
	"strings"
)

const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppHTTPAddr       = ":9991"
	defaultAppLogPath        = "data/logs/intraday.log"
	defaultAppAdvisorLogPath = "data/logs/advisor.log"

	defaultTimezone         = "Asia/Kolkata"
	defaultInterval         = "1m"
	defaultOffsetSeconds    = 2
	defaultTimeframe        = "1m"
	defaultCandles          = 100
	defaultMarketTimeout    = 5
	defaultAdvisoryInterval = 900
	defaultMinConfidence    = 0.6
	defaultFrequencyFile    = "configs/frequency.yaml"

	defaultAllocationFraction = 0.30
	defaultRiskFraction       = 0.01

	defaultAdvisorBaseURL   = "https://api.openai.com/v1"
	defaultAdvisorTimeout   = 10
	defaultAdvisorRetries   = 1
	defaultAdvisorThreshold = 3
	defaultAdvisorCooldown  = 300

	defaultStorePath = "data/intraday.db"
	defaultCandleDir = "data/candles"
	defaultReportDir = "data/reports"
)

// applyDefaults 为所有子配置应用默认值；显式写在配置里的键不会被覆盖。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	applyRiskDefaults(c, keys)
	c.Advisor.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	for i := range c.Sessions {
		c.Sessions[i].normalize()
	}
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.advisor_log_path", &a.AdvisorLogPath, defaultAppAdvisorLogPath),
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("engine.timezone", &e.Timezone, defaultTimezone),
		stringFieldDefault("engine.interval", &e.Interval, defaultInterval),
		stringFieldDefault("engine.timeframe", &e.Timeframe, defaultTimeframe),
		stringFieldDefault("engine.frequency_file", &e.FrequencyFile, defaultFrequencyFile),
		intFieldDefault("engine.offset_seconds", &e.OffsetSeconds, defaultOffsetSeconds),
		intFieldDefault("engine.candles", &e.Candles, defaultCandles),
		intFieldDefault("engine.market_timeout_seconds", &e.MarketTimeoutSeconds, defaultMarketTimeout),
		intFieldDefault("engine.advisory_interval_seconds", &e.AdvisoryIntervalSeconds, defaultAdvisoryInterval),
		fieldDefault{
			key:   "engine.min_confidence",
			need:  func() bool { return e.MinConfidence <= 0 },
			apply: func() { e.MinConfidence = defaultMinConfidence },
		},
	)
}

func applyRiskDefaults(c *Config, keys keySet) {
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "risk.allocation_fraction",
			need:  func() bool { return c.Risk.AllocationFraction <= 0 },
			apply: func() { c.Risk.AllocationFraction = defaultAllocationFraction },
		},
		fieldDefault{
			key:   "risk.risk_fraction",
			need:  func() bool { return c.Risk.RiskFraction <= 0 },
			apply: func() { c.Risk.RiskFraction = defaultRiskFraction },
		},
	)
}

func (a *AdvisorConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("advisor.base_url", &a.BaseURL, defaultAdvisorBaseURL),
		intFieldDefault("advisor.timeout_seconds", &a.TimeoutSeconds, defaultAdvisorTimeout),
		intFieldDefault("advisor.max_retries", &a.MaxRetries, defaultAdvisorRetries),
		intFieldDefault("advisor.failure_threshold", &a.FailureThreshold, defaultAdvisorThreshold),
		intFieldDefault("advisor.cooldown_seconds", &a.CooldownSeconds, defaultAdvisorCooldown),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
		stringFieldDefault("store.candle_dir", &s.CandleDir, defaultCandleDir),
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("backtest.report_dir", &b.ReportDir, defaultReportDir),
	)
}

func (s *SessionSeed) normalize() {
	s.ID = strings.TrimSpace(s.ID)
	s.Instrument = strings.ToUpper(strings.TrimSpace(s.Instrument))
	s.Exchange = strings.ToUpper(strings.TrimSpace(s.Exchange))
	s.Mode = strings.ToUpper(strings.TrimSpace(s.Mode))
	s.InstrumentKind = strings.ToUpper(strings.TrimSpace(s.InstrumentKind))
	if s.InstrumentKind == "" {
		s.InstrumentKind = "UNIT"
	}
	s.Strategy = strings.ToLower(strings.TrimSpace(s.Strategy))
	s.CutoffTime = strings.TrimSpace(s.CutoffTime)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}

package config

import (
	"strings"

	"intraday/internal/execution"
	execbinance "intraday/internal/execution/binance"
	"intraday/internal/market/binance"
	"intraday/internal/risk"
)

// Config 是服务的主配置载体。
type Config struct {
	App        AppConfig                 `toml:"app"`
	Engine     EngineConfig              `toml:"engine"`
	Risk       risk.Config               `toml:"risk"`
	Strategies map[string]map[string]any `toml:"strategies"`
	Advisor    AdvisorConfig             `toml:"advisor"`
	Market     MarketConfig              `toml:"market"`
	Execution  ExecutionConfig           `toml:"execution"`
	Store      StoreConfig               `toml:"store"`
	Sessions   []SessionSeed             `toml:"sessions"`
	Backtest   BacktestConfig            `toml:"backtest"`
}

type AppConfig struct {
	Env            string `toml:"env"`
	LogLevel       string `toml:"log_level"`
	HTTPAddr       string `toml:"http_addr"`
	LogPath        string `toml:"log_path"`
	AdvisorLogPath string `toml:"advisor_log_path"`
	AdvisorDump    bool   `toml:"advisor_dump_payload"`
}

type EngineConfig struct {
	Timezone       string `toml:"timezone"`
	Interval       string `toml:"interval"`
	OffsetSeconds  int    `toml:"offset_seconds"`
	RunImmediately bool   `toml:"run_immediately"`
	Timeframe      string `toml:"timeframe"`
	Candles        int    `toml:"candles"`
	// MarketTimeoutSeconds 限制单次行情调用耗时。
	MarketTimeoutSeconds    int     `toml:"market_timeout_seconds"`
	AdvisoryIntervalSeconds int     `toml:"advisory_interval_seconds"`
	MinConfidence           float64 `toml:"min_confidence"`
	FrequencyFile           string  `toml:"frequency_file"`
}

type AdvisorConfig struct {
	Enabled          bool              `toml:"enabled"`
	BaseURL          string            `toml:"base_url"`
	APIKey           string            `toml:"api_key"`
	Model            string            `toml:"model"`
	TimeoutSeconds   int               `toml:"timeout_seconds"`
	MaxRetries       int               `toml:"max_retries"`
	FailureThreshold int               `toml:"failure_threshold"`
	CooldownSeconds  int               `toml:"cooldown_seconds"`
	ExtraHeaders     map[string]string `toml:"extra_headers"`
}

type MarketConfig struct {
	Binance binance.Config `toml:"binance"`
}

type ExecutionConfig struct {
	// Broker 为空表示不接券商，LIVE 会话下单会失败。
	Broker  string                `toml:"broker"`
	Guard   execution.GuardConfig `toml:"guard"`
	Binance execbinance.Config    `toml:"binance"`
}

type StoreConfig struct {
	Path      string `toml:"path"`
	CandleDir string `toml:"candle_dir"`
}

// SessionSeed 描述启动时需要存在的会话；已存在的会话不会被覆盖。
type SessionSeed struct {
	ID               string  `toml:"id" validate:"required"`
	Instrument       string  `toml:"instrument" validate:"required"`
	Exchange         string  `toml:"exchange"`
	Mode             string  `toml:"mode" validate:"required,oneof=LIVE PAPER BACKTEST"`
	InstrumentKind   string  `toml:"instrument_kind" validate:"required,oneof=LOT UNIT"`
	LotSize          int     `toml:"lot_size" validate:"gte=0"`
	Capital          float64 `toml:"capital" validate:"gt=0"`
	MaxTradesAllowed int     `toml:"max_trades_allowed" validate:"gte=1"`
	DailyLossLimit   float64 `toml:"daily_loss_limit" validate:"gte=0"`
	CutoffTime       string  `toml:"cutoff_time" validate:"required"`
	Strategy         string  `toml:"strategy" validate:"required"`
}

type BacktestConfig struct {
	SessionID    string `toml:"session_id"`
	From         string `toml:"from"`
	To           string `toml:"to"`
	ReportDir    string `toml:"report_dir"`
	ChartTitle   string `toml:"chart_title"`
	ShowProgress bool   `toml:"show_progress"`
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	_, ok := k[strings.ToLower(strings.TrimSpace(path))]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

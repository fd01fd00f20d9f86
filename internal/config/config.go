package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"intraday/internal/scheduler"
	"intraday/internal/types"
)

// envBindings 把敏感字段映射到环境变量，.env 由入口通过 godotenv 预先加载。
var envBindings = map[string]string{
	"advisor.api_key":              "INTRADAY_ADVISOR_API_KEY",
	"execution.binance.api_key":    "BINANCE_API_KEY",
	"execution.binance.secret_key": "BINANCE_SECRET_KEY",
}

// Load 读取配置文件（支持 include 链），应用默认值并校验。
func Load(path string) (*Config, error) {
	files, err := resolveConfigIncludes(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	for _, file := range files {
		if err := mergeConfigFile(v, file); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
	}
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	setKeys := make(keySet)
	flattenConfigKeys("", v.AllSettings(), setKeys)
	cfg.applyDefaults(setKeys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	tmp := viper.New()
	tmp.SetConfigFile(path)
	if err := tmp.ReadInConfig(); err != nil {
		return err
	}
	return v.MergeConfigMap(tmp.AllSettings())
}

// resolveConfigIncludes 按深度优先展开 include，被包含的文件先于包含者合并。
func resolveConfigIncludes(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	var ordered []string
	seen := make(map[string]bool)
	stack := make(map[string]bool)
	var walk func(string) error
	walk = func(p string) error {
		p = filepath.Clean(p)
		if stack[p] {
			return fmt.Errorf("include cycle detected: %s", p)
		}
		if seen[p] {
			return nil
		}
		stack[p] = true
		includes, err := parseIncludeList(p)
		if err != nil {
			return fmt.Errorf("parsing include failed (%s): %w", p, err)
		}
		for _, inc := range includes {
			if !filepath.IsAbs(inc) {
				inc = filepath.Join(filepath.Dir(p), inc)
			}
			if err := walk(inc); err != nil {
				return err
			}
		}
		delete(stack, p)
		seen[p] = true
		ordered = append(ordered, p)
		return nil
	}
	if err := walk(abs); err != nil {
		return nil, err
	}
	return ordered, nil
}

func parseIncludeList(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	raw := v.Get("include")
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("include must be a string array")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("include only supports strings")
		}
		if str = strings.TrimSpace(str); str != "" {
			out = append(out, str)
		}
	}
	return out, nil
}

func flattenConfigKeys(prefix string, node any, dest keySet) {
	switch val := node.(type) {
	case map[string]any:
		for k, v := range val {
			next := strings.ToLower(strings.TrimSpace(k))
			if next == "" {
				continue
			}
			if prefix != "" {
				next = prefix + "." + next
			}
			flattenConfigKeys(next, v, dest)
		}
	default:
		dest.mark(prefix)
	}
}

// Location 返回引擎时区。Load 已校验过，这里出错时退回 UTC。
func (e EngineConfig) Location() *time.Location {
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (e EngineConfig) IntervalDuration() time.Duration {
	d, _ := scheduler.ParseIntervalDuration(e.Interval)
	return d
}

func (e EngineConfig) Offset() time.Duration {
	return time.Duration(e.OffsetSeconds) * time.Second
}

func (e EngineConfig) MarketTimeout() time.Duration {
	return time.Duration(e.MarketTimeoutSeconds) * time.Second
}

func (e EngineConfig) AdvisoryInterval() time.Duration {
	return time.Duration(e.AdvisoryIntervalSeconds) * time.Second
}

// Session 依据种子构造一个新的 ACTIVE 会话。
func (s SessionSeed) Session(now time.Time, loc *time.Location) types.Session {
	return types.Session{
		ID:                s.ID,
		Instrument:        s.Instrument,
		Exchange:          s.Exchange,
		Mode:              types.Mode(s.Mode),
		InstrumentKind:    types.InstrumentKind(s.InstrumentKind),
		LotSize:           s.LotSize,
		Status:            types.StatusActive,
		Capital:           s.Capital,
		MaxTradesAllowed:  s.MaxTradesAllowed,
		DailyLossLimit:    s.DailyLossLimit,
		CutoffTime:        s.CutoffTime,
		TradingDay:        scheduler.TradingDay(now, loc),
		CurrentStrategyID: s.Strategy,
		CurrentHourBlock:  scheduler.HourBlock(now, loc),
		FrequencyMode:     types.FrequencyNormal,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"intraday/internal/advisor"
	"intraday/internal/config"
	"intraday/internal/engine"
	"intraday/internal/execution"
	"intraday/internal/logger"
	"intraday/internal/market"
	"intraday/internal/scheduler"
	"intraday/internal/store"
	"intraday/internal/store/gormstore"
	"intraday/internal/strategy"
	"intraday/internal/throttle"
	"intraday/internal/types"
)

type AppBuilder struct {
	cfg *config.Config

	storeFn   func(config.StoreConfig) (store.Store, error)
	marketFn  func(context.Context, *config.Config) (market.Provider, error)
	advisorFn func(config.AdvisorConfig, config.AppConfig) (advisor.Advisor, func(), error)
	routersFn func(config.ExecutionConfig) (execution.ByMode, error)
	nowFn     func() time.Time
}

type AppBuilderOption func(*AppBuilder)

// WithStore 替换持久化实现，测试中注入内存仓储。
func WithStore(st store.Store) AppBuilderOption {
	return func(b *AppBuilder) {
		b.storeFn = func(config.StoreConfig) (store.Store, error) { return st, nil }
	}
}

func WithMarket(p market.Provider) AppBuilderOption {
	return func(b *AppBuilder) {
		b.marketFn = func(context.Context, *config.Config) (market.Provider, error) { return p, nil }
	}
}

func WithAdvisor(a advisor.Advisor) AppBuilderOption {
	return func(b *AppBuilder) {
		b.advisorFn = func(config.AdvisorConfig, config.AppConfig) (advisor.Advisor, func(), error) {
			return a, func() {}, nil
		}
	}
}

func WithClock(now func() time.Time) AppBuilderOption {
	return func(b *AppBuilder) {
		if now != nil {
			b.nowFn = now
		}
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:       cfg,
		storeFn:   openStore,
		marketFn:  buildMarketProvider,
		advisorFn: buildAdvisor,
		routersFn: buildRouters,
		nowFn:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	st, err := gormstore.NewGormStore(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("初始化 gorm 存储失败: %w", err)
	}
	logger.Infof("✓ 会话存储: %s", cfg.Path)
	return st, nil
}

// buildRegistry 注册内置策略并应用配置里的参数。
func buildRegistry(cfg *config.Config) (*strategy.Registry, error) {
	reg := strategy.NewRegistry()
	if err := strategy.RegisterBuiltins(reg); err != nil {
		return nil, err
	}
	for id, params := range cfg.Strategies {
		if !reg.Has(id) {
			return nil, fmt.Errorf("strategies.%s: %w", id, strategy.ErrUnknownStrategy)
		}
		reg.Configure(id, params)
	}
	return reg, nil
}

func engineOptions(cfg *config.Config) engine.Options {
	return engine.Options{
		Location:         cfg.Engine.Location(),
		Timeframe:        cfg.Engine.Timeframe,
		Candles:          cfg.Engine.Candles,
		AdvisoryInterval: cfg.Engine.AdvisoryInterval(),
		MinConfidence:    cfg.Engine.MinConfidence,
		Risk:             cfg.Risk,
	}
}

func (b *AppBuilder) Build(ctx context.Context) (app *App, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	var cleanups []func()
	defer func() {
		if err != nil {
			for i := len(cleanups) - 1; i >= 0; i-- {
				cleanups[i]()
			}
		}
	}()

	freq, err := throttle.OpenFileStore(cfg.Engine.FrequencyFile)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ 频率配置: %s", cfg.Engine.FrequencyFile)

	st, err := b.storeFn(cfg.Store)
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, func() { _ = st.Close() })

	reg, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ 已注册策略: %v", reg.IDs())

	provider, err := b.marketFn(ctx, cfg)
	if err != nil {
		return nil, err
	}
	adv, closeAdvisor, err := b.advisorFn(cfg.Advisor, cfg.App)
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, closeAdvisor)
	routers, err := b.routersFn(cfg.Execution)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(engineOptions(cfg), engine.Deps{
		Store:    st,
		Market:   provider,
		Registry: reg,
		Advisor:  adv,
		Routers:  routers,
		Throttle: freq,
		IDs:      execution.RandomIDs{},
	})
	if err != nil {
		return nil, err
	}

	now := b.nowFn()
	seeds := make([]types.Session, 0, len(cfg.Sessions))
	for _, seed := range cfg.Sessions {
		seeds = append(seeds, seed.Session(now, cfg.Engine.Location()))
	}
	created, err := eng.EnsureSessions(ctx, seeds)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ 会话: 配置 %d 个，新建 %d 个", len(seeds), created)

	sched := scheduler.NewAlignedScheduler(cfg.Engine.IntervalDuration(), cfg.Engine.Offset(), scheduler.WallClock{})
	sched.RunImmediately = cfg.Engine.RunImmediately

	server, err := buildHTTPServer(cfg.App, eng, st, freq)
	if err != nil {
		return nil, err
	}

	sessions, err := st.Load(ctx)
	if err != nil {
		return nil, err
	}
	advisorName := ""
	if adv != nil {
		advisorName = strings.TrimSpace(cfg.Advisor.Model)
	}

	return &App{
		cfg:       cfg,
		store:     st,
		engine:    eng,
		runner:    engine.NewRunner(eng, sched),
		http:      server,
		frequency: freq,
		cleanups:  cleanups,
		Summary: &StartupSummary{
			Engine: EngineSummary{
				Timezone:  cfg.Engine.Timezone,
				Interval:  cfg.Engine.Interval,
				Timeframe: cfg.Engine.Timeframe,
				Candles:   cfg.Engine.Candles,
			},
			Sessions:   sessions,
			Strategies: reg.IDs(),
			Frequency:  freq.Current(),
			Advisor:    advisorName,
			Brokers:    routerModes(routers),
			HTTPAddr:   server.Addr(),
		},
	}, nil
}

package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"intraday/internal/config"
	"intraday/internal/engine"
	"intraday/internal/logger"
	"intraday/internal/store"
	"intraday/internal/throttle"
	adminhttp "intraday/internal/transport/http/admin"
)

// App 负责应用级编排：加载配置→初始化依赖→启动调度与 HTTP 服务。
type App struct {
	cfg       *config.Config
	store     store.Store
	engine    *engine.Engine
	runner    *engine.Runner
	http      *adminhttp.Server
	frequency *throttle.FileStore
	cleanups  []func()
	Summary   *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(ctx, cfg)
}

// Run 启动调度器、频率配置热加载与 HTTP 服务，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.runner == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()
	if a.Summary != nil {
		a.Summary.Print()
	}

	a.frequency.OnChange(func(snap throttle.Snapshot) {
		logger.Infof("Frequency config v%d applied: cap=%d slabs=%d", snap.Version, snap.Config.MaxHourlyCap, len(snap.Config.Slabs))
	})
	a.frequency.Watch()

	group, ctx := errgroup.WithContext(ctx)
	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		err := a.runner.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	return group.Wait()
}

// Engine 暴露底层引擎，便于测试。
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

// Close 释放存储与日志等资源，可重复调用。
func (a *App) Close() {
	if a == nil {
		return
	}
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
	_ = logger.Sync()
}

package app

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"intraday/internal/config"
	"intraday/internal/execution"
	execbinance "intraday/internal/execution/binance"
	"intraday/internal/logger"
	adminhttp "intraday/internal/transport/http/admin"
	"intraday/internal/types"
)

// buildRouters 为每种模式准备执行路由；未配置券商时不提供 LIVE 路由，LIVE 会话下单会失败。
func buildRouters(cfg config.ExecutionConfig) (execution.ByMode, error) {
	routers := execution.ByMode{
		types.ModePaper:    execution.NewPaperRouter(),
		types.ModeBacktest: execution.NewBacktestRouter(),
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Broker)) {
	case "":
		logger.Infof("✓ 未配置券商，仅启用 PAPER/BACKTEST 执行")
	case "binance":
		broker, err := execbinance.New(cfg.Binance)
		if err != nil {
			return nil, fmt.Errorf("failed to init binance broker: %w", err)
		}
		routers[types.ModeLive] = execution.NewLiveRouter(execution.NewGuardedBroker(broker, cfg.Guard))
		logger.Infof("✓ LIVE 执行: binance futures per_minute_cap=%d retries=%d", cfg.Guard.PerMinuteCap, cfg.Guard.MaxRetries)
	default:
		return nil, fmt.Errorf("execution.broker %q is not supported", cfg.Broker)
	}
	return routers, nil
}

func routerModes(routers execution.ByMode) []string {
	out := make([]string, 0, len(routers))
	for mode := range routers {
		out = append(out, string(mode))
	}
	sort.Strings(out)
	return out
}

func buildHTTPServer(cfg config.AppConfig, ctrl adminhttp.Controller, st adminhttp.Reader, freq adminhttp.FrequencyStore) (*adminhttp.Server, error) {
	if strings.TrimSpace(cfg.HTTPAddr) == "" || strings.EqualFold(cfg.HTTPAddr, "off") {
		return nil, nil
	}
	server, err := adminhttp.NewServer(adminhttp.Config{
		Addr:       cfg.HTTPAddr,
		Controller: ctrl,
		Store:      st,
		Frequency:  freq,
		Now:        time.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init http server: %w", err)
	}
	return server, nil
}

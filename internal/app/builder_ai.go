package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"intraday/internal/advisor"
	"intraday/internal/config"
	"intraday/internal/logger"
)

// buildAdvisor 在启用时构造“对话模型 -> 超时熔断”链路，未启用返回 nil。
func buildAdvisor(cfg config.AdvisorConfig, app config.AppConfig) (advisor.Advisor, func(), error) {
	if !cfg.Enabled {
		logger.Infof("✓ 策略顾问未启用，会话始终使用配置的策略")
		return nil, func() {}, nil
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	client := advisor.NewChatClient(cfg.BaseURL, cfg.APIKey, cfg.Model, timeout, cfg.MaxRetries)
	if len(cfg.ExtraHeaders) > 0 {
		client.ExtraHeaders = cfg.ExtraHeaders
	}
	guard := advisor.NewGuard(advisor.NewLLMAdvisor(client), advisor.GuardConfig{
		Timeout:          timeout,
		FailureThreshold: cfg.FailureThreshold,
		Cooldown:         time.Duration(cfg.CooldownSeconds) * time.Second,
	})

	cleanup := func() {}
	if path := strings.TrimSpace(app.AdvisorLogPath); path != "" {
		f, err := openLogFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("打开顾问日志失败: %w", err)
		}
		logger.SetAdvisorWriter(f)
		logger.EnableAdvisorPayloadDump(app.AdvisorDump)
		cleanup = func() {
			logger.SetAdvisorWriter(nil)
			_ = f.Close()
		}
		logger.Infof("✓ 顾问请求日志写入 %s", path)
	}
	logger.Infof("✓ 策略顾问: model=%s base=%s timeout=%s", cfg.Model, cfg.BaseURL, timeout)
	return guard, cleanup, nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"intraday/internal/app"
	"intraday/internal/config"
	"intraday/internal/logger"
)

func main() {
	cmd := &cli.Command{
		Name:  "intraday",
		Usage: "Intraday session engine: live/paper tick loop and day-by-day backtests",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the main config file",
				Value:   "configs/intraday.yaml",
				Sources: cli.EnvVars("INTRADAY_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Optional .env file with secrets",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the tick engine and the HTTP surface until interrupted",
				Action: runAction,
			},
			{
				Name:  "backtest",
				Usage: "Replay historical candles through the engine, one trading day at a time",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Configured session id (defaults to backtest.session_id or the first session)"},
					&cli.StringFlag{Name: "from", Usage: "First trading day, `YYYY-MM-DD`"},
					&cli.StringFlag{Name: "to", Usage: "Last trading day, `YYYY-MM-DD`"},
					&cli.StringFlag{Name: "csv", Usage: "Read candles from a CSV file instead of the candle store"},
					&cli.StringFlag{Name: "run-id", Usage: "Run id; derived from session and range when empty"},
					&cli.BoolFlag{Name: "progress", Aliases: []string{"p"}, Usage: "Show a progress bar"},
				},
				Action: backtestAction,
			},
			{
				Name:  "import",
				Usage: "Import a candle CSV into the candle store",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "csv", Required: true, Usage: "CSV file with open_time,open,high,low,close[,volume]"},
					&cli.StringFlag{Name: "symbol", Required: true, Usage: "Instrument symbol, e.g. BTCUSDT"},
					&cli.StringFlag{Name: "timeframe", Value: "1m", Usage: "Candle timeframe"},
				},
				Action: importAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadConfig 先加载 .env，再读取配置并初始化日志输出。返回的 closer 负责关闭日志文件。
func loadConfig(cmd *cli.Command) (*config.Config, func(), error) {
	if envFile := strings.TrimSpace(cmd.String("env-file")); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("读取 %s 失败: %w", envFile, err)
		}
	}
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置失败: %w", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志文件失败: %w", err)
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，会话=%d）", cfg.App.Env, len(cfg.Sessions))
	closer := func() {
		_ = logger.Sync()
		if logFile != nil {
			_ = logFile.Close()
		}
	}
	return cfg, closer, nil
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, closer, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closer()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("初始化应用失败: %w", err)
	}
	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("运行失败: %w", err)
	}
	logger.Infof("已退出")
	return nil
}

func backtestAction(ctx context.Context, cmd *cli.Command) error {
	cfg, closer, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closer()

	svc, err := app.NewBacktestService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	params := app.BacktestParams{
		SessionID: cmd.String("session"),
		From:      cmd.String("from"),
		To:        cmd.String("to"),
		CSV:       cmd.String("csv"),
		RunID:     cmd.String("run-id"),
	}
	if cmd.Bool("progress") {
		params.Progress = os.Stderr
	}
	res, err := svc.Run(ctx, params)
	if err != nil {
		return err
	}
	rep := res.Report
	fmt.Printf("run=%s session=%s %s..%s days=%d trades=%d pnl=%.2f win=%.1f%% max_dd=%.2f (%.2f%%)\n",
		rep.RunID, rep.SessionID, rep.From.Format("2006-01-02"), rep.To.Format("2006-01-02"),
		len(rep.Days), rep.TotalTrades, rep.TotalPnL, rep.WinRate*100, rep.MaxDrawdown, rep.MaxDrawdownPct*100)
	for _, d := range rep.Days {
		fmt.Printf("  %s pnl=%9.2f cum=%9.2f trades=%d wins=%d stop=%s\n",
			d.Day, d.PnL, d.CumulativePnL, d.Trades, d.Wins, d.StopReason)
	}
	fmt.Printf("chart: %s\n", res.ChartPath)
	return nil
}

func importAction(ctx context.Context, cmd *cli.Command) error {
	cfg, closer, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closer()

	svc, err := app.NewBacktestService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()
	n, err := svc.ImportCSV(ctx, cmd.String("csv"), cmd.String("symbol"), cmd.String("timeframe"))
	if err != nil {
		return err
	}
	fmt.Printf("imported %d candles\n", n)
	return nil
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}

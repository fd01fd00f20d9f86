package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"intraday/internal/backtest"
	"intraday/internal/config"
	"intraday/internal/logger"
	"intraday/internal/market"
	"intraday/internal/market/candlestore"
	"intraday/internal/scheduler"
	"intraday/internal/store"
	"intraday/internal/throttle"
)

// BacktestService 负责加载历史 K 线、运行模拟器并保存报告。
type BacktestService struct {
	cfg     *config.Config
	results store.Store
	candles *candlestore.Store
}

// BacktestParams 覆盖 backtest 配置段；CSV 非空时直接读取文件而不查询 candle 库。
type BacktestParams struct {
	SessionID string
	From      string
	To        string
	CSV       string
	RunID     string
	Progress  io.Writer
}

// BacktestResult 是一次回测的报告与图表路径。
type BacktestResult struct {
	Report    backtest.Report
	ChartPath string
}

func provideBacktestService(cfg *config.Config) (*BacktestService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	results, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	cs, err := candlestore.Open(cfg.Store.CandleDir)
	if err != nil {
		_ = results.Close()
		return nil, err
	}
	return &BacktestService{cfg: cfg, results: results, candles: cs}, nil
}

// NewBacktestService 通过 wire 注入器构建回测服务。
func NewBacktestService(cfg *config.Config) (*BacktestService, error) {
	return buildBacktestWithWire(cfg)
}

func (b *BacktestService) Run(ctx context.Context, p BacktestParams) (BacktestResult, error) {
	cfg := b.cfg
	if p.SessionID == "" {
		p.SessionID = cfg.Backtest.SessionID
	}
	if p.From == "" {
		p.From = cfg.Backtest.From
	}
	if p.To == "" {
		p.To = cfg.Backtest.To
	}
	seed, err := b.findSeed(p.SessionID)
	if err != nil {
		return BacktestResult{}, err
	}
	loc := cfg.Engine.Location()

	candles, err := b.loadSeries(ctx, seed, p, loc)
	if err != nil {
		return BacktestResult{}, err
	}
	if len(candles) == 0 {
		return BacktestResult{}, fmt.Errorf("%w: %s@%s %s..%s", backtest.ErrNoData, seed.Instrument, cfg.Engine.Timeframe, p.From, p.To)
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		return BacktestResult{}, err
	}
	freq, err := throttle.OpenFileStore(cfg.Engine.FrequencyFile)
	if err != nil {
		return BacktestResult{}, err
	}
	progress := p.Progress
	if progress == nil && cfg.Backtest.ShowProgress {
		progress = os.Stderr
	}
	opts := engineOptions(cfg)
	sim, err := backtest.NewSimulator(backtest.Options{
		Location:         opts.Location,
		Timeframe:        opts.Timeframe,
		Candles:          opts.Candles,
		AdvisoryInterval: opts.AdvisoryInterval,
		MinConfidence:    opts.MinConfidence,
		Risk:             opts.Risk,
		Throttle:         freq.Current(),
		Registry:         reg,
		Results:          b.results,
		Progress:         progress,
	})
	if err != nil {
		return BacktestResult{}, err
	}

	start := candles[0].OpenAt()
	rep, err := sim.Run(ctx, backtest.Request{
		RunID:   p.RunID,
		Session: seed.Session(start, loc),
		Candles: candles,
	})
	if err != nil {
		return BacktestResult{}, err
	}
	path, err := backtest.WriteHTML(cfg.Backtest.ReportDir, rep, cfg.Backtest.ChartTitle)
	if err != nil {
		return BacktestResult{Report: rep}, fmt.Errorf("write chart: %w", err)
	}
	logger.Infof("✓ 回测报告: %s", path)
	return BacktestResult{Report: rep, ChartPath: path}, nil
}

func (b *BacktestService) findSeed(id string) (config.SessionSeed, error) {
	if len(b.cfg.Sessions) == 0 {
		return config.SessionSeed{}, fmt.Errorf("no sessions configured")
	}
	if strings.TrimSpace(id) == "" {
		return b.cfg.Sessions[0], nil
	}
	for _, s := range b.cfg.Sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return config.SessionSeed{}, fmt.Errorf("session %q not configured", id)
}

func (b *BacktestService) loadSeries(ctx context.Context, seed config.SessionSeed, p BacktestParams, loc *time.Location) ([]market.Candle, error) {
	tf := b.cfg.Engine.Timeframe
	if strings.TrimSpace(p.CSV) == "" {
		return loadCandles(ctx, b.candles, seed.Instrument, tf, p.From, p.To, loc)
	}
	interval, _ := scheduler.ParseIntervalDuration(tf)
	f, err := os.Open(p.CSV)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	all, err := candlestore.ParseCSV(f, interval)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		day := scheduler.TradingDay(c.OpenAt(), loc)
		if (p.From != "" && day < p.From) || (p.To != "" && day > p.To) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Close 释放回测相关资源。
func (b *BacktestService) Close() {
	if b == nil {
		return
	}
	if b.candles != nil {
		_ = b.candles.Close()
	}
	if b.results != nil {
		_ = b.results.Close()
	}
}

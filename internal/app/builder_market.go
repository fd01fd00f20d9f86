package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"intraday/internal/config"
	"intraday/internal/logger"
	"intraday/internal/market"
	"intraday/internal/market/binance"
	"intraday/internal/market/candlestore"
	"intraday/internal/scheduler"
	"intraday/internal/types"
)

// buildMarketProvider 构造实盘行情源，每次调用都受 engine.market_timeout_seconds 限制。
func buildMarketProvider(_ context.Context, cfg *config.Config) (market.Provider, error) {
	src := binance.New(cfg.Market.Binance)
	timeout := cfg.Engine.MarketTimeout()
	logger.Infof("✓ 行情源: binance futures timeout=%s", timeout)
	return market.NewTimeoutProvider(src, timeout), nil
}

// ImportCSV 把 CSV K 线写入 candle_dir 下的 SQLite 文件，返回写入条数。
func (b *BacktestService) ImportCSV(ctx context.Context, path, symbol, timeframe string) (int, error) {
	interval, ok := scheduler.ParseIntervalDuration(timeframe)
	if !ok {
		return 0, fmt.Errorf("invalid timeframe %q", timeframe)
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	candles, err := candlestore.ParseCSV(f, interval)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	n, err := b.candles.InsertCandles(ctx, strings.ToUpper(symbol), timeframe, candles)
	if err != nil {
		return 0, err
	}
	logger.Infof("✓ 导入 %d 根 %s@%s K线 -> %s", n, symbol, timeframe, b.cfg.Store.CandleDir)
	return n, nil
}

// loadCandles 读取 [from, to] 交易日内的 K 线；日期按引擎时区解释，空值表示不设边界。
func loadCandles(ctx context.Context, cs *candlestore.Store, symbol, timeframe, from, to string, loc *time.Location) ([]market.Candle, error) {
	var start, end int64
	if from != "" {
		t, err := time.ParseInLocation(types.TradingDayLayout, from, loc)
		if err != nil {
			return nil, fmt.Errorf("from %q: %w", from, err)
		}
		start = t.UnixMilli()
	}
	if to != "" {
		t, err := time.ParseInLocation(types.TradingDayLayout, to, loc)
		if err != nil {
			return nil, fmt.Errorf("to %q: %w", to, err)
		}
		end = t.AddDate(0, 0, 1).UnixMilli() - 1
	}
	return cs.RangeCandles(ctx, strings.ToUpper(symbol), timeframe, start, end)
}

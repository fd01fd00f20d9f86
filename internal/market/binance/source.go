package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"intraday/internal/logger"
	"intraday/internal/market"
	"intraday/internal/pkg/symbol"
	"intraday/internal/scheduler"
)

const maxHistoryLimit = 1500

type Config struct {
	RESTBaseURL       string        `toml:"rest_base_url"`
	HTTPTimeout       time.Duration `toml:"http_timeout"`
	RequestsPerMinute int           `toml:"requests_per_minute"`
}

func (c Config) withDefaults() Config {
	out := c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://fapi.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 10 * time.Second
	}
	if out.RequestsPerMinute <= 0 {
		out.RequestsPerMinute = 600
	}
	return out
}

// Source 基于 go-binance USDT 合约 REST 实现 market.Provider，请求经令牌桶限速。
type Source struct {
	cfg     Config
	client  *futures.Client
	limiter *rate.Limiter
	nowFn   func() time.Time
}

func New(cfg Config) *Source {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	perSec := rate.Limit(float64(final.RequestsPerMinute) / 60.0)
	burst := final.RequestsPerMinute / 60
	if burst < 1 {
		burst = 1
	}
	return &Source{
		cfg:     final,
		client:  client,
		limiter: rate.NewLimiter(perSec, burst),
		nowFn:   time.Now,
	}
}

func (s *Source) RecentCandles(ctx context.Context, instrument, timeframe string, n int) ([]market.Candle, error) {
	if n <= 0 {
		n = 100
	}
	// 多取一根，丢弃未收盘的那根后仍有 n 根。
	limit := n + 1
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	sym := symbol.Binance(instrument)
	if sym == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval := strings.ToLower(strings.TrimSpace(timeframe))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	kls, err := s.client.NewKlinesService().Symbol(sym).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	if dur, ok := scheduler.ParseIntervalDuration(interval); ok {
		out = market.DropUnclosed(out, dur, s.nowFn(), market.DefaultKlineGrace)
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	logger.Debugf("binance: %s@%s fetched %d candles", sym, interval, len(out))
	return out, nil
}

func (s *Source) LastPrice(ctx context.Context, instrument string) (float64, error) {
	sym := symbol.Binance(instrument)
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	prices, err := s.client.NewListPricesService().Symbol(sym).Do(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range prices {
		if p != nil && strings.EqualFold(p.Symbol, sym) {
			return parseFloat(p.Price), nil
		}
	}
	return 0, fmt.Errorf("no price for %s", sym)
}

// Quote 对合约而言即为最新成交价，交易所参数被忽略。
func (s *Source) Quote(ctx context.Context, sym, _ string) (float64, error) {
	return s.LastPrice(ctx, sym)
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}

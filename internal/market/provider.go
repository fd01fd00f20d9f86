package market

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDataUnavailable 表示行情拉取失败或超时；调用方跳过本轮决策。
var ErrDataUnavailable = errors.New("market data unavailable")

// Provider 是行情来源。
type Provider interface {
	RecentCandles(ctx context.Context, instrument, timeframe string, n int) ([]Candle, error)
	LastPrice(ctx context.Context, instrument string) (float64, error)
	// Quote 返回衍生品（如期权）的权利金，用于非标的价格的进出场。
	Quote(ctx context.Context, symbol, exchange string) (float64, error)
}

// TimeoutProvider 为每次调用加超时，并将任何失败统一包装为 ErrDataUnavailable。
type TimeoutProvider struct {
	inner   Provider
	timeout time.Duration
}

func NewTimeoutProvider(inner Provider, timeout time.Duration) *TimeoutProvider {
	return &TimeoutProvider{inner: inner, timeout: timeout}
}

func (p *TimeoutProvider) RecentCandles(ctx context.Context, instrument, timeframe string, n int) ([]Candle, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	out, err := p.inner.RecentCandles(ctx, instrument, timeframe, n)
	if err != nil {
		return nil, wrapUnavailable("candles "+instrument, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no candles for %s@%s", ErrDataUnavailable, instrument, timeframe)
	}
	return out, nil
}

func (p *TimeoutProvider) LastPrice(ctx context.Context, instrument string) (float64, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	px, err := p.inner.LastPrice(ctx, instrument)
	if err != nil {
		return 0, wrapUnavailable("last price "+instrument, err)
	}
	if px <= 0 {
		return 0, fmt.Errorf("%w: non-positive price for %s", ErrDataUnavailable, instrument)
	}
	return px, nil
}

func (p *TimeoutProvider) Quote(ctx context.Context, symbol, exchange string) (float64, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	px, err := p.inner.Quote(ctx, symbol, exchange)
	if err != nil {
		return 0, wrapUnavailable("quote "+symbol, err)
	}
	if px <= 0 {
		return 0, fmt.Errorf("%w: non-positive quote for %s", ErrDataUnavailable, symbol)
	}
	return px, nil
}

func (p *TimeoutProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func wrapUnavailable(what string, err error) error {
	if errors.Is(err, ErrDataUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrDataUnavailable, what, err)
}

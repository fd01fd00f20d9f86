package market

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ReplayProvider 按游标回放历史 K 线，游标之后的数据对调用方不可见。
type ReplayProvider struct {
	mu         sync.RWMutex
	instrument string
	series     Candles
	cursor     int
	quotes     map[string]Candles
}

func NewReplayProvider(instrument string, series []Candle) *ReplayProvider {
	return &ReplayProvider{
		instrument: strings.ToUpper(strings.TrimSpace(instrument)),
		series:     append(Candles(nil), series...),
		cursor:     -1,
		quotes:     make(map[string]Candles),
	}
}

// AddQuoteSeries 注册衍生品合约的权利金序列，按 close_time 与主序列对齐。
func (p *ReplayProvider) AddQuoteSeries(symbol string, series []Candle) {
	cp := append(Candles(nil), series...)
	sort.Slice(cp, func(i, j int) bool { return cp[i].OpenTime < cp[j].OpenTime })
	p.mu.Lock()
	p.quotes[strings.ToUpper(strings.TrimSpace(symbol))] = cp
	p.mu.Unlock()
}

// Seek 将游标移到第 i 根 K 线（含）。
func (p *ReplayProvider) Seek(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i >= len(p.series) {
		i = len(p.series) - 1
	}
	p.cursor = i
}

func (p *ReplayProvider) Current() (Candle, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cursor < 0 || p.cursor >= len(p.series) {
		return Candle{}, false
	}
	return p.series[p.cursor], true
}

func (p *ReplayProvider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.series)
}

func (p *ReplayProvider) RecentCandles(_ context.Context, instrument, timeframe string, n int) ([]Candle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.matches(instrument) {
		return nil, fmt.Errorf("%w: replay has no series for %s", ErrDataUnavailable, instrument)
	}
	if p.cursor < 0 {
		return nil, fmt.Errorf("%w: replay not started", ErrDataUnavailable)
	}
	end := p.cursor + 1
	start := 0
	if n > 0 && end-n > start {
		start = end - n
	}
	return append([]Candle(nil), p.series[start:end]...), nil
}

func (p *ReplayProvider) LastPrice(_ context.Context, instrument string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.matches(instrument) || p.cursor < 0 {
		return 0, fmt.Errorf("%w: no replay price for %s", ErrDataUnavailable, instrument)
	}
	return p.series[p.cursor].Close, nil
}

func (p *ReplayProvider) Quote(_ context.Context, symbol, _ string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cursor < 0 {
		return 0, fmt.Errorf("%w: replay not started", ErrDataUnavailable)
	}
	if p.matches(symbol) {
		return p.series[p.cursor].Close, nil
	}
	qs, ok := p.quotes[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return 0, fmt.Errorf("%w: no quote series for %s", ErrDataUnavailable, symbol)
	}
	at := p.series[p.cursor].CloseTime
	idx := sort.Search(len(qs), func(i int) bool { return qs[i].CloseTime > at })
	if idx == 0 {
		return 0, fmt.Errorf("%w: no quote for %s at %d", ErrDataUnavailable, symbol, at)
	}
	return qs[idx-1].Close, nil
}

func (p *ReplayProvider) matches(instrument string) bool {
	return strings.EqualFold(strings.TrimSpace(instrument), p.instrument)
}

package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"intraday/internal/advisor"
	"intraday/internal/engine"
	"intraday/internal/execution"
	"intraday/internal/logger"
	"intraday/internal/market"
	"intraday/internal/risk"
	"intraday/internal/scheduler"
	"intraday/internal/store"
	"intraday/internal/store/memstore"
	"intraday/internal/strategy"
	"intraday/internal/throttle"
	"intraday/internal/types"
)

var ErrNoData = errors.New("backtest: no candles in range")

type Options struct {
	Location         *time.Location
	Timeframe        string
	Candles          int
	AdvisoryInterval time.Duration
	MinConfidence    float64
	Risk             risk.Config
	Throttle         throttle.Config
	Registry         *strategy.Registry
	// Advisor 仅应注入确定性实现，保证同样输入得到同样报告。
	Advisor advisor.Advisor
	// Results 为空时不落盘。
	Results store.BacktestStore
	// Progress 为空时不显示进度条。
	Progress io.Writer
}

type Request struct {
	RunID   string
	Session types.Session
	Candles []market.Candle
	// Quotes 为衍生品合约的权利金序列，按合约代码索引。
	Quotes map[string][]market.Candle
}

// Simulator 用实盘同一套 Engine.Tick 回放历史 K 线，每个交易日以初始资金重新开始。
type Simulator struct {
	opts Options
}

func NewSimulator(opts Options) (*Simulator, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("backtest: strategy registry is required")
	}
	if err := opts.Throttle.Validate(); err != nil {
		return nil, err
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Simulator{opts: opts}, nil
}

type tradingDay struct {
	day   string
	first int
	last  int
}

// Run 按交易日推进回放。同一 RunID 与输入得到逐字节相同的报告。
func (s *Simulator) Run(ctx context.Context, req Request) (Report, error) {
	candles := append([]market.Candle(nil), req.Candles...)
	if len(candles) == 0 {
		return Report{}, ErrNoData
	}
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].OpenTime < candles[j].OpenTime })
	runID := strings.TrimSpace(req.RunID)
	if runID == "" {
		runID = DefaultRunID(req.Session.ID, candles[0].OpenAt(), candles[len(candles)-1].CloseAt())
	}

	seed := req.Session
	seed.Mode = types.ModeBacktest
	seed.Status = types.StatusActive
	seed.StopReason = ""
	if err := seed.Validate(); err != nil {
		return Report{}, err
	}

	replay := market.NewReplayProvider(seed.Instrument, candles)
	for sym, series := range req.Quotes {
		replay.AddQuoteSeries(sym, series)
	}
	mem := memstore.New()
	eng, err := engine.New(engine.Options{
		Location:         s.opts.Location,
		Timeframe:        s.opts.Timeframe,
		Candles:          s.opts.Candles,
		AdvisoryInterval: s.opts.AdvisoryInterval,
		MinConfidence:    s.opts.MinConfidence,
		Risk:             s.opts.Risk,
	}, engine.Deps{
		Store:    mem,
		Market:   replay,
		Registry: s.opts.Registry,
		Advisor:  s.opts.Advisor,
		Routers:  execution.ByMode{types.ModeBacktest: execution.NewBacktestRouter()},
		Throttle: engine.StaticThrottle(s.opts.Throttle),
		IDs:      execution.NewSequentialIDs(runID),
	})
	if err != nil {
		return Report{}, err
	}

	days := groupByDay(candles, s.opts.Location)
	clock := scheduler.NewManualClock(candles[0].CloseAt())
	bar := s.progress(runID, len(candles))

	rep := Report{
		RunID:          runID,
		SessionID:      seed.ID,
		Instrument:     seed.Instrument,
		StrategyID:     seed.CurrentStrategyID,
		From:           candles[0].OpenAt().In(s.opts.Location),
		To:             candles[len(candles)-1].CloseAt().In(s.opts.Location),
		InitialCapital: seed.Capital,
	}
	logger.Infof("Backtest %s: session=%s instrument=%s days=%d candles=%d", runID, seed.ID, seed.Instrument, len(days), len(candles))

	for _, d := range days {
		if err := mem.Save(ctx, daySession(seed, d.day)); err != nil {
			return Report{}, err
		}
		for i := d.first; i <= d.last; i++ {
			if err := ctx.Err(); err != nil {
				return Report{}, err
			}
			replay.Seek(i)
			clock.Set(candles[i].CloseAt())
			if _, err := eng.Tick(ctx, clock.Now()); err != nil {
				return Report{}, fmt.Errorf("tick %s: %w", clock.Now().Format(time.RFC3339), err)
			}
			if bar != nil {
				_ = bar.Add(1)
			}
		}
		last := candles[d.last]
		// 持仓按自身合约报价平仓，last.Close 只在报价缺失时兜底。
		if _, err := eng.ForceClose(ctx, seed.ID, last.Close, last.CloseAt()); err != nil && !errors.Is(err, engine.ErrNoOpenTrade) {
			return Report{}, fmt.Errorf("day %s: force close: %w", d.day, err)
		}
		end, err := mem.Get(ctx, seed.ID)
		if err != nil {
			return Report{}, err
		}
		rep.addDay(d.day, seed.Capital, end)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	trades, err := mem.ListTrades(ctx, seed.ID)
	if err != nil {
		return Report{}, err
	}
	rep.finish(trades, s.opts.Location)
	logger.Infof("Backtest %s: pnl=%.2f trades=%d win_rate=%.2f%% max_dd=%.2f (%.2f%%)",
		runID, rep.TotalPnL, rep.TotalTrades, rep.WinRate*100, rep.MaxDrawdown, rep.MaxDrawdownPct*100)

	if s.opts.Results != nil {
		if err := s.persist(ctx, rep); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// daySession 以初始资金与清零的计数器重建当日会话。
func daySession(seed types.Session, day string) types.Session {
	sess := *seed.Clone()
	sess.Status = types.StatusActive
	sess.StopReason = ""
	sess.DailyPnL = 0
	sess.TradesToday = 0
	sess.HourlyTradeCount = 0
	sess.MaxTradesThisHour = 0
	sess.FrequencyMode = types.FrequencyNormal
	sess.CurrentHourBlock = time.Time{}
	sess.CurrentTrade = nil
	sess.LastAdvisoryAt = time.Time{}
	sess.TradingDay = day
	return sess
}

func groupByDay(candles []market.Candle, loc *time.Location) []tradingDay {
	var out []tradingDay
	for i, c := range candles {
		day := scheduler.TradingDay(c.OpenAt(), loc)
		if n := len(out); n > 0 && out[n-1].day == day {
			out[n-1].last = i
			continue
		}
		out = append(out, tradingDay{day: day, first: i, last: i})
	}
	return out
}

func (s *Simulator) progress(runID string, total int) *progressbar.ProgressBar {
	if s.opts.Progress == nil {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(s.opts.Progress),
		progressbar.OptionSetDescription("backtest "+runID),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
}

func (s *Simulator) persist(ctx context.Context, rep Report) error {
	raw, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode backtest report: %w", err)
	}
	run := store.BacktestRun{
		ID:             rep.RunID,
		SessionID:      rep.SessionID,
		Instrument:     rep.Instrument,
		From:           rep.From,
		To:             rep.To,
		Days:           len(rep.Days),
		InitialCapital: rep.InitialCapital,
		TotalPnL:       rep.TotalPnL,
		Trades:         rep.TotalTrades,
		WinRate:        rep.WinRate,
		MaxDrawdown:    rep.MaxDrawdown,
		Report:         raw,
		CreatedAt:      time.Now(),
	}
	if err := s.opts.Results.SaveBacktestRun(ctx, run); err != nil {
		return fmt.Errorf("save backtest run %s: %w", rep.RunID, err)
	}
	return nil
}

// DefaultRunID 由会话与区间派生，重复运行同一区间得到同一 ID。
func DefaultRunID(sessionID string, from, to time.Time) string {
	return fmt.Sprintf("%s-%s-%s", sessionID, from.UTC().Format("20060102T1504"), to.UTC().Format("20060102T1504"))
}

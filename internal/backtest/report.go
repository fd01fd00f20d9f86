package backtest

import (
	"time"

	"github.com/shopspring/decimal"

	"intraday/internal/scheduler"
	"intraday/internal/types"
)

// DayResult 是单个交易日的结果，StartCapital 恒为初始资金。
type DayResult struct {
	Day           string           `json:"day"`
	StartCapital  float64          `json:"start_capital"`
	PnL           float64          `json:"pnl"`
	CumulativePnL float64          `json:"cumulative_pnl"`
	Trades        int              `json:"trades"`
	Wins          int              `json:"wins"`
	StopReason    types.StopReason `json:"stop_reason,omitempty"`
}

type Report struct {
	RunID          string        `json:"run_id"`
	SessionID      string        `json:"session_id"`
	Instrument     string        `json:"instrument"`
	StrategyID     string        `json:"strategy_id"`
	From           time.Time     `json:"from"`
	To             time.Time     `json:"to"`
	InitialCapital float64       `json:"initial_capital"`
	Days           []DayResult   `json:"days"`
	Trades         []types.Trade `json:"trades"`
	TotalPnL       float64       `json:"total_pnl"`
	TotalTrades    int           `json:"total_trades"`
	Wins           int           `json:"wins"`
	WinRate        float64       `json:"win_rate"`
	// MaxDrawdown 为累计盈亏曲线的最大回撤金额，MaxDrawdownPct 相对峰值权益。
	MaxDrawdown    float64 `json:"max_drawdown"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
}

func (r *Report) addDay(day string, capital float64, end types.Session) {
	cum := decimal.NewFromFloat(end.DailyPnL)
	if n := len(r.Days); n > 0 {
		cum = cum.Add(decimal.NewFromFloat(r.Days[n-1].CumulativePnL))
	}
	r.Days = append(r.Days, DayResult{
		Day:           day,
		StartCapital:  capital,
		PnL:           end.DailyPnL,
		CumulativePnL: cum.Round(8).InexactFloat64(),
		StopReason:    end.StopReason,
	})
}

// finish 汇总成交并计算胜率与最大回撤；累计盈亏只用于报告，不影响次日资金。
func (r *Report) finish(trades []types.Trade, loc *time.Location) {
	index := make(map[string]int, len(r.Days))
	for i, d := range r.Days {
		index[d.Day] = i
	}
	r.Trades = make([]types.Trade, 0, len(trades))
	total := decimal.Zero
	for _, t := range trades {
		if t.Status != types.TradeClosed {
			continue
		}
		r.Trades = append(r.Trades, t)
		total = total.Add(decimal.NewFromFloat(t.PnL))
		r.TotalTrades++
		win := t.PnL > 0
		if win {
			r.Wins++
		}
		if i, ok := index[scheduler.TradingDay(t.EntryTime, loc)]; ok {
			r.Days[i].Trades++
			if win {
				r.Days[i].Wins++
			}
		}
	}
	r.TotalPnL = total.Round(8).InexactFloat64()
	if r.TotalTrades > 0 {
		r.WinRate = float64(r.Wins) / float64(r.TotalTrades)
	}
	r.MaxDrawdown, r.MaxDrawdownPct = maxDrawdown(r.InitialCapital, r.Days)
}

// maxDrawdown 以初始资金为起点计算权益曲线的峰谷回撤。
func maxDrawdown(initial float64, days []DayResult) (amount, pct float64) {
	peak := initial
	for _, d := range days {
		equity := initial + d.CumulativePnL
		if equity > peak {
			peak = equity
			continue
		}
		if dd := peak - equity; dd > amount {
			amount = dd
			if peak > 0 {
				pct = dd / peak
			}
		}
	}
	return amount, pct
}

// Equity 返回每日收盘后的权益，用于图表。
func (r Report) Equity() []float64 {
	out := make([]float64, len(r.Days))
	for i, d := range r.Days {
		out[i] = r.InitialCapital + d.CumulativePnL
	}
	return out
}

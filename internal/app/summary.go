package app

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"intraday/internal/throttle"
	"intraday/internal/types"
)

// StartupSummary 在启动时打印会话、策略与频率配置概要。
type StartupSummary struct {
	Engine     EngineSummary
	Sessions   []types.Session
	Strategies []string
	Frequency  throttle.Config
	Advisor    string
	Brokers    []string
	HTTPAddr   string
}

type EngineSummary struct {
	Timezone  string
	Interval  string
	Timeframe string
	Candles   int
}

func (s *StartupSummary) Print() {
	s.Fprint(os.Stdout)
}

func (s *StartupSummary) Fprint(w io.Writer) {
	title := "启动配置摘要 (STARTUP SUMMARY)"
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[引擎 (ENGINE)]")
	fmt.Fprintf(w, "  时区: %s\n", s.Engine.Timezone)
	fmt.Fprintf(w, "  调度周期: %s\n", s.Engine.Interval)
	fmt.Fprintf(w, "  K线周期: %s x %d\n", s.Engine.Timeframe, s.Engine.Candles)
	fmt.Fprintf(w, "  策略: %s\n", formatList(s.Strategies))
	fmt.Fprintf(w, "  顾问: %s\n", orDash(s.Advisor))
	fmt.Fprintf(w, "  券商: %s\n", formatList(s.Brokers))
	fmt.Fprintf(w, "  HTTP: %s\n", orDash(s.HTTPAddr))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[频率控制 (FREQUENCY)]")
	fmt.Fprintf(w, "  每小时上限: %d\n", s.Frequency.MaxHourlyCap)
	fmt.Fprintf(w, "  回撤阈值: reduce@%.2f%% hard@%.2f%% 降频比例=%.2f\n",
		s.Frequency.DrawdownTriggerPct*100, s.Frequency.HardDrawdownTriggerPct*100, s.Frequency.DrawdownReducePct)
	for _, slab := range s.Frequency.Slabs {
		upper := "∞"
		if slab.MaxCapital > 0 {
			upper = fmt.Sprintf("%.0f", slab.MaxCapital)
		}
		fmt.Fprintf(w, "  - [%.0f, %s): %d/h\n", slab.MinCapital, upper, slab.MaxTradesPerHour)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[会话 (SESSIONS)]")
	if len(s.Sessions) == 0 {
		fmt.Fprintln(w, "  (无配置)")
	} else {
		sessions := append([]types.Session(nil), s.Sessions...)
		sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
		for _, sess := range sessions {
			fmt.Fprintf(w, "  > %s %s@%s mode=%s kind=%s status=%s\n",
				sess.ID, sess.Instrument, orDash(sess.Exchange), sess.Mode, sess.InstrumentKind, sess.Status)
			fmt.Fprintf(w, "    资金=%.2f 当日盈亏=%.2f 交易=%d/%d 止损线=%.2f 收盘=%s 策略=%s\n",
				sess.Capital, sess.DailyPnL, sess.TradesToday, sess.MaxTradesAllowed,
				sess.DailyLossLimit, sess.CutoffTime, sess.CurrentStrategyID)
			if sess.StopReason != "" {
				fmt.Fprintf(w, "    停止原因: %s\n", sess.StopReason)
			}
		}
	}
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

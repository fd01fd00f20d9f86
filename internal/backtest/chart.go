package backtest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const (
	colorProfit = "#26a69a"
	colorLoss   = "#ef5350"
	colorEquity = "#42a5f5"
)

// RenderHTML 输出权益曲线与每日盈亏柱状图。
func RenderHTML(w io.Writer, rep Report, title string) error {
	if title == "" {
		title = "Backtest " + rep.RunID
	}
	days := make([]string, len(rep.Days))
	equity := make([]opts.LineData, len(rep.Days))
	daily := make([]opts.BarData, len(rep.Days))
	for i, d := range rep.Days {
		days[i] = d.Day
		equity[i] = opts.LineData{Value: rep.InitialCapital + d.CumulativePnL}
		color := colorProfit
		if d.PnL < 0 {
			color = colorLoss
		}
		daily[i] = opts.BarData{Value: d.PnL, ItemStyle: &opts.ItemStyle{Color: color}}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1200px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title: title,
			Subtitle: fmt.Sprintf("%s %s | pnl %.2f | trades %d | win %.1f%% | max dd %.2f (%.2f%%)",
				rep.Instrument, rep.StrategyID, rep.TotalPnL, rep.TotalTrades, rep.WinRate*100, rep.MaxDrawdown, rep.MaxDrawdownPct*100),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	line.SetXAxis(days).AddSeries("Equity", equity,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity}))

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: "Daily PnL"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	bar.SetXAxis(days).AddSeries("PnL", daily)

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(line, bar)
	return page.Render(w)
}

// WriteHTML 将报告写到 dir/<run_id>.html 并返回路径。
func WriteHTML(dir string, rep Report, title string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, rep.RunID+".html")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := RenderHTML(f, rep, title); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

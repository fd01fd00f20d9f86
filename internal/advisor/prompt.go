package advisor

import (
	"fmt"
	"strings"
	"time"
)

const systemPrompt = `You select which intraday trading strategy should govern the NEXT entry for one instrument.
Only choose from the listed strategy ids. Prefer keeping the current strategy unless the market regime clearly changed.
Reply with a single JSON object and nothing else:
{"recommended_strategy_id": "<id or none>", "confidence": <0..1>, "reasoning": "<one or two sentences>"}`

func buildUserPrompt(in Context, currentStrategyID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "time: %s\n", in.Now.Format(time.RFC3339))
	fmt.Fprintf(&b, "instrument: %s", in.Instrument)
	if in.Exchange != "" {
		fmt.Fprintf(&b, " (%s)", in.Exchange)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "mode: %s\n", in.Mode)
	fmt.Fprintf(&b, "capital: %.2f, realized pnl today: %.2f, trades today: %d, frequency mode: %s\n",
		in.Capital, in.DailyPnL, in.TradesToday, in.FrequencyMode)
	fmt.Fprintf(&b, "current strategy: %s\n", currentStrategyID)
	fmt.Fprintf(&b, "available strategies: %s\n", strings.Join(in.Available, ", "))
	if s := strings.TrimSpace(in.MarketSummary); s != "" {
		fmt.Fprintf(&b, "market: %s\n", s)
	}
	return b.String()
}

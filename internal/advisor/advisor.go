package advisor

import (
	"context"
	"errors"
	"time"

	"intraday/internal/types"
)

// ErrUnavailable 表示顾问超时、熔断或返回无法解析的结果；调用方保持当前策略。
var ErrUnavailable = errors.New("advisor unavailable")

// Context 是提供给顾问的会话摘要。
type Context struct {
	SessionID     string              `json:"session_id"`
	Instrument    string              `json:"instrument"`
	Exchange      string              `json:"exchange"`
	Mode          types.Mode          `json:"mode"`
	Now           time.Time           `json:"now"`
	Capital       float64             `json:"capital"`
	DailyPnL      float64             `json:"daily_pnl"`
	TradesToday   int                 `json:"trades_today"`
	FrequencyMode types.FrequencyMode `json:"frequency_mode"`
	Available     []string            `json:"available_strategies"`
	MarketSummary string              `json:"market_summary"`
}

// Recommendation 为空指针时表示不建议切换。
type Recommendation struct {
	StrategyID string  `json:"recommended_strategy_id"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

type Advisor interface {
	Recommend(ctx context.Context, in Context, currentStrategyID string) (*Recommendation, error)
}

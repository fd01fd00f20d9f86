package engine

import (
	"time"

	"intraday/internal/types"
)

type Action string

const (
	ActionIdle        Action = "idle"
	ActionEntered     Action = "entered"
	ActionExited      Action = "exited"
	ActionHeld        Action = "held"
	ActionStopped     Action = "stopped"
	ActionThrottled   Action = "throttled"
	ActionRejected    Action = "rejected"
	ActionSkipped     Action = "skipped"
	ActionFailed      Action = "failed"
	ActionQuarantined Action = "quarantined"
)

// Outcome 是单个会话在一次 tick 中的结果。
type Outcome struct {
	SessionID         string              `json:"session_id"`
	Status            types.SessionStatus `json:"status"`
	Action            Action              `json:"action"`
	TradeID           string              `json:"trade_id,omitempty"`
	StrategyID        string              `json:"strategy_id,omitempty"`
	Reason            string              `json:"reason,omitempty"`
	FrequencyMode     types.FrequencyMode `json:"frequency_mode,omitempty"`
	HourlyTradeCount  int                 `json:"hourly_trade_count"`
	MaxTradesThisHour int                 `json:"max_trades_this_hour"`
	Err               string              `json:"error,omitempty"`
}

type TickReport struct {
	At       time.Time `json:"at"`
	Sessions []Outcome `json:"sessions"`
}

// Count 统计指定动作的会话数。
func (r TickReport) Count(action Action) int {
	n := 0
	for _, o := range r.Sessions {
		if o.Action == action {
			n++
		}
	}
	return n
}

func (r TickReport) Find(sessionID string) (Outcome, bool) {
	for _, o := range r.Sessions {
		if o.SessionID == sessionID {
			return o, true
		}
	}
	return Outcome{}, false
}

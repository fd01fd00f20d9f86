package types

import "time"

type IntentKind string

const (
	IntentOpen  IntentKind = "OPEN"
	IntentClose IntentKind = "CLOSE"
)

type IntentStatus string

const (
	IntentPending   IntentStatus = "PENDING"
	IntentDone      IntentStatus = "DONE"
	IntentFailed    IntentStatus = "FAILED"
	IntentAbandoned IntentStatus = "ABANDONED"
)

// TradeIntent 在调用执行路由前落盘，崩溃后据此对账。
type TradeIntent struct {
	ID         string       `json:"intent_id"`
	SessionID  string       `json:"session_id"`
	Kind       IntentKind   `json:"kind"`
	TradeID    string       `json:"trade_id"`
	StrategyID string       `json:"strategy_id"`
	Symbol     string       `json:"symbol"`
	Exchange   string       `json:"exchange"`
	Direction  Direction    `json:"direction"`
	Price      float64      `json:"price"`
	StopLoss   float64      `json:"stop_loss"`
	Target     float64      `json:"target"`
	Quantity   float64      `json:"quantity"`
	Lots       int          `json:"lots"`
	ExitReason ExitReason   `json:"exit_reason,omitempty"`
	Status     IntentStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// ErrorRecord 记录隔离与执行失败等需要对外展示的异常。
type ErrorRecord struct {
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// Error kinds used in ErrorRecord.Kind.
const (
	ErrKindDataUnavailable    = "DATA_UNAVAILABLE"
	ErrKindAdvisorUnavailable = "ADVISOR_UNAVAILABLE"
	ErrKindExecutionFailure   = "EXECUTION_FAILURE"
	ErrKindInvalidSession     = "INVALID_SESSION_STATE"
	ErrKindConfiguration      = "CONFIGURATION_ERROR"
)

package store

import (
	"context"
	"errors"
	"time"

	"intraday/internal/types"
)

var ErrNotFound = errors.New("not found")

// SessionStore 持久化会话状态；Load 按 ID 升序返回全部会话。
type SessionStore interface {
	Load(ctx context.Context) ([]types.Session, error)
	Get(ctx context.Context, id string) (types.Session, error)
	Save(ctx context.Context, sess types.Session) error
	// List 按状态过滤，status 为空返回全部。
	List(ctx context.Context, status types.SessionStatus) ([]types.Session, error)
}

type TradeStore interface {
	SaveTrade(ctx context.Context, trade types.Trade) error
	GetTrade(ctx context.Context, id string) (types.Trade, error)
	ListTrades(ctx context.Context, sessionID string) ([]types.Trade, error)
}

type IntentStore interface {
	SaveIntent(ctx context.Context, intent types.TradeIntent) error
	PendingIntents(ctx context.Context) ([]types.TradeIntent, error)
}

type ErrorStore interface {
	RecordError(ctx context.Context, rec types.ErrorRecord) error
	ListErrors(ctx context.Context, sessionID string, limit int) ([]types.ErrorRecord, error)
}

// BacktestRun 是一次回测的汇总，Report 为完整报告的 JSON。
type BacktestRun struct {
	ID             string    `json:"run_id"`
	SessionID      string    `json:"session_id"`
	Instrument     string    `json:"instrument"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	Days           int       `json:"days"`
	InitialCapital float64   `json:"initial_capital"`
	TotalPnL       float64   `json:"total_pnl"`
	Trades         int       `json:"trades"`
	WinRate        float64   `json:"win_rate"`
	MaxDrawdown    float64   `json:"max_drawdown"`
	Report         []byte    `json:"report,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type BacktestStore interface {
	SaveBacktestRun(ctx context.Context, run BacktestRun) error
	ListBacktestRuns(ctx context.Context, limit int) ([]BacktestRun, error)
}

// Store 聚合全部仓储；Tx 内的写入要么全部生效要么全部回滚。
type Store interface {
	SessionStore
	TradeStore
	IntentStore
	ErrorStore
	BacktestStore
	Tx(ctx context.Context, fn func(tx Store) error) error
	Close() error
}

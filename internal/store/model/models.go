package model

import "gorm.io/datatypes"

// 时间字段统一存 Unix 毫秒，0 表示未设置。

type SessionModel struct {
	ID                string         `gorm:"column:id;primaryKey"`
	Instrument        string         `gorm:"column:instrument"`
	Exchange          string         `gorm:"column:exchange"`
	Mode              string         `gorm:"column:mode;index"`
	InstrumentKind    string         `gorm:"column:instrument_kind"`
	LotSize           int            `gorm:"column:lot_size"`
	Status            string         `gorm:"column:status;index"`
	StopReason        string         `gorm:"column:stop_reason"`
	Capital           float64        `gorm:"column:capital"`
	DailyPnL          float64        `gorm:"column:daily_pnl"`
	MaxTradesAllowed  int            `gorm:"column:max_trades_allowed"`
	DailyLossLimit    float64        `gorm:"column:daily_loss_limit"`
	CutoffTime        string         `gorm:"column:cutoff_time"`
	TradesToday       int            `gorm:"column:trades_today"`
	TradingDay        string         `gorm:"column:trading_day"`
	CurrentStrategyID string         `gorm:"column:current_strategy_id"`
	CurrentTrade      datatypes.JSON `gorm:"column:current_trade;type:TEXT"`
	LastAdvisoryAt    int64          `gorm:"column:last_advisory_at"`
	CurrentHourBlock  int64          `gorm:"column:current_hour_block"`
	HourlyTradeCount  int            `gorm:"column:hourly_trade_count"`
	MaxTradesThisHour int            `gorm:"column:max_trades_this_hour"`
	FrequencyMode     string         `gorm:"column:frequency_mode"`
	CreatedAtUnix     int64          `gorm:"column:created_at"`
	UpdatedAtUnix     int64          `gorm:"column:updated_at"`
}

func (SessionModel) TableName() string { return "sessions" }

type TradeModel struct {
	ID            string  `gorm:"column:id;primaryKey"`
	SessionID     string  `gorm:"column:session_id;index"`
	StrategyID    string  `gorm:"column:strategy_id"`
	Symbol        string  `gorm:"column:symbol"`
	Exchange      string  `gorm:"column:exchange"`
	Direction     string  `gorm:"column:direction"`
	Mode          string  `gorm:"column:mode"`
	EntryPrice    float64 `gorm:"column:entry_price"`
	StopLoss      float64 `gorm:"column:stop_loss"`
	Target        float64 `gorm:"column:target"`
	Quantity      float64 `gorm:"column:quantity"`
	Lots          int     `gorm:"column:lots"`
	EntryTime     int64   `gorm:"column:entry_time;index"`
	ExitTime      int64   `gorm:"column:exit_time"`
	ExitPrice     float64 `gorm:"column:exit_price"`
	ExitReason    string  `gorm:"column:exit_reason"`
	PnL           float64 `gorm:"column:pnl"`
	Status        string  `gorm:"column:status"`
	BrokerOrderID string  `gorm:"column:broker_order_id"`
}

func (TradeModel) TableName() string { return "trades" }

type IntentModel struct {
	ID            string  `gorm:"column:id;primaryKey"`
	SessionID     string  `gorm:"column:session_id;index"`
	Kind          string  `gorm:"column:kind"`
	TradeID       string  `gorm:"column:trade_id"`
	StrategyID    string  `gorm:"column:strategy_id"`
	Symbol        string  `gorm:"column:symbol"`
	Exchange      string  `gorm:"column:exchange"`
	Direction     string  `gorm:"column:direction"`
	Price         float64 `gorm:"column:price"`
	StopLoss      float64 `gorm:"column:stop_loss"`
	Target        float64 `gorm:"column:target"`
	Quantity      float64 `gorm:"column:quantity"`
	Lots          int     `gorm:"column:lots"`
	ExitReason    string  `gorm:"column:exit_reason"`
	Status        string  `gorm:"column:status;index"`
	Error         string  `gorm:"column:error"`
	CreatedAtUnix int64   `gorm:"column:created_at"`
	UpdatedAtUnix int64   `gorm:"column:updated_at"`
}

func (IntentModel) TableName() string { return "trade_intents" }

type ErrorModel struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	SessionID string `gorm:"column:session_id;index"`
	Kind      string `gorm:"column:kind"`
	Message   string `gorm:"column:message"`
	At        int64  `gorm:"column:at"`
}

func (ErrorModel) TableName() string { return "session_errors" }

type BacktestRunModel struct {
	ID             string         `gorm:"column:id;primaryKey"`
	SessionID      string         `gorm:"column:session_id"`
	Instrument     string         `gorm:"column:instrument"`
	FromUnix       int64          `gorm:"column:from_ts"`
	ToUnix         int64          `gorm:"column:to_ts"`
	Days           int            `gorm:"column:days"`
	InitialCapital float64        `gorm:"column:initial_capital"`
	TotalPnL       float64        `gorm:"column:total_pnl"`
	Trades         int            `gorm:"column:trades"`
	WinRate        float64        `gorm:"column:win_rate"`
	MaxDrawdown    float64        `gorm:"column:max_drawdown"`
	Report         datatypes.JSON `gorm:"column:report;type:TEXT"`
	CreatedAtUnix  int64          `gorm:"column:created_at;index"`
}

func (BacktestRunModel) TableName() string { return "backtest_runs" }

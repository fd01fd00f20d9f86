package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var ErrTradeClosed = errors.New("trade already closed")

type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Sign 返回多头 +1、空头 -1。
func (d Direction) Sign() int64 {
	if d == Short {
		return -1
	}
	return 1
}

type ExitReason string

const (
	ExitStopLoss  ExitReason = "STOP_LOSS"
	ExitTarget    ExitReason = "TARGET"
	ExitStrategy  ExitReason = "STRATEGY_EXIT"
	ExitCutoff    ExitReason = "CUTOFF"
	ExitManual    ExitReason = "MANUAL"
	ExitLossLimit ExitReason = "LOSS_LIMIT"
)

type TradeStatus string

const (
	TradeOpen   TradeStatus = "OPEN"
	TradeClosed TradeStatus = "CLOSED"
)

// Trade 记录一次完整的持仓生命周期，CLOSED 后不可再改。
type Trade struct {
	ID            string      `json:"trade_id" validate:"required"`
	SessionID     string      `json:"session_id" validate:"required"`
	StrategyID    string      `json:"strategy_id" validate:"required"`
	Symbol        string      `json:"symbol" validate:"required"`
	Exchange      string      `json:"exchange"`
	Direction     Direction   `json:"direction" validate:"required,oneof=LONG SHORT"`
	Mode          Mode        `json:"mode" validate:"required,oneof=LIVE PAPER BACKTEST"`
	EntryPrice    float64     `json:"entry_price" validate:"gt=0"`
	StopLoss      float64     `json:"stop_loss" validate:"gte=0"`
	Target        float64     `json:"target" validate:"gte=0"`
	Quantity      float64     `json:"quantity" validate:"gt=0"`
	Lots          int         `json:"lots" validate:"gte=0"`
	EntryTime     time.Time   `json:"entry_time" validate:"required"`
	ExitTime      time.Time   `json:"exit_time,omitempty"`
	ExitPrice     float64     `json:"exit_price,omitempty"`
	ExitReason    ExitReason  `json:"exit_reason,omitempty"`
	PnL           float64     `json:"pnl"`
	Status        TradeStatus `json:"status" validate:"required,oneof=OPEN CLOSED"`
	BrokerOrderID string      `json:"broker_order_id,omitempty"`
}

var tradeValidator = validator.New()

func (t *Trade) Validate() error {
	if err := tradeValidator.Struct(t); err != nil {
		return fmt.Errorf("trade %s: %w", t.ID, err)
	}
	return nil
}

func (t *Trade) IsOpen() bool { return t != nil && t.Status == TradeOpen }

// Close 以给定价格与时间平仓，并按 (exit-entry)*qty*sign 计算盈亏。
// 平仓时间早于开仓时间时取开仓时间。
func (t *Trade) Close(price float64, at time.Time, reason ExitReason) error {
	if t.Status == TradeClosed {
		return fmt.Errorf("%w: %s", ErrTradeClosed, t.ID)
	}
	if at.Before(t.EntryTime) {
		at = t.EntryTime
	}
	t.ExitPrice = price
	t.ExitTime = at
	t.ExitReason = reason
	t.PnL = RealizedPnL(t.EntryPrice, price, t.Quantity, t.Direction)
	t.Status = TradeClosed
	return nil
}

// RealizedPnL 使用十进制运算，保证相同输入得到相同结果。
func RealizedPnL(entry, exit, quantity float64, dir Direction) float64 {
	diff := decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(entry))
	pnl := diff.Mul(decimal.NewFromFloat(quantity)).Mul(decimal.NewFromInt(dir.Sign()))
	return pnl.Round(8).InexactFloat64()
}

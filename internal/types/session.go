package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidSession 表示会话记录缺字段或字段互相矛盾，需隔离处理。
var ErrInvalidSession = errors.New("invalid session state")

type Mode string

const (
	ModeLive     Mode = "LIVE"
	ModePaper    Mode = "PAPER"
	ModeBacktest Mode = "BACKTEST"
)

type SessionStatus string

const (
	StatusActive  SessionStatus = "ACTIVE"
	StatusStopped SessionStatus = "STOPPED"
)

type StopReason string

const (
	StopCutoff      StopReason = "CUTOFF"
	StopLossLimit   StopReason = "LOSS_LIMIT"
	StopTradeCap    StopReason = "TRADE_CAP"
	StopQuarantined StopReason = "QUARANTINED"
	StopManual      StopReason = "MANUAL"
)

type FrequencyMode string

const (
	FrequencyNormal    FrequencyMode = "NORMAL"
	FrequencyReduced   FrequencyMode = "REDUCED"
	FrequencyHardLimit FrequencyMode = "HARD_LIMIT"
)

// InstrumentKind 决定仓位计算方式：LOT 按合约手数，UNIT 按单位风险。
type InstrumentKind string

const (
	InstrumentLot  InstrumentKind = "LOT"
	InstrumentUnit InstrumentKind = "UNIT"
)

// TradingDayLayout 是 Session.TradingDay 的日期格式。
const TradingDayLayout = "2006-01-02"

// Session 是单一标的在一个交易日内的托管状态。
type Session struct {
	ID             string         `json:"session_id" validate:"required"`
	Instrument     string         `json:"instrument" validate:"required"`
	Exchange       string         `json:"exchange"`
	Mode           Mode           `json:"execution_mode" validate:"required,oneof=LIVE PAPER BACKTEST"`
	InstrumentKind InstrumentKind `json:"instrument_kind" validate:"required,oneof=LOT UNIT"`
	LotSize        int            `json:"lot_size" validate:"gte=0,required_if=InstrumentKind LOT"`

	Status     SessionStatus `json:"status" validate:"required,oneof=ACTIVE STOPPED"`
	StopReason StopReason    `json:"stop_reason,omitempty"`

	Capital          float64 `json:"capital" validate:"gt=0"`
	DailyPnL         float64 `json:"daily_pnl"`
	MaxTradesAllowed int     `json:"max_trades_allowed" validate:"gte=1"`
	DailyLossLimit   float64 `json:"daily_loss_limit" validate:"gte=0"`
	CutoffTime       string  `json:"cutoff_time" validate:"required"`
	TradesToday      int     `json:"trades_today" validate:"gte=0"`
	TradingDay       string  `json:"trading_day,omitempty"`

	CurrentStrategyID string    `json:"current_strategy_id" validate:"required"`
	CurrentTrade      *Trade    `json:"current_trade,omitempty"`
	LastAdvisoryAt    time.Time `json:"last_advisory_at,omitempty"`

	CurrentHourBlock  time.Time     `json:"current_hour_block"`
	HourlyTradeCount  int           `json:"hourly_trade_count" validate:"gte=0"`
	FrequencyMode     FrequencyMode `json:"frequency_mode" validate:"omitempty,oneof=NORMAL REDUCED HARD_LIMIT"`
	MaxTradesThisHour int           `json:"max_trades_this_hour"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var sessionValidator = validator.New()

// Validate 校验结构字段与跨字段约束，错误均包装 ErrInvalidSession。
func (s *Session) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrInvalidSession)
	}
	if err := sessionValidator.Struct(s); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSession, s.ID, err)
	}
	if _, _, err := ParseClock(s.CutoffTime); err != nil {
		return fmt.Errorf("%w: %s: cutoff_time: %v", ErrInvalidSession, s.ID, err)
	}
	if s.TradingDay != "" {
		if _, err := time.Parse(TradingDayLayout, s.TradingDay); err != nil {
			return fmt.Errorf("%w: %s: trading_day %q", ErrInvalidSession, s.ID, s.TradingDay)
		}
	}
	if t := s.CurrentTrade; t != nil {
		if t.Status != TradeOpen {
			return fmt.Errorf("%w: %s: current trade %s is %s", ErrInvalidSession, s.ID, t.ID, t.Status)
		}
		if t.SessionID != s.ID {
			return fmt.Errorf("%w: %s: current trade %s belongs to %s", ErrInvalidSession, s.ID, t.ID, t.SessionID)
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidSession, s.ID, err)
		}
	}
	return nil
}

func (s *Session) IsActive() bool { return s != nil && s.Status == StatusActive }

func (s *Session) HasOpenTrade() bool { return s != nil && s.CurrentTrade != nil }

// Stop 将会话置为 STOPPED；已停止的会话保留最初的原因。
func (s *Session) Stop(reason StopReason, now time.Time) {
	if s.Status == StatusStopped {
		return
	}
	s.Status = StatusStopped
	s.StopReason = reason
	s.UpdatedAt = now
}

// Clone 返回深拷贝，CurrentTrade 不与原对象共享。
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	if s.CurrentTrade != nil {
		t := *s.CurrentTrade
		cp.CurrentTrade = &t
	}
	return &cp
}

// ParseClock 解析 "HH:MM" 形式的时刻。
func ParseClock(v string) (hour, minute int, err error) {
	v = strings.TrimSpace(v)
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", v)
	}
	return t.Hour(), t.Minute(), nil
}

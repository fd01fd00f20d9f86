package risk

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"intraday/internal/types"
)

// Reason 描述仓位被拒的业务原因，空串表示通过。
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonInsufficientCapital Reason = "INSUFFICIENT_CAPITAL"
	ReasonZeroStopDistance    Reason = "ZERO_STOP_DISTANCE"
	ReasonCostExceedsCapital  Reason = "COST_EXCEEDS_CAPITAL"
	ReasonInvalidInput        Reason = "INVALID_INPUT"
)

// Config 为全局风险参数。
type Config struct {
	// LOT 模式下单笔可动用资金比例。
	AllocationFraction float64 `toml:"allocation_fraction" yaml:"allocation_fraction" validate:"gt=0,lte=1"`
	// UNIT 模式下单笔可承受亏损占资金比例。
	RiskFraction float64 `toml:"risk_fraction" yaml:"risk_fraction" validate:"gt=0,lte=1"`
}

var configValidator = validator.New()

func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("risk config: %w", err)
	}
	return nil
}

// Economics 描述标的的计价方式。LOT 使用 Premium 与 LotSize，UNIT 使用 Entry 与 StopLoss。
type Economics struct {
	Kind     types.InstrumentKind
	Premium  float64
	LotSize  int
	Entry    float64
	StopLoss float64
}

type Sizing struct {
	Quantity   float64 `json:"quantity"`
	Lots       int     `json:"lots"`
	Cost       float64 `json:"cost"`
	Affordable bool    `json:"affordable"`
	Reason     Reason  `json:"reason,omitempty"`
}

// InsufficientCapital 区分资金不足与其他风控拒绝。
func (s Sizing) InsufficientCapital() bool {
	return s.Reason == ReasonInsufficientCapital
}

// Size 是纯函数：相同输入得到相同输出，资金不足以 Affordable=false 表达而非错误。
func Size(capital float64, eco Economics, cfg Config) Sizing {
	if capital <= 0 {
		return Sizing{Reason: ReasonInsufficientCapital}
	}
	switch eco.Kind {
	case types.InstrumentLot:
		return sizeLots(decimal.NewFromFloat(capital), eco, cfg)
	case types.InstrumentUnit:
		return sizeUnits(decimal.NewFromFloat(capital), eco, cfg)
	default:
		return Sizing{Reason: ReasonInvalidInput}
	}
}

func sizeLots(capital decimal.Decimal, eco Economics, cfg Config) Sizing {
	if eco.Premium <= 0 || eco.LotSize <= 0 || cfg.AllocationFraction <= 0 {
		return Sizing{Reason: ReasonInvalidInput}
	}
	budget := capital.Mul(decimal.NewFromFloat(cfg.AllocationFraction))
	costPerLot := decimal.NewFromFloat(eco.Premium).Mul(decimal.NewFromInt(int64(eco.LotSize)))
	lots := budget.Div(costPerLot).Floor()
	if lots.LessThan(decimal.NewFromInt(1)) {
		return Sizing{Reason: ReasonInsufficientCapital}
	}
	n := int(lots.IntPart())
	return Sizing{
		Quantity:   lots.Mul(decimal.NewFromInt(int64(eco.LotSize))).InexactFloat64(),
		Lots:       n,
		Cost:       lots.Mul(costPerLot).InexactFloat64(),
		Affordable: true,
	}
}

func sizeUnits(capital decimal.Decimal, eco Economics, cfg Config) Sizing {
	if eco.Entry <= 0 || cfg.RiskFraction <= 0 {
		return Sizing{Reason: ReasonInvalidInput}
	}
	distance := decimal.NewFromFloat(eco.Entry).Sub(decimal.NewFromFloat(eco.StopLoss)).Abs()
	if distance.IsZero() {
		return Sizing{Reason: ReasonZeroStopDistance}
	}
	riskBudget := capital.Mul(decimal.NewFromFloat(cfg.RiskFraction))
	qty := riskBudget.Div(distance).Floor()
	if qty.LessThan(decimal.NewFromInt(1)) {
		return Sizing{Reason: ReasonInsufficientCapital}
	}
	cost := qty.Mul(decimal.NewFromFloat(eco.Entry))
	out := Sizing{
		Quantity: qty.InexactFloat64(),
		Cost:     cost.InexactFloat64(),
	}
	if cost.GreaterThan(capital) {
		out.Reason = ReasonCostExceedsCapital
		return out
	}
	out.Affordable = true
	return out
}

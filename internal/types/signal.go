package types

// StrategySignal 是策略单次调用的输出，不持久化。
// Symbol/Exchange 为空时使用会话标的；期权类合约由策略填入实际交易代码。
type StrategySignal struct {
	CanEnter  bool      `json:"can_enter"`
	CanExit   bool      `json:"can_exit"`
	Direction Direction `json:"direction,omitempty"`
	Symbol    string    `json:"symbol,omitempty"`
	Exchange  string    `json:"exchange,omitempty"`
	Price     float64   `json:"price"`
	StopLoss  float64   `json:"stop_loss"`
	Target    float64   `json:"target"`
	Reason    string    `json:"reason"`
}

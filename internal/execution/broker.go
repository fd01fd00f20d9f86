package execution

import (
	"context"
	"errors"
	"time"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order 是发往券商的市价单；ClientOrderID 取意图 ID，用于幂等与对账。
type Order struct {
	ClientOrderID string
	Symbol        string
	Exchange      string
	Side          Side
	Quantity      float64
}

type Fill struct {
	OrderID  string
	Price    float64
	Quantity float64
	At       time.Time
}

// ErrOrderNotFound 由 OrderLookup 在券商侧查无此单时返回。
var ErrOrderNotFound = errors.New("order not found")

type Broker interface {
	PlaceMarketOrder(ctx context.Context, order Order) (Fill, error)
}

// OrderLookup 是可选能力，支持按 ClientOrderID 查询成交。
type OrderLookup interface {
	LookupOrder(ctx context.Context, symbol, clientOrderID string) (Fill, error)
}

package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"intraday/internal/execution"
	"intraday/internal/pkg/symbol"
)

// orderNotExist 是 Binance 查询不存在订单时的错误码。
const orderNotExist = -2013

type Config struct {
	APIKey      string        `toml:"api_key"`
	SecretKey   string        `toml:"secret_key"`
	BaseURL     string        `toml:"base_url"`
	HTTPTimeout time.Duration `toml:"http_timeout"`
	// QuantityPrecision 为下单数量保留的小数位。
	QuantityPrecision int `toml:"quantity_precision"`
}

// Broker 在 USDT 合约上下市价单，返回交易所确认的均价与成交量。
type Broker struct {
	client    *futures.Client
	precision int
}

func New(cfg Config) (*Broker, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("binance broker requires api_key and secret_key")
	}
	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		client.BaseURL = base
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	precision := cfg.QuantityPrecision
	if precision <= 0 {
		precision = 3
	}
	return &Broker{client: client, precision: precision}, nil
}

func (b *Broker) PlaceMarketOrder(ctx context.Context, order execution.Order) (execution.Fill, error) {
	side := futures.SideTypeBuy
	if order.Side == execution.SideSell {
		side = futures.SideTypeSell
	}
	svc := b.client.NewCreateOrderService().
		Symbol(symbol.Binance(order.Symbol)).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(strconv.FormatFloat(order.Quantity, 'f', b.precision, 64)).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	if order.ClientOrderID != "" {
		svc = svc.NewClientOrderID(clientID(order.ClientOrderID))
	}
	res, err := svc.Do(ctx)
	if err != nil {
		return execution.Fill{}, err
	}
	return execution.Fill{
		OrderID:  strconv.FormatInt(res.OrderID, 10),
		Price:    parseFloat(res.AvgPrice),
		Quantity: parseFloat(res.ExecutedQuantity),
		At:       time.UnixMilli(res.UpdateTime),
	}, nil
}

func (b *Broker) LookupOrder(ctx context.Context, sym, clientOrderID string) (execution.Fill, error) {
	res, err := b.client.NewGetOrderService().
		Symbol(symbol.Binance(sym)).
		OrigClientOrderID(clientID(clientOrderID)).
		Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == orderNotExist {
			return execution.Fill{}, execution.ErrOrderNotFound
		}
		return execution.Fill{}, err
	}
	if res.Status != futures.OrderStatusTypeFilled {
		return execution.Fill{}, execution.ErrOrderNotFound
	}
	return execution.Fill{
		OrderID:  strconv.FormatInt(res.OrderID, 10),
		Price:    parseFloat(res.AvgPrice),
		Quantity: parseFloat(res.ExecutedQuantity),
		At:       time.UnixMilli(res.UpdateTime),
	}, nil
}

// clientID 去掉 uuid 的连字符以满足 Binance 36 字符内、[.A-Z:/a-z0-9_-] 的限制。
func clientID(id string) string {
	return strings.ReplaceAll(id, "-", "")
}


func parseFloat(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}

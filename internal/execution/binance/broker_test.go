package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intraday/internal/execution"
)

func TestPlaceMarketOrder(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/order", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))
		assert.NoError(t, r.ParseForm())
		form = r.Form
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"orderId":42,"symbol":"ETHUSDT","status":"FILLED","avgPrice":"3010.25","executedQty":"0.050","updateTime":1714557600000}`))
	}))
	defer srv.Close()

	b, err := New(Config{APIKey: "key", SecretKey: "secret", BaseURL: srv.URL})
	require.NoError(t, err)
	fill, err := b.PlaceMarketOrder(context.Background(), execution.Order{
		ClientOrderID: "0b7c-11aa",
		Symbol:        "eth/usdt",
		Side:          execution.SideSell,
		Quantity:      0.05,
	})
	require.NoError(t, err)
	assert.Equal(t, "42", fill.OrderID)
	assert.Equal(t, 3010.25, fill.Price)
	assert.Equal(t, 0.05, fill.Quantity)
	assert.Equal(t, time.UnixMilli(1714557600000), fill.At)

	assert.Equal(t, "ETHUSDT", form.Get("symbol"))
	assert.Equal(t, "SELL", form.Get("side"))
	assert.Equal(t, "MARKET", form.Get("type"))
	assert.Equal(t, "0.050", form.Get("quantity"))
	assert.Equal(t, "0b7c11aa", form.Get("newClientOrderId"))
}

func TestLookupOrderNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-2013,"msg":"Order does not exist."}`))
	}))
	defer srv.Close()

	b, err := New(Config{APIKey: "key", SecretKey: "secret", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = b.LookupOrder(context.Background(), "ETHUSDT", "abc")
	assert.ErrorIs(t, err, execution.ErrOrderNotFound)
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

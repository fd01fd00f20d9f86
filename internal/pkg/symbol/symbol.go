package symbol

import "strings"

// Normalize 统一为大写并去掉首尾空白，会话与成交记录都用这个形式。
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Binance 把 BTC/USDT、BTC-USDT、BTC_USDT 等写法转换为 BTCUSDT，合约后缀 :USDT 会被去掉。
func Binance(s string) string {
	s = Normalize(s)
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	return strings.NewReplacer("/", "", "-", "", "_", "").Replace(s)
}

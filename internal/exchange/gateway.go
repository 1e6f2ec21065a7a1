package exchange

import "context"

// Gateway 抽象交易所访问，是订单与仓位生命周期的唯一所有者。
// 所有方法失败时返回 *GatewayError，调用方应视为可恢复错误。
type Gateway interface {
	Ticker(ctx context.Context, symbol string) (float64, error)
	Candles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	OpenOrders(ctx context.Context, symbol string) ([]Order, error)
	Positions(ctx context.Context, symbol string) ([]Position, error)
	SymbolFilters(ctx context.Context, symbol string) (SymbolFilters, error)
	PlaceOrder(ctx context.Context, intent OrderIntent) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}

var _ Gateway = (*Client)(nil)

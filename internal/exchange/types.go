package exchange

import "time"

// DefaultInterval 为主决策周期。
const DefaultInterval = "15m"

// OrderSide 表示下单方向。
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Opposite 返回反方向。
func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType 为 Binance 合约订单类型。
type OrderType string

const (
	OrderTypeLimit        OrderType = "LIMIT"
	OrderTypeMarket       OrderType = "MARKET"
	OrderTypeTakeProfit   OrderType = "TAKE_PROFIT_MARKET"
	OrderTypeStopMarket   OrderType = "STOP_MARKET"
	OrderTypeTrailingStop OrderType = "TRAILING_STOP_MARKET"
)

// IsBracket 判断是否为保护性条件单。
func (t OrderType) IsBracket() bool {
	return t == OrderTypeTakeProfit || t == OrderTypeStopMarket || t == OrderTypeTrailingStop
}

// Candle 代表单根K线。
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Order 为交易所返回的挂单。
type Order struct {
	ID         string
	Symbol     string
	Type       OrderType
	Side       OrderSide
	Price      float64
	StopPrice  float64
	Quantity   float64
	ReduceOnly bool
}

// Position 为单个合约仓位，Quantity 带符号：多头为正，空头为负。
type Position struct {
	Symbol        string
	Quantity      float64
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnL float64
}

// SymbolFilters 描述交易对的价格与数量精度。
type SymbolFilters struct {
	PricePrecision    int
	QuantityPrecision int
	TickSize          float64
	StepSize          float64
}

// OrderIntent 描述一次待提交的委托。
type OrderIntent struct {
	Symbol          string
	Side            OrderSide
	Type            OrderType
	Price           float64
	StopPrice       float64
	Quantity        float64
	ReduceOnly      bool
	TimeInForce     string
	ActivationPrice float64
	CallbackRate    float64
}

// OrderResult 为提交委托后的回执。
type OrderResult struct {
	ID     string
	Status string
}

// MarketSnapshot 为一个周期内从交易所读取的全部事实。
type MarketSnapshot struct {
	Symbol      string
	Price       float64
	Candles     []Candle
	Orders      []Order
	Positions   []Position
	RetrievedAt time.Time
}

// SnapshotRequest 控制一次快照采集的参数。
type SnapshotRequest struct {
	Interval    string
	CandleLimit int
}

// DefaultSnapshotRequest 返回默认快照参数。
func DefaultSnapshotRequest() SnapshotRequest {
	return SnapshotRequest{
		Interval:    DefaultInterval,
		CandleLimit: 100,
	}
}

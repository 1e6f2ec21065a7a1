// Package exchangetest 提供内存版交易所网关，供各包单元测试使用。
package exchangetest

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"fuzzy-grid/internal/exchange"
)

// Gateway 为记录调用序列的内存网关。
// 成功提交的非市价单会进入挂单列表，reduceOnly 市价单会冲减仓位。
type Gateway struct {
	mu sync.Mutex

	Price     float64
	History   []exchange.Candle
	Orders    []exchange.Order
	Pos       []exchange.Position
	Filters   exchange.SymbolFilters
	Leverage  int
	Placed    []exchange.OrderIntent
	Cancelled []string

	// Errs 按方法名注入错误，例如 "Ticker"、"CancelOrder"。
	Errs map[string]error
	// FailPlace 返回非 nil 时拒绝该委托。
	FailPlace func(intent exchange.OrderIntent) error

	calls  []string
	nextID int
}

// New 创建带默认精度的网关。
func New(price float64) *Gateway {
	return &Gateway{
		Price: price,
		Filters: exchange.SymbolFilters{
			PricePrecision:    2,
			QuantityPrecision: 3,
			TickSize:          0.01,
			StepSize:          0.001,
		},
		Errs: map[string]error{},
	}
}

// Calls 返回调用记录副本。
func (g *Gateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.calls))
	copy(out, g.calls)
	return out
}

// CountCalls 统计以指定前缀开头的调用次数。
func (g *Gateway) CountCalls(prefix string) int {
	n := 0
	for _, c := range g.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// OpenOrderSnapshot 返回当前挂单副本。
func (g *Gateway) OpenOrderSnapshot() []exchange.Order {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]exchange.Order, len(g.Orders))
	copy(out, g.Orders)
	return out
}

func (g *Gateway) record(call string) error {
	g.calls = append(g.calls, call)
	method := call
	if idx := strings.Index(call, ":"); idx >= 0 {
		method = call[:idx]
	}
	if err := g.Errs[method]; err != nil {
		return &exchange.GatewayError{Op: method, Err: err}
	}
	return nil
}

func (g *Gateway) Ticker(_ context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("Ticker"); err != nil {
		return 0, err
	}
	return g.Price, nil
}

func (g *Gateway) Candles(_ context.Context, symbol, interval string, limit int) ([]exchange.Candle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("Candles"); err != nil {
		return nil, err
	}
	data := g.History
	if limit > 0 && len(data) > limit {
		data = data[len(data)-limit:]
	}
	out := make([]exchange.Candle, len(data))
	copy(out, data)
	return out, nil
}

func (g *Gateway) OpenOrders(_ context.Context, symbol string) ([]exchange.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("OpenOrders"); err != nil {
		return nil, err
	}
	out := make([]exchange.Order, len(g.Orders))
	copy(out, g.Orders)
	return out, nil
}

func (g *Gateway) Positions(_ context.Context, symbol string) ([]exchange.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("Positions"); err != nil {
		return nil, err
	}
	out := make([]exchange.Position, 0, len(g.Pos))
	for _, p := range g.Pos {
		if p.Quantity != 0 {
			out = append(out, p)
		}
	}
	return out, nil
}

func (g *Gateway) SymbolFilters(_ context.Context, symbol string) (exchange.SymbolFilters, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("SymbolFilters"); err != nil {
		return exchange.SymbolFilters{}, err
	}
	return g.Filters, nil
}

func (g *Gateway) PlaceOrder(_ context.Context, intent exchange.OrderIntent) (exchange.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record(fmt.Sprintf("PlaceOrder:%s:%s", intent.Type, intent.Side)); err != nil {
		return exchange.OrderResult{}, err
	}
	if g.FailPlace != nil {
		if err := g.FailPlace(intent); err != nil {
			return exchange.OrderResult{}, &exchange.GatewayError{Op: "PlaceOrder", Err: err}
		}
	}

	g.nextID++
	id := fmt.Sprintf("fake-%d", g.nextID)
	g.Placed = append(g.Placed, intent)

	if intent.Type == exchange.OrderTypeMarket {
		g.applyMarket(intent)
		return exchange.OrderResult{ID: id, Status: "closed"}, nil
	}

	stop := intent.StopPrice
	if stop == 0 {
		stop = intent.ActivationPrice
	}
	g.Orders = append(g.Orders, exchange.Order{
		ID:         id,
		Symbol:     intent.Symbol,
		Type:       intent.Type,
		Side:       intent.Side,
		Price:      intent.Price,
		StopPrice:  stop,
		Quantity:   intent.Quantity,
		ReduceOnly: intent.ReduceOnly,
	})
	return exchange.OrderResult{ID: id, Status: "open"}, nil
}

func (g *Gateway) applyMarket(intent exchange.OrderIntent) {
	delta := intent.Quantity
	if intent.Side == exchange.SideSell {
		delta = -delta
	}
	for i := range g.Pos {
		if !strings.EqualFold(g.Pos[i].Symbol, intent.Symbol) {
			continue
		}
		next := g.Pos[i].Quantity + delta
		if math.Abs(next) < 1e-12 {
			next = 0
		}
		g.Pos[i].Quantity = next
		return
	}
	if !intent.ReduceOnly {
		g.Pos = append(g.Pos, exchange.Position{Symbol: intent.Symbol, Quantity: delta, EntryPrice: g.Price, MarkPrice: g.Price})
	}
}

func (g *Gateway) CancelOrder(_ context.Context, symbol, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("CancelOrder:" + orderID); err != nil {
		return err
	}
	g.Cancelled = append(g.Cancelled, orderID)
	kept := g.Orders[:0]
	for _, o := range g.Orders {
		if o.ID != orderID {
			kept = append(kept, o)
		}
	}
	g.Orders = kept
	return nil
}

func (g *Gateway) SetLeverage(_ context.Context, symbol string, leverage int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record(fmt.Sprintf("SetLeverage:%d", leverage)); err != nil {
		return err
	}
	g.Leverage = leverage
	return nil
}

var _ exchange.Gateway = (*Gateway)(nil)

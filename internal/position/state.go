package position

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"fuzzy-grid/internal/exchange"
)

// State 为单个交易对的对账状态。
type State string

const (
	StateFlat        State = "FLAT"
	StatePendingGrid State = "PENDING_GRID"
	StateProtected   State = "PROTECTED"
	// StateUnprotected 必须立即强平。
	StateUnprotected State = "UNPROTECTED"
)

// Book 为某一时刻的挂单与持仓。
type Book struct {
	Symbol    string
	Orders    []exchange.Order
	Positions []exchange.Position
	Timestamp time.Time
}

// FromSnapshot 从市场快照构造账本。
func FromSnapshot(snap exchange.MarketSnapshot) Book {
	return Book{
		Symbol:    snap.Symbol,
		Orders:    snap.Orders,
		Positions: snap.Positions,
		Timestamp: snap.RetrievedAt,
	}
}

// Assessment 为账本分类结果。
type Assessment struct {
	State       State
	Exposure    float64
	EntryPrice  float64
	MarkPrice   float64
	Unrealized  float64
	LimitOrders int
	LimitSide   exchange.OrderSide
	TakeProfits int
	StopLosses  int
	Trailing    int
	// Orphaned 表示只剩保护单，既无限价单也无仓位。
	Orphaned bool
	// MixedLimits 表示同时存在买卖两个方向的限价单。
	MixedLimits bool
}

// HasExposure 判断是否存在持仓或未成交限价单。
func (a Assessment) HasExposure() bool {
	return a.Exposure != 0 || a.LimitOrders > 0
}

// NeedsFlatten 判断账本本身是否要求强平（无保护或孤立保护单）。
func (a Assessment) NeedsFlatten() bool {
	return a.State == StateUnprotected || a.Orphaned || a.MixedLimits
}

// Conflicts 判断方向判断是否与现有限价单或持仓方向相反。
func (a Assessment) Conflicts(side exchange.OrderSide) bool {
	if side == "" {
		return false
	}
	if a.LimitOrders > 0 && (a.MixedLimits || a.LimitSide != side) {
		return true
	}
	if a.Exposure > 0 && side == exchange.SideSell {
		return true
	}
	if a.Exposure < 0 && side == exchange.SideBuy {
		return true
	}
	return false
}

// Classify 统计挂单与仓位，判定对账状态。
func Classify(book Book) Assessment {
	var a Assessment

	for _, p := range book.Positions {
		if book.Symbol != "" && p.Symbol != "" && !exchange.SameSymbol(p.Symbol, book.Symbol) {
			continue
		}
		a.Exposure += p.Quantity
		if p.Quantity != 0 {
			a.EntryPrice = p.EntryPrice
			a.MarkPrice = p.MarkPrice
		}
		a.Unrealized += p.UnrealizedPnL
	}
	if math.Abs(a.Exposure) < 1e-12 {
		a.Exposure = 0
	}

	for _, o := range book.Orders {
		switch o.Type {
		case exchange.OrderTypeLimit:
			if a.LimitOrders > 0 && a.LimitSide != o.Side {
				a.MixedLimits = true
			}
			a.LimitOrders++
			a.LimitSide = o.Side
		case exchange.OrderTypeTakeProfit:
			a.TakeProfits++
		case exchange.OrderTypeStopMarket:
			a.StopLosses++
		case exchange.OrderTypeTrailingStop:
			a.Trailing++
		}
	}

	brackets := a.TakeProfits + a.StopLosses + a.Trailing
	switch {
	case !a.HasExposure():
		a.State = StateFlat
		a.Orphaned = brackets > 0
	case a.TakeProfits == 0 || a.StopLosses == 0:
		a.State = StateUnprotected
	case a.Exposure != 0:
		a.State = StateProtected
	default:
		a.State = StatePendingGrid
	}
	return a
}

// Manager 直接向网关查询账本，用于强平前后的确认。
type Manager struct {
	gateway exchange.Gateway
	symbol  string
	logger  *zap.Logger
}

// NewManager 创建仓位管理器。
func NewManager(gw exchange.Gateway, symbol string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		gateway: gw,
		symbol:  symbol,
		logger:  logger,
	}
}

// FetchBook 获取当前挂单与持仓。
func (m *Manager) FetchBook(ctx context.Context) (Book, error) {
	book := Book{Symbol: m.symbol, Timestamp: time.Now().UTC()}

	orders, err := m.gateway.OpenOrders(ctx, m.symbol)
	if err != nil {
		return book, fmt.Errorf("position: 获取挂单失败: %w", err)
	}
	positions, err := m.gateway.Positions(ctx, m.symbol)
	if err != nil {
		return book, fmt.Errorf("position: 获取持仓失败: %w", err)
	}

	book.Orders = orders
	book.Positions = positions
	m.logger.Debug("账本已刷新",
		zap.String("symbol", m.symbol),
		zap.Int("orders", len(orders)),
		zap.Int("positions", len(positions)),
	)
	return book, nil
}

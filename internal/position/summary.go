package position

import (
	"sync"

	"fuzzy-grid/internal/exchange"
)

// Summary 为对账结果的可序列化视图，写入监控事件。
type Summary struct {
	State         string  `json:"state"`
	Side          string  `json:"side"`
	Size          float64 `json:"size"`
	EntryPrice    float64 `json:"entry_price"`
	MarkPrice     float64 `json:"mark_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	LimitOrders   int     `json:"limit_orders"`
	TakeProfits   int     `json:"take_profits"`
	StopLosses    int     `json:"stop_losses"`
	Trailing      int     `json:"trailing"`
	Orphaned      bool    `json:"orphaned"`
}

// Summary 生成监控视图。
func (a Assessment) Summary() Summary {
	s := Summary{
		State:         string(a.State),
		Size:          a.Exposure,
		EntryPrice:    a.EntryPrice,
		MarkPrice:     a.MarkPrice,
		UnrealizedPnL: a.Unrealized,
		LimitOrders:   a.LimitOrders,
		TakeProfits:   a.TakeProfits,
		StopLosses:    a.StopLosses,
		Trailing:      a.Trailing,
		Orphaned:      a.Orphaned,
	}
	switch {
	case a.Exposure > 0:
		s.Side = "LONG"
	case a.Exposure < 0:
		s.Side = "SHORT"
	}
	return s
}

// RealizedPnL 按平仓价计算已实现盈亏，空头取反。
func RealizedPnL(p exchange.Position, exit float64) float64 {
	if exit <= 0 || p.EntryPrice <= 0 {
		return 0
	}
	return (exit - p.EntryPrice) * p.Quantity
}

// Totals 为会话盈亏累计。
type Totals struct {
	Profit float64 `json:"profit"`
	Loss   float64 `json:"loss"`
	Trades int     `json:"trades"`
}

// Net 返回净盈亏。
func (t Totals) Net() float64 {
	return t.Profit - t.Loss
}

// Session 在进程内累计已实现盈亏，并发安全。
type Session struct {
	mu     sync.Mutex
	totals Totals
}

// NewSession 创建空会话。
func NewSession() *Session {
	return &Session{}
}

// Record 记录一笔已实现盈亏并返回最新累计。亏损以正数累计。
func (s *Session) Record(pnl float64) Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pnl >= 0 {
		s.totals.Profit += pnl
	} else {
		s.totals.Loss += -pnl
	}
	s.totals.Trades++
	return s.totals
}

// Totals 返回当前累计。
func (s *Session) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}

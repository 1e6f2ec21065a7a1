package execution

import (
	"time"

	"fuzzy-grid/internal/exchange"
)

// Reason 说明触发强平的原因。
type Reason string

const (
	ReasonStartup     Reason = "startup"
	ReasonExtreme     Reason = "extreme"
	ReasonUnprotected Reason = "unprotected"
	ReasonOrphaned    Reason = "orphaned"
	ReasonConflict    Reason = "conflict"
)

// CancelOutcome 为单笔撤单结果。
type CancelOutcome struct {
	OrderID string
	Type    exchange.OrderType
	Err     error
}

// CloseOutcome 为单个仓位的市价平仓结果。
type CloseOutcome struct {
	Position    exchange.Position
	Intent      exchange.OrderIntent
	OrderID     string
	ExitPrice   float64
	RealizedPnL float64
	Err         error
}

// Result 为一次强平的执行摘要。
type Result struct {
	Reason        Reason
	Cancelled     []CancelOutcome
	Closed        []CloseOutcome
	ExecutionTime time.Time
	Notes         []string
}

// RealizedPnL 汇总成功平仓的已实现盈亏。
func (r Result) RealizedPnL() float64 {
	var total float64
	for _, c := range r.Closed {
		if c.Err == nil {
			total += c.RealizedPnL
		}
	}
	return total
}

// Failures 返回失败的撤单与平仓数量。
func (r Result) Failures() int {
	n := 0
	for _, c := range r.Cancelled {
		if c.Err != nil {
			n++
		}
	}
	for _, c := range r.Closed {
		if c.Err != nil {
			n++
		}
	}
	return n
}

// Empty 判断本次强平是否没有任何动作。
func (r Result) Empty() bool {
	return len(r.Cancelled) == 0 && len(r.Closed) == 0
}

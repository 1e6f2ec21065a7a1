package grid

import (
	"errors"

	"fuzzy-grid/internal/exchange"
	"fuzzy-grid/internal/signal"
)

var (
	// ErrInvalidPriceLevel 表示价格越界或保护单落在入场价错误一侧，仅跳过对应挂单。
	ErrInvalidPriceLevel = errors.New("grid: 价格无效")
	// ErrNotDirectional 表示判断结果不是 LONG/SHORT。
	ErrNotDirectional = errors.New("grid: 非方向性判断不能布网格")
	// ErrInvalidQuantity 表示按名义价值换算后的数量为零。
	ErrInvalidQuantity = errors.New("grid: 下单数量无效")
)

// Input 描述一次网格规划的行情输入。
type Input struct {
	Symbol  string
	Verdict signal.Verdict
	Price   float64
	ATR     float64
	// Filters 为空时由 Place 向网关查询。
	Filters exchange.SymbolFilters
	// Open 为当前挂单，用于去重。Place 会重新查询。
	Open []exchange.Order
}

// Leg 为一档网格及其保护单。
type Leg struct {
	Index int
	Entry exchange.OrderIntent
	// Existing 表示该档已有同价挂单，只补齐保护单。
	Existing bool

	TakeProfit *exchange.OrderIntent
	StopLoss   *exchange.OrderIntent
	Trailing   *exchange.OrderIntent
	// Rejected 记录因价格无效被拒绝的保护单。
	Rejected []Outcome
}

// Brackets 返回有效的保护单，顺序为止盈、止损、追踪止损。
func (l Leg) Brackets() []exchange.OrderIntent {
	out := make([]exchange.OrderIntent, 0, 3)
	for _, b := range []*exchange.OrderIntent{l.TakeProfit, l.StopLoss, l.Trailing} {
		if b != nil {
			out = append(out, *b)
		}
	}
	return out
}

// Plan 为一次网格规划结果。
type Plan struct {
	Symbol  string
	Side    exchange.OrderSide
	Spacing float64
	Buffer  float64
	Offset  float64
	Legs    []Leg
	// Market 为随网格立即市价开仓的一档，价格取当前价，仅用于计算保护单。
	Market *Leg
	// Skipped 为规划阶段被跳过的档位。
	Skipped []Outcome
}

// Outcome 记录单个委托的处理结果。
type Outcome struct {
	Intent  exchange.OrderIntent
	OrderID string
	Placed  bool
	Skipped bool
	Reason  string
	Err     error
}

// Report 汇总一次提交的全部结果。
type Report struct {
	Plan     Plan
	Outcomes []Outcome
}

// Placed 返回成功提交的委托数量。
func (r Report) Placed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Placed {
			n++
		}
	}
	return n
}

// Failed 返回提交失败或价格无效的数量。
func (r Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// PlacedIntents 返回成功提交的委托。
func (r Report) PlacedIntents() []exchange.OrderIntent {
	out := make([]exchange.OrderIntent, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Placed {
			out = append(out, o.Intent)
		}
	}
	return out
}

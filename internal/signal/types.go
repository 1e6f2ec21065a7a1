package signal

import (
	"fuzzy-grid/internal/exchange"
	"fuzzy-grid/internal/fuzzy"
)

// Verdict 为一个周期的市场判断。
type Verdict string

const (
	VerdictLong    Verdict = "LONG"
	VerdictShort   Verdict = "SHORT"
	VerdictNeutral Verdict = "NEUTRAL"
	// VerdictExtreme 要求调用方平掉全部仓位并撤单，随后跳过本周期。
	VerdictExtreme Verdict = "EXTREME"
)

// IsDirectional 判断是否为 LONG 或 SHORT。
func (v Verdict) IsDirectional() bool {
	return v == VerdictLong || v == VerdictShort
}

// Side 返回方向对应的开仓方向。非方向性判断返回空字符串。
func (v Verdict) Side() exchange.OrderSide {
	switch v {
	case VerdictLong:
		return exchange.SideBuy
	case VerdictShort:
		return exchange.SideSell
	default:
		return ""
	}
}

// ExtremeResult 为极端行情检测结果。
type ExtremeResult struct {
	Score     float64
	Threshold float64
	Signals   []fuzzy.Signal
	Extreme   bool
}

// Decision 为分类器输出。
type Decision struct {
	Verdict     Verdict
	BuyScore    float64
	SellScore   float64
	Threshold   float64
	BuySignals  []fuzzy.Signal
	SellSignals []fuzzy.Signal
	Extreme     ExtremeResult
	// Reason 说明 NEUTRAL 或被否决的原因。
	Reason string
}

package monitor

import (
	"time"

	"fuzzy-grid/internal/execution"
	"fuzzy-grid/internal/feature"
	"fuzzy-grid/internal/fuzzy"
	"fuzzy-grid/internal/grid"
	"fuzzy-grid/internal/risk"
	"fuzzy-grid/internal/signal"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventMarketSnapshot EventType = "market_snapshot"
	EventVerdict        EventType = "verdict"
	EventGrid           EventType = "grid"
	EventFlatten        EventType = "flatten"
	EventPosition       EventType = "position"
	EventRisk           EventType = "risk"
	EventError          EventType = "error"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// MarketSnapshotPayload 记录指标快照。
type MarketSnapshotPayload struct {
	Symbol   string             `json:"symbol"`
	Price    float64            `json:"price"`
	Features map[string]float64 `json:"features"`
}

// VerdictPayload 记录分类结果。
type VerdictPayload struct {
	Verdict      string         `json:"verdict"`
	BuyScore     float64        `json:"buy_score"`
	SellScore    float64        `json:"sell_score"`
	Threshold    float64        `json:"threshold"`
	ExtremeScore float64        `json:"extreme_score"`
	Reason       string         `json:"reason,omitempty"`
	BuySignals   []fuzzy.Signal `json:"buy_signals,omitempty"`
	SellSignals  []fuzzy.Signal `json:"sell_signals,omitempty"`
}

// OrderPayload 记录单个委托的结果。
type OrderPayload struct {
	Type      string  `json:"type"`
	Side      string  `json:"side"`
	Price     float64 `json:"price,omitempty"`
	StopPrice float64 `json:"stop_price,omitempty"`
	Quantity  float64 `json:"quantity"`
	OrderID   string  `json:"order_id,omitempty"`
	Placed    bool    `json:"placed"`
	Skipped   bool    `json:"skipped"`
	Reason    string  `json:"reason,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// GridPayload 记录一次网格提交。
type GridPayload struct {
	Symbol  string         `json:"symbol"`
	Side    string         `json:"side"`
	Spacing float64        `json:"spacing"`
	Offset  float64        `json:"offset"`
	Placed  int            `json:"placed"`
	Failed  int            `json:"failed"`
	Orders  []OrderPayload `json:"orders"`
}

// FlattenPayload 记录强平结果。
type FlattenPayload struct {
	Reason      string   `json:"reason"`
	Cancelled   int      `json:"cancelled"`
	Closed      int      `json:"closed"`
	Failures    int      `json:"failures"`
	RealizedPnL float64  `json:"realized_pnl"`
	Notes       []string `json:"notes,omitempty"`
}

// RiskPayload 记录日度风控状态。
type RiskPayload struct {
	TradingDate string  `json:"trading_date"`
	RealizedPnL float64 `json:"realized_pnl"`
	Trades      int     `json:"trades"`
	Limit       float64 `json:"limit"`
	Halted      bool    `json:"halted"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func newMarketSnapshotPayload(s feature.Snapshot) MarketSnapshotPayload {
	return MarketSnapshotPayload{Symbol: s.Symbol, Price: s.Price, Features: s.Fields()}
}

func newVerdictPayload(d signal.Decision) VerdictPayload {
	return VerdictPayload{
		Verdict:      string(d.Verdict),
		BuyScore:     d.BuyScore,
		SellScore:    d.SellScore,
		Threshold:    d.Threshold,
		ExtremeScore: d.Extreme.Score,
		Reason:       d.Reason,
		BuySignals:   d.BuySignals,
		SellSignals:  d.SellSignals,
	}
}

func newGridPayload(r grid.Report) GridPayload {
	p := GridPayload{
		Symbol:  r.Plan.Symbol,
		Side:    string(r.Plan.Side),
		Spacing: r.Plan.Spacing,
		Offset:  r.Plan.Offset,
		Placed:  r.Placed(),
		Failed:  r.Failed(),
		Orders:  make([]OrderPayload, 0, len(r.Outcomes)),
	}
	for _, o := range r.Outcomes {
		stop := o.Intent.StopPrice
		if stop == 0 {
			stop = o.Intent.ActivationPrice
		}
		op := OrderPayload{
			Type:      string(o.Intent.Type),
			Side:      string(o.Intent.Side),
			Price:     o.Intent.Price,
			StopPrice: stop,
			Quantity:  o.Intent.Quantity,
			OrderID:   o.OrderID,
			Placed:    o.Placed,
			Skipped:   o.Skipped,
			Reason:    o.Reason,
		}
		if o.Err != nil {
			op.Error = o.Err.Error()
		}
		p.Orders = append(p.Orders, op)
	}
	return p
}

func newFlattenPayload(r execution.Result) FlattenPayload {
	return FlattenPayload{
		Reason:      string(r.Reason),
		Cancelled:   len(r.Cancelled),
		Closed:      len(r.Closed),
		Failures:    r.Failures(),
		RealizedPnL: r.RealizedPnL(),
		Notes:       r.Notes,
	}
}

func newRiskPayload(s risk.DailyStatus) RiskPayload {
	return RiskPayload{
		TradingDate: s.TradingDate,
		RealizedPnL: s.RealizedPnL,
		Trades:      s.Trades,
		Limit:       s.Limit,
		Halted:      s.Halted,
	}
}

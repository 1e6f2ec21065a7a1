// Package metrics 以 Prometheus 指标暴露每个周期的判断、委托与强平情况。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder 使用独立注册表，避免多实例互相冲突。
type Recorder struct {
	registry *prometheus.Registry

	ticks      *prometheus.CounterVec
	verdicts   *prometheus.CounterVec
	orders     *prometheus.CounterVec
	flattens   *prometheus.CounterVec
	errorsTot  *prometheus.CounterVec
	lastPrice  *prometheus.GaugeVec
	lastATR    *prometheus.GaugeVec
	scores     *prometheus.GaugeVec
	realized   *prometheus.GaugeVec
	halted     *prometheus.GaugeVec
	tickTiming *prometheus.HistogramVec
}

// New 创建指标记录器。
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		ticks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuzzy_grid_ticks_total",
				Help: "Reconciliation ticks by outcome",
			},
			[]string{"symbol", "outcome"},
		),
		verdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuzzy_grid_verdicts_total",
				Help: "Classifier verdicts",
			},
			[]string{"symbol", "verdict"},
		),
		orders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuzzy_grid_orders_total",
				Help: "Grid orders by type and result",
			},
			[]string{"symbol", "type", "result"},
		),
		flattens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuzzy_grid_flattens_total",
				Help: "Forced flattens by reason",
			},
			[]string{"symbol", "reason"},
		),
		errorsTot: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuzzy_grid_errors_total",
				Help: "Errors encountered by stage",
			},
			[]string{"stage"},
		),
		lastPrice: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fuzzy_grid_last_price",
				Help: "Last observed price",
			},
			[]string{"symbol"},
		),
		lastATR: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fuzzy_grid_atr",
				Help: "Last computed ATR",
			},
			[]string{"symbol"},
		),
		scores: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fuzzy_grid_score",
				Help: "Last aggregated fuzzy scores",
			},
			[]string{"symbol", "kind"},
		),
		realized: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fuzzy_grid_realized_pnl",
				Help: "Session realized profit and loss",
			},
			[]string{"symbol", "kind"},
		),
		halted: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fuzzy_grid_halted",
				Help: "1 when the daily loss cap blocks new grids",
			},
			[]string{"symbol"},
		),
		tickTiming: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fuzzy_grid_tick_duration_seconds",
				Help:    "Duration of reconciliation ticks in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"symbol"},
		),
	}
}

// Handler 返回 /metrics 处理器。
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry 返回底层注册表。
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) RecordTick(symbol, outcome string, seconds float64) {
	r.ticks.WithLabelValues(symbol, outcome).Inc()
	r.tickTiming.WithLabelValues(symbol).Observe(seconds)
}

func (r *Recorder) RecordVerdict(symbol, verdict string, buy, sell, extreme float64) {
	r.verdicts.WithLabelValues(symbol, verdict).Inc()
	r.scores.WithLabelValues(symbol, "buy").Set(buy)
	r.scores.WithLabelValues(symbol, "sell").Set(sell)
	r.scores.WithLabelValues(symbol, "extreme").Set(extreme)
}

func (r *Recorder) RecordMarket(symbol string, price, atr float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
	r.lastATR.WithLabelValues(symbol).Set(atr)
}

// RecordOrder result 取 placed / skipped / failed。
func (r *Recorder) RecordOrder(symbol, orderType, result string) {
	r.orders.WithLabelValues(symbol, orderType, result).Inc()
}

func (r *Recorder) RecordFlatten(symbol, reason string) {
	r.flattens.WithLabelValues(symbol, reason).Inc()
}

func (r *Recorder) RecordError(stage string) {
	r.errorsTot.WithLabelValues(stage).Inc()
}

func (r *Recorder) RecordPnL(symbol string, profit, loss float64) {
	r.realized.WithLabelValues(symbol, "profit").Set(profit)
	r.realized.WithLabelValues(symbol, "loss").Set(loss)
}

func (r *Recorder) RecordHalted(symbol string, halted bool) {
	v := 0.0
	if halted {
		v = 1
	}
	r.halted.WithLabelValues(symbol).Set(v)
}

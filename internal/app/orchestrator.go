package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"fuzzy-grid/internal/config"
	"fuzzy-grid/internal/exchange"
	"fuzzy-grid/internal/execution"
	"fuzzy-grid/internal/feature"
	"fuzzy-grid/internal/grid"
	"fuzzy-grid/internal/indicator"
	"fuzzy-grid/internal/metrics"
	"fuzzy-grid/internal/monitor"
	"fuzzy-grid/internal/pnl"
	"fuzzy-grid/internal/position"
	"fuzzy-grid/internal/risk"
	"fuzzy-grid/internal/signal"
	"fuzzy-grid/internal/store"
)

// Outcome 描述一个对账周期的结局。
type Outcome string

const (
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeExtreme Outcome = "extreme"
	OutcomeFlatten Outcome = "flatten"
	OutcomeHold    Outcome = "hold"
	OutcomeNeutral Outcome = "neutral"
	OutcomeHalted  Outcome = "halted"
	OutcomePlaced  Outcome = "placed"
)

type orchestrator struct {
	symbol      string
	leverage    int
	snapshotReq exchange.SnapshotRequest

	gateway    exchange.Gateway
	market     *exchange.MarketDataService
	extractor  *feature.Extractor
	classifier *signal.Classifier
	planner    *grid.Planner
	trader     execution.Trader
	risk       *risk.Manager
	monitor    *monitor.Service
	metrics    *metrics.Recorder
	journal    *pnl.Journal
	session    *position.Session
	logger     *zap.Logger

	leverageSet bool
}

func (o *orchestrator) Monitor() *monitor.Service {
	return o.monitor
}

func newOrchestrator(cfg *config.Config, gw exchange.Gateway, st *store.Store, rec *metrics.Recorder, journal *pnl.Journal, logger *zap.Logger) (*orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rec == nil {
		rec = metrics.New()
	}
	if journal == nil {
		journal = pnl.NewJournalWriter(io.Discard)
	}

	riskMgr, err := risk.NewManager(cfg.Risk, st, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化风险管理失败: %w", err)
	}

	monitorSvc, err := monitor.NewService(st, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化监控服务失败: %w", err)
	}

	symbol := cfg.Exchange.Symbol
	return &orchestrator{
		symbol:   symbol,
		leverage: cfg.Trading.Leverage,
		snapshotReq: exchange.SnapshotRequest{
			Interval:    cfg.Trading.Interval,
			CandleLimit: cfg.Trading.CandleLimit,
		},
		gateway:    gw,
		market:     exchange.NewMarketDataService(gw, logger),
		extractor:  feature.NewExtractor(cfg.Indicators, logger),
		classifier: signal.NewClassifier(cfg.Extreme, cfg.Classifier, logger),
		planner:    grid.NewPlanner(gw, cfg.Grid, cfg.Trading, logger),
		trader:     execution.NewExecutor(gw, symbol, logger),
		risk:       riskMgr,
		monitor:    monitorSvc,
		metrics:    rec,
		journal:    journal,
		session:    position.NewSession(),
		logger:     logger.With(zap.String("symbol", symbol)),
	}, nil
}

// Tick 执行一次完整的对账周期：快照、指标、分类、账本检查，最后决定强平、持有或布网格。
func (o *orchestrator) Tick(ctx context.Context) (outcome Outcome, err error) {
	start := time.Now()
	defer func() {
		o.metrics.RecordTick(o.symbol, string(outcome), time.Since(start).Seconds())
	}()

	snap, err := o.market.Snapshot(ctx, o.symbol, o.snapshotReq)
	if err != nil {
		o.fail(ctx, "snapshot", "拉取市场数据失败", err)
		return OutcomeFailed, err
	}

	features, err := o.extractor.Extract(ctx, snap)
	if err != nil {
		if errors.Is(err, indicator.ErrInsufficientData) {
			o.logger.Warn("K线数量不足，跳过本周期", zap.Int("candles", len(snap.Candles)))
			return OutcomeSkipped, nil
		}
		o.fail(ctx, "features", "指标计算失败", err)
		return OutcomeFailed, err
	}
	o.monitor.RecordMarketSnapshot(ctx, features)
	o.metrics.RecordMarket(o.symbol, features.Price, features.ATR)

	decision := o.classifier.Classify(features)
	o.monitor.RecordVerdict(ctx, decision)
	o.metrics.RecordVerdict(o.symbol, string(decision.Verdict), decision.BuyScore, decision.SellScore, decision.Extreme.Score)

	book := position.FromSnapshot(snap)
	assessment := position.Classify(book)
	o.monitor.RecordPosition(ctx, assessment.Summary())

	if decision.Verdict == signal.VerdictExtreme {
		if len(book.Orders) > 0 || assessment.Exposure != 0 {
			if err := o.flatten(ctx, execution.ReasonExtreme); err != nil {
				return OutcomeFailed, err
			}
		}
		return OutcomeExtreme, nil
	}

	if reason, ok := flattenReason(assessment, decision.Verdict); ok {
		o.logger.Warn("账本状态不安全，执行强平",
			zap.String("reason", string(reason)),
			zap.String("state", string(assessment.State)),
			zap.String("verdict", string(decision.Verdict)),
		)
		if err := o.flatten(ctx, reason); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeFlatten, nil
	}

	if assessment.State != position.StateFlat {
		o.logger.Debug("已有受保护的挂单或仓位，保持不动", zap.String("state", string(assessment.State)))
		return OutcomeHold, nil
	}

	if !decision.Verdict.IsDirectional() {
		return OutcomeNeutral, nil
	}

	status, err := o.risk.Gate(ctx)
	if err != nil {
		o.fail(ctx, "risk", "读取风控状态失败", err)
		return OutcomeFailed, err
	}
	o.metrics.RecordHalted(o.symbol, status.Halted)
	if status.Halted {
		return OutcomeHalted, nil
	}

	if err := o.ensureLeverage(ctx); err != nil {
		o.fail(ctx, "leverage", "设置杠杆失败", err)
		return OutcomeFailed, err
	}

	report, err := o.planner.Place(ctx, grid.Input{
		Symbol:  o.symbol,
		Verdict: decision.Verdict,
		Price:   features.Price,
		ATR:     features.ATR,
	})
	if err != nil {
		o.fail(ctx, "grid", "布置网格失败", err)
		return OutcomeFailed, err
	}
	o.monitor.RecordGrid(ctx, report)
	for _, oc := range report.Outcomes {
		o.metrics.RecordOrder(o.symbol, string(oc.Intent.Type), orderResult(oc))
	}
	return OutcomePlaced, nil
}

// FlattenAll 撤销全部挂单并平掉全部仓位。
func (o *orchestrator) FlattenAll(ctx context.Context, reason execution.Reason) error {
	return o.flatten(ctx, reason)
}

func (o *orchestrator) flatten(ctx context.Context, reason execution.Reason) error {
	result, err := o.trader.Flatten(ctx, reason)
	o.metrics.RecordFlatten(o.symbol, string(reason))
	o.monitor.RecordFlatten(ctx, result)

	realized := false
	for _, closed := range result.Closed {
		if closed.Err != nil {
			continue
		}
		realized = true
		o.session.Record(closed.RealizedPnL)
		if jErr := o.journal.Realized(o.symbol, closed.RealizedPnL); jErr != nil {
			o.logger.Warn("写入盈亏流水失败", zap.Error(jErr))
		}
		status, rErr := o.risk.RecordRealized(ctx, closed.RealizedPnL)
		if rErr != nil {
			o.logger.Warn("登记日度盈亏失败", zap.Error(rErr))
			continue
		}
		o.monitor.RecordRisk(ctx, status)
		o.metrics.RecordHalted(o.symbol, status.Halted)
	}

	if realized {
		totals := o.session.Totals()
		o.metrics.RecordPnL(o.symbol, totals.Profit, totals.Loss)
		if jErr := o.journal.Totals(o.symbol, totals); jErr != nil {
			o.logger.Warn("写入盈亏汇总失败", zap.Error(jErr))
		}
		o.logger.Info("会话盈亏",
			zap.Float64("total_profit", totals.Profit),
			zap.Float64("total_loss", totals.Loss),
			zap.Float64("net", totals.Net()),
			zap.Int("trades", totals.Trades),
		)
	}

	if err != nil {
		o.fail(ctx, "flatten", "强平失败", err)
		return err
	}
	return nil
}

func (o *orchestrator) ensureLeverage(ctx context.Context) error {
	if o.leverageSet || o.leverage <= 0 {
		return nil
	}
	if err := o.gateway.SetLeverage(ctx, o.symbol, o.leverage); err != nil {
		return err
	}
	o.leverageSet = true
	return nil
}

func (o *orchestrator) fail(ctx context.Context, stage, msg string, err error) {
	o.metrics.RecordError(stage)
	o.monitor.RecordError(ctx, msg, err, map[string]interface{}{"symbol": o.symbol, "stage": stage})
}

// flattenReason 判断账本是否需要强平。方向判断与现有敞口相反时同样强平，绝不反向加仓。
func flattenReason(a position.Assessment, verdict signal.Verdict) (execution.Reason, bool) {
	if a.NeedsFlatten() {
		switch {
		case a.Orphaned:
			return execution.ReasonOrphaned, true
		case a.State == position.StateUnprotected:
			return execution.ReasonUnprotected, true
		default:
			return execution.ReasonConflict, true
		}
	}
	if verdict.IsDirectional() && a.Conflicts(verdict.Side()) {
		return execution.ReasonConflict, true
	}
	return "", false
}

func orderResult(o grid.Outcome) string {
	switch {
	case o.Placed:
		return "placed"
	case o.Err != nil:
		return "failed"
	default:
		return "skipped"
	}
}

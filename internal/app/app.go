package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fuzzy-grid/internal/config"
	"fuzzy-grid/internal/exchange"
	"fuzzy-grid/internal/execution"
	"fuzzy-grid/internal/metrics"
	"fuzzy-grid/internal/pnl"
	"fuzzy-grid/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 连接交易所并驱动对账主循环，直到 ctx 结束。
func (a *App) Run(ctx context.Context) error {
	client, err := exchange.NewClient(a.cfg.Exchange, a.logger)
	if err != nil {
		return fmt.Errorf("初始化交易所客户端失败: %w", err)
	}
	return a.run(ctx, client)
}

func (a *App) run(ctx context.Context, gw exchange.Gateway) error {
	a.logger.Info("交易系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("exchange", a.cfg.Exchange.Name),
		zap.String("symbol", a.cfg.Exchange.Symbol),
		zap.Int("leverage", a.cfg.Trading.Leverage),
		zap.Int("grid_count", a.cfg.Trading.GridCount),
	)

	journal, err := pnl.NewJournal(a.cfg.PnLLog.File)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := journal.Close(); closeErr != nil {
			a.logger.Warn("关闭盈亏流水失败", zap.Error(closeErr))
		}
	}()

	recorder := metrics.New()
	orch, err := newOrchestrator(a.cfg, gw, a.store, recorder, journal, a.logger)
	if err != nil {
		return err
	}

	if a.cfg.Monitor.Port > 0 {
		if err := startMonitorServer(ctx, orch.Monitor(), recorder, a.cfg.Monitor.Port, a.logger); err != nil {
			return err
		}
	}

	if a.cfg.Trading.FlattenOnStart {
		tickCtx, cancel := a.tickContext(ctx)
		err := orch.FlattenAll(tickCtx, execution.ReasonStartup)
		cancel()
		if err != nil {
			a.logger.Error("启动强平失败", zap.Error(err))
		}
	}

	loopInterval := a.cfg.Scheduler.LoopInterval
	if loopInterval <= 0 {
		loopInterval = 10 * time.Second
	}

	a.tick(ctx, orch)

	ticker := time.NewTicker(loopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("系统异常退出: %w", err)
			}
			a.logger.Info("系统收到退出信号，正在停止")
			return nil
		case <-ticker.C:
			a.tick(ctx, orch)
		}
	}
}

// tick 单个周期失败只记录日志，下一周期重新查询交易所。
func (a *App) tick(ctx context.Context, orch *orchestrator) {
	tickCtx, cancel := a.tickContext(ctx)
	defer cancel()

	outcome, err := orch.Tick(tickCtx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		a.logger.Error("执行调度失败", zap.String("outcome", string(outcome)), zap.Error(err))
		return
	}
	a.logger.Debug("周期完成", zap.String("outcome", string(outcome)))
}

func (a *App) tickContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Scheduler.TickTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.cfg.Scheduler.TickTimeout)
}

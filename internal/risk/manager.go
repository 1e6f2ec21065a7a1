package risk

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"fuzzy-grid/internal/config"
	"fuzzy-grid/internal/store"
)

// Manager 在开新网格前检查日度亏损上限，并在强平后登记已实现盈亏。
type Manager struct {
	cfg     config.RiskConfig
	tracker *DailyTracker
	logger  *zap.Logger
	now     func() time.Time
}

// NewManager 创建风险管理器。
func NewManager(cfg config.RiskConfig, store *store.Store, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("risk: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	tracker, err := NewDailyTracker(store.DB(), cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Manager{
		cfg:     cfg,
		tracker: tracker,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Gate 返回当日是否允许开新网格。未配置上限时始终放行。
func (m *Manager) Gate(ctx context.Context) (DailyStatus, error) {
	status, err := m.tracker.Status(ctx, m.now())
	if err != nil {
		return status, err
	}
	if status.Halted {
		m.logger.Info("日度亏损已达上限，本周期不开新网格",
			zap.String("trading_date", status.TradingDate),
			zap.Float64("realized_pnl", status.RealizedPnL),
		)
	}
	return status, nil
}

// RecordRealized 登记一次强平产生的已实现盈亏。
func (m *Manager) RecordRealized(ctx context.Context, pnl float64) (DailyStatus, error) {
	return m.tracker.Record(ctx, m.now(), pnl)
}

// Tracker 返回底层日度监控器。
func (m *Manager) Tracker() *DailyTracker {
	return m.tracker
}

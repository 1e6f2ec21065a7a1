package risk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fuzzy-grid/internal/config"
)

// DailyTracker 按交易日累计已实现盈亏，超过上限后停止开新网格。
type DailyTracker struct {
	db     *sql.DB
	cfg    config.RiskConfig
	logger *zap.Logger
}

// NewDailyTracker 创建日度监控器并初始化表结构。
func NewDailyTracker(db *sql.DB, cfg config.RiskConfig, logger *zap.Logger) (*DailyTracker, error) {
	if db == nil {
		return nil, errors.New("risk: 数据库实例不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	tracker := &DailyTracker{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}

	if err := tracker.initSchema(); err != nil {
		return nil, err
	}

	return tracker, nil
}

func (t *DailyTracker) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS risk_daily_pnl (
			trading_date TEXT PRIMARY KEY,
			realized_pnl REAL NOT NULL DEFAULT 0,
			trades INTEGER NOT NULL DEFAULT 0,
			halted INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS risk_activity_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			occurred_at TEXT NOT NULL,
			event_type TEXT NOT NULL,
			message TEXT NOT NULL,
			details TEXT,
			trading_date TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_risk_activity_date ON risk_activity_log(trading_date);`,
	}

	for _, stmt := range schema {
		if _, err := t.db.Exec(stmt); err != nil {
			return fmt.Errorf("risk: 初始化表结构失败: %w", err)
		}
	}

	return nil
}

// Status 读取当日状态，当日无记录时返回零值状态。
func (t *DailyTracker) Status(ctx context.Context, ts time.Time) (DailyStatus, error) {
	tradingDate := tradingDay(ts, t.cfg.DailyLossResetHour)
	result := DailyStatus{TradingDate: tradingDate, Limit: t.cfg.MaxDailyLoss}

	var haltedInt int
	row := t.db.QueryRowContext(ctx,
		`SELECT realized_pnl, trades, halted FROM risk_daily_pnl WHERE trading_date = ?`, tradingDate)
	switch err := row.Scan(&result.RealizedPnL, &result.Trades, &haltedInt); {
	case err == nil:
		result.Halted = haltedInt == 1
	case errors.Is(err, sql.ErrNoRows):
	default:
		return result, fmt.Errorf("risk: 查询日度盈亏失败: %w", err)
	}
	return result, nil
}

// Record 累加一笔已实现盈亏，返回最新状态。
func (t *DailyTracker) Record(ctx context.Context, ts time.Time, pnl float64) (DailyStatus, error) {
	var result DailyStatus

	tradingDate := tradingDay(ts, t.cfg.DailyLossResetHour)
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("risk: 开启事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO risk_daily_pnl (trading_date, realized_pnl, trades, halted, updated_at)
		 VALUES (?, ?, 1, 0, ?)
		 ON CONFLICT(trading_date) DO UPDATE SET
			realized_pnl = realized_pnl + excluded.realized_pnl,
			trades = trades + 1,
			updated_at = excluded.updated_at`,
		tradingDate, pnl, now,
	); err != nil {
		err = fmt.Errorf("risk: 写入日度盈亏失败: %w", err)
		return result, err
	}

	var (
		realized  float64
		trades    int
		haltedInt int
	)
	if err = tx.QueryRowContext(ctx,
		`SELECT realized_pnl, trades, halted FROM risk_daily_pnl WHERE trading_date = ?`, tradingDate,
	).Scan(&realized, &trades, &haltedInt); err != nil {
		err = fmt.Errorf("risk: 查询日度盈亏失败: %w", err)
		return result, err
	}
	halted := haltedInt == 1

	if !halted && t.cfg.MaxDailyLoss > 0 && realized <= -t.cfg.MaxDailyLoss {
		halted = true
		if _, err = tx.ExecContext(ctx,
			`UPDATE risk_daily_pnl SET halted = 1, updated_at = ? WHERE trading_date = ?`,
			now, tradingDate,
		); err != nil {
			err = fmt.Errorf("risk: 更新日停交易状态失败: %w", err)
			return result, err
		}

		msg := fmt.Sprintf("当日已实现亏损 %.4f 超过上限 %.4f，停止开新网格", -realized, t.cfg.MaxDailyLoss)
		if err = t.logEventTx(ctx, tx, tradingDate, "daily_halt", msg, ""); err != nil {
			return result, err
		}

		t.logger.Warn("触发日度亏损限制", zap.String("trading_date", tradingDate), zap.Float64("realized_pnl", realized))
	}

	result = DailyStatus{
		TradingDate: tradingDate,
		RealizedPnL: realized,
		Trades:      trades,
		Limit:       t.cfg.MaxDailyLoss,
		Halted:      halted,
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return result, fmt.Errorf("risk: 提交事务失败: %w", commitErr)
	}

	return result, nil
}

// LogEvent 记录风控事件。
func (t *DailyTracker) LogEvent(ctx context.Context, eventType, message, details, tradingDate string) error {
	if eventType == "" {
		return errors.New("risk: eventType 不能为空")
	}
	if tradingDate == "" {
		tradingDate = tradingDay(time.Now().UTC(), t.cfg.DailyLossResetHour)
	}

	_, err := t.db.ExecContext(ctx,
		`INSERT INTO risk_activity_log (occurred_at, event_type, message, details, trading_date)
		 VALUES (?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), eventType, message, details, tradingDate,
	)
	if err != nil {
		return fmt.Errorf("risk: 写入风险事件日志失败: %w", err)
	}

	return nil
}

// CountEvents 统计某交易日某类事件数量。
func (t *DailyTracker) CountEvents(ctx context.Context, eventType, tradingDate string) (int, error) {
	var n int
	err := t.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM risk_activity_log WHERE event_type = ? AND trading_date = ?`,
		eventType, tradingDate,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("risk: 统计风险事件失败: %w", err)
	}
	return n, nil
}

func (t *DailyTracker) logEventTx(ctx context.Context, tx *sql.Tx, tradingDate, eventType, message, details string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO risk_activity_log (occurred_at, event_type, message, details, trading_date)
		 VALUES (?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), eventType, message, details, tradingDate,
	)
	if err != nil {
		return fmt.Errorf("risk: 记录风险事件失败: %w", err)
	}
	return nil
}

func tradingDay(ts time.Time, resetHour int) string {
	if resetHour < 0 || resetHour > 23 {
		resetHour = 0
	}
	utc := ts.UTC()
	shifted := utc.Add(-time.Duration(resetHour) * time.Hour)
	day := time.Date(shifted.Year(), shifted.Month(), shifted.Day(), 0, 0, 0, 0, time.UTC)
	return day.Format("2006-01-02")
}

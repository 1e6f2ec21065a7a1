package execution

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"fuzzy-grid/internal/exchange"
	"fuzzy-grid/internal/position"
)

// Executor 负责撤销全部挂单并按市价平掉全部仓位。
type Executor struct {
	gateway exchange.Gateway
	book    *position.Manager
	logger  *zap.Logger
}

// NewExecutor 创建执行器。
func NewExecutor(gw exchange.Gateway, symbol string, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		gateway: gw,
		book:    position.NewManager(gw, symbol, logger),
		logger:  logger,
	}
}

// Flatten 重新查询账本后撤单、平仓。每笔操作独立执行，失败不会中断其余操作，
// 所有失败合并为一个错误返回。
func (e *Executor) Flatten(ctx context.Context, reason Reason) (Result, error) {
	result := Result{
		Reason:        reason,
		ExecutionTime: time.Now().UTC(),
		Notes:         make([]string, 0),
	}

	book, err := e.book.FetchBook(ctx)
	if err != nil {
		return result, fmt.Errorf("execution: 强平前查询账本失败: %w", err)
	}

	var errs error
	for _, order := range book.Orders {
		outcome := CancelOutcome{OrderID: order.ID, Type: order.Type}
		if err := e.gateway.CancelOrder(ctx, book.Symbol, order.ID); err != nil {
			outcome.Err = err
			errs = multierr.Append(errs, fmt.Errorf("撤单 %s: %w", order.ID, err))
			result.Notes = append(result.Notes, fmt.Sprintf("撤单失败: %s %v", order.ID, err))
			e.logger.Warn("撤单失败", zap.String("id", order.ID), zap.String("type", string(order.Type)), zap.Error(err))
		}
		result.Cancelled = append(result.Cancelled, outcome)
	}

	if len(book.Positions) > 0 {
		exit := e.exitPrice(ctx, book.Symbol)
		for _, pos := range book.Positions {
			if pos.Quantity == 0 {
				continue
			}
			outcome := e.closePosition(ctx, book.Symbol, pos, exit)
			if outcome.Err != nil {
				errs = multierr.Append(errs, fmt.Errorf("平仓 %s: %w", pos.Symbol, outcome.Err))
				result.Notes = append(result.Notes, fmt.Sprintf("平仓失败: %s %v", pos.Symbol, outcome.Err))
			}
			result.Closed = append(result.Closed, outcome)
		}
	}

	fields := []zap.Field{
		zap.String("reason", string(reason)),
		zap.Int("cancelled", len(result.Cancelled)),
		zap.Int("closed", len(result.Closed)),
		zap.Float64("realized_pnl", result.RealizedPnL()),
	}
	if errs != nil {
		e.logger.Error("强平部分失败", append(fields, zap.Error(errs))...)
		return result, fmt.Errorf("execution: 强平未完全成功: %w", errs)
	}
	if !result.Empty() {
		e.logger.Info("强平完成", fields...)
	}
	return result, nil
}

func (e *Executor) closePosition(ctx context.Context, symbol string, pos exchange.Position, exit float64) CloseOutcome {
	side := exchange.SideSell
	if pos.Quantity < 0 {
		side = exchange.SideBuy
	}
	if symbol == "" {
		symbol = pos.Symbol
	}
	intent := exchange.OrderIntent{
		Symbol:     symbol,
		Side:       side,
		Type:       exchange.OrderTypeMarket,
		Quantity:   math.Abs(pos.Quantity),
		ReduceOnly: true,
	}
	outcome := CloseOutcome{Position: pos, Intent: intent}

	res, err := e.gateway.PlaceOrder(ctx, intent)
	if err != nil {
		outcome.Err = err
		e.logger.Warn("市价平仓失败", zap.Float64("qty", pos.Quantity), zap.Error(err))
		return outcome
	}

	if exit <= 0 {
		exit = pos.MarkPrice
	}
	outcome.OrderID = res.ID
	outcome.ExitPrice = exit
	outcome.RealizedPnL = position.RealizedPnL(pos, exit)
	e.logger.Info("市价平仓",
		zap.String("id", res.ID),
		zap.Float64("qty", pos.Quantity),
		zap.Float64("entry", pos.EntryPrice),
		zap.Float64("exit", exit),
		zap.Float64("pnl", outcome.RealizedPnL),
	)
	return outcome
}

func (e *Executor) exitPrice(ctx context.Context, symbol string) float64 {
	price, err := e.gateway.Ticker(ctx, symbol)
	if err != nil {
		e.logger.Warn("获取平仓参考价失败，使用标记价格", zap.Error(err))
		return 0
	}
	return price
}

package grid

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"fuzzy-grid/internal/config"
	"fuzzy-grid/internal/exchange"
)

// Planner 根据方向判断生成限价网格，并为每一档挂止盈、止损与追踪止损。
type Planner struct {
	gateway exchange.Gateway
	cfg     config.GridConfig
	trading config.TradingConfig
	logger  *zap.Logger
}

// NewPlanner 创建网格规划器。
func NewPlanner(gw exchange.Gateway, cfg config.GridConfig, trading config.TradingConfig, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		gateway: gw,
		cfg:     cfg,
		trading: trading,
		logger:  logger,
	}
}

// Plan 计算网格档位与保护单，不访问交易所。
func (p *Planner) Plan(in Input) (Plan, error) {
	if !in.Verdict.IsDirectional() {
		return Plan{}, ErrNotDirectional
	}
	if in.Price <= 0 || math.IsNaN(in.Price) {
		return Plan{}, fmt.Errorf("%w: 当前价格 %v", ErrInvalidPriceLevel, in.Price)
	}

	filters := in.Filters
	tick := filters.TickSize
	if tick <= 0 {
		tick = math.Pow(10, -float64(filters.PricePrecision))
	}

	atr := math.Max(in.ATR, 0)
	minDist := math.Max(float64(p.cfg.MinTicks)*tick, p.cfg.MinDistancePct*in.Price)
	spacing := math.Max(atr*p.cfg.SpacingATR, minDist)
	buffer := math.Max(atr*p.cfg.EntryBufferATR, minDist)
	offset := atr*p.cfg.BracketATR + math.Max(atr*p.cfg.BracketPadATR, minDist)

	qty := RoundToTick(p.trading.BaseNotional*float64(p.trading.Leverage)/in.Price, filters.StepSize, filters.QuantityPrecision)
	if qty <= 0 {
		return Plan{}, ErrInvalidQuantity
	}

	side := in.Verdict.Side()
	plan := Plan{
		Symbol:  in.Symbol,
		Side:    side,
		Spacing: spacing,
		Buffer:  buffer,
		Offset:  offset,
	}

	occupied := make(map[string]exchange.OrderSide, len(in.Open))
	for _, o := range in.Open {
		if o.Type == exchange.OrderTypeLimit {
			occupied[PriceKey(o.Price, filters.PricePrecision)] = o.Side
		}
	}
	seen := make(map[string]struct{}, p.trading.GridCount)

	for i := 1; i <= p.trading.GridCount; i++ {
		raw := in.Price - spacing*float64(i) - buffer
		if side == exchange.SideSell {
			raw = in.Price + spacing*float64(i) + buffer
		}

		entry := exchange.OrderIntent{
			Symbol:      in.Symbol,
			Side:        side,
			Type:        exchange.OrderTypeLimit,
			Quantity:    qty,
			TimeInForce: p.trading.TimeInForce,
		}

		price := RoundToTick(raw, tick, filters.PricePrecision)
		entry.Price = price
		if price <= 0 || price >= 2*in.Price {
			plan.Skipped = append(plan.Skipped, Outcome{
				Intent:  entry,
				Skipped: true,
				Reason:  "价格超出合理区间",
				Err:     fmt.Errorf("%w: 第%d档 %v", ErrInvalidPriceLevel, i, raw),
			})
			continue
		}

		key := PriceKey(price, filters.PricePrecision)
		if _, dup := seen[key]; dup {
			plan.Skipped = append(plan.Skipped, Outcome{Intent: entry, Skipped: true, Reason: "网格内价格重复"})
			continue
		}
		seen[key] = struct{}{}

		leg := Leg{Index: i, Entry: entry}
		if existingSide, ok := occupied[key]; ok {
			if existingSide != side {
				plan.Skipped = append(plan.Skipped, Outcome{Intent: entry, Skipped: true, Reason: "该价格已有反向挂单"})
				continue
			}
			leg.Existing = true
		}

		p.attachBrackets(&leg, atr, offset, minDist, tick, filters.PricePrecision, in.Price)
		plan.Legs = append(plan.Legs, leg)
	}

	// 只有账本为空时才随网格市价开仓，重复规划不会叠加仓位。
	if p.trading.MarketEntry && len(in.Open) == 0 {
		leg := Leg{Entry: exchange.OrderIntent{
			Symbol:   in.Symbol,
			Side:     side,
			Type:     exchange.OrderTypeMarket,
			Price:    RoundToTick(in.Price, tick, filters.PricePrecision),
			Quantity: qty,
		}}
		p.attachBrackets(&leg, atr, offset, minDist, tick, filters.PricePrecision, in.Price)
		plan.Market = &leg
	}

	return plan, nil
}

func (p *Planner) attachBrackets(leg *Leg, atr, offset, minDist, tick float64, precision int, current float64) {
	entry := leg.Entry
	closing := entry.Side.Opposite()
	dir := 1.0
	if entry.Side == exchange.SideSell {
		dir = -1
	}

	bracket := func(kind exchange.OrderType, stop float64) exchange.OrderIntent {
		return exchange.OrderIntent{
			Symbol:     entry.Symbol,
			Side:       closing,
			Type:       kind,
			StopPrice:  stop,
			Quantity:   entry.Quantity,
			ReduceOnly: true,
		}
	}

	tp := RoundToTick(entry.Price+dir*offset, tick, precision)
	if tp > 0 && (tp-entry.Price)*dir > 0 {
		b := bracket(exchange.OrderTypeTakeProfit, tp)
		leg.TakeProfit = &b
	} else {
		leg.Rejected = append(leg.Rejected, Outcome{
			Intent:  bracket(exchange.OrderTypeTakeProfit, tp),
			Skipped: true,
			Reason:  "止盈价位于入场价错误一侧",
			Err:     fmt.Errorf("%w: 第%d档止盈 %v 入场 %v", ErrInvalidPriceLevel, leg.Index, tp, entry.Price),
		})
	}

	sl := RoundToTick(entry.Price-dir*offset, tick, precision)
	if sl > 0 && (entry.Price-sl)*dir > 0 {
		b := bracket(exchange.OrderTypeStopMarket, sl)
		leg.StopLoss = &b
	} else {
		leg.Rejected = append(leg.Rejected, Outcome{
			Intent:  bracket(exchange.OrderTypeStopMarket, sl),
			Skipped: true,
			Reason:  "止损价位于入场价错误一侧",
			Err:     fmt.Errorf("%w: 第%d档止损 %v 入场 %v", ErrInvalidPriceLevel, leg.Index, sl, entry.Price),
		})
	}

	trailing := p.cfg.Trailing
	if !trailing.Enabled {
		return
	}
	activation := RoundToTick(entry.Price+dir*math.Max(trailing.ActivationATR*atr, minDist), tick, precision)
	if activation <= 0 || (activation-entry.Price)*dir <= 0 {
		return
	}
	b := exchange.OrderIntent{
		Symbol:          entry.Symbol,
		Side:            closing,
		Type:            exchange.OrderTypeTrailingStop,
		Quantity:        entry.Quantity,
		ReduceOnly:      true,
		ActivationPrice: activation,
		CallbackRate:    CallbackRate(atr, current, trailing.CallbackFactor, trailing.MinCallback, trailing.MaxCallback),
	}
	leg.Trailing = &b
}

// Place 查询交易所现状，提交缺失的网格档位与保护单。单个委托失败只跳过该委托。
func (p *Planner) Place(ctx context.Context, in Input) (Report, error) {
	if in.Filters == (exchange.SymbolFilters{}) {
		filters, err := p.gateway.SymbolFilters(ctx, in.Symbol)
		if err != nil {
			return Report{}, fmt.Errorf("grid: 获取交易对精度失败: %w", err)
		}
		in.Filters = filters
	}

	open, err := p.gateway.OpenOrders(ctx, in.Symbol)
	if err != nil {
		return Report{}, fmt.Errorf("grid: 获取挂单失败: %w", err)
	}
	in.Open = open

	plan, err := p.Plan(in)
	if err != nil {
		return Report{}, err
	}

	report := Report{Plan: plan}
	report.Outcomes = append(report.Outcomes, plan.Skipped...)
	for _, skipped := range plan.Skipped {
		p.logger.Info("跳过网格档位",
			zap.Float64("price", skipped.Intent.Price),
			zap.String("reason", skipped.Reason),
			zap.Error(skipped.Err),
		)
	}

	legs := plan.Legs
	if plan.Market != nil {
		legs = append(legs[:len(legs):len(legs)], *plan.Market)
	}

	for idx, leg := range legs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if idx > 0 && !leg.Existing {
			if err := p.pause(ctx); err != nil {
				return report, err
			}
		}

		if leg.Existing {
			report.Outcomes = append(report.Outcomes, Outcome{Intent: leg.Entry, Skipped: true, Reason: "该价格已有同向挂单"})
		} else {
			outcome := p.submit(ctx, leg.Entry)
			report.Outcomes = append(report.Outcomes, outcome)
			if !outcome.Placed {
				// 入场单未确认，不挂保护单。
				continue
			}
		}

		for _, rejected := range leg.Rejected {
			p.logger.Warn("保护单价格无效，跳过",
				zap.String("type", string(rejected.Intent.Type)),
				zap.Float64("stop", rejected.Intent.StopPrice),
				zap.Float64("entry", leg.Entry.Price),
			)
			report.Outcomes = append(report.Outcomes, rejected)
		}

		for _, bracket := range leg.Brackets() {
			report.Outcomes = append(report.Outcomes, p.placeBracket(ctx, bracket, in.Filters.PricePrecision))
		}
	}

	p.logger.Info("网格提交完成",
		zap.String("symbol", in.Symbol),
		zap.String("side", string(plan.Side)),
		zap.Int("legs", len(plan.Legs)),
		zap.Bool("market_entry", plan.Market != nil),
		zap.Int("placed", report.Placed()),
		zap.Int("failed", report.Failed()),
	)
	return report, nil
}

func (p *Planner) placeBracket(ctx context.Context, intent exchange.OrderIntent, precision int) Outcome {
	open, err := p.gateway.OpenOrders(ctx, intent.Symbol)
	if err != nil {
		p.logger.Warn("查询挂单失败，跳过保护单", zap.String("type", string(intent.Type)), zap.Error(err))
		return Outcome{Intent: intent, Err: err, Reason: "查询挂单失败"}
	}

	target := PriceKey(triggerPrice(intent), precision)
	for _, o := range open {
		if o.Type == intent.Type && PriceKey(o.StopPrice, precision) == target {
			p.logger.Info("保护单已存在，跳过",
				zap.String("type", string(intent.Type)),
				zap.String("stop", target),
			)
			return Outcome{Intent: intent, OrderID: o.ID, Skipped: true, Reason: "同类型同价保护单已存在"}
		}
	}
	return p.submit(ctx, intent)
}

func (p *Planner) submit(ctx context.Context, intent exchange.OrderIntent) Outcome {
	res, err := p.gateway.PlaceOrder(ctx, intent)
	if err != nil {
		p.logger.Warn("委托提交失败，继续后续委托",
			zap.String("type", string(intent.Type)),
			zap.String("side", string(intent.Side)),
			zap.Float64("price", intent.Price),
			zap.Float64("stop", triggerPrice(intent)),
			zap.Error(err),
		)
		return Outcome{Intent: intent, Err: err, Reason: "提交失败"}
	}
	p.logger.Info("委托已提交",
		zap.String("id", res.ID),
		zap.String("type", string(intent.Type)),
		zap.String("side", string(intent.Side)),
		zap.Float64("price", intent.Price),
		zap.Float64("stop", triggerPrice(intent)),
		zap.Float64("qty", intent.Quantity),
	)
	return Outcome{Intent: intent, OrderID: res.ID, Placed: true}
}

func (p *Planner) pause(ctx context.Context) error {
	if p.trading.LegPause <= 0 {
		return nil
	}
	timer := time.NewTimer(p.trading.LegPause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func triggerPrice(intent exchange.OrderIntent) float64 {
	if intent.StopPrice == 0 && intent.Type == exchange.OrderTypeTrailingStop {
		return intent.ActivationPrice
	}
	return intent.StopPrice
}

// IsInvalidPriceLevel 判断错误是否为价格档位无效。
func IsInvalidPriceLevel(err error) bool {
	return errors.Is(err, ErrInvalidPriceLevel)
}

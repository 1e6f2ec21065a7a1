package feature

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fuzzy-grid/internal/config"
	"fuzzy-grid/internal/exchange"
	"fuzzy-grid/internal/indicator"
)

// Snapshot 为一个周期的指标快照，只在当前周期使用。
type Snapshot struct {
	Symbol      string
	GeneratedAt time.Time

	Price      float64
	LastVolume float64
	AvgVolume  float64

	ShortEMA   float64
	LongEMA    float64
	RSI        float64
	ATR        float64
	MACD       float64
	MACDSignal float64
	UpperBand  float64
	MiddleBand float64
	LowerBand  float64
	VWAP       float64
	ADX        float64
}

// Extractor 根据市场快照计算指标。
type Extractor struct {
	cfg    config.IndicatorConfig
	logger *zap.Logger
}

// NewExtractor 创建指标提取器。
func NewExtractor(cfg config.IndicatorConfig, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		cfg:    cfg,
		logger: logger,
	}
}

// Extract 计算指标快照。K线不足时返回 indicator.ErrInsufficientData。
func (e *Extractor) Extract(ctx context.Context, snapshot exchange.MarketSnapshot) (Snapshot, error) {
	candles := snapshot.Candles
	if need := e.cfg.CandlesRequired(); len(candles) < need {
		return Snapshot{}, fmt.Errorf("feature: K线数量不足，至少需要 %d 根，当前 %d: %w", need, len(candles), indicator.ErrInsufficientData)
	}

	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	default:
	}

	series := indicator.NewSeries(candles)
	closes := series.Close
	p := e.cfg

	out := Snapshot{
		Symbol:      snapshot.Symbol,
		GeneratedAt: time.Now().UTC(),
		Price:       snapshot.Price,
		LastVolume:  indicator.Last(series.Volume),
		AvgVolume:   indicator.Mean(indicator.SliceTail(series.Volume, p.VolumeAvgWindow)),
		VWAP:        indicator.VWAP(candles),
	}
	if out.Price <= 0 {
		out.Price = indicator.Last(closes)
	}

	var err error
	if out.ShortEMA, err = indicator.EMA(indicator.SliceTail(closes, p.ShortEMAWindow), p.ShortEMAPeriod); err != nil {
		return Snapshot{}, fmt.Errorf("feature: 短期EMA: %w", err)
	}
	if out.LongEMA, err = indicator.EMA(indicator.SliceTail(closes, p.LongEMAWindow), p.LongEMAPeriod); err != nil {
		return Snapshot{}, fmt.Errorf("feature: 长期EMA: %w", err)
	}
	if out.RSI, err = indicator.RSI(closes, p.RSIPeriod); err != nil {
		return Snapshot{}, fmt.Errorf("feature: RSI: %w", err)
	}
	if out.ATR, err = indicator.ATRWith(candles, p.ATRPeriod, indicator.ATRSmoothing(p.ATRSmoothing)); err != nil {
		return Snapshot{}, fmt.Errorf("feature: ATR: %w", err)
	}

	macd, err := indicator.MACD(closes, p.MACDShort, p.MACDLong, p.MACDSignal)
	if err != nil {
		return Snapshot{}, fmt.Errorf("feature: MACD: %w", err)
	}
	out.MACD = macd.MACD
	out.MACDSignal = macd.Signal

	bands, err := indicator.Bollinger(closes, p.BollingerPeriod, p.BollingerMult)
	if err != nil {
		return Snapshot{}, fmt.Errorf("feature: 布林带: %w", err)
	}
	out.UpperBand = bands.Upper
	out.MiddleBand = bands.Middle
	out.LowerBand = bands.Lower

	if out.ADX, err = indicator.ADX(candles, p.ADXPeriod); err != nil {
		return Snapshot{}, fmt.Errorf("feature: ADX: %w", err)
	}

	e.logger.Debug("指标快照已计算",
		zap.String("symbol", out.Symbol),
		zap.Float64("price", out.Price),
		zap.Float64("ema_short", out.ShortEMA),
		zap.Float64("ema_long", out.LongEMA),
		zap.Float64("rsi", out.RSI),
		zap.Float64("atr", out.ATR),
		zap.Float64("macd", out.MACD),
		zap.Float64("macd_signal", out.MACDSignal),
		zap.Float64("bb_upper", out.UpperBand),
		zap.Float64("bb_lower", out.LowerBand),
		zap.Float64("vwap", out.VWAP),
		zap.Float64("adx", out.ADX),
	)

	return out, nil
}

// Fields 返回用于日志与事件记录的指标字段。
func (s Snapshot) Fields() map[string]float64 {
	return map[string]float64{
		"price":       s.Price,
		"ema_short":   s.ShortEMA,
		"ema_long":    s.LongEMA,
		"rsi":         s.RSI,
		"atr":         s.ATR,
		"macd":        s.MACD,
		"macd_signal": s.MACDSignal,
		"bb_upper":    s.UpperBand,
		"bb_lower":    s.LowerBand,
		"vwap":        s.VWAP,
		"adx":         s.ADX,
		"volume":      s.LastVolume,
		"avg_volume":  s.AvgVolume,
	}
}

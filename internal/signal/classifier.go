// Package signal 将指标快照转换为市场判断。
package signal

import (
	"math"

	"go.uber.org/zap"

	"fuzzy-grid/internal/config"
	"fuzzy-grid/internal/feature"
	"fuzzy-grid/internal/fuzzy"
)

// Classifier 依次执行极端行情闸门与方向分类。
type Classifier struct {
	extreme config.ExtremeConfig
	cfg     config.ClassifierConfig
	logger  *zap.Logger
}

// NewClassifier 创建分类器。
func NewClassifier(extreme config.ExtremeConfig, cfg config.ClassifierConfig, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		extreme: extreme,
		cfg:     cfg,
		logger:  logger,
	}
}

// Extreme 计算极端行情得分。
func (c *Classifier) Extreme(s feature.Snapshot) ExtremeResult {
	ec := c.extreme
	signals := []fuzzy.Signal{
		{Name: "atr_high_volatility", Value: fuzzy.Membership(s.ATR, ec.HighVolatility.Low, ec.HighVolatility.High, fuzzy.Trapezoid)},
		{Name: "atr_extreme_volatility", Value: fuzzy.Membership(s.ATR, ec.ExtremeVolatility.Low, ec.ExtremeVolatility.High, fuzzy.Trapezoid)},
		{Name: "volume_spike", Value: fuzzy.Membership(s.LastVolume, s.AvgVolume*ec.VolumeSpike.Low, s.AvgVolume*ec.VolumeSpike.High, fuzzy.Triangle)},
		{Name: "price_below_vwap", Value: fuzzy.Membership(s.Price, s.VWAP*ec.BelowVWAP.Low, s.VWAP*ec.BelowVWAP.High, fuzzy.Linear)},
		{Name: "price_above_vwap", Value: fuzzy.Membership(s.Price, s.VWAP*ec.AboveVWAP.Low, s.VWAP*ec.AboveVWAP.High, fuzzy.Linear)},
	}

	score := fuzzy.Aggregate(fuzzy.Values(signals), ec.Weights)
	return ExtremeResult{
		Score:     score,
		Threshold: ec.Threshold,
		Signals:   signals,
		Extreme:   score >= ec.Threshold,
	}
}

// Threshold 返回当前波动下的方向判断阈值，波动越高阈值越高。
func (c *Classifier) Threshold(s feature.Snapshot) float64 {
	threshold := c.cfg.BaseThreshold
	switch {
	case s.ATR > c.cfg.ATRHigh:
		threshold = c.cfg.HighThreshold
	case s.ATR < c.cfg.ATRLow:
		threshold = c.cfg.LowThreshold
	}

	if c.cfg.ADXStrong > 0 && s.ADX >= c.cfg.ADXStrong {
		threshold += c.cfg.ADXBump
	}
	if c.cfg.MaxThreshold > 0 {
		threshold = math.Min(threshold, c.cfg.MaxThreshold)
	}
	return threshold
}

// BuySignals 构造做多信号组。
func (c *Classifier) BuySignals(s feature.Snapshot) []fuzzy.Signal {
	return []fuzzy.Signal{
		{Name: "rsi_oversold", Value: fuzzy.Membership(s.RSI, c.cfg.Oversold.Low, c.cfg.Oversold.High, fuzzy.Linear)},
		{Name: "macd_above_signal", Value: fuzzy.Bool(s.MACD > s.MACDSignal)},
		{Name: "price_near_lower_band", Value: fuzzy.Membership(s.Price, s.LowerBand, s.LowerBand*(1+c.cfg.BandProximity), fuzzy.Trapezoid)},
		{Name: "price_below_vwap", Value: fuzzy.Membership(s.Price, s.VWAP*(1-c.cfg.VWAPDistance), s.VWAP, fuzzy.Linear)},
		{Name: "ema_bullish", Value: fuzzy.Bool(s.ShortEMA > s.LongEMA)},
	}
}

// SellSignals 构造做空信号组，为做多信号的镜像。
func (c *Classifier) SellSignals(s feature.Snapshot) []fuzzy.Signal {
	return []fuzzy.Signal{
		{Name: "rsi_overbought", Value: fuzzy.Complement(fuzzy.Membership(s.RSI, c.cfg.Overbought.Low, c.cfg.Overbought.High, fuzzy.Linear))},
		{Name: "macd_below_signal", Value: fuzzy.Bool(s.MACD < s.MACDSignal)},
		{Name: "price_near_upper_band", Value: fuzzy.Membership(s.Price, s.UpperBand*(1-c.cfg.BandProximity), s.UpperBand, fuzzy.Trapezoid)},
		{Name: "price_above_vwap", Value: fuzzy.Complement(fuzzy.Membership(s.Price, s.VWAP, s.VWAP*(1+c.cfg.VWAPDistance), fuzzy.Linear))},
		{Name: "ema_bearish", Value: fuzzy.Bool(s.ShortEMA < s.LongEMA)},
	}
}

// Classify 先执行极端行情闸门，未触发时再做方向分类。
// 平局或得分低于阈值一律返回 NEUTRAL。
func (c *Classifier) Classify(s feature.Snapshot) Decision {
	extreme := c.Extreme(s)
	if extreme.Extreme {
		decision := Decision{Verdict: VerdictExtreme, Extreme: extreme, Reason: "极端行情"}
		c.logger.Warn("检测到极端行情",
			zap.String("symbol", s.Symbol),
			zap.Float64("score", extreme.Score),
			zap.Float64("threshold", extreme.Threshold),
			zap.Float64("atr", s.ATR),
		)
		return decision
	}

	buySignals := c.BuySignals(s)
	sellSignals := c.SellSignals(s)
	decision := Decision{
		Verdict:     VerdictNeutral,
		BuyScore:    fuzzy.Aggregate(fuzzy.Values(buySignals), c.cfg.BuyWeights),
		SellScore:   fuzzy.Aggregate(fuzzy.Values(sellSignals), c.cfg.SellWeights),
		Threshold:   c.Threshold(s),
		BuySignals:  buySignals,
		SellSignals: sellSignals,
		Extreme:     extreme,
	}

	switch {
	case decision.BuyScore > decision.SellScore && decision.BuyScore >= decision.Threshold:
		decision.Verdict = VerdictLong
	case decision.SellScore > decision.BuyScore && decision.SellScore >= decision.Threshold:
		decision.Verdict = VerdictShort
	case decision.BuyScore == decision.SellScore:
		decision.Reason = "多空得分相同"
	default:
		decision.Reason = "得分低于阈值"
	}

	if c.cfg.RequireTrendAlignment {
		if decision.Verdict == VerdictLong && s.ShortEMA < s.LongEMA {
			decision.Verdict = VerdictNeutral
			decision.Reason = "做多与均线趋势相反"
		}
		if decision.Verdict == VerdictShort && s.ShortEMA > s.LongEMA {
			decision.Verdict = VerdictNeutral
			decision.Reason = "做空与均线趋势相反"
		}
	}

	c.logger.Info("市场判断",
		zap.String("symbol", s.Symbol),
		zap.String("verdict", string(decision.Verdict)),
		zap.Float64("buy_score", decision.BuyScore),
		zap.Float64("sell_score", decision.SellScore),
		zap.Float64("threshold", decision.Threshold),
		zap.Float64("extreme_score", extreme.Score),
		zap.String("reason", decision.Reason),
	)

	return decision
}

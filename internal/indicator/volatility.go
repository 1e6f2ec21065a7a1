package indicator

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"

	"fuzzy-grid/internal/exchange"
)

// ATRSmoothing 选择 ATR 的平滑方式。
type ATRSmoothing string

const (
	ATRSimple ATRSmoothing = "simple"
	ATRWilder ATRSmoothing = "wilder"
)

// TrueRanges 返回第 1 根起每根K线的真实波幅。
func TrueRanges(candles []exchange.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		cur := candles[i]
		prevClose := candles[i-1].Close
		tr := math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prevClose), math.Abs(cur.Low-prevClose)))
		out = append(out, tr)
	}
	return out
}

// ATR 为最近 period 个真实波幅的简单平均。
func ATR(candles []exchange.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("indicator: ATR 周期非法: %d", period)
	}
	if len(candles) < period+1 {
		return 0, insufficient("ATR", len(candles), period+1)
	}
	return Mean(SliceTail(TrueRanges(candles), period)), nil
}

// WilderATR 使用 talib 的 Wilder 平滑 ATR。
func WilderATR(candles []exchange.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("indicator: ATR 周期非法: %d", period)
	}
	if len(candles) < period+1 {
		return 0, insufficient("ATR", len(candles), period+1)
	}
	series := NewSeries(candles)
	value := Last(talib.Atr(series.High, series.Low, series.Close, period))
	if math.IsNaN(value) || value < 0 {
		return 0, nil
	}
	return value, nil
}

// ATRWith 根据平滑方式计算 ATR。
func ATRWith(candles []exchange.Candle, period int, smoothing ATRSmoothing) (float64, error) {
	if smoothing == ATRWilder {
		return WilderATR(candles, period)
	}
	return ATR(candles, period)
}

// ADX 计算趋势强度，需要至少 2*period+1 根K线。
func ADX(candles []exchange.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("indicator: ADX 周期非法: %d", period)
	}
	if len(candles) < 2*period+1 {
		return 0, insufficient("ADX", len(candles), 2*period+1)
	}
	series := NewSeries(candles)
	value := Last(talib.Adx(series.High, series.Low, series.Close, period))
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, nil
	}
	return value, nil
}

// VWAP 为整个窗口的成交量加权典型价格，累计成交量为 0 时返回 0。
func VWAP(candles []exchange.Candle) float64 {
	var pv, volume float64
	for _, c := range candles {
		typical := (c.High + c.Low + c.Close) / 3
		pv += typical * c.Volume
		volume += c.Volume
	}
	return SafeDivide(pv, volume)
}

package indicator

import (
	"errors"
	"fmt"

	talib "github.com/markcheno/go-talib"
)

// ErrInsufficientData 表示序列长度不足以计算指标，调用方应跳过本周期。
var ErrInsufficientData = errors.New("indicator: 数据不足")

func insufficient(name string, have, need int) error {
	return fmt.Errorf("%w: %s 需要 %d 条，实际 %d 条", ErrInsufficientData, name, need, have)
}

// MACDResult 保存 MACD 关键值。
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// BollingerResult 保存布林带数据。
type BollingerResult struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// EMASeries 返回从第 period 个元素起的 EMA 序列，种子为前 period 个元素的简单均值。
// 返回值第 k 项对应输入下标 period-1+k。
func EMASeries(series []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("indicator: EMA 周期非法: %d", period)
	}
	if len(series) < period {
		return nil, insufficient("EMA", len(series), period)
	}
	return talib.Ema(series, period)[period-1:], nil
}

// EMA 返回序列最新的 EMA 值。
func EMA(series []float64, period int) (float64, error) {
	values, err := EMASeries(series, period)
	if err != nil {
		return 0, err
	}
	return Last(values), nil
}

// RSI 计算 Wilder 平滑的相对强弱指标。序列中没有任何下跌时饱和为 100。
func RSI(closes []float64, period int) (float64, error) {
	if period < 2 {
		return 0, fmt.Errorf("indicator: RSI 周期非法: %d", period)
	}
	if len(closes) <= period {
		return 0, insufficient("RSI", len(closes), period+1)
	}
	if !hasDecline(closes) {
		return 100, nil
	}
	return Last(talib.Rsi(closes, period)), nil
}

func hasDecline(values []float64) bool {
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			return true
		}
	}
	return false
}

// MACD 计算 MACD 线与信号线，要求序列长度不少于 long+signal。
// 信号线以 MACD 线首个有定义区间的简单均值为种子，与 talib.Macd 的对齐方式不同。
func MACD(series []float64, short, long, signal int) (MACDResult, error) {
	if short <= 0 || long <= short || signal <= 0 {
		return MACDResult{}, fmt.Errorf("indicator: MACD 参数非法: %d/%d/%d", short, long, signal)
	}
	if len(series) < long+signal {
		return MACDResult{}, insufficient("MACD", len(series), long+signal)
	}

	shortEMA, err := EMASeries(series, short)
	if err != nil {
		return MACDResult{}, err
	}
	longEMA, err := EMASeries(series, long)
	if err != nil {
		return MACDResult{}, err
	}

	// 两条 EMA 同时有定义的下标从 long-1 开始。
	offset := long - short
	line := make([]float64, len(longEMA))
	for i := range longEMA {
		line[i] = shortEMA[i+offset] - longEMA[i]
	}

	signalValue, err := EMA(line, signal)
	if err != nil {
		return MACDResult{}, err
	}

	macdValue := Last(line)
	return MACDResult{
		MACD:      macdValue,
		Signal:    signalValue,
		Histogram: macdValue - signalValue,
	}, nil
}

// Bollinger 使用最近 period 个收盘价的简单均值与总体标准差计算布林带。
func Bollinger(series []float64, period int, mult float64) (BollingerResult, error) {
	if period <= 0 {
		return BollingerResult{}, fmt.Errorf("indicator: 布林带周期非法: %d", period)
	}
	if len(series) < period {
		return BollingerResult{}, insufficient("Bollinger", len(series), period)
	}

	upper, middle, lower := talib.BBands(series, period, mult, mult, talib.SMA)
	return BollingerResult{
		Upper:  Last(upper),
		Middle: Last(middle),
		Lower:  Last(lower),
	}, nil
}

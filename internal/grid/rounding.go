package grid

import (
	"math"
	"strconv"
)

// RoundTo 按小数位四舍五入。
func RoundTo(value float64, precision int) float64 {
	if precision < 0 {
		precision = 0
	}
	scale := math.Pow(10, float64(precision))
	return math.Round(value*scale) / scale
}

// RoundToTick 先对齐到最小价格变动单位，再按价格精度取整。
func RoundToTick(value, tick float64, precision int) float64 {
	if tick > 0 {
		value = math.Round(value/tick) * tick
	}
	return RoundTo(value, precision)
}

// PriceKey 返回按价格精度格式化的字符串，用于去重比较。
func PriceKey(value float64, precision int) string {
	if precision < 0 {
		precision = 0
	}
	return strconv.FormatFloat(RoundTo(value, precision), 'f', precision, 64)
}

// CallbackRate 将 ATR 相对价格的百分比换算为追踪止损回调比例，保留一位小数并限制在区间内。
func CallbackRate(atr, price, factor, minRate, maxRate float64) float64 {
	rate := 0.0
	if price > 0 {
		rate = atr / price * 100 * factor
	}
	rate = math.Round(rate*10) / 10
	if rate < minRate {
		rate = minRate
	}
	if maxRate > 0 && rate > maxRate {
		rate = maxRate
	}
	return rate
}

// Package fuzzy 提供模糊隶属度函数与加权聚合。
package fuzzy

import "math"

// Shape 为隶属度函数形状。
type Shape string

const (
	Linear    Shape = "linear"
	Triangle  Shape = "triangle"
	Trapezoid Shape = "trapezoid"
)

// trapezoidRamp 为梯形两侧斜坡宽度占区间宽度的比例。
const trapezoidRamp = 0.1

// Signal 为带名称的隶属度，取值 [0,1]。
type Signal struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Membership 计算 value 在 [low, high] 区间上的隶属度。
//
// linear 为下降斜坡：value<=low 为 1，value>=high 为 0。
// triangle 在区间中点取 1，区间外为 0。
// trapezoid 在区间内为 1，两侧各有 0.1*(high-low) 宽的线性过渡。
func Membership(value, low, high float64, shape Shape) float64 {
	if math.IsNaN(value) {
		return 0
	}

	switch shape {
	case Linear:
		if value <= low {
			return 1
		}
		if value >= high {
			return 0
		}
		return clamp((high - value) / (high - low))
	case Triangle:
		if value <= low || value >= high {
			return 0
		}
		mid := (low + high) / 2
		if value <= mid {
			return clamp((value - low) / (mid - low))
		}
		return clamp((high - value) / (high - mid))
	case Trapezoid:
		if value >= low && value <= high {
			return 1
		}
		ramp := trapezoidRamp * (high - low)
		if ramp <= 0 {
			return 0
		}
		if value < low {
			if value <= low-ramp {
				return 0
			}
			return clamp((value - (low - ramp)) / ramp)
		}
		if value >= high+ramp {
			return 0
		}
		return clamp((high + ramp - value) / ramp)
	default:
		return 0
	}
}

// Complement 返回 1-m，用于构造镜像的上升斜坡。
func Complement(m float64) float64 {
	return 1 - clamp(m)
}

// Bool 将布尔条件转换为 0/1 隶属度。
func Bool(cond bool) float64 {
	if cond {
		return 1
	}
	return 0
}

// Aggregate 返回加权平均。
// signals 为空返回 0；weights 为空时等权；长度不一致时只取重叠部分；权重和为 0 返回 0。
func Aggregate(signals []float64, weights []float64) float64 {
	if len(signals) == 0 {
		return 0
	}

	if len(weights) == 0 {
		sum := 0.0
		for _, s := range signals {
			sum += s
		}
		return sum / float64(len(signals))
	}

	n := len(signals)
	if len(weights) < n {
		n = len(weights)
	}

	var weighted, total float64
	for i := 0; i < n; i++ {
		weighted += signals[i] * weights[i]
		total += weights[i]
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// Values 提取信号值。
func Values(signals []Signal) []float64 {
	out := make([]float64, len(signals))
	for i, s := range signals {
		out[i] = s.Value
	}
	return out
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

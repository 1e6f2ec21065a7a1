package indicator

import (
	"errors"
	"math"
	"testing"

	"fuzzy-grid/internal/exchange"
)

func TestEMA_SeededWithSimpleAverage(t *testing.T) {
	series := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	values, err := EMASeries(series, 3)
	if err != nil {
		t.Fatalf("EMASeries returned error: %v", err)
	}
	if len(values) != len(series)-2 {
		t.Fatalf("unexpected length: %d", len(values))
	}
	if values[0] != 2 {
		t.Errorf("expected seed 2, got %v", values[0])
	}
	// 线性序列、k=0.5 时 EMA 恒滞后 1。
	if got := Last(values); math.Abs(got-9) > 1e-9 {
		t.Errorf("expected 9, got %v", got)
	}
}

func TestEMA_BoundedBySeries(t *testing.T) {
	series := []float64{10, 12, 9, 15, 11, 8, 14, 13, 10, 9, 16, 7}
	lo, hi := 7.0, 16.0
	for period := 1; period <= len(series); period++ {
		v, err := EMA(series, period)
		if err != nil {
			t.Fatalf("period %d: %v", period, err)
		}
		if v < lo || v > hi {
			t.Errorf("period %d: ema %v outside [%v,%v]", period, v, lo, hi)
		}
	}
}

func TestEMA_InsufficientData(t *testing.T) {
	_, err := EMA([]float64{1, 2}, 5)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestRSI_Saturation(t *testing.T) {
	up := make([]float64, 20)
	down := make([]float64, 20)
	for i := range up {
		up[i] = float64(100 + i)
		down[i] = float64(100 - i)
	}

	if v, err := RSI(up, 14); err != nil || v != 100 {
		t.Errorf("all gains: expected 100, got %v (%v)", v, err)
	}
	if v, err := RSI(down, 14); err != nil || v != 0 {
		t.Errorf("all losses: expected 0, got %v (%v)", v, err)
	}
}

func TestRSI_Bounded(t *testing.T) {
	series := []float64{44, 44.3, 44.1, 43.6, 44.3, 44.8, 45.1, 45.4, 45.8, 46.1, 45.9, 46.2, 45.6, 46.3, 46.3, 46, 46.4, 46.2, 45.6, 46.2}
	v, err := RSI(series, 14)
	if err != nil {
		t.Fatalf("RSI returned error: %v", err)
	}
	if v <= 0 || v >= 100 {
		t.Fatalf("expected rsi inside (0,100), got %v", v)
	}

	if _, err := RSI(series[:14], 14); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestATR_SimpleMean(t *testing.T) {
	candles := flatRangeCandles(20, 100, 2)

	v, err := ATR(candles, 14)
	if err != nil {
		t.Fatalf("ATR returned error: %v", err)
	}
	if math.Abs(v-2) > 1e-9 {
		t.Fatalf("expected 2, got %v", v)
	}

	w, err := WilderATR(candles, 14)
	if err != nil {
		t.Fatalf("WilderATR returned error: %v", err)
	}
	if math.Abs(w-2) > 1e-6 {
		t.Fatalf("expected wilder 2, got %v", w)
	}
}

func TestATR_ZeroOnlyForFlatBars(t *testing.T) {
	flat := flatRangeCandles(16, 100, 0)
	v, err := ATR(flat, 14)
	if err != nil || v != 0 {
		t.Fatalf("expected 0, got %v (%v)", v, err)
	}

	if _, err := ATR(flat[:14], 14); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestMACD_RequiresLongPlusSignal(t *testing.T) {
	series := make([]float64, 34)
	for i := range series {
		series[i] = 100
	}
	if _, err := MACD(series, 12, 26, 9); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}

	series = append(series, 100)
	res, err := MACD(series, 12, 26, 9)
	if err != nil {
		t.Fatalf("MACD returned error: %v", err)
	}
	if res.MACD != 0 || res.Signal != 0 {
		t.Fatalf("constant series should yield zero macd, got %+v", res)
	}
}

func TestMACD_RisingSeriesAboveZero(t *testing.T) {
	series := make([]float64, 60)
	for i := range series {
		series[i] = 100 + float64(i)*float64(i)*0.1
	}
	res, err := MACD(series, 12, 26, 9)
	if err != nil {
		t.Fatalf("MACD returned error: %v", err)
	}
	if res.MACD <= 0 || res.MACD <= res.Signal {
		t.Fatalf("accelerating uptrend should keep macd above signal, got %+v", res)
	}
}

func TestBollinger_PopulationStd(t *testing.T) {
	res, err := Bollinger([]float64{9, 1, 2, 3, 4}, 4, 2)
	if err != nil {
		t.Fatalf("Bollinger returned error: %v", err)
	}
	std := math.Sqrt(1.25)
	if res.Middle != 2.5 {
		t.Errorf("expected middle 2.5, got %v", res.Middle)
	}
	if math.Abs(res.Upper-(2.5+2*std)) > 1e-9 || math.Abs(res.Lower-(2.5-2*std)) > 1e-9 {
		t.Errorf("unexpected bands: %+v", res)
	}
}

func TestVWAP(t *testing.T) {
	candles := []exchange.Candle{
		{High: 12, Low: 8, Close: 10, Volume: 1},
		{High: 22, Low: 18, Close: 20, Volume: 3},
	}
	if got := VWAP(candles); math.Abs(got-17.5) > 1e-9 {
		t.Fatalf("expected 17.5, got %v", got)
	}

	candles[0].Volume, candles[1].Volume = 0, 0
	if got := VWAP(candles); got != 0 {
		t.Fatalf("zero volume should yield 0, got %v", got)
	}
}

func TestADX_InsufficientData(t *testing.T) {
	if _, err := ADX(flatRangeCandles(20, 100, 2), 14); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	v, err := ADX(risingCandles(60), 14)
	if err != nil {
		t.Fatalf("ADX returned error: %v", err)
	}
	if v < 0 || v > 100 {
		t.Fatalf("adx outside [0,100]: %v", v)
	}
}

func flatRangeCandles(n int, mid, width float64) []exchange.Candle {
	out := make([]exchange.Candle, n)
	for i := range out {
		out[i] = exchange.Candle{High: mid + width/2, Low: mid - width/2, Close: mid, Volume: 1}
	}
	return out
}

func risingCandles(n int) []exchange.Candle {
	out := make([]exchange.Candle, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = exchange.Candle{High: c + 1, Low: c - 1, Close: c, Volume: 10}
	}
	return out
}

func sineDrift(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1 + 0.002*float64(i) + 0.05*math.Sin(float64(i)/3)
	}
	return out
}

func TestRSI_WilderSmoothing(t *testing.T) {
	series := sineDrift(60)
	period := 14

	var gain, loss float64
	for i := 1; i <= period; i++ {
		if d := series[i] - series[i-1]; d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(period)
	loss /= float64(period)
	for i := period + 1; i < len(series); i++ {
		up, down := 0.0, 0.0
		if d := series[i] - series[i-1]; d > 0 {
			up = d
		} else {
			down = -d
		}
		gain = (gain*float64(period-1) + up) / float64(period)
		loss = (loss*float64(period-1) + down) / float64(period)
	}
	want := 100 - 100/(1+gain/loss)

	got, err := RSI(series, period)
	if err != nil {
		t.Fatalf("RSI returned error: %v", err)
	}
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if _, err := RSI(series, 1); err == nil {
		t.Fatalf("period 1 must be rejected")
	}
}

func TestEMA_MatchesRecursiveForm(t *testing.T) {
	series := sineDrift(60)
	period := 20
	k := 2.0 / float64(period+1)
	want := Mean(series[:period])
	for _, v := range series[period:] {
		want = (v-want)*k + want
	}

	got, err := EMA(series, period)
	if err != nil {
		t.Fatalf("EMA returned error: %v", err)
	}
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBollinger_UsesLatestWindow(t *testing.T) {
	series := sineDrift(60)
	window := series[len(series)-20:]
	mean := Mean(window)
	variance := 0.0
	for _, v := range window {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / 20)

	res, err := Bollinger(series, 20, 2)
	if err != nil {
		t.Fatalf("Bollinger returned error: %v", err)
	}
	if math.Abs(res.Middle-mean) > 1e-9 || math.Abs(res.Upper-(mean+2*std)) > 1e-9 || math.Abs(res.Lower-(mean-2*std)) > 1e-9 {
		t.Fatalf("unexpected bands: %+v (mean %v std %v)", res, mean, std)
	}
}

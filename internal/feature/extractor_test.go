package feature

import (
	"context"
	"errors"
	"testing"
	"time"

	"fuzzy-grid/internal/config"
	"fuzzy-grid/internal/exchange"
	"fuzzy-grid/internal/indicator"
)

func TestExtract_InsufficientHistory(t *testing.T) {
	ext := NewExtractor(config.Default().Indicators, nil)
	snap := exchange.MarketSnapshot{Symbol: "XRPUSDT", Price: 1, Candles: risingCandles(20)}

	_, err := ext.Extract(context.Background(), snap)
	if !errors.Is(err, indicator.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestExtract_RisingSeries(t *testing.T) {
	ext := NewExtractor(config.Default().Indicators, nil)
	candles := risingCandles(100)
	snap := exchange.MarketSnapshot{Symbol: "XRPUSDT", Price: 0, Candles: candles}

	out, err := ext.Extract(context.Background(), snap)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if out.Price != candles[len(candles)-1].Close {
		t.Errorf("expected price fallback to last close, got %v", out.Price)
	}
	if out.ShortEMA <= out.LongEMA {
		t.Errorf("expected short ema above long ema, got %v <= %v", out.ShortEMA, out.LongEMA)
	}
	if out.RSI != 100 {
		t.Errorf("expected saturated rsi, got %v", out.RSI)
	}
	if out.ATR <= 0 {
		t.Errorf("expected positive atr, got %v", out.ATR)
	}
	if out.UpperBand <= out.LowerBand {
		t.Errorf("unexpected bands: %v / %v", out.UpperBand, out.LowerBand)
	}
	if out.AvgVolume != 10 || out.LastVolume != 10 {
		t.Errorf("unexpected volume stats: %v / %v", out.LastVolume, out.AvgVolume)
	}
}

func TestExtract_WilderSmoothing(t *testing.T) {
	cfg := config.Default().Indicators
	simple := NewExtractor(cfg, nil)
	cfg.ATRSmoothing = string(indicator.ATRWilder)
	wilder := NewExtractor(cfg, nil)

	snap := exchange.MarketSnapshot{Symbol: "XRPUSDT", Price: 2, Candles: risingCandles(100)}
	a, err := simple.Extract(context.Background(), snap)
	if err != nil {
		t.Fatalf("simple: %v", err)
	}
	b, err := wilder.Extract(context.Background(), snap)
	if err != nil {
		t.Fatalf("wilder: %v", err)
	}
	// 真实波幅恒定时两种平滑结果一致。
	if diff := a.ATR - b.ATR; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected equal atr, got %v vs %v", a.ATR, b.ATR)
	}
	if a.Price != 2 {
		t.Fatalf("expected ticker price to win, got %v", a.Price)
	}
}

func risingCandles(n int) []exchange.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]exchange.Candle, n)
	for i := range out {
		c := 1 + float64(i)*0.01
		out[i] = exchange.Candle{
			OpenTime: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:     c - 0.005,
			High:     c + 0.01,
			Low:      c - 0.01,
			Close:    c,
			Volume:   10,
		}
	}
	return out
}

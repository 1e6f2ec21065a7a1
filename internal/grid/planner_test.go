package grid

import (
	"context"
	"errors"
	"testing"

	"fuzzy-grid/internal/config"
	"fuzzy-grid/internal/exchange"
	"fuzzy-grid/internal/exchange/exchangetest"
	"fuzzy-grid/internal/signal"
)

func newTestPlanner(gw exchange.Gateway) *Planner {
	cfg := config.Default()
	cfg.Trading.LegPause = 0
	return NewPlanner(gw, cfg.Grid, cfg.Trading, nil)
}

func defaultFilters() exchange.SymbolFilters {
	return exchange.SymbolFilters{PricePrecision: 2, QuantityPrecision: 3, TickSize: 0.01, StepSize: 0.001}
}

func TestPlan_LongLevels(t *testing.T) {
	p := newTestPlanner(nil)
	plan, err := p.Plan(Input{Symbol: "XRPUSDT", Verdict: signal.VerdictLong, Price: 100, ATR: 2, Filters: defaultFilters()})
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if plan.Side != exchange.SideBuy {
		t.Fatalf("expected BUY grid, got %s", plan.Side)
	}
	want := []string{"97.80", "95.80", "93.80"}
	if len(plan.Legs) != len(want) {
		t.Fatalf("expected %d legs, got %d", len(want), len(plan.Legs))
	}
	for i, leg := range plan.Legs {
		if got := PriceKey(leg.Entry.Price, 2); got != want[i] {
			t.Errorf("leg %d: expected price %s, got %s", i+1, want[i], got)
		}
		if leg.Entry.Quantity != 0.5 {
			t.Errorf("leg %d: expected qty 0.5, got %v", i+1, leg.Entry.Quantity)
		}
		if leg.TakeProfit == nil || leg.StopLoss == nil || leg.Trailing == nil {
			t.Fatalf("leg %d: expected full bracket set", i+1)
		}
		if got := PriceKey(leg.TakeProfit.StopPrice-leg.Entry.Price, 2); got != "2.20" {
			t.Errorf("leg %d: expected tp offset 2.20, got %s", i+1, got)
		}
		if leg.Trailing.CallbackRate != 2 {
			t.Errorf("leg %d: expected callback 2, got %v", i+1, leg.Trailing.CallbackRate)
		}
		if leg.Trailing.Side != exchange.SideSell || !leg.Trailing.ReduceOnly {
			t.Errorf("leg %d: trailing must be reduce-only SELL", i+1)
		}
	}
}

func TestPlan_UniquePricesAndBracketSides(t *testing.T) {
	p := newTestPlanner(nil)
	prices := []float64{0.52, 1, 2.37, 100, 3120.5}
	atrs := []float64{0, 0.0001, 0.01, 0.07, 0.5, 3}

	for _, verdict := range []signal.Verdict{signal.VerdictLong, signal.VerdictShort} {
		for _, price := range prices {
			for _, atr := range atrs {
				plan, err := p.Plan(Input{Symbol: "XRPUSDT", Verdict: verdict, Price: price, ATR: atr, Filters: defaultFilters()})
				if err != nil {
					if errors.Is(err, ErrInvalidQuantity) {
						continue
					}
					t.Fatalf("%s price=%v atr=%v: %v", verdict, price, atr, err)
				}
				seen := map[string]bool{}
				for _, leg := range plan.Legs {
					key := PriceKey(leg.Entry.Price, 2)
					if seen[key] {
						t.Fatalf("%s price=%v atr=%v: duplicate leg price %s", verdict, price, atr, key)
					}
					seen[key] = true
					if leg.Entry.Price <= 0 || leg.Entry.Price >= 2*price {
						t.Fatalf("leg price %v outside sanity band", leg.Entry.Price)
					}

					long := verdict == signal.VerdictLong
					if tp := leg.TakeProfit; tp != nil {
						if long && tp.StopPrice <= leg.Entry.Price || !long && tp.StopPrice >= leg.Entry.Price {
							t.Fatalf("%s: take profit %v on wrong side of %v", verdict, tp.StopPrice, leg.Entry.Price)
						}
					}
					if sl := leg.StopLoss; sl != nil {
						if long && sl.StopPrice >= leg.Entry.Price || !long && sl.StopPrice <= leg.Entry.Price {
							t.Fatalf("%s: stop loss %v on wrong side of %v", verdict, sl.StopPrice, leg.Entry.Price)
						}
					}
				}
			}
		}
	}
}

func TestPlan_SanityBand(t *testing.T) {
	p := newTestPlanner(nil)

	plan, err := p.Plan(Input{Symbol: "XRPUSDT", Verdict: signal.VerdictLong, Price: 1, ATR: 0.4, Filters: defaultFilters()})
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if len(plan.Legs) != 2 || len(plan.Skipped) != 1 {
		t.Fatalf("expected 2 legs and 1 skipped, got %d / %d", len(plan.Legs), len(plan.Skipped))
	}
	if !IsInvalidPriceLevel(plan.Skipped[0].Err) {
		t.Fatalf("expected ErrInvalidPriceLevel, got %v", plan.Skipped[0].Err)
	}
	second := plan.Legs[1]
	if second.StopLoss != nil {
		t.Fatalf("expected stop loss below zero to be rejected, got %v", second.StopLoss.StopPrice)
	}
	if len(second.Rejected) != 1 || !IsInvalidPriceLevel(second.Rejected[0].Err) {
		t.Fatalf("expected one rejected bracket, got %+v", second.Rejected)
	}
	if second.TakeProfit == nil {
		t.Fatalf("take profit should survive when only stop loss is invalid")
	}

	plan, err = p.Plan(Input{Symbol: "XRPUSDT", Verdict: signal.VerdictShort, Price: 1, ATR: 0.4, Filters: defaultFilters()})
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if len(plan.Legs) != 2 || len(plan.Skipped) != 1 {
		t.Fatalf("short: expected 2 legs and 1 skipped, got %d / %d", len(plan.Legs), len(plan.Skipped))
	}
}

func TestPlan_RejectsNonDirectional(t *testing.T) {
	p := newTestPlanner(nil)
	for _, v := range []signal.Verdict{signal.VerdictNeutral, signal.VerdictExtreme} {
		if _, err := p.Plan(Input{Verdict: v, Price: 1, Filters: defaultFilters()}); !errors.Is(err, ErrNotDirectional) {
			t.Fatalf("%s: expected ErrNotDirectional, got %v", v, err)
		}
	}
}

func TestPlan_SkipsPriceHeldByOppositeOrder(t *testing.T) {
	p := newTestPlanner(nil)
	open := []exchange.Order{{ID: "x", Type: exchange.OrderTypeLimit, Side: exchange.SideSell, Price: 97.8}}
	plan, err := p.Plan(Input{Symbol: "XRPUSDT", Verdict: signal.VerdictLong, Price: 100, ATR: 2, Filters: defaultFilters(), Open: open})
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if len(plan.Legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(plan.Legs))
	}
	for _, leg := range plan.Legs {
		if PriceKey(leg.Entry.Price, 2) == "97.80" {
			t.Fatalf("occupied price must be skipped")
		}
	}
}

func TestPlace_SecondCallPlacesNothing(t *testing.T) {
	gw := exchangetest.New(100)
	p := newTestPlanner(gw)
	in := Input{Symbol: "XRPUSDT", Verdict: signal.VerdictLong, Price: 100, ATR: 2}

	first, err := p.Place(context.Background(), in)
	if err != nil {
		t.Fatalf("first Place: %v", err)
	}
	if first.Placed() != 12 {
		t.Fatalf("expected 12 orders on first call, got %d", first.Placed())
	}

	second, err := p.Place(context.Background(), in)
	if err != nil {
		t.Fatalf("second Place: %v", err)
	}
	if second.Placed() != 0 {
		t.Fatalf("expected no new orders, got %d", second.Placed())
	}
	if len(gw.Placed) != 12 {
		t.Fatalf("gateway received %d orders, want 12", len(gw.Placed))
	}
}

func TestPlace_RepairsMissingBracket(t *testing.T) {
	gw := exchangetest.New(100)
	p := newTestPlanner(gw)
	in := Input{Symbol: "XRPUSDT", Verdict: signal.VerdictLong, Price: 100, ATR: 2}

	if _, err := p.Place(context.Background(), in); err != nil {
		t.Fatalf("first Place: %v", err)
	}
	var tpID string
	for _, o := range gw.OpenOrderSnapshot() {
		if o.Type == exchange.OrderTypeTakeProfit && PriceKey(o.StopPrice, 2) == "100.00" {
			tpID = o.ID
		}
	}
	if tpID == "" {
		t.Fatalf("expected take profit at 100.00")
	}
	if err := gw.CancelOrder(context.Background(), "XRPUSDT", tpID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	report, err := p.Place(context.Background(), in)
	if err != nil {
		t.Fatalf("second Place: %v", err)
	}
	placed := report.PlacedIntents()
	if len(placed) != 1 || placed[0].Type != exchange.OrderTypeTakeProfit {
		t.Fatalf("expected only the missing take profit, got %+v", placed)
	}
}

func TestPlace_FailedLegDoesNotAbort(t *testing.T) {
	gw := exchangetest.New(100)
	gw.FailPlace = func(intent exchange.OrderIntent) error {
		if intent.Type == exchange.OrderTypeLimit && PriceKey(intent.Price, 2) == "95.80" {
			return errors.New("rejected")
		}
		return nil
	}
	p := newTestPlanner(gw)

	report, err := p.Place(context.Background(), Input{Symbol: "XRPUSDT", Verdict: signal.VerdictLong, Price: 100, ATR: 2})
	if err != nil {
		t.Fatalf("Place returned error: %v", err)
	}
	if report.Placed() != 8 {
		t.Fatalf("expected 8 placed orders, got %d", report.Placed())
	}
	if report.Failed() != 1 {
		t.Fatalf("expected 1 failure, got %d", report.Failed())
	}
	for _, intent := range gw.Placed {
		if intent.Type == exchange.OrderTypeTakeProfit && PriceKey(intent.StopPrice, 2) == "98.00" {
			t.Fatalf("bracket for failed leg must not be placed")
		}
	}
	last := gw.Placed[len(gw.Placed)-4]
	if last.Type != exchange.OrderTypeLimit || PriceKey(last.Price, 2) != "93.80" {
		t.Fatalf("expected third leg to be submitted, got %+v", last)
	}
}

func newMarketEntryPlanner(gw exchange.Gateway) *Planner {
	cfg := config.Default()
	cfg.Trading.LegPause = 0
	cfg.Trading.MarketEntry = true
	return NewPlanner(gw, cfg.Grid, cfg.Trading, nil)
}

func TestPlan_MarketEntryBracketedAtCurrentPrice(t *testing.T) {
	p := newMarketEntryPlanner(nil)
	plan, err := p.Plan(Input{Symbol: "XRPUSDT", Verdict: signal.VerdictLong, Price: 100, ATR: 2, Filters: defaultFilters()})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Market == nil {
		t.Fatalf("expected market entry leg")
	}
	m := plan.Market
	if m.Entry.Type != exchange.OrderTypeMarket || m.Entry.Side != exchange.SideBuy || m.Entry.Quantity != 0.5 {
		t.Fatalf("unexpected market entry: %+v", m.Entry)
	}
	if m.TakeProfit == nil || PriceKey(m.TakeProfit.StopPrice, 2) != "102.20" {
		t.Fatalf("unexpected take profit: %+v", m.TakeProfit)
	}
	if m.StopLoss == nil || PriceKey(m.StopLoss.StopPrice, 2) != "97.80" || !m.StopLoss.ReduceOnly {
		t.Fatalf("unexpected stop loss: %+v", m.StopLoss)
	}

	open := []exchange.Order{{ID: "x", Type: exchange.OrderTypeLimit, Side: exchange.SideBuy, Price: 97.8}}
	plan, err = p.Plan(Input{Symbol: "XRPUSDT", Verdict: signal.VerdictLong, Price: 100, ATR: 2, Filters: defaultFilters(), Open: open})
	if err != nil {
		t.Fatalf("Plan with open orders: %v", err)
	}
	if plan.Market != nil {
		t.Fatalf("market entry must only accompany a fresh grid")
	}

	plain, err := newTestPlanner(nil).Plan(Input{Symbol: "XRPUSDT", Verdict: signal.VerdictLong, Price: 100, ATR: 2, Filters: defaultFilters()})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plain.Market != nil {
		t.Fatalf("market entry is off by default")
	}
}

func TestPlace_MarketEntryOnceWithBrackets(t *testing.T) {
	gw := exchangetest.New(100)
	p := newMarketEntryPlanner(gw)
	in := Input{Symbol: "XRPUSDT", Verdict: signal.VerdictShort, Price: 100, ATR: 2}

	report, err := p.Place(context.Background(), in)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if report.Placed() != 16 {
		t.Fatalf("expected 16 orders, got %d", report.Placed())
	}
	if n := gw.CountCalls("PlaceOrder:MARKET:SELL"); n != 1 {
		t.Fatalf("expected one market entry, got %d", n)
	}
	var tp, sl bool
	for _, o := range gw.OpenOrderSnapshot() {
		if o.Type == exchange.OrderTypeTakeProfit && PriceKey(o.StopPrice, 2) == "97.80" {
			tp = true
		}
		if o.Type == exchange.OrderTypeStopMarket && PriceKey(o.StopPrice, 2) == "102.20" {
			sl = true
		}
	}
	if !tp || !sl {
		t.Fatalf("market entry brackets missing: tp=%v sl=%v", tp, sl)
	}

	if _, err := p.Place(context.Background(), in); err != nil {
		t.Fatalf("second Place: %v", err)
	}
	if n := gw.CountCalls("PlaceOrder:MARKET:SELL"); n != 1 {
		t.Fatalf("market entry repeated: %d", n)
	}
}

func TestPlace_FailedMarketEntrySkipsBrackets(t *testing.T) {
	gw := exchangetest.New(100)
	gw.FailPlace = func(intent exchange.OrderIntent) error {
		if intent.Type == exchange.OrderTypeMarket {
			return errors.New("insufficient margin")
		}
		return nil
	}
	p := newMarketEntryPlanner(gw)

	report, err := p.Place(context.Background(), Input{Symbol: "XRPUSDT", Verdict: signal.VerdictLong, Price: 100, ATR: 2})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if report.Placed() != 12 || report.Failed() != 1 {
		t.Fatalf("expected 12 placed and 1 failed, got %d/%d", report.Placed(), report.Failed())
	}
	for _, intent := range gw.Placed {
		if intent.Type == exchange.OrderTypeTakeProfit && PriceKey(intent.StopPrice, 2) == "102.20" {
			t.Fatalf("bracket for failed market entry must not be placed")
		}
	}
}

func TestPlace_GatewayErrorAborts(t *testing.T) {
	gw := exchangetest.New(100)
	gw.Errs["OpenOrders"] = errors.New("down")
	p := newTestPlanner(gw)

	if _, err := p.Place(context.Background(), Input{Symbol: "XRPUSDT", Verdict: signal.VerdictLong, Price: 100, ATR: 2}); err == nil {
		t.Fatalf("expected error when open orders unavailable")
	}
	if gw.CountCalls("PlaceOrder") != 0 {
		t.Fatalf("no order may be placed without an order book")
	}
}

func TestRoundingHelpers(t *testing.T) {
	if got := PriceKey(0.1+0.2, 2); got != "0.30" {
		t.Errorf("PriceKey: got %s", got)
	}
	if got := RoundToTick(1.2345, 0.005, 3); got != 1.235 {
		t.Errorf("RoundToTick: got %v", got)
	}
	if got := CallbackRate(1, 1, 1, 0.1, 5); got != 5 {
		t.Errorf("expected clamp to 5, got %v", got)
	}
	if got := CallbackRate(0.00001, 1, 1, 0.1, 5); got != 0.1 {
		t.Errorf("expected clamp to 0.1, got %v", got)
	}
	if got := CallbackRate(0.0123, 1, 1, 0.1, 5); got != 1.2 {
		t.Errorf("expected 1.2, got %v", got)
	}
}

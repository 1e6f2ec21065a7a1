package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"fuzzy-grid/internal/exchange"
	"fuzzy-grid/internal/metrics"
	"fuzzy-grid/internal/monitor"
	"fuzzy-grid/internal/signal"
	"fuzzy-grid/internal/store"
)

func TestRun_FlattenOnStartThenLoops(t *testing.T) {
	st, err := store.NewInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	cfg := testConfig()
	cfg.Trading.FlattenOnStart = true
	cfg.Scheduler.LoopInterval = 10 * time.Millisecond
	cfg.Scheduler.TickTimeout = time.Second

	gw := newTestGateway()
	gw.Orders = []exchange.Order{
		{ID: "stale", Symbol: "XRPUSDT", Type: exchange.OrderTypeLimit, Side: exchange.SideSell, Price: 1.2, Quantity: 10},
	}

	a := New(&cfg, nil, st)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx, gw) }()

	deadline := time.Now().Add(5 * time.Second)
	for gw.CountCalls("Candles") < 2 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("loop did not tick twice, calls: %v", gw.Calls())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}

	calls := gw.Calls()
	if len(calls) < 3 || calls[0] != "OpenOrders" || calls[2] != "CancelOrder:stale" {
		t.Fatalf("expected startup flatten first, got %v", calls)
	}
}

func TestMonitorMux_ServesEventsAndMetrics(t *testing.T) {
	st, err := store.NewInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	svc, err := monitor.NewService(st, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	rec := metrics.New()
	ctx := context.Background()
	svc.RecordVerdict(ctx, signal.Decision{Verdict: signal.VerdictLong, BuyScore: 0.8})
	svc.RecordVerdict(ctx, signal.Decision{Verdict: signal.VerdictNeutral})
	rec.RecordTick("XRPUSDT", string(OutcomePlaced), 0.01)

	mux := newMonitorMux(svc, rec, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/events?type=VERDICT&limit=1", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	var events []map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 1 || events[0]["type"] != "verdict" {
		t.Fatalf("unexpected events: %v", events)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected metrics status: %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "fuzzy_grid_ticks_total") {
		t.Fatalf("metrics body missing tick counter:\n%s", rr.Body.String())
	}
}

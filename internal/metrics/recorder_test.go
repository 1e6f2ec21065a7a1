package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_Counters(t *testing.T) {
	r := New()
	r.RecordVerdict("XRPUSDT", "LONG", 0.8, 0.1, 0.2)
	r.RecordVerdict("XRPUSDT", "LONG", 0.9, 0.1, 0.2)
	r.RecordOrder("XRPUSDT", "LIMIT", "placed")
	r.RecordFlatten("XRPUSDT", "extreme")
	r.RecordHalted("XRPUSDT", true)

	if got := testutil.ToFloat64(r.verdicts.WithLabelValues("XRPUSDT", "LONG")); got != 2 {
		t.Fatalf("expected 2 LONG verdicts, got %v", got)
	}
	if got := testutil.ToFloat64(r.scores.WithLabelValues("XRPUSDT", "buy")); got != 0.9 {
		t.Fatalf("expected last buy score 0.9, got %v", got)
	}
	if got := testutil.ToFloat64(r.halted.WithLabelValues("XRPUSDT")); got != 1 {
		t.Fatalf("expected halted gauge 1, got %v", got)
	}
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.RecordMarket("XRPUSDT", 0.52, 0.01)
	r.RecordTick("XRPUSDT", "hold", 0.2)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, name := range []string{"fuzzy_grid_last_price", "fuzzy_grid_ticks_total", "fuzzy_grid_tick_duration_seconds"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("expected %s in exposition", name)
		}
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordError("snapshot")
	if got := testutil.ToFloat64(b.errorsTot.WithLabelValues("snapshot")); got != 0 {
		t.Fatalf("registries must not share state, got %v", got)
	}
}

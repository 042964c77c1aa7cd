package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStableEngineObserve(t *testing.T) {
	m := StableEngine()
	m.Observe("mint", 5*time.Millisecond, nil)
	m.Observe("mint", time.Millisecond, errors.New("stable engine: asset is paused"))

	if got := testutil.ToFloat64(m.errors.WithLabelValues("mint", "asset is paused")); got != 1 {
		t.Fatalf("expected one error sample, got %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("mint", "success")); got < 1 {
		t.Fatalf("expected success sample, got %v", got)
	}
}

func TestRecordBacking(t *testing.T) {
	m := StableEngine()
	m.RecordBacking(" tusd ", 1_333_333, 1_000_000)
	if got := testutil.ToFloat64(m.supply.WithLabelValues("TUSD")); got != 1_333_333 {
		t.Fatalf("unexpected supply gauge %v", got)
	}
	if got := testutil.ToFloat64(m.backing.WithLabelValues("TUSD")); got != 1_000_000 {
		t.Fatalf("unexpected backing gauge %v", got)
	}
	var nilMetrics *StableEngineMetrics
	nilMetrics.RecordBacking("x", 1, 1)
}

func TestOracleAndEventMetrics(t *testing.T) {
	o := Oracle()
	o.RecordUpdate("bond-usd", "static", 3*time.Second)
	if got := testutil.ToFloat64(o.age.WithLabelValues("BOND-USD")); got != 3 {
		t.Fatalf("unexpected age %v", got)
	}
	o.RecordReject("bond-usd", "future")
	if got := testutil.ToFloat64(o.rejects.WithLabelValues("BOND-USD", "future")); got != 1 {
		t.Fatalf("unexpected rejects %v", got)
	}

	e := Events()
	e.RecordIndexed(" Stable.Asset.Minted ")
	if got := testutil.ToFloat64(e.emitted.WithLabelValues("stable.asset.minted")); got != 1 {
		t.Fatalf("unexpected indexed count %v", got)
	}
	e.RecordDropped("")
	if got := testutil.ToFloat64(e.dropped.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("unexpected dropped count %v", got)
	}
}

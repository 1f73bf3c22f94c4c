package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("poa", "ok", time.Millisecond)
	m.AdapterRetry()
	m.ConnOpened()
	m.ConnClosed()
	m.InvocationStarted()
	m.InvocationDone()
	m.FrameReceived("Request")
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRequest("bootstrap", "no_exception", time.Millisecond)
	m.ObserveRequest("bootstrap", "no_exception", time.Millisecond)
	m.ObserveRequest("ins", "location_forward", time.Millisecond)
	m.AdapterRetry()
	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()

	if got := testutil.ToFloat64(m.Requests.WithLabelValues("bootstrap", "no_exception")); got != 2 {
		t.Fatalf("bootstrap requests = %v", got)
	}
	if got := testutil.ToFloat64(m.AdapterRetries); got != 1 {
		t.Fatalf("retries = %v", got)
	}
	if got := testutil.ToFloat64(m.Connections); got != 1 {
		t.Fatalf("connections = %v", got)
	}
	if n := testutil.CollectAndCount(m.Latency); n != 2 {
		t.Fatalf("latency series = %d", n)
	}
}

func TestStoreHealth(t *testing.T) {
	m := New(nil)
	m.StoreHealth("redis", true)
	if got := testutil.ToFloat64(m.StoreUp.WithLabelValues("redis")); got != 1 {
		t.Fatalf("store_up = %v", got)
	}
	m.StoreHealth("redis", false)
	if got := testutil.ToFloat64(m.StoreUp.WithLabelValues("redis")); got != 0 {
		t.Fatalf("store_up = %v", got)
	}
	var nilMetrics *Metrics
	nilMetrics.StoreHealth("redis", true)
}

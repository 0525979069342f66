package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMustNew_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := MustNew(reg)
	second := MustNew(reg)

	first.Delivery("scrub", "ok")
	second.Delivery("scrub", "ok")

	if got := testutil.ToFloat64(first.notifications.WithLabelValues("scrub", "ok")); got != 2 {
		t.Errorf("expected shared counter value 2, got %v", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.Interaction("component", "fired")
	m.SessionOpened()
	m.SessionClosed()
	m.PollCycle("ok", time.Second)
	m.Changes("scrub", 3)
	m.Delivery("outcome", "failed")
	m.Launches(10)
}

func TestMetrics_Gauges(t *testing.T) {
	m := MustNew(prometheus.NewRegistry())
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	if got := testutil.ToFloat64(m.sessionsActive); got != 1 {
		t.Errorf("expected 1 active session, got %v", got)
	}
	m.Launches(42)
	if got := testutil.ToFloat64(m.launchesKnown); got != 42 {
		t.Errorf("expected 42 launches, got %v", got)
	}
}

// Package metrics exposes Prometheus collectors that report bot activity.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "launchpipe"

// Metrics groups the collectors shared by the session engine, the poller and
// the notification fan-out. A nil *Metrics is valid and records nothing.
type Metrics struct {
	interactions   *prometheus.CounterVec
	sessionsActive prometheus.Gauge
	pollCycles     *prometheus.CounterVec
	pollDuration   prometheus.Histogram
	changes        *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	launchesKnown  prometheus.Gauge
}

var (
	defaultOnce sync.Once
	shared      *Metrics
)

// Default returns the instance registered with the global Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		shared = MustNew(prometheus.DefaultRegisterer)
	})
	return shared
}

// MustNew constructs Metrics and registers them with reg. Registration errors
// other than an identical collector already being registered panic.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		interactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "interactions_total",
			Help:      "Interaction events by dispatch result.",
		}, []string{"kind", "result"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently bound to a message.",
		}),
		pollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycles_total",
			Help:      "Feed poll cycles by result.",
		}, []string{"result"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of feed poll cycles.",
			Buckets:   prometheus.DefBuckets,
		}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "changes_total",
			Help:      "Detected launch transitions by kind.",
		}, []string{"kind"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Notification deliveries by kind and result.",
		}, []string{"kind", "result"}),
		launchesKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "launches",
			Help:      "Launches in the current snapshot.",
		}),
	}

	m.interactions = register(reg, m.interactions)
	m.sessionsActive = register(reg, m.sessionsActive)
	m.pollCycles = register(reg, m.pollCycles)
	m.pollDuration = register(reg, m.pollDuration)
	m.changes = register(reg, m.changes)
	m.notifications = register(reg, m.notifications)
	m.launchesKnown = register(reg, m.launchesKnown)
	return m
}

// register reuses an already registered collector of the same type.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Interaction counts a dispatched interaction event.
func (m *Metrics) Interaction(kind, result string) {
	if m == nil {
		return
	}
	m.interactions.WithLabelValues(kind, result).Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// PollCycle records the outcome and duration of a poll cycle.
func (m *Metrics) PollCycle(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.pollCycles.WithLabelValues(result).Inc()
	m.pollDuration.Observe(d.Seconds())
}

// Changes adds n detected transitions of kind.
func (m *Metrics) Changes(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.changes.WithLabelValues(kind).Add(float64(n))
}

// Delivery counts one notification delivery attempt.
func (m *Metrics) Delivery(kind, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}

// Launches sets the size of the current snapshot.
func (m *Metrics) Launches(n int) {
	if m == nil {
		return
	}
	m.launchesKnown.Set(float64(n))
}

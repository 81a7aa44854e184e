// Package metrics exposes the Coordinator's Prometheus instrumentation: a
// handful of counters and gauges tracking session, handle, and lock manager
// activity, served over plain net/http via promhttp (Coordinator §5 activity
// is otherwise invisible outside structured logs).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric the Coordinator publishes. A nil *Collector is
// valid everywhere it is used: every method is a safe no-op on a nil
// receiver, so instrumentation call sites never need a presence check.
type Collector struct {
	registry *prometheus.Registry

	sessionsCreated  prometheus.Counter
	sessionsExpired  prometheus.Counter
	sessionsActive   prometheus.Gauge
	handlesOpen      prometheus.Gauge
	lockGrants       *prometheus.CounterVec
	lockConflicts    *prometheus.CounterVec
	notificationsOut prometheus.Counter
	expirySweepSecs  prometheus.Histogram
}

// New builds a Collector registered against a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hyperlockd",
			Subsystem: "sessions",
			Name:      "created_total",
			Help:      "Total sessions created.",
		}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hyperlockd",
			Subsystem: "sessions",
			Name:      "expired_total",
			Help:      "Total sessions torn down by the expiry sweeper.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hyperlockd",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Currently registered sessions.",
		}),
		handlesOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hyperlockd",
			Subsystem: "handles",
			Name:      "open",
			Help:      "Currently open handles.",
		}),
		lockGrants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hyperlockd",
			Subsystem: "locks",
			Name:      "grants_total",
			Help:      "Total lock grants, by mode.",
		}, []string{"mode"}),
		lockConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hyperlockd",
			Subsystem: "locks",
			Name:      "conflicts_total",
			Help:      "Total lock requests that returned BUSY or were queued PENDING.",
		}, []string{"status"}),
		notificationsOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hyperlockd",
			Subsystem: "events",
			Name:      "notifications_total",
			Help:      "Total notifications enqueued to sessions.",
		}),
		expirySweepSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hyperlockd",
			Subsystem: "expiry",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of each expiry sweep pass.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		c.sessionsCreated, c.sessionsExpired, c.sessionsActive,
		c.handlesOpen, c.lockGrants, c.lockConflicts,
		c.notificationsOut, c.expirySweepSecs,
	)
	return c
}

// Handler returns the /metrics HTTP handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) SessionCreated() {
	if c == nil {
		return
	}
	c.sessionsCreated.Inc()
	c.sessionsActive.Inc()
}

func (c *Collector) SessionExpired() {
	if c == nil {
		return
	}
	c.sessionsExpired.Inc()
	c.sessionsActive.Dec()
}

func (c *Collector) HandleOpened() {
	if c == nil {
		return
	}
	c.handlesOpen.Inc()
}

func (c *Collector) HandleClosed() {
	if c == nil {
		return
	}
	c.handlesOpen.Dec()
}

func (c *Collector) LockGranted(mode string) {
	if c == nil {
		return
	}
	c.lockGrants.WithLabelValues(mode).Inc()
}

func (c *Collector) LockConflict(status string) {
	if c == nil {
		return
	}
	c.lockConflicts.WithLabelValues(status).Inc()
}

func (c *Collector) NotificationSent(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.notificationsOut.Add(float64(n))
}

func (c *Collector) ObserveExpirySweep(seconds float64) {
	if c == nil {
		return
	}
	c.expirySweepSecs.Observe(seconds)
}

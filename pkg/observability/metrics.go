package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/bower/pkg/session"
)

// Metrics holds the Prometheus instrumentation for a session host. Wire it in
// with bower.WithEvents(metrics.Events()).
type Metrics struct {
	sessionsCreated   prometheus.Counter
	sessionsDiscarded prometheus.Counter
	sessionsRevived   prometheus.Counter
	sessionsLive      prometheus.Gauge
	hookFailures      *prometheus.CounterVec
	cleanupSweeps     prometheus.Counter
	cleanupDuration   prometheus.Histogram
}

// New builds and registers the session metrics. A nil registerer falls back to
// the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bower_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		sessionsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bower_sessions_discarded_total",
			Help: "Total number of sessions discarded by cleanup",
		}),
		sessionsRevived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bower_sessions_revived_total",
			Help: "Total number of sessions that came back to life during discard",
		}),
		sessionsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bower_sessions_live",
			Help: "Number of sessions currently registered",
		}),
		hookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bower_hook_failures_total",
			Help: "Total number of failed application lifecycle hooks",
		}, []string{"hook"}),
		cleanupSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bower_cleanup_sweeps_total",
			Help: "Total number of cleanup sweeps",
		}),
		cleanupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "bower_cleanup_duration_seconds",
			Help: "Duration of cleanup sweeps",
		}),
	}

	reg.MustRegister(
		m.sessionsCreated,
		m.sessionsDiscarded,
		m.sessionsRevived,
		m.sessionsLive,
		m.hookFailures,
		m.cleanupSweeps,
		m.cleanupDuration,
	)
	return m
}

// Events returns the lifecycle observers that feed these metrics.
func (m *Metrics) Events() session.Events {
	return session.Events{
		SessionCreated: func(id string) {
			m.sessionsCreated.Inc()
			m.sessionsLive.Inc()
		},
		SessionDiscarded: func(id string) {
			m.sessionsDiscarded.Inc()
			m.sessionsLive.Dec()
		},
		SessionRevived: func(id string) {
			m.sessionsRevived.Inc()
		},
		HookFailed: func(hook string, err error) {
			m.hookFailures.WithLabelValues(hook).Inc()
		},
		CleanupCompleted: func(discarded int, elapsed time.Duration) {
			m.cleanupSweeps.Inc()
			m.cleanupDuration.Observe(elapsed.Seconds())
		},
	}
}

// ABOUTME: Prometheus collectors for the protocol engine: requests, framing faults, sessions
// ABOUTME: Collectors register against an injectable registry so tests stay isolated

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tinymcp"

// UnknownMethod is the method label recorded for names the server does not
// serve. Callers map client-supplied methods onto a closed set before
// recording so the label cardinality stays bounded.
const UnknownMethod = "unknown"

// Metrics holds every collector the server records into. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	notifications  *prometheus.CounterVec
	framing        *prometheus.CounterVec
	duplicates     prometheus.Counter
	oversize       prometheus.Counter
	sessions       prometheus.Counter
	activeSessions prometheus.Gauge
	queueDepth     prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Requests dispatched, by method and outcome.",
			},
			[]string{"method", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Request handling duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "notifications_total",
				Help:      "Notifications received, by method.",
			},
			[]string{"method"},
		),
		framing: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "framer",
				Name:      "faults_total",
				Help:      "Framing and decode faults, by kind.",
			},
			[]string{"kind"},
		),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "duplicate_ids_total",
			Help:      "Requests rejected because their id was already in flight.",
		}),
		oversize: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "results_too_large_total",
			Help:      "Responses replaced because they exceeded the message limit.",
		}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "started_total",
			Help:      "Client sessions accepted.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Client sessions currently being served.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "pending_requests",
			Help:      "Requests admitted but not yet answered.",
		}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.requests, m.duration, m.notifications, m.framing,
		m.duplicates, m.oversize, m.sessions, m.activeSessions, m.queueDepth,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Request records one answered request.
func (m *Metrics) Request(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.duration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) Notification(method string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(method).Inc()
}

// Fault records a framing or decode fault by kind name.
func (m *Metrics) Fault(kind string) {
	if m == nil {
		return
	}
	m.framing.WithLabelValues(kind).Inc()
}

func (m *Metrics) Duplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

func (m *Metrics) ResultTooLarge() {
	if m == nil {
		return
	}
	m.oversize.Inc()
}

// SessionStarted and SessionEnded bracket one client connection.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessions.Inc()
	m.activeSessions.Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) Pending(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

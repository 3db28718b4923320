package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the runner service's Prometheus metrics. With metrics
// disabled every recording method is a no-op.
type Metrics struct {
	enabled bool

	invocations        *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	activeInvocations  prometheus.Gauge
	fetchTasks         *prometheus.CounterVec
	registryOps        *prometheus.CounterVec
	authFailures       prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics builds the metrics collector.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		enabled:  true,
		registry: registry,
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "invocations_total",
				Help:      "Total driver invocations by terminal status",
			},
			[]string{"status"},
		),
		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "invocation_duration_seconds",
				Help:      "Wall time of the execute stage",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		activeInvocations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "active_invocations",
				Help:      "Invocations currently executing",
			},
		),
		fetchTasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "fetch_tasks_total",
				Help:      "Async fetch tasks by outcome",
			},
			[]string{"outcome"},
		),
		registryOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "registry_operations_total",
				Help:      "Registry storage operations by kind",
			},
			[]string{"operation"},
		),
		authFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "auth_failures_total",
				Help:      "Rejected authentication attempts",
			},
		),
	}
	registry.MustRegister(
		m.invocations,
		m.invocationDuration,
		m.activeInvocations,
		m.fetchTasks,
		m.registryOps,
		m.authFailures,
	)
	return m
}

// InvocationStarted marks one invocation in flight.
func (m *Metrics) InvocationStarted() {
	if !m.enabled {
		return
	}
	m.activeInvocations.Inc()
}

// InvocationFinished records one settled invocation.
func (m *Metrics) InvocationFinished(status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.activeInvocations.Dec()
	m.invocations.WithLabelValues(status).Inc()
	m.invocationDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// FetchTask records one finished fetch task.
func (m *Metrics) FetchTask(outcome string) {
	if !m.enabled {
		return
	}
	m.fetchTasks.WithLabelValues(outcome).Inc()
}

// RegistryOp records one registry storage operation.
func (m *Metrics) RegistryOp(operation string) {
	if !m.enabled {
		return
	}
	m.registryOps.WithLabelValues(operation).Inc()
}

// AuthFailure records one rejected authentication attempt.
func (m *Metrics) AuthFailure() {
	if !m.enabled {
		return
	}
	m.authFailures.Inc()
}

// Handler returns the scrape endpoint handler, or nil when disabled.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

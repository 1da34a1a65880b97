// Package metrics exposes Prometheus instruments for the request pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "request_logic"

// Metrics holds the pipeline instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	submissions    prometheus.Counter
	results        *prometheus.CounterVec
	barrier        *prometheus.CounterVec
	barrierWait    prometheus.Histogram
	inFlight       prometheus.Gauge
	responseHooks  *prometheus.CounterVec
	variableErrors prometheus.Counter
}

// New creates the instruments on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Requests submitted to the pipeline.",
		}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Terminal results delivered, by outcome.",
		}, []string{"outcome"}),
		barrier: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barrier_outcomes_total",
			Help:      "Pre-request barrier decisions, by outcome.",
		}, []string{"outcome"}),
		barrierWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "barrier_wait_seconds",
			Help:      "Time spent waiting for pre-request operations.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_entries",
			Help:      "Requests currently tracked by the queue.",
		}),
		responseHooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_hook_runs_total",
			Help:      "Response hook invocations, by hook and status.",
		}, []string{"hook", "status"}),
		variableErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "variable_evaluation_failures_total",
			Help:      "Variable evaluations that fell back to the raw request.",
		}),
	}

	m.registry.MustRegister(
		m.submissions,
		m.results,
		m.barrier,
		m.barrierWait,
		m.inFlight,
		m.responseHooks,
		m.variableErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Submitted() {
	if m == nil {
		return
	}
	m.submissions.Inc()
}

// Finalized counts a delivered result. outcome is "success" or "error".
func (m *Metrics) Finalized(outcome string) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(outcome).Inc()
}

// BarrierDecided records a barrier outcome and the time spent waiting.
func (m *Metrics) BarrierDecided(outcome string, waited time.Duration) {
	if m == nil {
		return
	}
	m.barrier.WithLabelValues(outcome).Inc()
	if waited > 0 {
		m.barrierWait.Observe(waited.Seconds())
	}
}

// QueueSize sets the number of tracked requests.
func (m *Metrics) QueueSize(n int) {
	if m == nil {
		return
	}
	m.inFlight.Set(float64(n))
}

func (m *Metrics) ResponseHookRan(hook, status string) {
	if m == nil {
		return
	}
	m.responseHooks.WithLabelValues(hook, status).Inc()
}

func (m *Metrics) VariableFallback() {
	if m == nil {
		return
	}
	m.variableErrors.Inc()
}

// Package observability exports calculation metrics to Prometheus.
//
// Metrics implements p4p.Recorder, so the service reports outcomes without
// knowing about Prometheus. Each Metrics owns its registry; tests create as
// many as they like without duplicate-registration panics.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldcrew/p4p-engine/p4p"
)

const namespace = "p4p"

type Metrics struct {
	registry *prometheus.Registry

	calculations  *prometheus.CounterVec
	batchJobs     *prometheus.CounterVec
	batchDuration prometheus.Histogram
	lastBatch     prometheus.Gauge
	httpRequests  *prometheus.CounterVec
}

var _ p4p.Recorder = (*Metrics)(nil)

// NewMetrics registers the engine metrics plus Go runtime and process
// collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_total",
			Help:      "Assignment calculations by outcome.",
		}, []string{"outcome"}),
		batchJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recalc_jobs_total",
			Help:      "Jobs processed by bulk recalculation, by status.",
		}, []string{"status"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recalc_duration_seconds",
			Help:      "Wall time of bulk recalculation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		lastBatch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recalc_last_run_timestamp_seconds",
			Help:      "Start time of the most recent bulk recalculation.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
	}
	m.registry.MustRegister(
		m.calculations,
		m.batchJobs,
		m.batchDuration,
		m.lastBatch,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveCalculation(outcome p4p.Outcome) {
	m.calculations.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) ObserveBatch(summary p4p.BatchSummary) {
	m.batchJobs.WithLabelValues(string(p4p.JobSucceeded)).Add(float64(summary.Succeeded))
	m.batchJobs.WithLabelValues(string(p4p.JobSkipped)).Add(float64(summary.Skipped))
	m.batchJobs.WithLabelValues(string(p4p.JobFailed)).Add(float64(summary.Failed))
	if d, err := time.ParseDuration(summary.Duration); err == nil {
		m.batchDuration.Observe(d.Seconds())
	}
	m.lastBatch.Set(float64(summary.StartedAt.Unix()))
}

// ObserveRequest counts one HTTP response. route is the chi route pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(route string, code int) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

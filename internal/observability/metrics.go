// Package observability provides the tracker's logger and Prometheus metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cyclone"

// Run outcomes recorded by TrackRuns.
const (
	OutcomeComplete = "complete"
	OutcomeHalted   = "halted"
	OutcomeError    = "error"
)

// Metrics holds the Prometheus collectors for tracking, assembly and plotting.
type Metrics struct {
	TrackRuns       *prometheus.CounterVec // labels: outcome={complete,halted,error}
	TrackSteps      prometheus.Counter
	TrackDuration   prometheus.Histogram
	AssembleFiles   *prometheus.CounterVec // labels: result={combined,skipped}
	PlotsRendered   *prometheus.CounterVec // labels: kind={track,verify}
	PublishedPoints prometheus.Counter
	PublishFailures prometheus.Counter

	// registry is nil when registered with the default registry.
	registry *prometheus.Registry
}

func newMetrics() *Metrics {
	return &Metrics{
		TrackRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "track_runs_total",
			Help:      "Tracking runs by outcome.",
		}, []string{"outcome"}),
		TrackSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "track_steps_total",
			Help:      "Track points produced across all runs.",
		}),
		TrackDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "track_run_duration_seconds",
			Help:      "Duration of a tracking run including output writing.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		AssembleFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assemble_files_total",
			Help:      "Per-step files seen by the assembler by result.",
		}, []string{"result"}),
		PlotsRendered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plots_rendered_total",
			Help:      "PNG plots written by kind.",
		}, []string{"kind"}),
		PublishedPoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_points_total",
			Help:      "Track points written to Kafka.",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Failed Kafka publish attempts.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.TrackRuns,
		m.TrackSteps,
		m.TrackDuration,
		m.AssembleFiles,
		m.PlotsRendered,
		m.PublishedPoints,
		m.PublishFailures,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered on a fresh registry to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(m.collectors()...)
	return m
}

// Handler serves the registry the metrics were registered with.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

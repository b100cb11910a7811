package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus counters for view building. It is scraped
// at GET /metrics, independent of whether OTLP export is configured.
type Collector struct {
	registry *prometheus.Registry

	viewsBuilt      *prometheus.CounterVec
	anomalies       *prometheus.CounterVec
	spansClassified *prometheus.CounterVec
	buildSeconds    prometheus.Histogram
}

// NewCollector registers the tracelens metrics on registry. A nil registry
// gets a fresh one with the Go runtime and process collectors attached.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		registry: registry,
		viewsBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracelens",
			Name:      "views_built_total",
			Help:      "Trace views built, by span source.",
		}, []string{"source"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracelens",
			Name:      "assembly_anomalies_total",
			Help:      "Structural anomalies found while assembling span forests, by kind.",
		}, []string{"kind"}),
		spansClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracelens",
			Name:      "spans_classified_total",
			Help:      "Spans classified, by semantic category.",
		}, []string{"category"}),
		buildSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tracelens",
			Name:      "view_build_seconds",
			Help:      "Time to fetch spans and build a view.",
			// Views are built in memory; most finish well under 100ms.
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
	registry.MustRegister(c.viewsBuilt, c.anomalies, c.spansClassified, c.buildSeconds)
	return c
}

// Registry returns the registry the collector writes to.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// RecordView counts one built view and its build time.
func (c *Collector) RecordView(source string, elapsed time.Duration) {
	c.viewsBuilt.WithLabelValues(source).Inc()
	c.buildSeconds.Observe(elapsed.Seconds())
}

// RecordAnomaly counts one assembly warning.
func (c *Collector) RecordAnomaly(kind string) {
	c.anomalies.WithLabelValues(kind).Inc()
}

// RecordClassified adds n spans to a category.
func (c *Collector) RecordClassified(category string, n int) {
	if n <= 0 {
		return
	}
	c.spansClassified.WithLabelValues(category).Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Package metrics holds the Prometheus metrics of the SHR pipeline.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics. A nil *Registry is valid and
// records nothing.
type Registry struct {
	reg *prometheus.Registry

	// HTTP Metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Pipeline Metrics
	TelegramsTotal  *prometheus.CounterVec
	FlightsSaved    *prometheus.CounterVec
	BatchDuration   prometheus.Histogram
	RegionsIngested *prometheus.CounterVec
	ResolveTotal    *prometheus.CounterVec
	CatalogRegions  prometheus.Gauge
	PublishFailures prometheus.Counter
	ArchiveFailures prometheus.Counter
}

// New creates a registry with Go and process collectors plus every SHR metric.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Registry{
		reg: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shr_http_requests_total",
				Help: "Total HTTP requests processed by endpoint, method, and status code",
			},
			[]string{"endpoint", "method", "status_code"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shr_http_request_duration_seconds",
				Help:    "HTTP request latency distribution in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint", "method"},
		),

		TelegramsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shr_telegrams_total",
				Help: "Telegrams assembled, by outcome (processed or failed)",
			},
			[]string{"status"},
		),
		FlightsSaved: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shr_flights_saved_total",
				Help: "Flight records written to storage, by result (inserted or duplicate)",
			},
			[]string{"result"},
		),
		BatchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shr_batch_duration_seconds",
				Help:    "Time to process one uploaded telegram file",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
		),
		RegionsIngested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shr_regions_ingested_total",
				Help: "Boundary features read, by source format and result (ingested or skipped)",
			},
			[]string{"source", "result"},
		),
		ResolveTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shr_resolve_total",
				Help: "Point-to-region lookups, by result (hit or miss)",
			},
			[]string{"result"},
		),
		CatalogRegions: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "shr_catalog_regions",
				Help: "Number of boundaries in the active region catalog",
			},
		),
		PublishFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "shr_publish_failures_total",
				Help: "Flight records that could not be published to the message bus",
			},
		),
		ArchiveFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "shr_archive_failures_total",
				Help: "Batches that could not be written to the analytics archive",
			},
		),
	}
}

// Gatherer exposes the underlying registry, mainly for tests.
func (m *Registry) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.Gatherer(), promhttp.HandlerOpts{})
}

// ObserveBatch records the outcome of one assembled batch.
func (m *Registry) ObserveBatch(processed, failed int, seconds float64) {
	if m == nil {
		return
	}
	m.TelegramsTotal.WithLabelValues("processed").Add(float64(processed))
	m.TelegramsTotal.WithLabelValues("failed").Add(float64(failed))
	m.BatchDuration.Observe(seconds)
}

// ObserveSave records how many flights were inserted or skipped as duplicates.
func (m *Registry) ObserveSave(inserted, duplicates int) {
	if m == nil {
		return
	}
	m.FlightsSaved.WithLabelValues("inserted").Add(float64(inserted))
	m.FlightsSaved.WithLabelValues("duplicate").Add(float64(duplicates))
}

// ObserveIngest records one boundary file ingestion.
func (m *Registry) ObserveIngest(source string, ingested, skipped int) {
	if m == nil {
		return
	}
	m.RegionsIngested.WithLabelValues(source, "ingested").Add(float64(ingested))
	m.RegionsIngested.WithLabelValues(source, "skipped").Add(float64(skipped))
}

// ObserveResolve counts one region lookup.
func (m *Registry) ObserveResolve(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.ResolveTotal.WithLabelValues("hit").Inc()
		return
	}
	m.ResolveTotal.WithLabelValues("miss").Inc()
}

// SetCatalogSize records the size of the active catalog.
func (m *Registry) SetCatalogSize(n int) {
	if m == nil {
		return
	}
	m.CatalogRegions.Set(float64(n))
}

// ObserveRequest records one HTTP request.
func (m *Registry) ObserveRequest(endpoint, method string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(endpoint, method).Observe(seconds)
}

// PublishFailed counts a record the bus rejected.
func (m *Registry) PublishFailed() {
	if m == nil {
		return
	}
	m.PublishFailures.Inc()
}

// ArchiveFailed counts a batch the archive rejected.
func (m *Registry) ArchiveFailed() {
	if m == nil {
		return
	}
	m.ArchiveFailures.Inc()
}

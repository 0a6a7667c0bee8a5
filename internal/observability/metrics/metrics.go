// Package metrics provides Prometheus instrumentation for verisource.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled  bool
	registry *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Resolution metrics
	resolutionTotal    *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	filesFetchedTotal  *prometheus.CounterVec
)

// Init initializes the metrics system. Each call starts from a fresh
// registry.
func Init(enabledFlag bool) {
	enabled = enabledFlag
	if !enabled {
		registry = nil
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	resolutionTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_resolution_total",
			Help: "Source resolutions by network and outcome",
		},
		[]string{"network", "result"},
	)

	// Resolutions include a node round trip and N gateway fetches.
	resolutionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_resolution_duration_seconds",
			Help:    "Duration of source resolutions in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"network"},
	)

	filesFetchedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_files_fetched_total",
			Help: "Source files fetched from storage gateways",
		},
		[]string{"network"},
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// HTTP metrics
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ErrorCount      *prometheus.CounterVec

	// Catalog metrics
	SongOperationsTotal *prometheus.CounterVec
	ScanPagesTotal      prometheus.Counter

	// Presign metrics
	PresignRequestsTotal *prometheus.CounterVec

	// Storage metrics
	BackendDurationSeconds *prometheus.HistogramVec
	CacheResultsTotal      *prometheus.CounterVec

	// Health metrics
	HealthStatus *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance registered on reg. A nil reg
// registers on the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ourchants_api_requests_total",
				Help: "Total number of API requests by method, route, and status",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ourchants_api_request_duration_seconds",
				Help:    "Histogram of request durations by method, route, and status",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		ErrorCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ourchants_api_errors_total",
				Help: "Total number of API error responses by method, route, and status",
			},
			[]string{"method", "route", "status"},
		),

		SongOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ourchants_song_operations_total",
				Help: "Total catalog operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		ScanPagesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ourchants_scan_pages_total",
				Help: "Total number of record store scan pages read",
			},
		),

		PresignRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ourchants_presign_requests_total",
				Help: "Total presigned link requests by outcome",
			},
			[]string{"outcome"},
		),

		BackendDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ourchants_backend_duration_seconds",
				Help:    "Duration of storage backend calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "operation"},
		),
		CacheResultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ourchants_cache_results_total",
				Help: "Song cache lookups by result",
			},
			[]string{"result"},
		),

		HealthStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ourchants_health_status",
				Help: "Health status of dependencies (1=ok, 0=down)",
			},
			[]string{"dependency"},
		),
	}
}

// Nop returns metrics registered on a throwaway registry
func Nop() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// RecordOperation counts one catalog operation outcome
func (m *Metrics) RecordOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.SongOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordPresign counts one presign outcome
func (m *Metrics) RecordPresign(outcome string) {
	if m == nil {
		return
	}
	m.PresignRequestsTotal.WithLabelValues(outcome).Inc()
}

// SetHealth records a dependency as up or down
func (m *Metrics) SetHealth(dependency string, ok bool) {
	if m == nil {
		return
	}
	v := 0.0
	if ok {
		v = 1
	}
	m.HealthStatus.WithLabelValues(dependency).Set(v)
}

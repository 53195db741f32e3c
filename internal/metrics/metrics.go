package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	SourceCompleted = "completed"
	SourceFailed    = "failed"
)

// Metrics holds every collector of the service. It is built once from a
// registerer and injected where needed.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	GatekeeperCalls    *prometheus.CounterVec
	GatekeeperDuration *prometheus.HistogramVec
	LayerCalls         *prometheus.CounterVec
	LayerDuration      *prometheus.HistogramVec

	ProcessedSources  *prometheus.CounterVec
	ProcessedDuration *prometheus.HistogramVec
	LayerEntries      *prometheus.HistogramVec

	ReembedRows *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memory_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memory_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		GatekeeperCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memory_gatekeeper_calls_total",
				Help: "Gatekeeper evaluations by outcome.",
			},
			[]string{"source", "status", "user_id"},
		),
		GatekeeperDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memory_gatekeeper_duration_seconds",
				Help:    "Gatekeeper evaluation latency in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
			},
			[]string{"source", "status", "user_id"},
		),
		LayerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memory_layer_calls_total",
				Help: "Layer extractor runs by outcome.",
			},
			[]string{"layer", "source", "status", "user_id"},
		),
		LayerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memory_layer_duration_seconds",
				Help:    "Layer extractor latency in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
			},
			[]string{"layer", "source", "status", "user_id"},
		),
		ProcessedSources: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memory_processed_sources_total",
				Help: "Extraction jobs by final outcome.",
			},
			[]string{"source", "status", "user_id"},
		),
		ProcessedDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memory_processed_duration_seconds",
				Help:    "End-to-end extraction job latency in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
			[]string{"source", "user_id"},
		),
		LayerEntries: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memory_layer_entries",
				Help:    "Entries persisted per layer per job.",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"layer", "source", "user_id"},
		),
		ReembedRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memory_reembed_rows_total",
				Help: "Re-embedded rows by table and outcome.",
			},
			[]string{"table", "outcome"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GatekeeperCalls,
		m.GatekeeperDuration,
		m.LayerCalls,
		m.LayerDuration,
		m.ProcessedSources,
		m.ProcessedDuration,
		m.LayerEntries,
		m.ReembedRows,
	)
	return m
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// RecordGatekeeper records one gatekeeper call.
func (m *Metrics) RecordGatekeeper(source, userID string, d time.Duration, err error) {
	s := status(err)
	m.GatekeeperCalls.WithLabelValues(source, s, userID).Inc()
	m.GatekeeperDuration.WithLabelValues(source, s, userID).Observe(d.Seconds())
}

// RecordLayer records one layer extractor run.
func (m *Metrics) RecordLayer(layer, source, userID string, d time.Duration, err error) {
	s := status(err)
	m.LayerCalls.WithLabelValues(layer, source, s, userID).Inc()
	m.LayerDuration.WithLabelValues(layer, source, s, userID).Observe(d.Seconds())
}

// RecordSource records the final outcome of an extraction job.
func (m *Metrics) RecordSource(source, userID, outcome string, d time.Duration) {
	m.ProcessedSources.WithLabelValues(source, outcome, userID).Inc()
	m.ProcessedDuration.WithLabelValues(source, userID).Observe(d.Seconds())
}

// RecordLayerEntries records how many entries a layer persisted for one job.
func (m *Metrics) RecordLayerEntries(layer, source, userID string, n int) {
	m.LayerEntries.WithLabelValues(layer, source, userID).Observe(float64(n))
}

// RecordReembedRow counts one re-embedded row.
func (m *Metrics) RecordReembedRow(table, outcome string) {
	m.ReembedRows.WithLabelValues(table, outcome).Inc()
}

// RecordHTTP records one served HTTP request.
func (m *Metrics) RecordHTTP(method, path, code string, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

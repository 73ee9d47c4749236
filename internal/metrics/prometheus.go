package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the image receiver
type Metrics struct {
	// Connection metrics
	ConnectionsAccepted prometheus.Counter
	ActiveConnections   prometheus.Gauge
	AcceptErrors        prometheus.Counter

	// Transfer metrics
	TransfersCompleted *prometheus.CounterVec
	BytesReceived      prometheus.Counter
	BytesWritten       prometheus.Counter
	DecodeErrors       prometheus.Counter
	TransferSize       prometheus.Histogram
	TransferDuration   prometheus.Histogram

	// Allocation metrics
	SequenceCursor      prometheus.Gauge
	AllocationFallbacks prometheus.Counter
	AllocationErrors    prometheus.Counter

	// Ledger metrics
	LedgerWrites *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. main passes
// prometheus.DefaultRegisterer; tests pass a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ucam_connections_accepted_total",
			Help: "Total number of data connections accepted",
		}),
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ucam_active_connections",
			Help: "Current number of open data connections",
		}),
		AcceptErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "ucam_accept_errors_total",
			Help: "Total number of failed accepts on the data port",
		}),

		TransfersCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ucam_transfers_total",
			Help: "Total number of finished transfers by outcome",
		}, []string{"outcome"}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "ucam_wire_bytes_received_total",
			Help: "Total number of encoded bytes read from connections",
		}),
		BytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "ucam_image_bytes_written_total",
			Help: "Total number of decoded bytes written to output files",
		}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "ucam_decode_errors_total",
			Help: "Total number of transfers aborted by malformed input",
		}),
		TransferSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ucam_transfer_size_bytes",
			Help:    "Size of written image files",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		TransferDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ucam_transfer_duration_seconds",
			Help:    "Time from accept to end of stream",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),

		SequenceCursor: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ucam_sequence_cursor",
			Help: "Last sequence number handed out",
		}),
		AllocationFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "ucam_allocation_fallbacks_total",
			Help: "Number of times the sequence range was exhausted and slot 0 reused",
		}),
		AllocationErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "ucam_allocation_errors_total",
			Help: "Number of connections dropped because no output file could be opened",
		}),

		LedgerWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ucam_ledger_writes_total",
			Help: "Transfer records written to the ledger by result",
		}, []string{"result"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ucam_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ucam_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ucam_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordConnectionOpened increments accepted and active connections
func (m *Metrics) RecordConnectionOpened() {
	m.ConnectionsAccepted.Inc()
	m.ActiveConnections.Inc()
}

// RecordConnectionClosed decrements active connections
func (m *Metrics) RecordConnectionClosed() {
	m.ActiveConnections.Dec()
}

// RecordAcceptError increments the accept error counter
func (m *Metrics) RecordAcceptError() {
	m.AcceptErrors.Inc()
}

// RecordBytes records wire bytes read and decoded bytes written
func (m *Metrics) RecordBytes(wire, written int) {
	m.BytesReceived.Add(float64(wire))
	m.BytesWritten.Add(float64(written))
}

// RecordTransfer records a finished transfer
func (m *Metrics) RecordTransfer(outcome string, sizeBytes int64, durationSeconds float64) {
	m.TransfersCompleted.WithLabelValues(outcome).Inc()
	m.TransferSize.Observe(float64(sizeBytes))
	m.TransferDuration.Observe(durationSeconds)
}

// RecordDecodeError increments the decode error counter
func (m *Metrics) RecordDecodeError() {
	m.DecodeErrors.Inc()
}

// RecordAllocation updates the cursor gauge and counts slot 0 fallbacks
func (m *Metrics) RecordAllocation(cursor int) {
	m.SequenceCursor.Set(float64(cursor))
	if cursor == 0 {
		m.AllocationFallbacks.Inc()
	}
}

// RecordAllocationError increments the allocation error counter
func (m *Metrics) RecordAllocationError() {
	m.AllocationErrors.Inc()
}

// RecordLedgerWrite records a ledger write result ("ok" or "error")
func (m *Metrics) RecordLedgerWrite(result string) {
	m.LedgerWrites.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}

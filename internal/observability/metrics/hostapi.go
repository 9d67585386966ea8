// Package metrics provides Prometheus collectors for the host API bridge
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HostAPIMetrics contains Prometheus metrics for sessions, streams and blocking IO.
// A nil *HostAPIMetrics is valid and records nothing.
type HostAPIMetrics struct {
	registry *prometheus.Registry

	// Session metrics
	eventsTotal       *prometheus.CounterVec
	connectDuration   prometheus.Histogram
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	devicesGauge      *prometheus.GaugeVec

	// Stream metrics
	streamsOpenedTotal *prometheus.CounterVec
	streamErrorsTotal  *prometheus.CounterVec
	activeStreamsGauge prometheus.Gauge
	callbackDuration   prometheus.Histogram

	// Blocking IO and latency control
	ioBytesTotal            *prometheus.CounterVec
	inputOverflowBytesTotal prometheus.Counter
	underflowsTotal         prometheus.Counter
	latencyEscalationsTotal prometheus.Counter
	outputLatencyGauge      prometheus.Gauge
}

// NewHostAPIMetrics creates and registers new host API metrics
func NewHostAPIMetrics(registry *prometheus.Registry) (*HostAPIMetrics, error) {
	m := &HostAPIMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *HostAPIMetrics) initMetrics() {
	m.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsebridge_session_events_total",
			Help: "Total number of audio server events processed by the session event loop",
		},
		[]string{"event"},
	)

	m.connectDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulsebridge_session_connect_duration_seconds",
			Help:    "Time from connect request until the session is ready",
			Buckets: prometheus.ExponentialBuckets(BucketStart500us, BucketFactor2, BucketCount14),
		},
	)

	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsebridge_session_operations_total",
			Help: "Total number of synchronous operations run against the audio server",
		},
		[]string{"operation", "status"}, // status: success, error
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulsebridge_session_operation_duration_seconds",
			Help:    "Round trip time of synchronous operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart100us, BucketFactor2, BucketCount16),
		},
		[]string{"operation"},
	)

	m.devicesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pulsebridge_devices",
			Help: "Number of devices in the device table",
		},
		[]string{"direction"},
	)

	m.streamsOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsebridge_streams_opened_total",
			Help: "Total number of streams opened",
		},
		[]string{"mode", "direction"}, // mode: callback, blocking; direction: input, output, duplex
	)

	m.streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsebridge_stream_errors_total",
			Help: "Total number of stream errors by operation",
		},
		[]string{"operation"},
	)

	m.activeStreamsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulsebridge_active_streams",
			Help: "Number of streams currently started",
		},
	)

	m.callbackDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulsebridge_callback_duration_seconds",
			Help:    "Time spent in the application stream callback",
			Buckets: prometheus.ExponentialBuckets(BucketStart10us, BucketFactor2, BucketCount14),
		},
	)

	m.ioBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsebridge_stream_bytes_total",
			Help: "Total number of bytes moved between ring buffers and the audio server",
		},
		[]string{"direction"},
	)

	m.inputOverflowBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pulsebridge_input_overflow_bytes_total",
			Help: "Captured bytes dropped because the input ring buffer was full",
		},
	)

	m.underflowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pulsebridge_underflows_total",
			Help: "Total number of output underflows reported by the audio server",
		},
	)

	m.latencyEscalationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pulsebridge_latency_escalations_total",
			Help: "Total number of output latency increases after repeated underflows",
		},
	)

	m.outputLatencyGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulsebridge_output_latency_seconds",
			Help: "Current buffering latency of the most recently adjusted output stream",
		},
	)
}

// Describe implements the prometheus.Collector interface
func (m *HostAPIMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.eventsTotal.Describe(ch)
	m.connectDuration.Describe(ch)
	m.operationsTotal.Describe(ch)
	m.operationDuration.Describe(ch)
	m.devicesGauge.Describe(ch)
	m.streamsOpenedTotal.Describe(ch)
	m.streamErrorsTotal.Describe(ch)
	m.activeStreamsGauge.Describe(ch)
	m.callbackDuration.Describe(ch)
	m.ioBytesTotal.Describe(ch)
	m.inputOverflowBytesTotal.Describe(ch)
	m.underflowsTotal.Describe(ch)
	m.latencyEscalationsTotal.Describe(ch)
	m.outputLatencyGauge.Describe(ch)
}

// Collect implements the prometheus.Collector interface
func (m *HostAPIMetrics) Collect(ch chan<- prometheus.Metric) {
	m.eventsTotal.Collect(ch)
	m.connectDuration.Collect(ch)
	m.operationsTotal.Collect(ch)
	m.operationDuration.Collect(ch)
	m.devicesGauge.Collect(ch)
	m.streamsOpenedTotal.Collect(ch)
	m.streamErrorsTotal.Collect(ch)
	m.activeStreamsGauge.Collect(ch)
	m.callbackDuration.Collect(ch)
	m.ioBytesTotal.Collect(ch)
	m.inputOverflowBytesTotal.Collect(ch)
	m.underflowsTotal.Collect(ch)
	m.latencyEscalationsTotal.Collect(ch)
	m.outputLatencyGauge.Collect(ch)
}

// RecordEvent counts one processed event
func (m *HostAPIMetrics) RecordEvent(event string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(event).Inc()
}

// ObserveConnect records how long the session took to become ready
func (m *HostAPIMetrics) ObserveConnect(d time.Duration) {
	if m == nil {
		return
	}
	m.connectDuration.Observe(d.Seconds())
}

// RecordOperation records a completed synchronous operation
func (m *HostAPIMetrics) RecordOperation(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := LabelSuccess
	if err != nil {
		status = LabelError
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetDevices records the device table size for a direction
func (m *HostAPIMetrics) SetDevices(direction string, count int) {
	if m == nil {
		return
	}
	m.devicesGauge.WithLabelValues(direction).Set(float64(count))
}

// RecordStreamOpened counts an opened stream
func (m *HostAPIMetrics) RecordStreamOpened(mode, direction string) {
	if m == nil {
		return
	}
	m.streamsOpenedTotal.WithLabelValues(mode, direction).Inc()
}

// RecordStreamError counts a failed stream operation
func (m *HostAPIMetrics) RecordStreamError(operation string) {
	if m == nil {
		return
	}
	m.streamErrorsTotal.WithLabelValues(operation).Inc()
}

// StreamStarted increments the active stream gauge
func (m *HostAPIMetrics) StreamStarted() {
	if m == nil {
		return
	}
	m.activeStreamsGauge.Inc()
}

// StreamStopped decrements the active stream gauge
func (m *HostAPIMetrics) StreamStopped() {
	if m == nil {
		return
	}
	m.activeStreamsGauge.Dec()
}

// ObserveCallback records time spent in one stream callback invocation
func (m *HostAPIMetrics) ObserveCallback(d time.Duration) {
	if m == nil {
		return
	}
	m.callbackDuration.Observe(d.Seconds())
}

// AddBytes counts bytes transferred in a direction
func (m *HostAPIMetrics) AddBytes(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ioBytesTotal.WithLabelValues(direction).Add(float64(n))
}

// AddInputOverflow counts dropped capture bytes
func (m *HostAPIMetrics) AddInputOverflow(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.inputOverflowBytesTotal.Add(float64(n))
}

// RecordUnderflow counts an output underflow
func (m *HostAPIMetrics) RecordUnderflow() {
	if m == nil {
		return
	}
	m.underflowsTotal.Inc()
}

// RecordLatencyEscalation counts an escalation and publishes the new latency
func (m *HostAPIMetrics) RecordLatencyEscalation(latency time.Duration) {
	if m == nil {
		return
	}
	m.latencyEscalationsTotal.Inc()
	m.outputLatencyGauge.Set(latency.Seconds())
}

// SetOutputLatency publishes the current output latency
func (m *HostAPIMetrics) SetOutputLatency(latency time.Duration) {
	if m == nil {
		return
	}
	m.outputLatencyGauge.Set(latency.Seconds())
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pulsebridge/internal/errors"
)

func TestRecordOperation(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewHostAPIMetrics(registry)
	require.NoError(t, err)

	testCases := []struct {
		name   string
		op     string
		err    error
		status string
	}{
		{"successful sink listing", "list-sinks", nil, "success"},
		{"failed connect", "connect-stream", errors.NewStd("refused"), "error"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m.RecordOperation(tc.op, 5*time.Millisecond, tc.err)

			count := testutil.ToFloat64(m.operationsTotal.WithLabelValues(tc.op, tc.status))
			assert.Equal(t, float64(1), count)
		})
	}
}

func TestLatencyMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewHostAPIMetrics(registry)
	require.NoError(t, err)

	for range 6 {
		m.RecordUnderflow()
	}
	m.RecordLatencyEscalation(30 * time.Millisecond)

	assert.Equal(t, float64(6), testutil.ToFloat64(m.underflowsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.latencyEscalationsTotal))
	assert.InDelta(t, 0.030, testutil.ToFloat64(m.outputLatencyGauge), 1e-9)
}

func TestByteCountersIgnoreEmptyTransfers(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewHostAPIMetrics(registry)
	require.NoError(t, err)

	m.AddBytes("output", 0)
	m.AddBytes("output", 512)
	m.AddInputOverflow(-1)
	m.AddInputOverflow(64)

	assert.Equal(t, float64(512), testutil.ToFloat64(m.ioBytesTotal.WithLabelValues("output")))
	assert.Equal(t, float64(64), testutil.ToFloat64(m.inputOverflowBytesTotal))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *HostAPIMetrics
	assert.NotPanics(t, func() {
		m.RecordEvent("data-ready")
		m.ObserveConnect(time.Millisecond)
		m.RecordOperation("drain", time.Millisecond, nil)
		m.SetDevices("input", 1)
		m.RecordStreamOpened("blocking", "output")
		m.RecordStreamError("start")
		m.StreamStarted()
		m.StreamStopped()
		m.ObserveCallback(time.Millisecond)
		m.AddBytes("input", 10)
		m.AddInputOverflow(10)
		m.RecordUnderflow()
		m.RecordLatencyEscalation(time.Second)
		m.SetOutputLatency(time.Second)
	})
}

func TestDuplicateRegistrationFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewHostAPIMetrics(registry)
	require.NoError(t, err)

	_, err = NewHostAPIMetrics(registry)
	assert.Error(t, err)
}

package hostapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pulsebridge/internal/audioserver"
)

func TestLatencyEscalation(t *testing.T) {
	t.Parallel()

	l := newLatencyState(DefaultLatencyPolicy(), 20*time.Millisecond)

	for i := range 5 {
		assert.False(t, l.onUnderflow(), "underflow %d", i+1)
	}
	assert.True(t, l.onUnderflow())
	assert.Equal(t, 30*time.Millisecond, l.latency())
	assert.Zero(t, l.underflows)

	// a 7th isolated underflow does not escalate again
	assert.False(t, l.onUnderflow())
	assert.Equal(t, 30*time.Millisecond, l.latency())
	assert.Equal(t, 1, l.underflows)
}

func TestLatencyCeiling(t *testing.T) {
	t.Parallel()

	l := newLatencyState(DefaultLatencyPolicy(), 1500*time.Millisecond)
	for range 6 {
		l.onUnderflow()
	}
	assert.Equal(t, DefaultLatencyCeiling, l.latency(), "growth is clamped to the ceiling")

	for range 20 {
		assert.False(t, l.onUnderflow())
	}
	assert.Equal(t, DefaultLatencyCeiling, l.latency())
	assert.Equal(t, DefaultUnderflowThreshold, l.underflows, "counter saturates at the ceiling")

	assert.Equal(t, DefaultLatencyCeiling, newLatencyState(DefaultLatencyPolicy(), 5*time.Second).latency())
}

func TestLatencyPolicyDefaults(t *testing.T) {
	t.Parallel()

	p := LatencyPolicy{GrowthNumerator: 1, GrowthDenominator: 2}
	p.applyDefaults()
	assert.Equal(t, DefaultLatencyPolicy(), p, "a shrinking growth factor is replaced")

	custom := LatencyPolicy{UnderflowThreshold: 2, GrowthNumerator: 2, GrowthDenominator: 1, Ceiling: 100 * time.Millisecond}
	custom.applyDefaults()
	l := newLatencyState(custom, 40*time.Millisecond)
	l.onUnderflow()
	assert.True(t, l.onUnderflow())
	assert.Equal(t, 80*time.Millisecond, l.latency())
	l.onUnderflow()
	assert.True(t, l.onUnderflow())
	assert.Equal(t, 100*time.Millisecond, l.latency())
}

func TestLatencyBufferAttr(t *testing.T) {
	t.Parallel()

	spec := audioserver.SampleSpec{Format: audioserver.FormatS16LE, Rate: testRate, Channels: 2}
	l := newLatencyState(DefaultLatencyPolicy(), 20*time.Millisecond)

	out := l.outputAttr(spec)
	assert.Equal(t, uint32(3840), out.MaxLength)
	assert.Equal(t, uint32(3840), out.TargetLength)
	assert.Equal(t, audioserver.Undefined, out.Prebuf)
	assert.Equal(t, audioserver.Undefined, out.MinReq)
	assert.Equal(t, audioserver.Undefined, out.FragSize)

	in := l.inputAttr(spec)
	assert.Equal(t, uint32(3840), in.FragSize)
	assert.Equal(t, audioserver.Undefined, in.MaxLength)
}

func TestUnderflowEscalatesLiveStream(t *testing.T) {
	t.Parallel()

	api, srv := newTestAPI(t, testConfig())
	h, err := api.OpenStream(OpenParams{Output: outputParams(0, 2), SampleRate: testRate})
	require.NoError(t, err)
	require.NoError(t, h.Start(t.Context()))

	st := srv.LastStream(audioserver.Playback)
	require.NotNil(t, st)
	assert.Equal(t, uint32(3840), st.ConnectAttr().TargetLength, "default latency is 20ms")

	for range 6 {
		st.Underrun()
	}
	settle(t, h, st)

	attrs := st.BufferAttrs()
	require.Len(t, attrs, 1)
	assert.Equal(t, uint32(5760), attrs[0].MaxLength)
	assert.Equal(t, uint32(5760), attrs[0].TargetLength)

	st.Underrun()
	settle(t, h, st)
	assert.Len(t, st.BufferAttrs(), 1, "a 7th underflow does not escalate")

	for range 5 {
		st.Underrun()
	}
	settle(t, h, st)
	attrs = st.BufferAttrs()
	require.Len(t, attrs, 2)
	assert.Equal(t, uint32(8640), attrs[1].TargetLength)
}

func TestSuggestedLatencyOverridesDefault(t *testing.T) {
	t.Parallel()

	api, srv := newTestAPI(t, testConfig())
	params := outputParams(0, 2)
	params.SuggestedLatency = 50 * time.Millisecond
	h, err := api.OpenStream(OpenParams{Output: params, SampleRate: testRate})
	require.NoError(t, err)
	require.NoError(t, h.Start(t.Context()))

	st := srv.LastStream(audioserver.Playback)
	assert.Equal(t, uint32(9600), st.ConnectAttr().MaxLength)

	in := inputParams(1, 1)
	in.SuggestedLatency = 10 * time.Millisecond
	hin, err := api.OpenStream(OpenParams{Input: in, SampleRate: testRate})
	require.NoError(t, err)
	require.NoError(t, hin.Start(t.Context()))

	rec := srv.LastStream(audioserver.Record)
	assert.Equal(t, uint32(960), rec.ConnectAttr().FragSize)
	assert.Equal(t, audioserver.Undefined, rec.ConnectAttr().MaxLength)
}

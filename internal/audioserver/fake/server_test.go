package fake

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/pulsebridge/internal/audioserver"
	"github.com/tphakala/pulsebridge/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder collects posted events
type recorder struct {
	mu     sync.Mutex
	events []audioserver.Event
}

func (r *recorder) Post(ev audioserver.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []audioserver.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audioserver.Event(nil), r.events...)
}

func connected(t *testing.T, opts ...Option) (*Server, *recorder) {
	t.Helper()
	srv := NewServer(opts...)
	rec := &recorder{}
	require.NoError(t, srv.Connect("fake-test", rec))
	t.Cleanup(func() { _ = srv.Disconnect() })
	srv.Sync()
	return srv, rec
}

func TestConnectReportsStates(t *testing.T) {
	t.Parallel()

	srv, rec := connected(t)
	assert.Equal(t, "fake-test", srv.ClientName())

	var states []audioserver.ContextState
	for _, ev := range rec.snapshot() {
		if sc, ok := ev.(audioserver.ContextStateChanged); ok {
			states = append(states, sc.State)
		}
	}
	assert.Equal(t, []audioserver.ContextState{
		audioserver.ContextConnecting,
		audioserver.ContextAuthorizing,
		audioserver.ContextSettingName,
		audioserver.ContextReady,
	}, states)
}

func TestConnectFailure(t *testing.T) {
	t.Parallel()

	cause := errors.NewStd("access denied")
	_, rec := connected(t, WithConnectFailure(cause))

	events := rec.snapshot()
	require.NotEmpty(t, events)
	last, ok := events[len(events)-1].(audioserver.ContextStateChanged)
	require.True(t, ok)
	assert.Equal(t, audioserver.ContextFailed, last.State)
	assert.ErrorIs(t, last.Err, cause)
}

func TestListDevicesEndsWithEOL(t *testing.T) {
	t.Parallel()

	srv, rec := connected(t, DefaultDevices()...)
	require.NoError(t, srv.ListDevices(7, audioserver.Playback))
	srv.Sync()

	events := rec.snapshot()[4:]
	require.Len(t, events, 3)

	entry := events[0].(audioserver.DeviceListEntry)
	assert.Equal(t, "fake_output", entry.Info.Name)
	assert.False(t, entry.EOL)
	assert.True(t, events[1].(audioserver.DeviceListEntry).EOL)
	assert.Equal(t, audioserver.OperationDone{Op: 7}, events[2])
}

func TestStreamTraffic(t *testing.T) {
	t.Parallel()

	srv, rec := connected(t, DefaultDevices()...)
	spec := audioserver.SampleSpec{Format: audioserver.FormatS16LE, Rate: 48000, Channels: 2}
	s, err := srv.NewStream(audioserver.StreamConfig{ID: uuid.New(), Direction: audioserver.Playback, Spec: spec})
	require.NoError(t, err)
	st := srv.LastStream(audioserver.Playback)
	require.Same(t, s, st)

	attr := audioserver.DefaultBufferAttr()
	attr.TargetLength = 3840
	require.NoError(t, st.Connect(1, attr))
	require.NoError(t, st.Cork(2, false))
	st.RequestSpace(16)
	st.Underrun()
	srv.Sync()

	assert.Equal(t, audioserver.StreamReady, st.State())
	assert.False(t, st.Corked())
	assert.Equal(t, uint32(3840), st.ConnectAttr().TargetLength)

	require.NoError(t, st.Write([]byte{1, 2, 3, 4}))
	assert.Equal(t, []byte{1, 2, 3, 4}, st.Written())
	pos, err := st.Time()
	require.NoError(t, err)
	assert.Equal(t, spec.Duration(4), pos)

	var sawSpace, sawUnderflow, sawStarted bool
	for _, ev := range rec.snapshot() {
		switch e := ev.(type) {
		case audioserver.SpaceReady:
			sawSpace = e.Bytes == 16
		case audioserver.Underflow:
			sawUnderflow = true
		case audioserver.StreamStarted:
			sawStarted = true
		}
	}
	assert.True(t, sawSpace)
	assert.True(t, sawUnderflow)
	assert.True(t, sawStarted)
}

func TestRealtimeClockRequestsSpace(t *testing.T) {
	t.Parallel()

	srv, rec := connected(t, append(DefaultDevices(), WithRealtime(2*time.Millisecond))...)
	spec := audioserver.SampleSpec{Format: audioserver.FormatS16LE, Rate: 48000, Channels: 1}
	st, err := srv.NewStream(audioserver.StreamConfig{ID: uuid.New(), Direction: audioserver.Record, Spec: spec})
	require.NoError(t, err)
	require.NoError(t, st.Connect(1, audioserver.DefaultBufferAttr()))
	require.NoError(t, st.Cork(2, false))

	assert.Eventually(t, func() bool {
		for _, ev := range rec.snapshot() {
			if d, ok := ev.(audioserver.DataReady); ok && len(d.Data) == 192 {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	require.NoError(t, st.Cork(3, true))
	require.NoError(t, st.Disconnect())
}

func TestRequestsAfterDisconnect(t *testing.T) {
	t.Parallel()

	srv := NewServer()
	require.NoError(t, srv.Connect("x", &recorder{}))
	require.NoError(t, srv.Disconnect())
	require.NoError(t, srv.Disconnect())

	assert.ErrorIs(t, srv.ListDevices(1, audioserver.Record), ErrServerClosed)
	_, err := srv.NewStream(audioserver.StreamConfig{})
	assert.ErrorIs(t, err, ErrServerClosed)
}

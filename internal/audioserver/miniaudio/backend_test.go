package miniaudio

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pulsebridge/internal/audioserver"
)

func TestHexToASCII(t *testing.T) {
	t.Parallel()

	raw := append([]byte("alsa_output.pci-0000_00_1f.3.analog-stereo"), 0, 0, 0)
	got, err := hexToASCII(hex.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, "alsa_output.pci-0000_00_1f.3.analog-stereo", got)

	_, err = hexToASCII("not hex")
	assert.Error(t, err)
}

func TestFormatType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   audioserver.SampleFormat
		want malgo.FormatType
		ok   bool
	}{
		{audioserver.FormatU8, malgo.FormatU8, true},
		{audioserver.FormatS16LE, malgo.FormatS16, true},
		{audioserver.FormatS24LE, malgo.FormatS24, true},
		{audioserver.FormatS32LE, malgo.FormatS32, true},
		{audioserver.FormatFloat32LE, malgo.FormatF32, true},
		{audioserver.FormatInvalid, malgo.FormatUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			t.Parallel()
			got, ok := formatType(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPeriodMillis(t *testing.T) {
	t.Parallel()

	spec := audioserver.SampleSpec{Format: audioserver.FormatS16LE, Rate: 48000, Channels: 2}
	assert.Zero(t, periodMillis(spec, audioserver.Undefined))
	assert.Zero(t, periodMillis(spec, 0))
	assert.Equal(t, uint32(20), periodMillis(spec, spec.UsecToBytes(20_000)))
	assert.Equal(t, uint32(1), periodMillis(spec, 4))
}

func TestDeviceInfo(t *testing.T) {
	t.Parallel()

	b := New(WithDeviceSpec(6, 96000))
	info := b.deviceInfo(2, "alsa_input.usb", "USB Microphone")
	assert.Equal(t, uint32(2), info.Index)
	assert.Equal(t, "alsa_input.usb", info.Name)
	assert.Equal(t, "USB Microphone", info.Description)
	assert.Equal(t, uint8(6), info.Spec.Channels)
	assert.Equal(t, uint32(96000), info.Spec.Rate)

	defaults := New().deviceInfo(0, "x", "y")
	assert.Equal(t, uint8(DefaultChannels), defaults.Spec.Channels)
	assert.Equal(t, uint32(DefaultSampleRate), defaults.Spec.Rate)
}

func next(t *testing.T, ch <-chan audioserver.Event) audioserver.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return nil
	}
}

func TestDataCallback(t *testing.T) {
	t.Parallel()

	events := make(chan audioserver.Event, 16)
	sink := audioserver.EventSinkFunc(func(ev audioserver.Event) { events <- ev })
	id := uuid.New()

	st := newStream(New(), nil, sink, audioserver.StreamConfig{
		ID:        id,
		Direction: audioserver.Playback,
		Spec:      audioserver.SampleSpec{Format: audioserver.FormatS16LE, Rate: 48000, Channels: 1},
	})
	t.Cleanup(st.release)
	require.NoError(t, st.Write([]byte{1, 2, 3, 4}))

	out := make([]byte, 4)
	st.onData(out, nil, 2)
	assert.Equal(t, []byte{1, 2, 3, 4}, out)
	assert.Equal(t, audioserver.SpaceReady{Stream: id, Bytes: 4}, next(t, events))

	st.onData(out, nil, 2)
	assert.Equal(t, audioserver.Underflow{Stream: id}, next(t, events))
	assert.Equal(t, audioserver.SpaceReady{Stream: id, Bytes: 4}, next(t, events))

	rec := newStream(New(), nil, sink, audioserver.StreamConfig{
		ID:        id,
		Direction: audioserver.Record,
		Spec:      audioserver.SampleSpec{Format: audioserver.FormatS16LE, Rate: 48000, Channels: 1},
	})
	t.Cleanup(rec.release)
	rec.onData(nil, []byte{7, 7}, 1)
	assert.Equal(t, audioserver.DataReady{Stream: id, Data: []byte{7, 7}}, next(t, events))
	assert.Error(t, rec.Write([]byte{0, 0}))
}

func TestUnexpectedStopFailsStream(t *testing.T) {
	t.Parallel()

	var events []audioserver.Event
	sink := audioserver.EventSinkFunc(func(ev audioserver.Event) { events = append(events, ev) })
	st := newStream(New(), nil, sink, audioserver.StreamConfig{ID: uuid.New(), Direction: audioserver.Playback})
	t.Cleanup(st.release)

	st.onStop()
	assert.Empty(t, events, "requested stop is not a failure")

	st.setRunning(true)
	st.onStop()
	require.Len(t, events, 1)
	ev, ok := events[0].(audioserver.StreamStateChanged)
	require.True(t, ok)
	assert.Equal(t, audioserver.StreamFailed, ev.State)
	assert.Error(t, ev.Err)
}

func TestRequestsBeforeConnect(t *testing.T) {
	t.Parallel()

	b := New()
	assert.Equal(t, Name, b.Name())
	assert.ErrorIs(t, b.ListDevices(1, audioserver.Record), ErrNotConnected)
	_, err := b.NewStream(audioserver.StreamConfig{})
	assert.ErrorIs(t, err, ErrNotConnected)
	require.NoError(t, b.Disconnect())
}

package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/pulsebridge/internal/audioserver"
	"github.com/tphakala/pulsebridge/internal/audioserver/fake"
	"github.com/tphakala/pulsebridge/internal/audioserver/miniaudio"
	"github.com/tphakala/pulsebridge/internal/audioserver/pulse"
	"github.com/tphakala/pulsebridge/internal/conf"
	"github.com/tphakala/pulsebridge/internal/errors"
	"github.com/tphakala/pulsebridge/internal/hostapi"
)

const testPeriod = 5 * time.Millisecond

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Client.Name = "bridge-test"
	s.Backend.Type = conf.BackendFake
	s.Stream.DrainTimeout = 2 * time.Second
	return s
}

// openFake opens a runtime over a realtime fake server with a stereo sink
// and a mono source
func openFake(t *testing.T) (*Runtime, *fake.Server) {
	t.Helper()
	srv := fake.NewServer(append(fake.DefaultDevices(), fake.WithRealtime(testPeriod))...)
	rt, err := Open(t.Context(), testSettings(), Options{Backend: srv})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt, srv
}

func writeTestWAV(t *testing.T, frames, channels, rate, bitDepth int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, rate, bitDepth, channels, 1)
	data := make([]int, frames*channels)
	for i := range data {
		data[i] = i % 100
	}
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: rate, NumChannels: channels},
		SourceBitDepth: bitDepth,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		backend string
		want    string
	}{
		{conf.BackendPulse, pulse.Name},
		{conf.BackendMiniaudio, miniaudio.Name},
		{conf.BackendFake, "fake"},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			t.Parallel()
			s := testSettings()
			s.Backend.Type = tt.backend
			b, err := NewBackend(s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.Name())
		})
	}

	s := testSettings()
	s.Backend.Type = "jack"
	_, err := NewBackend(s)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestOpenFailsWithoutServer(t *testing.T) {
	t.Parallel()

	srv := fake.NewServer(fake.WithConnectFailure(errors.NewStd("connection refused")))
	_, err := Open(t.Context(), testSettings(), Options{Backend: srv})
	assert.ErrorIs(t, err, hostapi.ErrConnection)
}

func TestDeviceReport(t *testing.T) {
	t.Parallel()

	rt, _ := openFake(t)
	report := NewDeviceReport(rt.API)
	assert.Equal(t, "fake", report.HostAPI)
	require.Len(t, report.Devices, 2)

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteDevices(&buf, report, FormatTable))
		assert.Contains(t, buf.String(), "fake_output")
		assert.Contains(t, buf.String(), "fake_input")
		assert.Contains(t, buf.String(), "SERVER NAME")
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteDevices(&buf, report, FormatYAML))
		var got DeviceReport
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, report, got)
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteDevices(&buf, report, FormatJSON))
		var got DeviceReport
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, report, got)
	})

	t.Run("unknown format", func(t *testing.T) {
		err := WriteDevices(&bytes.Buffer{}, report, "xml")
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	})
}

func TestCheck(t *testing.T) {
	t.Parallel()

	rt, _ := openFake(t)
	var buf bytes.Buffer
	results, err := Check(t.Context(), rt, &buf)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "output", results[0].Direction)
	assert.Equal(t, "input", results[1].Direction)
	assert.Contains(t, buf.String(), "ok")
}

func TestPlayFile(t *testing.T) {
	t.Parallel()

	rt, srv := openFake(t)
	path := writeTestWAV(t, 2400, 2, 48000, 16)

	result, err := PlayFile(t.Context(), rt, path, PlayOptions{Device: -1, ChunkFrames: 256})
	require.NoError(t, err)
	assert.Equal(t, 2400, result.Frames)
	assert.Equal(t, 48000, result.SampleRate)
	assert.Equal(t, 2, result.Channels)

	st := srv.LastStream(audioserver.Playback)
	require.NotNil(t, st)
	written := st.Written()
	require.Len(t, written, 2400*4)
	// second sample of the first frame is 1 as int16 little endian
	assert.Equal(t, []byte{0, 0, 1, 0}, written[:4])
}

func TestPlayFileRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	rt, _ := openFake(t)

	_, err := PlayFile(t.Context(), rt, filepath.Join(t.TempDir(), "missing.wav"), PlayOptions{Device: -1})
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

	junk := filepath.Join(t.TempDir(), "junk.wav")
	require.NoError(t, os.WriteFile(junk, []byte("not a wav file at all"), 0o600))
	_, err = PlayFile(t.Context(), rt, junk, PlayOptions{Device: -1})
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	junkFLAC := filepath.Join(t.TempDir(), "junk.FLAC")
	require.NoError(t, os.WriteFile(junkFLAC, []byte("RIFF but not flac"), 0o600))
	_, err = PlayFile(t.Context(), rt, junkFLAC, PlayOptions{Device: -1})
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Contains(t, err.Error(), "FLAC")
}

func TestPlayFileCancel(t *testing.T) {
	t.Parallel()

	rt, _ := openFake(t)
	// two seconds of audio, cancelled long before the end
	path := writeTestWAV(t, 96000, 2, 48000, 16)

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	result, err := PlayFile(ctx, rt, path, PlayOptions{Device: -1})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, result.Frames, 96000)
}

func TestRecordFile(t *testing.T) {
	t.Parallel()

	rt, _ := openFake(t)
	path := filepath.Join(t.TempDir(), "out.wav")

	result, err := RecordFile(t.Context(), rt, path, RecordOptions{
		Device:      -1,
		Duration:    50 * time.Millisecond,
		ChunkFrames: 240,
	})
	require.NoError(t, err)
	assert.Equal(t, 2400, result.Frames)
	assert.Equal(t, 1, result.Channels)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	require.True(t, dec.IsValidFile())
	assert.Equal(t, uint16(16), dec.BitDepth)
	assert.Equal(t, uint16(1), dec.NumChans)
	assert.Equal(t, uint32(48000), dec.SampleRate)

	_, err = RecordFile(t.Context(), rt, path, RecordOptions{Device: -1})
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestPlayTone(t *testing.T) {
	t.Parallel()

	rt, srv := openFake(t)
	result, err := PlayTone(t.Context(), rt, ToneOptions{
		Device:    -1,
		Frequency: 440,
		Duration:  30 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, 1440, result.Frames)
	assert.Equal(t, 2, result.Channels)

	st := srv.LastStream(audioserver.Playback)
	require.NotNil(t, st)
	assert.GreaterOrEqual(t, len(st.Written()), 1440*8)

	_, err = PlayTone(t.Context(), rt, ToneOptions{Device: -1})
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

package audioserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSampleSpecSizes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		spec      SampleSpec
		frameSize int
		valid     bool
	}{
		{"float stereo", SampleSpec{FormatFloat32LE, 48000, 2}, 8, true},
		{"s16 mono", SampleSpec{FormatS16LE, 44100, 1}, 2, true},
		{"s24 six channels", SampleSpec{FormatS24LE, 96000, 6}, 18, true},
		{"u8 mono", SampleSpec{FormatU8, 8000, 1}, 1, true},
		{"zero rate", SampleSpec{FormatS16LE, 0, 2}, 4, false},
		{"rate above max", SampleSpec{FormatS16LE, MaxRate + 1, 2}, 4, false},
		{"too many channels", SampleSpec{FormatS16LE, 48000, MaxChannels + 1}, 66, false},
		{"invalid format", SampleSpec{FormatInvalid, 48000, 2}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.frameSize, tt.spec.FrameSize())
			assert.Equal(t, tt.valid, tt.spec.Valid())
		})
	}
}

func TestUsecToBytesIsFrameAligned(t *testing.T) {
	t.Parallel()

	spec := SampleSpec{Format: FormatS16LE, Rate: 44100, Channels: 2}

	// 20ms at 44.1kHz is 882 frames
	assert.Equal(t, uint32(882*4), spec.UsecToBytes(20_000))
	// 1µs is less than a frame
	assert.Equal(t, uint32(0), spec.UsecToBytes(1))
	assert.Equal(t, uint32(44100*4*2), spec.UsecToBytes(2_000_000))

	assert.Equal(t, uint64(20_000), spec.BytesToUsec(882*4+3))
	assert.Equal(t, 20*time.Millisecond, spec.Duration(882*4))
}

func TestDefaultBufferAttr(t *testing.T) {
	t.Parallel()

	attr := DefaultBufferAttr()
	for _, v := range []uint32{attr.MaxLength, attr.TargetLength, attr.Prebuf, attr.MinReq, attr.FragSize} {
		assert.Equal(t, Undefined, v)
	}
}

func TestStateStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ready", ContextReady.String())
	assert.True(t, ContextFailed.IsFinal())
	assert.False(t, ContextAuthorizing.IsFinal())
	assert.True(t, StreamCreating.IsGood())
	assert.False(t, StreamFailed.IsGood())
	assert.Equal(t, "input", Record.String())
}

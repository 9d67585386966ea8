package hostapi

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRingRoundTrip(t *testing.T) {
	t.Parallel()

	r, err := newFrameRing(16, 4, DefaultMaxRingBufferBytes)
	require.NoError(t, err)
	assert.Equal(t, 64, r.capacity())

	data := bytes.Repeat([]byte{1, 2, 3, 4}, 10)
	assert.Equal(t, len(data), r.write(data))
	assert.Equal(t, 10, r.framesAvailable())
	assert.Equal(t, 6, r.framesFree())

	out := make([]byte, len(data))
	assert.Equal(t, len(data), r.read(out))
	assert.Equal(t, data, out)
	assert.Zero(t, r.framesAvailable())

	// wrap around the end of the store
	more := bytes.Repeat([]byte{9, 8, 7, 6}, 12)
	assert.Equal(t, len(more), r.write(more))
	got := make([]byte, len(more))
	assert.Equal(t, len(more), r.read(got))
	assert.Equal(t, more, got)
}

func TestFrameRingBounds(t *testing.T) {
	t.Parallel()

	r, err := newFrameRing(4, 2, DefaultMaxRingBufferBytes)
	require.NoError(t, err)

	assert.Equal(t, 8, r.write(make([]byte, 12)), "write never exceeds free space")
	assert.Zero(t, r.write([]byte{1}))
	assert.Equal(t, 8, r.read(make([]byte, 20)), "read never exceeds buffered data")
	assert.Zero(t, r.read(make([]byte, 2)))

	r.write([]byte{1, 2})
	r.reset()
	assert.Zero(t, r.length())
	assert.Equal(t, 8, r.free())
}

func TestNewFrameRingLimits(t *testing.T) {
	t.Parallel()

	_, err := newFrameRing(4096, 8, 1024)
	assert.ErrorIs(t, err, ErrInsufficientMemory)

	_, err = newFrameRing(0, 4, 1024)
	assert.ErrorIs(t, err, ErrInsufficientMemory)

	r, err := newFrameRing(128, 8, 1024)
	require.NoError(t, err)
	assert.Equal(t, 1024, r.capacity())
}

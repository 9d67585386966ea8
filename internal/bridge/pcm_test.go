package bridge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pulsebridge/internal/hostapi"
)

func TestFormatForBitDepth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bits int
		want hostapi.SampleFormat
	}{
		{8, hostapi.UInt8},
		{16, hostapi.Int16},
		{24, hostapi.Int24},
		{32, hostapi.Int32},
	}
	for _, tt := range tests {
		got, err := formatForBitDepth(tt.bits)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	_, err := formatForBitDepth(12)
	assert.Error(t, err)
}

func TestPackSamples(t *testing.T) {
	t.Parallel()

	t.Run("8 bit", func(t *testing.T) {
		dst := make([]byte, 2)
		packSamples(dst, []int{0x80, 0xff}, 8)
		assert.Equal(t, []byte{0x80, 0xff}, dst)
	})
	t.Run("16 bit", func(t *testing.T) {
		dst := make([]byte, 4)
		packSamples(dst, []int{-2, 0x1234}, 16)
		assert.Equal(t, []byte{0xfe, 0xff, 0x34, 0x12}, dst)
	})
	t.Run("24 bit", func(t *testing.T) {
		dst := make([]byte, 6)
		packSamples(dst, []int{-1, 0x123456}, 24)
		assert.Equal(t, []byte{0xff, 0xff, 0xff, 0x56, 0x34, 0x12}, dst)
	})
	t.Run("32 bit", func(t *testing.T) {
		dst := make([]byte, 4)
		packSamples(dst, []int{math.MinInt32}, 32)
		assert.Equal(t, []byte{0, 0, 0, 0x80}, dst)
	})
}

func TestUnpackInt16(t *testing.T) {
	t.Parallel()

	dst := make([]int, 2)
	unpackInt16(dst, []byte{0xfe, 0xff, 0x34, 0x12})
	assert.Equal(t, []int{-2, 0x1234}, dst)
}

func TestSineGenerator(t *testing.T) {
	t.Parallel()

	g := newSineGenerator(12000, 1, 48000, 2, 6)
	out := make([]byte, 4*8)
	assert.Equal(t, hostapi.Continue, g.fill(out, 4))

	sample := func(i int) float32 {
		return math.Float32frombits(uint32(out[i*4]) | uint32(out[i*4+1])<<8 | uint32(out[i*4+2])<<16 | uint32(out[i*4+3])<<24)
	}
	// quarter wave per frame: 0, 1, 0, -1 on both channels
	assert.InDelta(t, 0, sample(0), 1e-6)
	assert.InDelta(t, 1, sample(2), 1e-6)
	assert.InDelta(t, 1, sample(3), 1e-6)
	assert.InDelta(t, -1, sample(6), 1e-6)

	clear(out)
	assert.Equal(t, hostapi.Complete, g.fill(out, 4))
	// frames past the end stay silent
	assert.Zero(t, sample(4))
	assert.Zero(t, sample(7))
}

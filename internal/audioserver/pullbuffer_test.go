package audioserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPullBufferFill(t *testing.T) {
	t.Parallel()

	t.Run("silence before first write is not an underflow", func(t *testing.T) {
		t.Parallel()
		b := NewPullBuffer(FormatS16LE)
		p := []byte{1, 2, 3, 4}
		assert.False(t, b.Fill(p))
		assert.Equal(t, []byte{0, 0, 0, 0}, p)
		assert.Equal(t, 4, b.Pulled())
	})

	t.Run("short data after write underflows", func(t *testing.T) {
		t.Parallel()
		b := NewPullBuffer(FormatS16LE)
		b.Write([]byte{9, 9, 9, 9, 9, 9})

		p := make([]byte, 4)
		assert.False(t, b.Fill(p))
		assert.Equal(t, []byte{9, 9, 9, 9}, p)
		assert.Equal(t, 2, b.Len())

		assert.True(t, b.Fill(p))
		assert.Equal(t, []byte{9, 9, 0, 0}, p)
		assert.Zero(t, b.Len())
		assert.Equal(t, 8, b.Pulled())
	})

	t.Run("unsigned silence", func(t *testing.T) {
		t.Parallel()
		b := NewPullBuffer(FormatU8)
		p := make([]byte, 2)
		b.Fill(p)
		assert.Equal(t, []byte{0x80, 0x80}, p)
	})

	t.Run("reset clears primed state", func(t *testing.T) {
		t.Parallel()
		b := NewPullBuffer(FormatS16LE)
		b.Write([]byte{1, 1})
		b.Reset()
		assert.Zero(t, b.Len())
		assert.False(t, b.Fill(make([]byte, 4)))
	})

	t.Run("write does not retain caller slice", func(t *testing.T) {
		t.Parallel()
		b := NewPullBuffer(FormatS16LE)
		src := []byte{5, 6}
		b.Write(src)
		src[0] = 0
		p := make([]byte, 2)
		b.Fill(p)
		assert.Equal(t, []byte{5, 6}, p)
	})
}

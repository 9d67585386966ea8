package hostapi

import (
	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/pulsebridge/internal/errors"
)

// Ring buffer sizing defaults
const (
	DefaultRingBufferFrames   = 4096
	DefaultMaxRingBufferBytes = 16 << 20
)

// frameRing is a fixed capacity byte FIFO whose capacity is a whole number
// of frames. It does no locking of its own; every access happens under the
// session lock.
type frameRing struct {
	rb        *ringbuffer.RingBuffer
	frameSize int
}

func newFrameRing(frames, frameSize, maxBytes int) (*frameRing, error) {
	size := frames * frameSize
	if frames <= 0 || frameSize <= 0 || frames > maxBytes/frameSize {
		return nil, newError(ErrInsufficientMemory, errors.CategoryResource).
			Context("frames", frames).
			Context("frame_size", frameSize).
			Context("max_bytes", maxBytes).
			Build()
	}
	return &frameRing{rb: ringbuffer.New(size), frameSize: frameSize}, nil
}

// write stores as much of p as fits and returns the count stored
func (r *frameRing) write(p []byte) int {
	if free := r.rb.Free(); len(p) > free {
		p = p[:free]
	}
	if len(p) == 0 {
		return 0
	}
	n, _ := r.rb.Write(p)
	return n
}

// read fills p with up to len(p) buffered bytes
func (r *frameRing) read(p []byte) int {
	if len(p) == 0 || r.rb.IsEmpty() {
		return 0
	}
	n, _ := r.rb.Read(p)
	return n
}

func (r *frameRing) length() int   { return r.rb.Length() }
func (r *frameRing) free() int     { return r.rb.Free() }
func (r *frameRing) capacity() int { return r.rb.Capacity() }
func (r *frameRing) reset()        { r.rb.Reset() }

// framesAvailable and framesFree report whole frames only
func (r *frameRing) framesAvailable() int { return r.length() / r.frameSize }
func (r *frameRing) framesFree() int      { return r.free() / r.frameSize }

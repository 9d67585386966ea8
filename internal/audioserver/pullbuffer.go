package audioserver

import "sync"

// PullBuffer adapts a client library that pulls playback data from a
// callback. The core's answers to SpaceReady are queued with Write and the
// library's callback drains them with Fill.
type PullBuffer struct {
	silence byte

	mu      sync.Mutex
	pending []byte
	primed  bool
	pulled  int
}

// NewPullBuffer returns an empty buffer padding with format's silence value
func NewPullBuffer(format SampleFormat) *PullBuffer {
	b := &PullBuffer{}
	if format == FormatU8 {
		b.silence = 0x80
	}
	return b
}

// Write queues p. It never blocks and does not retain p.
func (b *PullBuffer) Write(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, p...)
	b.primed = true
}

// Fill copies queued data into p and pads the remainder with silence. It
// reports an underflow when data had been written before but not enough
// was left to fill p.
func (b *PullBuffer) Fill(p []byte) (underflow bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	if len(b.pending) == 0 {
		b.pending = nil
	}
	for i := n; i < len(p); i++ {
		p[i] = b.silence
	}
	b.pulled += len(p)
	return b.primed && n < len(p)
}

// Len returns the number of queued bytes
func (b *PullBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Reset discards queued data; the next Fill is not an underflow
func (b *PullBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
	b.primed = false
}

// Pulled returns the number of bytes handed out by Fill, silence included
func (b *PullBuffer) Pulled() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pulled
}

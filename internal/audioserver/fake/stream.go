package fake

import (
	"bytes"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/pulsebridge/internal/audioserver"
)

// Stream is a fake sub-stream. Playback data written by the client is kept
// in memory; capture data is injected with Capture.
type Stream struct {
	srv *Server
	cfg audioserver.StreamConfig

	mu          sync.Mutex
	state       audioserver.StreamState
	corked      bool
	started     bool
	connectAttr audioserver.BufferAttr
	attrs       []audioserver.BufferAttr
	written     bytes.Buffer
	position    int // bytes played or captured
	requested   int // bytes asked for by the last realtime tick
	flushes     int
	drains      int
	clockStop   chan struct{}
	clockDone   chan struct{}
}

// ID returns the stream's identifier
func (st *Stream) ID() uuid.UUID { return st.cfg.ID }

// Config returns the configuration the stream was created with
func (st *Stream) Config() audioserver.StreamConfig { return st.cfg }

// Connect implements audioserver.Stream
func (st *Stream) Connect(op audioserver.OperationID, attr audioserver.BufferAttr) error {
	st.mu.Lock()
	st.connectAttr = attr
	st.state = audioserver.StreamCreating
	st.mu.Unlock()

	failure := st.srv.streamErr
	st.srv.enqueue(func() {
		st.srv.post(audioserver.StreamStateChanged{Stream: st.cfg.ID, State: audioserver.StreamCreating})
		if failure != nil {
			st.setState(audioserver.StreamFailed)
			st.srv.post(audioserver.StreamStateChanged{Stream: st.cfg.ID, State: audioserver.StreamFailed, Err: failure})
			st.srv.post(audioserver.OperationDone{Op: op, Err: failure})
			return
		}
		st.setState(audioserver.StreamReady)
		st.srv.post(audioserver.StreamStateChanged{Stream: st.cfg.ID, State: audioserver.StreamReady})
		st.srv.post(audioserver.OperationDone{Op: op})
	})
	return nil
}

// Cork implements audioserver.Stream
func (st *Stream) Cork(op audioserver.OperationID, pause bool) error {
	st.mu.Lock()
	st.corked = pause
	firstStart := !pause && !st.started
	if firstStart {
		st.started = true
	}
	st.mu.Unlock()

	if pause {
		st.stopClock()
	} else if st.srv.realtime > 0 {
		st.startClock(st.srv.realtime)
	}

	st.srv.enqueue(func() {
		if firstStart {
			st.srv.post(audioserver.StreamStarted{Stream: st.cfg.ID})
		}
		st.srv.post(audioserver.OperationDone{Op: op})
	})
	return nil
}

// Flush implements audioserver.Stream
func (st *Stream) Flush(op audioserver.OperationID) error {
	st.mu.Lock()
	st.flushes++
	st.mu.Unlock()

	st.srv.enqueue(func() { st.srv.post(audioserver.OperationDone{Op: op}) })
	return nil
}

// Drain implements audioserver.Stream
func (st *Stream) Drain(op audioserver.OperationID) error {
	st.mu.Lock()
	st.drains++
	st.mu.Unlock()

	st.srv.enqueue(func() { st.srv.post(audioserver.OperationDone{Op: op}) })
	return nil
}

// Write implements audioserver.Stream
func (st *Stream) Write(p []byte) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.written.Write(p)
	st.position += len(p)
	st.requested -= len(p)
	return nil
}

// SetBufferAttr implements audioserver.Stream
func (st *Stream) SetBufferAttr(attr audioserver.BufferAttr) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.attrs = append(st.attrs, attr)
	return nil
}

// Time implements audioserver.Stream
func (st *Stream) Time() (time.Duration, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cfg.Spec.Duration(st.position), nil
}

// Disconnect implements audioserver.Stream
func (st *Stream) Disconnect() error {
	st.stopClock()
	st.setState(audioserver.StreamTerminated)
	return nil
}

// RequestSpace posts a SpaceReady for n bytes, as the server would when its
// playback buffer has room.
func (st *Stream) RequestSpace(n int) {
	st.srv.enqueue(func() {
		st.srv.post(audioserver.SpaceReady{Stream: st.cfg.ID, Bytes: n})
	})
}

// Capture posts data as freshly recorded input
func (st *Stream) Capture(data []byte) {
	buf := bytes.Clone(data)
	st.srv.enqueue(func() {
		st.mu.Lock()
		st.position += len(buf)
		st.mu.Unlock()
		st.srv.post(audioserver.DataReady{Stream: st.cfg.ID, Data: buf})
	})
}

// Underrun posts an Underflow notification
func (st *Stream) Underrun() {
	st.srv.enqueue(func() {
		st.srv.post(audioserver.Underflow{Stream: st.cfg.ID})
	})
}

// Fail moves the stream to the failed state
func (st *Stream) Fail(err error) {
	st.srv.enqueue(func() {
		st.setState(audioserver.StreamFailed)
		st.srv.post(audioserver.StreamStateChanged{Stream: st.cfg.ID, State: audioserver.StreamFailed, Err: err})
	})
}

// Written returns a copy of all playback data received
func (st *Stream) Written() []byte {
	st.mu.Lock()
	defer st.mu.Unlock()
	return bytes.Clone(st.written.Bytes())
}

// ConnectAttr returns the attributes passed to Connect
func (st *Stream) ConnectAttr() audioserver.BufferAttr {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.connectAttr
}

// BufferAttrs returns every attribute update applied with SetBufferAttr
func (st *Stream) BufferAttrs() []audioserver.BufferAttr {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]audioserver.BufferAttr(nil), st.attrs...)
}

// State returns the server-side state
func (st *Stream) State() audioserver.StreamState {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// Corked reports whether the stream is paused
func (st *Stream) Corked() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.corked
}

// Flushes returns how many times Flush was called
func (st *Stream) Flushes() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.flushes
}

// Drains returns how many times Drain was called
func (st *Stream) Drains() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.drains
}

func (st *Stream) setState(state audioserver.StreamState) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state = state
}

func (st *Stream) startClock(period time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.clockStop != nil {
		return
	}
	st.clockStop = make(chan struct{})
	st.clockDone = make(chan struct{})
	go st.runClock(period, st.clockStop, st.clockDone)
}

func (st *Stream) stopClock() {
	st.mu.Lock()
	stop, done := st.clockStop, st.clockDone
	st.clockStop, st.clockDone = nil, nil
	st.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// runClock emulates the server consuming or producing one period per tick.
// A playback period that was not fully answered by the next tick is an underrun.
func (st *Stream) runClock(period time.Duration, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	chunk := int(st.cfg.Spec.UsecToBytes(uint64(period / time.Microsecond)))
	if chunk == 0 {
		chunk = st.cfg.Spec.FrameSize()
	}

	for {
		select {
		case <-stop:
			return
		case <-st.srv.done:
			return
		case <-ticker.C:
		}

		if st.cfg.Direction == audioserver.Record {
			st.Capture(make([]byte, chunk))
			continue
		}

		st.mu.Lock()
		short := st.started && st.requested > 0
		st.requested = chunk
		st.mu.Unlock()

		if short {
			st.Underrun()
		}
		st.RequestSpace(chunk)
	}
}

var _ audioserver.Stream = (*Stream)(nil)

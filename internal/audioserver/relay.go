package audioserver

import (
	"sync"

	"github.com/google/uuid"
)

// Relay forwards events raised on a client library's audio thread to an
// EventSink from its own goroutine, so the audio thread never waits on the
// receiver. Requests raised while delivery is behind are coalesced into one
// SpaceReady of their summed size and one DataReady of the concatenated
// capture. Every underflow is still delivered.
type Relay struct {
	id     uuid.UUID
	events EventSink

	mu         sync.Mutex
	requested  int
	underflows int
	captured   []byte
	closed     bool

	notify chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewRelay starts a relay posting events for stream id to events
func NewRelay(id uuid.UUID, events EventSink) *Relay {
	r := &Relay{
		id:     id,
		events: events,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	r.wg.Go(r.run)
	return r
}

// Pulled records that the library took n playback bytes. It never blocks.
func (r *Relay) Pulled(n int, underflow bool) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.requested += n
	if underflow {
		r.underflows++
	}
	r.mu.Unlock()
	r.wake()
}

// Captured queues a copy of p for delivery as DataReady. It never blocks.
func (r *Relay) Captured(p []byte) {
	if len(p) == 0 {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.captured = append(r.captured, p...)
	r.mu.Unlock()
	r.wake()
}

func (r *Relay) wake() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Close discards undelivered events and waits for a delivery in progress
// to return
func (r *Relay) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.requested, r.underflows, r.captured = 0, 0, nil
	r.mu.Unlock()

	close(r.done)
	r.wg.Wait()
}

func (r *Relay) run() {
	for {
		select {
		case <-r.done:
			return
		case <-r.notify:
		}

		r.mu.Lock()
		requested, underflows, captured := r.requested, r.underflows, r.captured
		r.requested, r.underflows, r.captured = 0, 0, nil
		r.mu.Unlock()

		for range underflows {
			r.events.Post(Underflow{Stream: r.id})
		}
		if requested > 0 {
			r.events.Post(SpaceReady{Stream: r.id, Bytes: requested})
		}
		if len(captured) > 0 {
			r.events.Post(DataReady{Stream: r.id, Data: captured})
		}
	}
}

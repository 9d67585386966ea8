package audioserver

import (
	"sync"

	"github.com/tphakala/pulsebridge/internal/errors"
)

// ErrQueueClosed is returned by Submit after Close
var ErrQueueClosed = errors.NewStd("work queue closed")

// WorkQueue runs submitted functions one at a time, in submission order, on
// its own goroutine. Backends whose client library blocks use it so their
// Backend and Stream methods can return promptly.
type WorkQueue struct {
	mu      sync.Mutex
	pending []func()
	closed  bool
	notify  chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWorkQueue starts an empty queue
func NewWorkQueue() *WorkQueue {
	q := &WorkQueue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	q.wg.Go(q.run)
	return q
}

// Submit appends fn to the queue. It never blocks.
func (q *WorkQueue) Submit(fn func()) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Len returns the number of functions waiting to run
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close discards pending work and waits for the running function to return.
// Must not be called from a submitted function.
func (q *WorkQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.pending = nil
	q.mu.Unlock()

	close(q.done)
	q.wg.Wait()
}

func (q *WorkQueue) run() {
	for {
		select {
		case <-q.done:
			return
		case <-q.notify:
		}
		for {
			q.mu.Lock()
			if q.closed || len(q.pending) == 0 {
				q.mu.Unlock()
				break
			}
			fn := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			q.mu.Unlock()
			fn()
		}
	}
}

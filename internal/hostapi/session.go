package hostapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/pulsebridge/internal/audioserver"
	"github.com/tphakala/pulsebridge/internal/errors"
	"github.com/tphakala/pulsebridge/internal/logger"
	"github.com/tphakala/pulsebridge/internal/observability/metrics"
)

// Session defaults
const (
	DefaultPollInterval   = 100 * time.Microsecond
	DefaultConnectTimeout = 10 * time.Second
	DefaultEventQueueSize = 256
)

// SessionOptions configures a Session
type SessionOptions struct {
	// ClientName identifies this client to the server
	ClientName string
	// PollInterval is the sleep between state checks while connecting
	PollInterval time.Duration
	// ConnectTimeout bounds Connect
	ConnectTimeout time.Duration
	// EventQueueSize is the capacity of the event inbox
	EventQueueSize int
	// Metrics is optional
	Metrics *metrics.HostAPIMetrics
	// Logger defaults to the package logger
	Logger logger.Logger
}

func (o *SessionOptions) applyDefaults() {
	if o.ClientName == "" {
		o.ClientName = "pulsebridge"
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.EventQueueSize <= 0 {
		o.EventQueueSize = DefaultEventQueueSize
	}
	if o.Logger == nil {
		o.Logger = GetLogger()
	}
}

// streamHandler receives the events addressed to one stream. Called on the
// event goroutine with the session lock held; must not block.
type streamHandler interface {
	handleEvent(ev audioserver.Event)
}

// operation is the result slot of one asynchronous request
type operation struct {
	name    string
	onEvent func(audioserver.Event)
	done    bool
	err     error
}

// Session owns the connection to the audio server and the goroutine that
// processes its events. All state shared with the event goroutine is guarded
// by mu; cond is broadcast after every processed event.
type Session struct {
	backend audioserver.Backend
	opts    SessionOptions
	log     logger.Logger
	metrics *metrics.HostAPIMetrics

	mu         sync.Mutex
	cond       *sync.Cond
	state      audioserver.ContextState
	stateErr   error
	connecting bool
	closed     bool
	nextOp     audioserver.OperationID
	ops        map[audioserver.OperationID]*operation
	streams    map[uuid.UUID]streamHandler

	inbox chan audioserver.Event
	quit  chan struct{}
	wg    sync.WaitGroup
}

// NewSession creates a session over backend and starts its event goroutine.
// Nothing is sent to the server until Connect.
func NewSession(backend audioserver.Backend, opts SessionOptions) (*Session, error) {
	if backend == nil {
		return nil, newError(fmt.Errorf("%w: no audio server backend", ErrConnection), errors.CategoryAudioServer).
			Build()
	}
	opts.applyDefaults()

	s := &Session{
		backend: backend,
		opts:    opts,
		log:     opts.Logger.With(logger.String("backend", backend.Name())),
		metrics: opts.Metrics,
		state:   audioserver.ContextUnconnected,
		ops:     make(map[audioserver.OperationID]*operation),
		streams: make(map[uuid.UUID]streamHandler),
		inbox:   make(chan audioserver.Event, opts.EventQueueSize),
		quit:    make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)

	s.wg.Go(s.loop)
	return s, nil
}

// Post implements audioserver.EventSink. It blocks while the inbox is full
// and drops the event once the session is shut down.
func (s *Session) Post(ev audioserver.Event) {
	select {
	case s.inbox <- ev:
	case <-s.quit:
	}
}

// State returns the connection state
func (s *Session) State() audioserver.ContextState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect asks the backend to connect and polls until the session is ready,
// has failed, the connect timeout expires or ctx is done.
func (s *Session) Connect(ctx context.Context) error {
	start := time.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.connectError(audioserver.ContextTerminated, nil)
	}
	if !s.connecting {
		s.connecting = true
		s.state = audioserver.ContextConnecting
		if err := s.backend.Connect(s.opts.ClientName, s); err != nil {
			s.state = audioserver.ContextFailed
			s.stateErr = err
			s.mu.Unlock()
			return s.connectError(audioserver.ContextFailed, err)
		}
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		s.mu.Lock()
		state, cause := s.state, s.stateErr
		s.mu.Unlock()

		switch state {
		case audioserver.ContextReady:
			s.metrics.ObserveConnect(time.Since(start))
			s.log.Debug("session ready",
				logger.String("client", s.opts.ClientName),
				logger.Duration("elapsed", time.Since(start)))
			return nil
		case audioserver.ContextFailed, audioserver.ContextTerminated:
			return s.connectError(state, cause)
		}

		select {
		case <-ctx.Done():
			return s.connectError(state, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Session) connectError(state audioserver.ContextState, cause error) error {
	err := ErrConnection
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrConnection, cause)
	}
	category := errors.CategoryAudioServer
	switch {
	case errors.Is(cause, context.DeadlineExceeded):
		category = errors.CategoryTimeout
	case errors.Is(cause, context.Canceled):
		category = errors.CategoryCancellation
	}
	return newError(err, category).
		Context("state", state.String()).
		Context("client", s.opts.ClientName).
		Build()
}

// RunSync submits an asynchronous request and waits until the server
// completes it. submit is called with the session lock held and must only
// hand the request to the backend. onEvent, if set, receives the list
// entries addressed to the operation on the event goroutine.
func (s *Session) RunSync(ctx context.Context, name string, submit func(op audioserver.OperationID) error, onEvent func(audioserver.Event)) error {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.runSyncLocked(ctx, name, submit, onEvent)
	s.metrics.RecordOperation(name, time.Since(start), err)
	return err
}

// runSyncLocked is RunSync for callers already holding the session lock
func (s *Session) runSyncLocked(ctx context.Context, name string, submit func(op audioserver.OperationID) error, onEvent func(audioserver.Event)) error {
	if s.state != audioserver.ContextReady {
		return newError(ErrNotReady, errors.CategoryAudioServer).
			Context("operation", name).
			Context("state", s.state.String()).
			Build()
	}

	s.nextOp++
	id := s.nextOp
	op := &operation{name: name, onEvent: onEvent}
	s.ops[id] = op
	defer delete(s.ops, id)

	if err := submit(id); err != nil {
		return newError(err, errors.CategoryAudioServer).
			Context("operation", name).
			Build()
	}

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	for !op.done {
		if s.state != audioserver.ContextReady {
			return newError(ErrNotReady, errors.CategoryAudioServer).
				Context("operation", name).
				Context("state", s.state.String()).
				Build()
		}
		if err := ctx.Err(); err != nil {
			return newError(err, errors.CategoryCancellation).
				Context("operation", name).
				Build()
		}
		s.cond.Wait()
	}

	if op.err != nil {
		return newError(op.err, errors.CategoryAudioServer).
			Context("operation", name).
			Build()
	}
	return nil
}

// Disconnect stops the event goroutine and closes the backend. Pending
// operations are released with ErrNotReady. Safe to call more than once and
// on a session that never connected.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.quit)
	s.wg.Wait()

	err := s.backend.Disconnect()

	s.mu.Lock()
	s.state = audioserver.ContextTerminated
	s.cond.Broadcast()
	s.mu.Unlock()

	if err != nil {
		return newError(err, errors.CategoryAudioServer).
			Context("operation", "disconnect").
			Build()
	}
	s.log.Debug("session closed")
	return nil
}

// register routes events for id to h. Caller holds mu.
func (s *Session) register(id uuid.UUID, h streamHandler) {
	s.streams[id] = h
}

// unregister stops routing events for id. Caller holds mu.
func (s *Session) unregister(id uuid.UUID) {
	delete(s.streams, id)
}

func (s *Session) loop() {
	for {
		select {
		case <-s.quit:
			return
		case ev := <-s.inbox:
			s.mu.Lock()
			s.dispatch(ev)
			s.cond.Broadcast()
			s.mu.Unlock()
		}
	}
}

// dispatch applies one event. Caller holds mu.
func (s *Session) dispatch(ev audioserver.Event) {
	s.metrics.RecordEvent(eventName(ev))

	switch e := ev.(type) {
	case audioserver.ContextStateChanged:
		if s.closed {
			return
		}
		s.state = e.State
		if e.State == audioserver.ContextFailed {
			s.stateErr = e.Err
			s.log.Warn("audio server connection failed", logger.Error(e.Err))
		} else {
			s.log.Trace("context state changed", logger.String("state", e.State.String()))
		}
	case audioserver.DeviceListEntry:
		if op := s.ops[e.Op]; op != nil && op.onEvent != nil {
			op.onEvent(e)
		}
	case audioserver.OperationDone:
		if op := s.ops[e.Op]; op != nil {
			op.done = true
			op.err = e.Err
		}
	case audioserver.StreamStateChanged:
		s.route(e.Stream, ev)
	case audioserver.StreamStarted:
		s.route(e.Stream, ev)
	case audioserver.DataReady:
		s.route(e.Stream, ev)
	case audioserver.SpaceReady:
		s.route(e.Stream, ev)
	case audioserver.Underflow:
		s.route(e.Stream, ev)
	}
}

func (s *Session) route(id uuid.UUID, ev audioserver.Event) {
	if h := s.streams[id]; h != nil {
		h.handleEvent(ev)
	}
}

func eventName(ev audioserver.Event) string {
	switch ev.(type) {
	case audioserver.ContextStateChanged:
		return "context-state"
	case audioserver.DeviceListEntry:
		return "device-entry"
	case audioserver.OperationDone:
		return "operation-done"
	case audioserver.StreamStateChanged:
		return "stream-state"
	case audioserver.StreamStarted:
		return "stream-started"
	case audioserver.DataReady:
		return "data-ready"
	case audioserver.SpaceReady:
		return "space-ready"
	case audioserver.Underflow:
		return "underflow"
	default:
		return "unknown"
	}
}

// Package fake is an in-memory audio server. Event delivery runs on the
// server's own goroutine, like a real client library, so the host API core
// can be exercised deterministically: tests script device listings and drive
// stream traffic with RequestSpace, Capture and Underrun.
package fake

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tphakala/pulsebridge/internal/audioserver"
	"github.com/tphakala/pulsebridge/internal/errors"
)

// ErrServerClosed is returned by requests after Disconnect
var ErrServerClosed = errors.NewStd("fake server closed")

// Server is a scripted audio server implementing audioserver.Backend
type Server struct {
	mu         sync.Mutex
	sinks      []audioserver.DeviceInfo
	sources    []audioserver.DeviceInfo
	connectErr error
	streamErr  error
	createErr  error
	realtime   time.Duration
	events     audioserver.EventSink
	clientName string
	streams    []*Stream
	connected  bool
	closed     bool

	pending []func()
	notify  chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Server
type Option func(*Server)

// WithSinks sets the playback devices reported by ListDevices
func WithSinks(sinks ...audioserver.DeviceInfo) Option {
	return func(s *Server) { s.sinks = append(s.sinks, sinks...) }
}

// WithSources sets the capture devices reported by ListDevices
func WithSources(sources ...audioserver.DeviceInfo) Option {
	return func(s *Server) { s.sources = append(s.sources, sources...) }
}

// WithConnectFailure makes the connection end in ContextFailed with err
func WithConnectFailure(err error) Option {
	return func(s *Server) { s.connectErr = err }
}

// WithStreamFailure makes every Stream.Connect end in StreamFailed with err
func WithStreamFailure(err error) Option {
	return func(s *Server) { s.streamErr = err }
}

// WithCreateFailure makes NewStream return err
func WithCreateFailure(err error) Option {
	return func(s *Server) { s.createErr = err }
}

// WithRealtime makes uncorked streams run on a clock: playback streams
// request one period of data per tick, record streams capture one period of
// silence per tick. Used by the CLI when no server is available.
func WithRealtime(period time.Duration) Option {
	return func(s *Server) { s.realtime = period }
}

// NewServer returns a server in the unconnected state
func NewServer(opts ...Option) *Server {
	s := &Server{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultDevices returns a stereo sink and a mono source
func DefaultDevices() []Option {
	return []Option{
		WithSinks(audioserver.DeviceInfo{
			Index:             0,
			Name:              "fake_output",
			Description:       "Fake Stereo Output",
			Spec:              audioserver.SampleSpec{Format: audioserver.FormatS16LE, Rate: 48000, Channels: 2},
			Latency:           10 * time.Millisecond,
			ConfiguredLatency: 40 * time.Millisecond,
		}),
		WithSources(audioserver.DeviceInfo{
			Index:             0,
			Name:              "fake_input",
			Description:       "Fake Mono Input",
			Spec:              audioserver.SampleSpec{Format: audioserver.FormatS16LE, Rate: 48000, Channels: 1},
			Latency:           10 * time.Millisecond,
			ConfiguredLatency: 40 * time.Millisecond,
		}),
	}
}

// Name implements audioserver.Backend
func (s *Server) Name() string { return "fake" }

// ClientName returns the name the client connected with
func (s *Server) ClientName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientName
}

// Connect implements audioserver.Backend
func (s *Server) Connect(clientName string, events audioserver.EventSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}
	if s.connected {
		return fmt.Errorf("fake server: already connected")
	}
	s.connected = true
	s.clientName = clientName
	s.events = events

	s.wg.Go(s.dispatch)

	connectErr := s.connectErr
	s.enqueueLocked(func() {
		s.post(audioserver.ContextStateChanged{State: audioserver.ContextConnecting})
		s.post(audioserver.ContextStateChanged{State: audioserver.ContextAuthorizing})
		s.post(audioserver.ContextStateChanged{State: audioserver.ContextSettingName})
		if connectErr != nil {
			s.post(audioserver.ContextStateChanged{State: audioserver.ContextFailed, Err: connectErr})
			return
		}
		s.post(audioserver.ContextStateChanged{State: audioserver.ContextReady})
	})
	return nil
}

// ListDevices implements audioserver.Backend
func (s *Server) ListDevices(op audioserver.OperationID, dir audioserver.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected || s.closed {
		return ErrServerClosed
	}

	devices := slices.Clone(s.sinks)
	if dir == audioserver.Record {
		devices = slices.Clone(s.sources)
	}

	s.enqueueLocked(func() {
		for _, info := range devices {
			s.post(audioserver.DeviceListEntry{Op: op, Direction: dir, Info: info})
		}
		s.post(audioserver.DeviceListEntry{Op: op, Direction: dir, EOL: true})
		s.post(audioserver.OperationDone{Op: op})
	})
	return nil
}

// NewStream implements audioserver.Backend
func (s *Server) NewStream(cfg audioserver.StreamConfig) (audioserver.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected || s.closed {
		return nil, ErrServerClosed
	}
	if s.createErr != nil {
		return nil, s.createErr
	}

	st := &Stream{srv: s, cfg: cfg, state: audioserver.StreamUnconnected, corked: true}
	s.streams = append(s.streams, st)
	return st, nil
}

// Disconnect implements audioserver.Backend. Queued events are discarded.
func (s *Server) Disconnect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.pending = nil
	streams := slices.Clone(s.streams)
	close(s.done)
	s.mu.Unlock()

	for _, st := range streams {
		st.stopClock()
	}
	s.wg.Wait()
	return nil
}

// Streams returns every stream created so far, in creation order
func (s *Server) Streams() []*Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.streams)
}

// LastStream returns the most recently created stream for dir, or nil
func (s *Server) LastStream(dir audioserver.Direction) *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.streams) - 1; i >= 0; i-- {
		if s.streams[i].cfg.Direction == dir {
			return s.streams[i]
		}
	}
	return nil
}

// Sync blocks until every event queued before the call has been posted
func (s *Server) Sync() {
	flushed := make(chan struct{})
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.enqueueLocked(func() { close(flushed) })
	s.mu.Unlock()

	select {
	case <-flushed:
	case <-s.done:
	}
}

func (s *Server) enqueue(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueueLocked(fn)
}

// enqueueLocked never blocks; callers may hold locks the receiver needs
func (s *Server) enqueueLocked(fn func()) {
	if s.closed {
		return
	}
	s.pending = append(s.pending, fn)
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Server) dispatch() {
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		for {
			s.mu.Lock()
			if len(s.pending) == 0 || s.closed {
				s.mu.Unlock()
				break
			}
			fn := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()

			fn()
		}
	}
}

func (s *Server) post(ev audioserver.Event) {
	s.events.Post(ev)
}

var _ audioserver.Backend = (*Server)(nil)

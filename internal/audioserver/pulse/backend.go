// Package pulse implements audioserver.Backend on the native PulseAudio
// protocol client github.com/jfreymuth/pulse.
//
// The client library is synchronous: requests block until the server
// replies, and playback data is pulled from an io.Reader-like callback. The
// backend runs every request on a WorkQueue and converts the library's pull
// model into SpaceReady/DataReady events, so the host API core sees the same
// asynchronous contract as with any other server client.
package pulse

import (
	"fmt"
	"sync"
	"time"

	pa "github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"

	"github.com/tphakala/pulsebridge/internal/audioserver"
	"github.com/tphakala/pulsebridge/internal/errors"
	"github.com/tphakala/pulsebridge/internal/logger"
)

// Name is the backend name reported in the host API descriptor
const Name = "pulse"

// ErrNotConnected is returned by requests before the client is ready or
// after Disconnect
var ErrNotConnected = errors.NewStd("pulse client not connected")

// GetLogger returns the pulse backend logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("audioserver").Module("pulse")
}

// Backend is a PulseAudio client implementing audioserver.Backend
type Backend struct {
	server string
	log    logger.Logger

	queue *audioserver.WorkQueue

	mu      sync.Mutex
	client  *pa.Client
	events  audioserver.EventSink
	streams []*Stream
	closed  bool
}

// Option configures a Backend
type Option func(*Backend)

// WithServer selects the server address. Empty uses $PULSE_SERVER or the
// default local socket.
func WithServer(server string) Option {
	return func(b *Backend) { b.server = server }
}

// WithLogger replaces the package logger
func WithLogger(log logger.Logger) Option {
	return func(b *Backend) {
		if log != nil {
			b.log = log
		}
	}
}

// New returns an unconnected backend
func New(opts ...Option) *Backend {
	b := &Backend{log: GetLogger()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements audioserver.Backend
func (b *Backend) Name() string { return Name }

// Connect implements audioserver.Backend. The library performs the whole
// handshake inside NewClient, so the intermediate states are reported once
// it returns.
func (b *Backend) Connect(clientName string, events audioserver.EventSink) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrNotConnected
	}
	if b.queue != nil {
		return fmt.Errorf("pulse: already connected")
	}
	b.events = events
	b.queue = audioserver.NewWorkQueue()

	return b.queue.Submit(func() {
		events.Post(audioserver.ContextStateChanged{State: audioserver.ContextConnecting})

		opts := []pa.ClientOption{pa.ClientApplicationName(clientName)}
		if b.server != "" {
			opts = append(opts, pa.ClientServerString(b.server))
		}

		start := time.Now()
		client, err := pa.NewClient(opts...)
		if err != nil {
			b.log.Error("failed to connect to server",
				logger.String("server", b.server),
				logger.Error(err))
			events.Post(audioserver.ContextStateChanged{State: audioserver.ContextFailed, Err: err})
			return
		}

		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			client.Close()
			return
		}
		b.client = client
		b.mu.Unlock()

		b.log.Debug("connected to server",
			logger.String("server", b.server),
			logger.Duration("elapsed", time.Since(start)))

		events.Post(audioserver.ContextStateChanged{State: audioserver.ContextAuthorizing})
		events.Post(audioserver.ContextStateChanged{State: audioserver.ContextSettingName})
		events.Post(audioserver.ContextStateChanged{State: audioserver.ContextReady})
	})
}

// ListDevices implements audioserver.Backend
func (b *Backend) ListDevices(op audioserver.OperationID, dir audioserver.Direction) error {
	client, events, err := b.connected()
	if err != nil {
		return err
	}

	return b.queue.Submit(func() {
		infos, err := listDevices(client, dir)
		if err != nil {
			events.Post(audioserver.OperationDone{Op: op, Err: err})
			return
		}
		for _, info := range infos {
			events.Post(audioserver.DeviceListEntry{Op: op, Direction: dir, Info: info})
		}
		events.Post(audioserver.DeviceListEntry{Op: op, Direction: dir, EOL: true})
		events.Post(audioserver.OperationDone{Op: op})
	})
}

func listDevices(client *pa.Client, dir audioserver.Direction) ([]audioserver.DeviceInfo, error) {
	if dir == audioserver.Record {
		var reply proto.GetSourceInfoListReply
		if err := client.RawRequest(&proto.GetSourceInfoList{}, &reply); err != nil {
			return nil, fmt.Errorf("list sources: %w", err)
		}
		infos := make([]audioserver.DeviceInfo, 0, len(reply))
		for _, src := range reply {
			infos = append(infos, sourceInfo(src))
		}
		return infos, nil
	}

	var reply proto.GetSinkInfoListReply
	if err := client.RawRequest(&proto.GetSinkInfoList{}, &reply); err != nil {
		return nil, fmt.Errorf("list sinks: %w", err)
	}
	infos := make([]audioserver.DeviceInfo, 0, len(reply))
	for _, sink := range reply {
		infos = append(infos, sinkInfo(sink))
	}
	return infos, nil
}

func sinkInfo(r *proto.GetSinkInfoReply) audioserver.DeviceInfo {
	return audioserver.DeviceInfo{
		Index:             r.SinkIndex,
		Name:              r.SinkName,
		Description:       r.Device,
		Spec:              sampleSpec(r.SampleSpec),
		Latency:           usec(r.Latency),
		ConfiguredLatency: usec(r.RequestedLatency),
	}
}

func sourceInfo(r *proto.GetSourceInfoReply) audioserver.DeviceInfo {
	return audioserver.DeviceInfo{
		Index:             r.SourceIndex,
		Name:              r.SourceName,
		Description:       r.Device,
		Spec:              sampleSpec(r.SampleSpec),
		Latency:           usec(r.Latency),
		ConfiguredLatency: usec(r.RequestedLatency),
	}
}

func sampleSpec(s proto.SampleSpec) audioserver.SampleSpec {
	return audioserver.SampleSpec{
		Format:   audioserver.SampleFormat(s.Format),
		Rate:     s.Rate,
		Channels: s.Channels,
	}
}

func usec(us proto.Microseconds) time.Duration {
	return time.Duration(us) * time.Microsecond
}

// NewStream implements audioserver.Backend
func (b *Backend) NewStream(cfg audioserver.StreamConfig) (audioserver.Stream, error) {
	client, events, err := b.connected()
	if err != nil {
		return nil, err
	}
	if !cfg.Spec.Valid() {
		return nil, fmt.Errorf("pulse: invalid sample spec %s", cfg.Spec)
	}

	st := newStream(b, client, events, cfg)

	b.mu.Lock()
	b.streams = append(b.streams, st)
	b.mu.Unlock()
	return st, nil
}

// Disconnect implements audioserver.Backend. Queued requests are discarded.
func (b *Backend) Disconnect() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	queue := b.queue
	streams := b.streams
	b.streams = nil
	b.mu.Unlock()

	if queue != nil {
		queue.Close()
	}
	for _, st := range streams {
		st.release()
	}

	b.mu.Lock()
	client := b.client
	b.client = nil
	b.mu.Unlock()
	if client != nil {
		client.Close()
	}
	return nil
}

func (b *Backend) connected() (*pa.Client, audioserver.EventSink, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.client == nil {
		return nil, nil, ErrNotConnected
	}
	return b.client, b.events, nil
}

func (b *Backend) submit(fn func()) error {
	b.mu.Lock()
	queue := b.queue
	b.mu.Unlock()
	if queue == nil {
		return ErrNotConnected
	}
	return queue.Submit(fn)
}

var _ audioserver.Backend = (*Backend)(nil)

// Package hostapi bridges an asynchronous audio server client to a
// synchronous host API in the style of PortAudio.
//
// A Session runs one event goroutine per connection. Caller goroutines and
// the event goroutine share state under the session lock, and callers that
// wait for the server (RunSync, blocking Read and Write, Stop) sleep on a
// condition variable the event goroutine broadcasts after every event.
//
// Initialize connects, enumerates devices once and returns a HostAPI from
// which streams are opened in callback or blocking mode.
package hostapi

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/pulsebridge/internal/audioserver"
	"github.com/tphakala/pulsebridge/internal/errors"
	"github.com/tphakala/pulsebridge/internal/logger"
	"github.com/tphakala/pulsebridge/internal/observability/metrics"
)

// DefaultDrainTimeout bounds how long Stop waits for buffered output
const DefaultDrainTimeout = 5 * time.Second

// Config configures Initialize. Zero values select defaults.
type Config struct {
	ClientName     string
	PollInterval   time.Duration
	ConnectTimeout time.Duration
	EventQueueSize int

	DeviceCapacity int

	RingBufferFrames   int
	MaxRingBufferBytes int
	DefaultLatency     time.Duration
	DrainTimeout       time.Duration
	Latency            LatencyPolicy

	Metrics *metrics.HostAPIMetrics
	Logger  logger.Logger
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		ClientName:         "pulsebridge",
		PollInterval:       DefaultPollInterval,
		ConnectTimeout:     DefaultConnectTimeout,
		EventQueueSize:     DefaultEventQueueSize,
		DeviceCapacity:     DefaultDeviceCapacity,
		RingBufferFrames:   DefaultRingBufferFrames,
		MaxRingBufferBytes: DefaultMaxRingBufferBytes,
		DefaultLatency:     DefaultStreamLatency,
		DrainTimeout:       DefaultDrainTimeout,
		Latency:            DefaultLatencyPolicy(),
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.ClientName == "" {
		c.ClientName = d.ClientName
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.EventQueueSize <= 0 {
		c.EventQueueSize = d.EventQueueSize
	}
	if c.DeviceCapacity <= 0 {
		c.DeviceCapacity = d.DeviceCapacity
	}
	if c.RingBufferFrames <= 0 {
		c.RingBufferFrames = d.RingBufferFrames
	}
	if c.MaxRingBufferBytes <= 0 {
		c.MaxRingBufferBytes = d.MaxRingBufferBytes
	}
	if c.DefaultLatency <= 0 {
		c.DefaultLatency = d.DefaultLatency
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = d.DrainTimeout
	}
	c.Latency.applyDefaults()
	if c.Logger == nil {
		c.Logger = GetLogger()
	}
}

// Info describes the host API
type Info struct {
	Name                string
	DeviceCount         int
	DefaultInputDevice  int
	DefaultOutputDevice int
}

// HostAPI is an initialized connection with its device table
type HostAPI struct {
	cfg     Config
	session *Session
	devices *DeviceTable
	log     logger.Logger

	mu      sync.Mutex
	streams map[uuid.UUID]*StreamHandle
	closed  bool
}

// Initialize connects to the server through backend and enumerates its
// devices. On failure everything created so far is released.
func Initialize(ctx context.Context, backend audioserver.Backend, cfg Config) (*HostAPI, error) {
	cfg.applyDefaults()

	session, err := NewSession(backend, SessionOptions{
		ClientName:     cfg.ClientName,
		PollInterval:   cfg.PollInterval,
		ConnectTimeout: cfg.ConnectTimeout,
		EventQueueSize: cfg.EventQueueSize,
		Metrics:        cfg.Metrics,
		Logger:         cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	if err := session.Connect(ctx); err != nil {
		_ = session.Disconnect()
		return nil, err
	}

	devices, err := Enumerate(ctx, session, cfg.DeviceCapacity)
	if err != nil {
		_ = session.Disconnect()
		return nil, err
	}

	return &HostAPI{
		cfg:     cfg,
		session: session,
		devices: devices,
		log:     cfg.Logger,
		streams: make(map[uuid.UUID]*StreamHandle),
	}, nil
}

// Info returns the host API descriptor
func (a *HostAPI) Info() Info {
	return Info{
		Name:                a.session.backend.Name(),
		DeviceCount:         a.devices.Len(),
		DefaultInputDevice:  a.devices.DefaultInput(),
		DefaultOutputDevice: a.devices.DefaultOutput(),
	}
}

// Devices returns every device in enumeration order
func (a *HostAPI) Devices() []DeviceInfo {
	return a.devices.Devices()
}

// Device returns the device at index
func (a *HostAPI) Device(index int) (DeviceInfo, error) {
	d, ok := a.devices.Device(index)
	if !ok {
		return DeviceInfo{}, newError(ErrInvalidDevice, errors.CategoryDevice).
			DeviceContext(index, "").
			Build()
	}
	return d, nil
}

// Session returns the underlying session
func (a *HostAPI) Session() *Session { return a.session }

// IsFormatSupported runs the open-time validation without allocating
// anything. It returns nil when OpenStream with the same parameters would
// pass validation.
func (a *HostAPI) IsFormatSupported(input, output *StreamParameters, sampleRate float64) error {
	_, _, err := validateParams(a.devices, input, output, sampleRate)
	return err
}

// OpenStream validates p and creates a stopped stream. Sub-streams connect
// to the server on the first Start.
func (a *HostAPI) OpenStream(p OpenParams) (*StreamHandle, error) {
	if err := validateFlags(p.Flags); err != nil {
		return nil, err
	}
	in, out, err := validateParams(a.devices, p.Input, p.Output, p.SampleRate)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return nil, newError(ErrNotReady, errors.CategoryAudioServer).
			Context("operation", "open-stream").
			Build()
	}

	h, err := newStream(a, p, in, out)
	if err != nil {
		return nil, err
	}

	a.session.mu.Lock()
	for _, ss := range h.subStreams() {
		a.session.register(ss.id, ss)
	}
	a.session.mu.Unlock()

	a.mu.Lock()
	a.streams[h.id] = h
	a.mu.Unlock()

	a.cfg.Metrics.RecordStreamOpened(h.mode.String(), directionLabel(in, out))
	h.log.Info("stream opened",
		logger.String("direction", directionLabel(in, out)),
		logger.Float64("sample_rate", p.SampleRate),
		logger.Int("frames_per_buffer", h.frames),
		logger.Duration("input_latency", h.info.InputLatency),
		logger.Duration("output_latency", h.info.OutputLatency))

	return h, nil
}

func (a *HostAPI) forget(h *StreamHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.streams, h.id)
}

// Terminate closes every open stream and disconnects. Safe to call twice.
func (a *HostAPI) Terminate() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	streams := make([]*StreamHandle, 0, len(a.streams))
	for _, h := range a.streams {
		streams = append(streams, h)
	}
	a.mu.Unlock()

	var errs []error
	for _, h := range streams {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.session.Disconnect(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

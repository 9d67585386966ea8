// Package miniaudio implements audioserver.Backend on miniaudio through
// github.com/gen2brain/malgo, restricted to miniaudio's PulseAudio backend.
//
// Each sub-stream is one miniaudio device. The device's data callback pulls
// playback bytes from a PullBuffer and pushes captured bytes as DataReady
// events. Device control runs on a WorkQueue because miniaudio's start and
// stop calls block until the device thread acknowledges them.
package miniaudio

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/pulsebridge/internal/audioserver"
	"github.com/tphakala/pulsebridge/internal/errors"
	"github.com/tphakala/pulsebridge/internal/logger"
)

// Name is the backend name reported in the host API descriptor
const Name = "miniaudio"

const (
	// DefaultSampleRate is reported for devices; miniaudio resamples
	DefaultSampleRate = 48000
	// DefaultChannels is the channel capability reported for devices
	DefaultChannels = 2
)

// ErrNotConnected is returned by requests before the context is ready or
// after Disconnect
var ErrNotConnected = errors.NewStd("miniaudio context not initialized")

// GetLogger returns the miniaudio backend logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("audioserver").Module("miniaudio")
}

// Backend is a malgo context implementing audioserver.Backend
type Backend struct {
	log      logger.Logger
	channels uint8
	rate     uint32

	queue *audioserver.WorkQueue

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	events  audioserver.EventSink
	devices map[audioserver.Direction][]malgo.DeviceInfo
	streams []*Stream
	closed  bool
}

// Option configures a Backend
type Option func(*Backend)

// WithLogger replaces the package logger
func WithLogger(log logger.Logger) Option {
	return func(b *Backend) {
		if log != nil {
			b.log = log
		}
	}
}

// WithDeviceSpec overrides the channel and rate capabilities reported for
// every device
func WithDeviceSpec(channels uint8, rate uint32) Option {
	return func(b *Backend) {
		if channels > 0 {
			b.channels = channels
		}
		if rate > 0 {
			b.rate = rate
		}
	}
}

// New returns an uninitialized backend
func New(opts ...Option) *Backend {
	b := &Backend{
		log:      GetLogger(),
		channels: DefaultChannels,
		rate:     DefaultSampleRate,
		devices:  make(map[audioserver.Direction][]malgo.DeviceInfo),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements audioserver.Backend
func (b *Backend) Name() string { return Name }

// Connect implements audioserver.Backend. miniaudio has no client name; it
// is logged only.
func (b *Backend) Connect(clientName string, events audioserver.EventSink) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrNotConnected
	}
	if b.queue != nil {
		return fmt.Errorf("miniaudio: already connected")
	}
	b.events = events
	b.queue = audioserver.NewWorkQueue()

	return b.queue.Submit(func() {
		events.Post(audioserver.ContextStateChanged{State: audioserver.ContextConnecting})

		ctx, err := malgo.InitContext([]malgo.Backend{malgo.BackendPulseaudio}, malgo.ContextConfig{}, func(message string) {
			b.log.Trace("miniaudio", logger.String("message", strings.TrimSpace(message)))
		})
		if err != nil {
			b.log.Error("context init failed", logger.Error(err))
			events.Post(audioserver.ContextStateChanged{State: audioserver.ContextFailed, Err: fmt.Errorf("context init failed: %w", err)})
			return
		}

		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			_ = ctx.Uninit()
			ctx.Free()
			return
		}
		b.ctx = ctx
		b.mu.Unlock()

		b.log.Debug("context initialized", logger.String("client", clientName))
		events.Post(audioserver.ContextStateChanged{State: audioserver.ContextAuthorizing})
		events.Post(audioserver.ContextStateChanged{State: audioserver.ContextSettingName})
		events.Post(audioserver.ContextStateChanged{State: audioserver.ContextReady})
	})
}

// ListDevices implements audioserver.Backend
func (b *Backend) ListDevices(op audioserver.OperationID, dir audioserver.Direction) error {
	ctx, events, err := b.connected()
	if err != nil {
		return err
	}

	return b.queue.Submit(func() {
		infos, err := ctx.Devices(deviceType(dir))
		if err != nil {
			events.Post(audioserver.OperationDone{Op: op, Err: fmt.Errorf("failed to get devices: %w", err)})
			return
		}

		b.mu.Lock()
		b.devices[dir] = infos
		b.mu.Unlock()

		for i := range infos {
			id, err := hexToASCII(infos[i].ID.String())
			if err != nil {
				b.log.Warn("failed to decode device id", logger.Int("index", i), logger.Error(err))
				continue
			}
			events.Post(audioserver.DeviceListEntry{
				Op:        op,
				Direction: dir,
				Info:      b.deviceInfo(i, id, infos[i].Name()),
			})
		}
		events.Post(audioserver.DeviceListEntry{Op: op, Direction: dir, EOL: true})
		events.Post(audioserver.OperationDone{Op: op})
	})
}

func (b *Backend) deviceInfo(index int, id, name string) audioserver.DeviceInfo {
	return audioserver.DeviceInfo{
		Index:       uint32(index),
		Name:        id,
		Description: name,
		Spec: audioserver.SampleSpec{
			Format:   audioserver.FormatFloat32LE,
			Rate:     b.rate,
			Channels: b.channels,
		},
	}
}

// deviceID returns the listed device whose decoded ID is name
func (b *Backend) deviceID(dir audioserver.Direction, name string) (unsafe.Pointer, bool) {
	if name == "" {
		return nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	infos := b.devices[dir]
	for i := range infos {
		id, err := hexToASCII(infos[i].ID.String())
		if err == nil && id == name {
			return infos[i].ID.Pointer(), true
		}
	}
	return nil, false
}

// NewStream implements audioserver.Backend
func (b *Backend) NewStream(cfg audioserver.StreamConfig) (audioserver.Stream, error) {
	ctx, events, err := b.connected()
	if err != nil {
		return nil, err
	}
	if _, ok := formatType(cfg.Spec.Format); !ok || !cfg.Spec.Valid() {
		return nil, fmt.Errorf("miniaudio: unsupported sample spec %s", cfg.Spec)
	}

	st := newStream(b, ctx, events, cfg)

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
	ctx := b.ctx
	b.ctx = nil
	b.mu.Unlock()
	if ctx == nil {
		return nil
	}
	err := ctx.Uninit()
	ctx.Free()
	if err != nil {
		return fmt.Errorf("context uninit failed: %w", err)
	}
	return nil
}

func (b *Backend) connected() (*malgo.AllocatedContext, audioserver.EventSink, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.ctx == nil {
		return nil, nil, ErrNotConnected
	}
	return b.ctx, b.events, nil
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

func deviceType(dir audioserver.Direction) malgo.DeviceType {
	if dir == audioserver.Record {
		return malgo.Capture
	}
	return malgo.Playback
}

func formatType(f audioserver.SampleFormat) (malgo.FormatType, bool) {
	switch f {
	case audioserver.FormatU8:
		return malgo.FormatU8, true
	case audioserver.FormatS16LE:
		return malgo.FormatS16, true
	case audioserver.FormatS24LE:
		return malgo.FormatS24, true
	case audioserver.FormatS32LE:
		return malgo.FormatS32, true
	case audioserver.FormatFloat32LE:
		return malgo.FormatF32, true
	default:
		return malgo.FormatUnknown, false
	}
}

// hexToASCII decodes miniaudio's hex encoded device ID. With the PulseAudio
// backend the decoded ID is the sink or source name, NUL padded.
func hexToASCII(hexStr string) (string, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(raw), "\x00"), nil
}

// periodMillis converts a buffer length in bytes to whole milliseconds, at
// least one
func periodMillis(spec audioserver.SampleSpec, n uint32) uint32 {
	if n == audioserver.Undefined || n == 0 {
		return 0
	}
	ms := uint32(spec.Duration(int(n)) / time.Millisecond)
	return max(ms, 1)
}

var _ audioserver.Backend = (*Backend)(nil)

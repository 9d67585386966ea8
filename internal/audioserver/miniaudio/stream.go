package miniaudio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/pulsebridge/internal/audioserver"
	"github.com/tphakala/pulsebridge/internal/logger"
)

const (
	drainPoll    = 5 * time.Millisecond
	primeLatency = 20 * time.Millisecond
)

// Stream is one miniaudio device bound to a sink or source
type Stream struct {
	b      *Backend
	ctx    *malgo.AllocatedContext
	events audioserver.EventSink
	cfg    audioserver.StreamConfig
	log    logger.Logger

	buf   *audioserver.PullBuffer
	relay *audioserver.Relay

	mu       sync.Mutex
	device   *malgo.Device
	attr     audioserver.BufferAttr
	started  bool
	running  bool
	captured int
}

func newStream(b *Backend, ctx *malgo.AllocatedContext, events audioserver.EventSink, cfg audioserver.StreamConfig) *Stream {
	return &Stream{
		b:      b,
		ctx:    ctx,
		events: events,
		cfg:    cfg,
		log:    b.log.With(logger.String("stream", cfg.Name), logger.String("direction", cfg.Direction.String())),
		buf:    audioserver.NewPullBuffer(cfg.Spec.Format),
		relay:  audioserver.NewRelay(cfg.ID, events),
	}
}

// deviceConfig builds the miniaudio device configuration. The buffer
// latency becomes the period size; miniaudio has no separate target length.
func (st *Stream) deviceConfig(attr audioserver.BufferAttr) malgo.DeviceConfig {
	format, _ := formatType(st.cfg.Spec.Format)

	if st.cfg.Direction == audioserver.Record {
		cfg := malgo.DefaultDeviceConfig(malgo.Capture)
		cfg.Capture.Format = format
		cfg.Capture.Channels = uint32(st.cfg.Spec.Channels)
		cfg.SampleRate = st.cfg.Spec.Rate
		cfg.PeriodSizeInMilliseconds = periodMillis(st.cfg.Spec, attr.FragSize)
		if id, ok := st.b.deviceID(audioserver.Record, st.cfg.Device); ok {
			cfg.Capture.DeviceID = id
		}
		return cfg
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = format
	cfg.Playback.Channels = uint32(st.cfg.Spec.Channels)
	cfg.SampleRate = st.cfg.Spec.Rate
	cfg.PeriodSizeInMilliseconds = periodMillis(st.cfg.Spec, attr.TargetLength)
	if id, ok := st.b.deviceID(audioserver.Playback, st.cfg.Device); ok {
		cfg.Playback.DeviceID = id
	}
	return cfg
}

// Connect implements audioserver.Stream
func (st *Stream) Connect(op audioserver.OperationID, attr audioserver.BufferAttr) error {
	st.mu.Lock()
	st.attr = attr
	st.mu.Unlock()

	return st.b.submit(func() {
		st.events.Post(audioserver.StreamStateChanged{Stream: st.cfg.ID, State: audioserver.StreamCreating})

		device, err := malgo.InitDevice(st.ctx.Context, st.deviceConfig(attr), malgo.DeviceCallbacks{
			Data: st.onData,
			Stop: st.onStop,
		})
		if err != nil {
			err = fmt.Errorf("device init failed: %w", err)
			st.log.Error("failed to create stream", logger.Error(err))
			st.events.Post(audioserver.StreamStateChanged{Stream: st.cfg.ID, State: audioserver.StreamFailed, Err: err})
			st.events.Post(audioserver.OperationDone{Op: op, Err: err})
			return
		}

		st.mu.Lock()
		st.device = device
		st.mu.Unlock()

		st.events.Post(audioserver.StreamStateChanged{Stream: st.cfg.ID, State: audioserver.StreamReady})
		st.events.Post(audioserver.OperationDone{Op: op})
	})
}

// onData runs on miniaudio's device thread
func (st *Stream) onData(out, in []byte, frames uint32) {
	if st.cfg.Direction == audioserver.Record {
		if len(in) == 0 {
			return
		}
		st.mu.Lock()
		st.captured += len(in)
		st.mu.Unlock()
		st.relay.Captured(in)
		return
	}

	st.relay.Pulled(len(out), st.buf.Fill(out))
}

// onStop reports a device that stopped without being asked to
func (st *Stream) onStop() {
	st.mu.Lock()
	unexpected := st.running
	st.running = false
	st.mu.Unlock()

	if !unexpected {
		return
	}
	err := fmt.Errorf("device stopped unexpectedly")
	st.log.Warn("device stopped", logger.Error(err))
	st.events.Post(audioserver.StreamStateChanged{Stream: st.cfg.ID, State: audioserver.StreamFailed, Err: err})
}

// Cork implements audioserver.Stream. Pausing stops the device, resuming
// starts it again.
func (st *Stream) Cork(op audioserver.OperationID, pause bool) error {
	return st.b.submit(func() {
		st.mu.Lock()
		device := st.device
		first := !pause && !st.started
		if first {
			st.started = true
		}
		st.mu.Unlock()

		if device == nil {
			st.events.Post(audioserver.OperationDone{Op: op, Err: ErrNotConnected})
			return
		}

		var err error
		if pause {
			st.setRunning(false)
			err = device.Stop()
		} else {
			st.setRunning(true)
			if st.cfg.Direction == audioserver.Playback {
				st.requestPrimer()
			}
			if err = device.Start(); err != nil {
				st.setRunning(false)
			} else if first {
				st.events.Post(audioserver.StreamStarted{Stream: st.cfg.ID})
			}
		}
		if err != nil {
			st.log.Warn("device control failed", logger.Bool("pause", pause), logger.Error(err))
		}
		st.events.Post(audioserver.OperationDone{Op: op, Err: err})
	})
}

// requestPrimer asks the core for a full target buffer before the device
// starts pulling
func (st *Stream) requestPrimer() {
	st.mu.Lock()
	target := st.attr.TargetLength
	st.mu.Unlock()

	n := int(target)
	if target == audioserver.Undefined || n <= 0 {
		n = int(st.cfg.Spec.UsecToBytes(uint64(primeLatency / time.Microsecond)))
	}
	if n -= st.buf.Len(); n > 0 {
		st.events.Post(audioserver.SpaceReady{Stream: st.cfg.ID, Bytes: n})
	}
}

func (st *Stream) setRunning(running bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.running = running
}

// Flush implements audioserver.Stream
func (st *Stream) Flush(op audioserver.OperationID) error {
	st.buf.Reset()
	return st.b.submit(func() {
		st.events.Post(audioserver.OperationDone{Op: op})
	})
}

// Drain implements audioserver.Stream. It completes once the device thread
// has consumed everything queued.
func (st *Stream) Drain(op audioserver.OperationID) error {
	return st.b.submit(func() {
		st.mu.Lock()
		running := st.running
		st.mu.Unlock()

		deadline := time.Now().Add(st.cfg.Spec.Duration(st.buf.Len()) + time.Second)
		for running && st.buf.Len() > 0 && time.Now().Before(deadline) {
			time.Sleep(drainPoll)
		}
		st.events.Post(audioserver.OperationDone{Op: op})
	})
}

// Write implements audioserver.Stream
func (st *Stream) Write(p []byte) error {
	if st.cfg.Direction != audioserver.Playback {
		return fmt.Errorf("miniaudio: write to capture stream")
	}
	st.buf.Write(p)
	return nil
}

// SetBufferAttr implements audioserver.Stream. miniaudio cannot resize a
// running device's period; the new target only sizes later primer requests.
func (st *Stream) SetBufferAttr(attr audioserver.BufferAttr) error {
	st.mu.Lock()
	st.attr = attr
	st.mu.Unlock()

	st.log.Debug("buffer attributes not applied to running device",
		logger.Uint32("target_length", attr.TargetLength),
		logger.Uint32("frag_size", attr.FragSize))
	return nil
}

// Time implements audioserver.Stream
func (st *Stream) Time() (time.Duration, error) {
	if st.cfg.Direction == audioserver.Record {
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.cfg.Spec.Duration(st.captured), nil
	}
	return st.cfg.Spec.Duration(st.buf.Pulled()), nil
}

// Disconnect implements audioserver.Stream
func (st *Stream) Disconnect() error {
	st.release()
	return nil
}

func (st *Stream) release() {
	st.mu.Lock()
	device := st.device
	st.device = nil
	st.running = false
	st.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
	st.relay.Close()
}

var _ audioserver.Stream = (*Stream)(nil)

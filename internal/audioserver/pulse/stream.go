package pulse

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	pa "github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"

	"github.com/tphakala/pulsebridge/internal/audioserver"
	"github.com/tphakala/pulsebridge/internal/logger"
)

const (
	// drainPoll is how often Drain checks whether queued playback data has
	// been handed to the server
	drainPoll = 5 * time.Millisecond
	// primeLatency sizes the first request when the stream was created with
	// an undefined target length
	primeLatency = 20 * time.Millisecond
)

// Stream is one PulseAudio playback or record stream
type Stream struct {
	b      *Backend
	client *pa.Client
	events audioserver.EventSink
	cfg    audioserver.StreamConfig
	log    logger.Logger

	buf   *audioserver.PullBuffer
	relay *audioserver.Relay

	mu       sync.Mutex
	playback *pa.PlaybackStream
	record   *pa.RecordStream
	index    uint32
	started  bool
	corked   bool
	attr     audioserver.BufferAttr
	captured int
}

func newStream(b *Backend, client *pa.Client, events audioserver.EventSink, cfg audioserver.StreamConfig) *Stream {
	return &Stream{
		b:      b,
		client: client,
		events: events,
		cfg:    cfg,
		log:    b.log.With(logger.String("stream", cfg.Name), logger.String("direction", cfg.Direction.String())),
		buf:    audioserver.NewPullBuffer(cfg.Spec.Format),
		relay:  audioserver.NewRelay(cfg.ID, events),
		corked: true,
	}
}

// ID returns the stream's identifier
func (st *Stream) ID() uuid.UUID { return st.cfg.ID }

// Connect implements audioserver.Stream
func (st *Stream) Connect(op audioserver.OperationID, attr audioserver.BufferAttr) error {
	st.mu.Lock()
	st.attr = attr
	st.mu.Unlock()

	return st.b.submit(func() {
		st.events.Post(audioserver.StreamStateChanged{Stream: st.cfg.ID, State: audioserver.StreamCreating})

		err := st.create(attr)
		if err != nil {
			st.log.Error("failed to create stream", logger.Error(err))
			st.events.Post(audioserver.StreamStateChanged{Stream: st.cfg.ID, State: audioserver.StreamFailed, Err: err})
			st.events.Post(audioserver.OperationDone{Op: op, Err: err})
			return
		}
		st.events.Post(audioserver.StreamStateChanged{Stream: st.cfg.ID, State: audioserver.StreamReady})
		st.events.Post(audioserver.OperationDone{Op: op})
	})
}

func (st *Stream) create(attr audioserver.BufferAttr) error {
	spec := proto.SampleSpec{
		Format:   byte(st.cfg.Spec.Format),
		Channels: st.cfg.Spec.Channels,
		Rate:     st.cfg.Spec.Rate,
	}
	channels := channelMap(int(st.cfg.Spec.Channels))

	if st.cfg.Direction == audioserver.Record {
		rs, err := st.client.NewRecord(&recordWriter{st: st},
			pa.RecordMediaName(st.cfg.Name),
			pa.RecordRawOption(func(c *proto.CreateRecordStream) {
				c.SampleSpec = spec
				c.ChannelMap = channels
				c.SourceIndex = audioserver.Undefined
				c.SourceName = st.cfg.Device
				c.BufferMaxLength = attr.MaxLength
				c.BufferFragSize = attr.FragSize
				c.AdjustLatency = true
			}))
		if err != nil {
			return fmt.Errorf("create record stream: %w", err)
		}
		st.mu.Lock()
		st.record = rs
		st.index = rs.StreamIndex()
		st.mu.Unlock()
		return nil
	}

	ps, err := st.client.NewPlayback(&playbackReader{st: st},
		pa.PlaybackMediaName(st.cfg.Name),
		pa.PlaybackRawOption(func(c *proto.CreatePlaybackStream) {
			c.SampleSpec = spec
			c.ChannelMap = channels
			c.SinkIndex = audioserver.Undefined
			c.SinkName = st.cfg.Device
			c.BufferMaxLength = attr.MaxLength
			c.BufferTargetLength = attr.TargetLength
			c.BufferPrebufferLength = attr.Prebuf
			c.BufferMinimumRequest = attr.MinReq
			c.AdjustLatency = true
		}))
	if err != nil {
		return fmt.Errorf("create playback stream: %w", err)
	}
	st.mu.Lock()
	st.playback = ps
	st.index = ps.StreamIndex()
	st.mu.Unlock()
	return nil
}

// Cork implements audioserver.Stream. The first resume starts the library's
// stream; later transitions are sent as raw cork requests.
func (st *Stream) Cork(op audioserver.OperationID, pause bool) error {
	return st.b.submit(func() {
		err := st.cork(pause)
		if err != nil {
			st.log.Warn("cork request failed", logger.Bool("pause", pause), logger.Error(err))
		}
		st.events.Post(audioserver.OperationDone{Op: op, Err: err})
	})
}

func (st *Stream) cork(pause bool) error {
	st.mu.Lock()
	ps, rs, index := st.playback, st.record, st.index
	first := !pause && !st.started
	if first {
		st.started = true
	}
	st.corked = pause
	prime := st.attr.TargetLength
	st.mu.Unlock()

	if ps == nil && rs == nil {
		return ErrNotConnected
	}

	if first {
		if ps != nil {
			st.requestPrimer(prime)
			ps.Start()
		} else {
			rs.Start()
		}
		st.events.Post(audioserver.StreamStarted{Stream: st.cfg.ID})
		return nil
	}

	if ps != nil {
		if !pause {
			st.requestPrimer(prime)
		}
		return st.client.RawRequest(&proto.CorkPlaybackStream{StreamIndex: index, Corked: pause}, nil)
	}
	return st.client.RawRequest(&proto.CorkRecordStream{StreamIndex: index, Corked: pause}, nil)
}

// requestPrimer asks the core for a full target buffer before the server
// starts pulling
func (st *Stream) requestPrimer(target uint32) {
	n := int(target)
	if target == audioserver.Undefined || n <= 0 {
		n = int(st.cfg.Spec.UsecToBytes(uint64(primeLatency / time.Microsecond)))
	}
	if n -= st.buf.Len(); n > 0 {
		st.events.Post(audioserver.SpaceReady{Stream: st.cfg.ID, Bytes: n})
	}
}

// Flush implements audioserver.Stream
func (st *Stream) Flush(op audioserver.OperationID) error {
	st.buf.Reset()
	return st.b.submit(func() {
		st.mu.Lock()
		ps, index := st.playback, st.index
		st.mu.Unlock()

		var err error
		switch {
		case ps != nil:
			err = st.client.RawRequest(&proto.FlushPlaybackStream{StreamIndex: index}, nil)
		case st.cfg.Direction == audioserver.Record:
			err = st.client.RawRequest(&proto.FlushRecordStream{StreamIndex: index}, nil)
		}
		st.events.Post(audioserver.OperationDone{Op: op, Err: err})
	})
}

// Drain implements audioserver.Stream. Data still queued locally is handed
// to the server first, then the server drain request completes op.
func (st *Stream) Drain(op audioserver.OperationID) error {
	return st.b.submit(func() {
		st.mu.Lock()
		ps, index, corked := st.playback, st.index, st.corked
		st.mu.Unlock()

		if ps == nil {
			st.events.Post(audioserver.OperationDone{Op: op})
			return
		}

		deadline := time.Now().Add(st.cfg.Spec.Duration(st.buf.Len()) + time.Second)
		for !corked && st.buf.Len() > 0 && time.Now().Before(deadline) {
			time.Sleep(drainPoll)
		}
		err := st.client.RawRequest(&proto.DrainPlaybackStream{StreamIndex: index}, nil)
		st.events.Post(audioserver.OperationDone{Op: op, Err: err})
	})
}

// Write implements audioserver.Stream
func (st *Stream) Write(p []byte) error {
	if st.cfg.Direction != audioserver.Playback {
		return fmt.Errorf("pulse: write to record stream")
	}
	st.buf.Write(p)
	return nil
}

// SetBufferAttr implements audioserver.Stream
func (st *Stream) SetBufferAttr(attr audioserver.BufferAttr) error {
	st.mu.Lock()
	st.attr = attr
	index := st.index
	playback := st.playback != nil
	st.mu.Unlock()

	return st.b.submit(func() {
		var err error
		if playback {
			var reply proto.SetPlaybackStreamBufferAttrReply
			err = st.client.RawRequest(&proto.SetPlaybackStreamBufferAttr{
				StreamIndex:           index,
				BufferMaxLength:       attr.MaxLength,
				BufferTargetLength:    attr.TargetLength,
				BufferPrebufferLength: attr.Prebuf,
				BufferMinimumRequest:  attr.MinReq,
				AdjustLatency:         true,
			}, &reply)
		} else {
			var reply proto.SetRecordStreamBufferAttrReply
			err = st.client.RawRequest(&proto.SetRecordStreamBufferAttr{
				StreamIndex:     index,
				BufferMaxLength: attr.MaxLength,
				BufferFragSize:  attr.FragSize,
				AdjustLatency:   true,
			}, &reply)
		}
		if err != nil {
			st.log.Warn("failed to set buffer attributes", logger.Error(err))
			return
		}
		st.log.Debug("buffer attributes updated",
			logger.Uint32("max_length", attr.MaxLength),
			logger.Uint32("target_length", attr.TargetLength))
	})
}

// Time implements audioserver.Stream. It counts bytes handed to or received
// from the server.
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
	ps, rs := st.playback, st.record
	st.playback, st.record = nil, nil
	st.mu.Unlock()

	st.relay.Close()

	if ps != nil {
		ps.Close()
	}
	if rs != nil {
		rs.Close()
	}
}

// playbackReader feeds the library's playback pull callback from the local
// buffer and asks the core to refill what was taken
type playbackReader struct {
	st *Stream
}

func (r *playbackReader) Read(p []byte) (int, error) {
	r.st.relay.Pulled(len(p), r.st.buf.Fill(p))
	return len(p), nil
}

func (r *playbackReader) Format() byte { return byte(r.st.cfg.Spec.Format) }

// recordWriter posts captured fragments
type recordWriter struct {
	st *Stream
}

func (w *recordWriter) Write(p []byte) (int, error) {
	w.st.mu.Lock()
	w.st.captured += len(p)
	w.st.mu.Unlock()
	w.st.relay.Captured(p)
	return len(p), nil
}

func (w *recordWriter) Format() byte { return byte(w.st.cfg.Spec.Format) }

var _ audioserver.Stream = (*Stream)(nil)

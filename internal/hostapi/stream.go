package hostapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tphakala/pulsebridge/internal/audioserver"
	"github.com/tphakala/pulsebridge/internal/errors"
	"github.com/tphakala/pulsebridge/internal/logger"
	"github.com/tphakala/pulsebridge/internal/observability/metrics"
)

// StreamMode selects how audio moves between the application and the stream
type StreamMode int

const (
	// BlockingMode streams are driven with Read and Write
	BlockingMode StreamMode = iota
	// CallbackMode streams call a StreamCallback from the event goroutine
	CallbackMode
)

func (m StreamMode) String() string {
	if m == CallbackMode {
		return "callback"
	}
	return "blocking"
}

type streamState int

const (
	stateStopped streamState = iota
	stateActive
	stateStopping // output draining inside Stop
	stateAborting
	stateClosed
)

func (s streamState) String() string {
	switch s {
	case stateStopped:
		return "stopped"
	case stateActive:
		return "active"
	case stateStopping:
		return "stopping"
	case stateAborting:
		return "aborting"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// OpenParams describes a stream to open. Callback selects callback mode.
type OpenParams struct {
	Input           *StreamParameters
	Output          *StreamParameters
	SampleRate      float64
	FramesPerBuffer int
	Flags           StreamFlags
	Callback        StreamCallback
	// Processor overrides the default FrameProcessor in callback mode
	Processor BufferProcessor
	// Name is shown on the server, defaults to the client name
	Name string
}

// StreamInfo reports negotiated stream properties
type StreamInfo struct {
	InputLatency  time.Duration
	OutputLatency time.Duration
	SampleRate    float64
}

// subStream is one direction of a StreamHandle
type subStream struct {
	owner   *StreamHandle
	id      uuid.UUID
	cfg     *directionConfig
	stream  audioserver.Stream
	latency *latencyState
	ring    *frameRing // blocking mode only
	scratch []byte

	// guarded by the session lock
	state     audioserver.StreamState
	connected bool
	started   bool
	err       error
}

func (ss *subStream) handleEvent(ev audioserver.Event) {
	ss.owner.handleEvent(ss, ev)
}

func (ss *subStream) attr() audioserver.BufferAttr {
	if ss.cfg.dir == audioserver.Playback {
		return ss.latency.outputAttr(ss.cfg.spec)
	}
	return ss.latency.inputAttr(ss.cfg.spec)
}

// buffer returns a scratch slice of n bytes
func (ss *subStream) buffer(n int) []byte {
	if cap(ss.scratch) < n {
		ss.scratch = make([]byte, n)
	}
	return ss.scratch[:n]
}

// StreamHandle is an open stream with an optional input and output
// direction. Control methods (Start, Stop, Abort, Close) are serialized per
// stream; Read and Write may run concurrently with them.
type StreamHandle struct {
	api     *HostAPI
	sess    *Session
	id      uuid.UUID
	mode    StreamMode
	frames  int
	in      *subStream
	out     *subStream
	proc    BufferProcessor
	info    StreamInfo
	log     logger.Logger
	limiter *rate.Limiter
	metrics *metrics.HostAPIMetrics

	ctrl sync.Mutex

	// guarded by the session lock
	state            streamState
	finished         bool // callback returned Complete or Abort
	failure          error
	pendingUnderflow bool
	inputOverflow    bool
	waiters          int // callers parked in Read or Write
	cpu              cpuLoad
}

// ID identifies the stream in logs
func (h *StreamHandle) ID() uuid.UUID { return h.id }

// Mode returns the stream's operating mode
func (h *StreamHandle) Mode() StreamMode { return h.mode }

// Info returns latency and sample rate of the stream
func (h *StreamHandle) Info() StreamInfo { return h.info }

// InputFrameSize returns bytes per input frame, 0 without input
func (h *StreamHandle) InputFrameSize() int {
	if h.in == nil {
		return 0
	}
	return h.in.cfg.frameSize()
}

// OutputFrameSize returns bytes per output frame, 0 without output
func (h *StreamHandle) OutputFrameSize() int {
	if h.out == nil {
		return 0
	}
	return h.out.cfg.frameSize()
}

func (h *StreamHandle) subStreams() []*subStream {
	subs := make([]*subStream, 0, 2)
	if h.in != nil {
		subs = append(subs, h.in)
	}
	if h.out != nil {
		subs = append(subs, h.out)
	}
	return subs
}

func directionLabel(in, out *directionConfig) string {
	switch {
	case in != nil && out != nil:
		return "duplex"
	case in != nil:
		return "input"
	default:
		return "output"
	}
}

// newStream builds a handle and its sub-streams. On error every sub-stream
// created so far is released.
func newStream(api *HostAPI, p OpenParams, in, out *directionConfig) (h *StreamHandle, err error) {
	cfg := api.cfg

	h = &StreamHandle{
		api:     api,
		sess:    api.session,
		id:      uuid.New(),
		mode:    BlockingMode,
		frames:  max(p.FramesPerBuffer, 0),
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		metrics: cfg.Metrics,
		state:   stateStopped,
	}
	if p.Callback != nil {
		h.mode = CallbackMode
	}
	h.log = api.log.Module("stream").With(
		logger.String("stream", h.id.String()),
		logger.String("mode", h.mode.String()))

	defer func() {
		if err != nil {
			h.releaseSubStreams()
			h = nil
		}
	}()

	name := p.Name
	if name == "" {
		name = cfg.ClientName
	}

	if in != nil {
		if h.in, err = h.newSubStream(in, name+" capture"); err != nil {
			return h, err
		}
	}
	if out != nil {
		if h.out, err = h.newSubStream(out, name+" playback"); err != nil {
			return h, err
		}
	}

	inLatency, outLatency := h.frames, h.frames
	if h.mode == CallbackMode {
		h.proc = p.Processor
		if h.proc == nil {
			h.proc = NewFrameProcessor(p.Callback, h.frames, h.InputFrameSize(), h.OutputFrameSize())
		}
		inLatency, outLatency = h.proc.InputLatencyFrames(), h.proc.OutputLatencyFrames()
	}
	h.info = StreamInfo{SampleRate: p.SampleRate}
	if in != nil {
		h.info.InputLatency = framesToDuration(inLatency, p.SampleRate)
	}
	if out != nil {
		h.info.OutputLatency = framesToDuration(outLatency, p.SampleRate)
	}

	return h, nil
}

func (h *StreamHandle) newSubStream(dc *directionConfig, name string) (*subStream, error) {
	cfg := h.api.cfg

	initial := dc.latency
	if initial <= 0 {
		initial = cfg.DefaultLatency
	}

	ss := &subStream{
		owner:   h,
		id:      uuid.New(),
		cfg:     dc,
		latency: newLatencyState(cfg.Latency, initial),
		state:   audioserver.StreamUnconnected,
	}

	if h.mode == BlockingMode {
		ring, err := newFrameRing(cfg.RingBufferFrames, dc.frameSize(), cfg.MaxRingBufferBytes)
		if err != nil {
			return nil, err
		}
		ss.ring = ring
	}

	stream, err := h.sess.backend.NewStream(audioserver.StreamConfig{
		ID:        ss.id,
		Name:      name,
		Direction: dc.dir,
		Spec:      dc.spec,
		Device:    dc.device.ServerName,
	})
	if err != nil {
		return nil, newError(err, errors.CategoryStream).
			DeviceContext(dc.device.Index, dc.device.Name).
			StreamContext(dc.dir.String(), float64(dc.spec.Rate), int(dc.spec.Channels)).
			Build()
	}
	ss.stream = stream
	return ss, nil
}

func (h *StreamHandle) releaseSubStreams() {
	for _, ss := range h.subStreams() {
		if ss.stream == nil {
			continue
		}
		if err := ss.stream.Disconnect(); err != nil {
			h.log.Warn("failed to release sub-stream",
				logger.String("direction", ss.cfg.dir.String()),
				logger.Error(err))
		}
	}
}

func framesToDuration(frames int, sampleRate float64) time.Duration {
	if frames <= 0 || sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(frames) / sampleRate * float64(time.Second))
}

// handleEvent runs on the event goroutine with the session lock held
func (h *StreamHandle) handleEvent(ss *subStream, ev audioserver.Event) {
	switch e := ev.(type) {
	case audioserver.StreamStateChanged:
		ss.state = e.State
		if e.State == audioserver.StreamFailed {
			ss.err = e.Err
			if h.failure == nil {
				h.failure = h.failureError(ss, e.Err)
			}
			h.log.Error("sub-stream failed",
				logger.String("direction", ss.cfg.dir.String()),
				logger.Error(e.Err))
		}
	case audioserver.StreamStarted:
		ss.started = true
		h.log.Debug("sub-stream started", logger.String("direction", ss.cfg.dir.String()))
	case audioserver.DataReady:
		h.onData(ss, e.Data)
	case audioserver.SpaceReady:
		h.onSpace(ss, e.Bytes)
	case audioserver.Underflow:
		h.onUnderflow(ss)
	}
}

func (h *StreamHandle) running() bool {
	return h.state == stateActive || h.state == stateStopping
}

func (h *StreamHandle) onData(ss *subStream, data []byte) {
	if !h.running() || len(data) == 0 {
		return
	}
	h.metrics.AddBytes(metrics.LabelInput, len(data))

	if h.mode == CallbackMode {
		if h.finished {
			return
		}
		h.runCallback(ss.cfg.spec.Duration(len(data)), func(info CallbackTimeInfo, flags CallbackFlags) CallbackResult {
			return h.proc.ProcessInput(data, info, flags)
		})
		return
	}

	stored := ss.ring.write(data)
	if dropped := len(data) - stored; dropped > 0 {
		h.inputOverflow = true
		h.metrics.AddInputOverflow(dropped)
		if h.limiter.Allow() {
			h.log.Warn("input ring buffer full, dropping captured audio",
				logger.Int("dropped_bytes", dropped),
				logger.Int("capacity", ss.ring.capacity()))
		}
	}
}

func (h *StreamHandle) onSpace(ss *subStream, requested int) {
	if !h.running() || requested <= 0 {
		return
	}
	frameSize := ss.cfg.frameSize()

	if h.mode == CallbackMode {
		if h.finished {
			return
		}
		n := requested - requested%frameSize
		if n == 0 {
			return
		}
		buf := ss.buffer(n)
		h.runCallback(ss.cfg.spec.Duration(n), func(info CallbackTimeInfo, flags CallbackFlags) CallbackResult {
			return h.proc.ProcessOutput(buf, info, flags)
		})
		h.writeServer(ss, buf)
		return
	}

	n := min(requested, ss.ring.length())
	n -= n % frameSize
	if n == 0 {
		return
	}
	buf := ss.buffer(n)
	ss.ring.read(buf)
	h.writeServer(ss, buf)
}

func (h *StreamHandle) writeServer(ss *subStream, buf []byte) {
	if err := ss.stream.Write(buf); err != nil {
		if h.failure == nil {
			h.failure = h.failureError(ss, err)
		}
		h.log.Error("failed to write to sub-stream", logger.Error(err))
		return
	}
	h.metrics.AddBytes(metrics.LabelOutput, len(buf))
}

// runCallback invokes the processor and tracks CPU load and completion
func (h *StreamHandle) runCallback(audio time.Duration, process func(CallbackTimeInfo, CallbackFlags) CallbackResult) {
	var flags CallbackFlags
	if h.pendingUnderflow {
		flags |= OutputUnderflow
		h.pendingUnderflow = false
	}
	if h.inputOverflow {
		flags |= InputOverflow
		h.inputOverflow = false
	}

	now := h.streamTime()
	info := CallbackTimeInfo{
		InputBufferADCTime:  now - h.info.InputLatency,
		CurrentTime:         now,
		OutputBufferDACTime: now + h.info.OutputLatency,
	}

	start := time.Now()
	result := process(info, flags)
	elapsed := time.Since(start)

	h.cpu.update(elapsed, audio)
	h.metrics.ObserveCallback(elapsed)

	if result != Continue {
		h.finished = true
		h.log.Debug("callback finished stream", logger.String("result", result.String()))
	}
}

func (h *StreamHandle) onUnderflow(ss *subStream) {
	if ss.cfg.dir != audioserver.Playback {
		return
	}
	h.metrics.RecordUnderflow()
	h.pendingUnderflow = true

	if !ss.latency.onUnderflow() {
		return
	}

	latency := ss.latency.latency()
	attr := ss.latency.outputAttr(ss.cfg.spec)
	if err := ss.stream.SetBufferAttr(attr); err != nil {
		h.log.Warn("failed to apply buffer attributes", logger.Error(err))
		return
	}
	h.metrics.RecordLatencyEscalation(latency)
	if h.limiter.Allow() {
		h.log.Warn("repeated underflows, latency increased",
			logger.Duration("latency", latency),
			logger.Uint32("target_length", attr.TargetLength))
	}
}

func (h *StreamHandle) failureError(ss *subStream, cause error) error {
	err := ErrStreamFailed
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrStreamFailed, cause)
	}
	return newError(err, errors.CategoryStream).
		DeviceContext(ss.cfg.device.Index, ss.cfg.device.Name).
		StreamContext(ss.cfg.dir.String(), float64(ss.cfg.spec.Rate), int(ss.cfg.spec.Channels)).
		Build()
}

func (h *StreamHandle) stateError(err error, op string) error {
	h.metrics.RecordStreamError(op)
	return newError(err, errors.CategoryState).
		Context("operation", op).
		Context("state", h.state.String()).
		Build()
}

// Start connects the sub-streams on first use and resumes them
func (h *StreamHandle) Start(ctx context.Context) error {
	h.ctrl.Lock()
	defer h.ctrl.Unlock()

	h.sess.mu.Lock()
	defer h.sess.mu.Unlock()

	switch h.state {
	case stateClosed:
		return h.stateError(ErrStreamClosed, "start")
	case stateActive, stateStopping:
		return h.stateError(ErrStreamIsNotStopped, "start")
	}
	if h.failure != nil {
		h.metrics.RecordStreamError("start")
		return h.failure
	}

	for _, ss := range h.subStreams() {
		if ss.connected {
			continue
		}
		attr := ss.attr()
		err := h.sess.runSyncLocked(ctx, "connect-"+ss.cfg.dir.String(), func(op audioserver.OperationID) error {
			return ss.stream.Connect(op, attr)
		}, nil)
		if h.failure != nil {
			h.metrics.RecordStreamError("start")
			return h.failure
		}
		if err != nil {
			h.metrics.RecordStreamError("start")
			return err
		}
		ss.connected = true
		if ss.cfg.dir == audioserver.Playback {
			h.metrics.SetOutputLatency(ss.latency.latency())
		}
		h.log.Debug("sub-stream connected",
			logger.String("direction", ss.cfg.dir.String()),
			logger.String("spec", ss.cfg.spec.String()),
			logger.String("device", ss.cfg.device.ServerName),
			logger.Duration("latency", ss.latency.latency()))
	}

	h.finished = false
	h.pendingUnderflow = false
	h.inputOverflow = false
	if h.proc != nil {
		h.proc.Reset()
	}

	h.state = stateActive
	h.sess.cond.Broadcast()
	for _, ss := range h.subStreams() {
		if err := h.corkLocked(ctx, ss, false); err != nil {
			h.state = stateStopped
			h.sess.cond.Broadcast()
			h.metrics.RecordStreamError("start")
			return err
		}
	}

	h.metrics.StreamStarted()
	h.log.Info("stream started")
	return nil
}

func (h *StreamHandle) corkLocked(ctx context.Context, ss *subStream, pause bool) error {
	name := "uncork-" + ss.cfg.dir.String()
	if pause {
		name = "cork-" + ss.cfg.dir.String()
	}
	return h.sess.runSyncLocked(ctx, name, func(op audioserver.OperationID) error {
		return ss.stream.Cork(op, pause)
	}, nil)
}

// Stop plays out buffered output and pauses the stream
func (h *StreamHandle) Stop(ctx context.Context) error {
	h.ctrl.Lock()
	defer h.ctrl.Unlock()

	h.sess.mu.Lock()
	defer h.sess.mu.Unlock()

	switch h.state {
	case stateClosed:
		return h.stateError(ErrStreamClosed, "stop")
	case stateStopped:
		return h.stateError(ErrStreamIsStopped, "stop")
	}

	h.state = stateStopping
	h.sess.cond.Broadcast()

	var firstErr error
	if h.out != nil {
		if h.out.ring != nil {
			h.waitOutputDrainedLocked(ctx)
		}
		if h.failure == nil {
			err := h.sess.runSyncLocked(ctx, "drain", func(op audioserver.OperationID) error {
				return h.out.stream.Drain(op)
			}, nil)
			firstErr = err
		}
	}

	firstErr = h.pauseLocked(ctx, firstErr)
	if h.out != nil && h.out.ring != nil {
		h.out.ring.reset()
	}

	h.state = stateStopped
	h.sess.cond.Broadcast()
	h.metrics.StreamStopped()

	if firstErr == nil && h.failure != nil {
		firstErr = h.failure
	}
	if firstErr != nil {
		h.metrics.RecordStreamError("stop")
		return firstErr
	}
	h.log.Info("stream stopped")
	return nil
}

// waitOutputDrainedLocked waits until the output ring is empty, the drain
// timeout expires or the stream fails
func (h *StreamHandle) waitOutputDrainedLocked(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, h.api.cfg.DrainTimeout)
	defer cancel()

	stop := context.AfterFunc(ctx, func() {
		h.sess.mu.Lock()
		h.sess.cond.Broadcast()
		h.sess.mu.Unlock()
	})
	defer stop()

	for h.out.ring.length() >= h.out.cfg.frameSize() {
		if h.failure != nil || h.sess.state != audioserver.ContextReady {
			return
		}
		if ctx.Err() != nil {
			h.log.Warn("output did not drain before timeout, discarding",
				logger.Int("buffered_bytes", h.out.ring.length()),
				logger.Duration("timeout", h.api.cfg.DrainTimeout))
			return
		}
		h.sess.cond.Wait()
	}
}

// pauseLocked corks every connected sub-stream and returns the first error
func (h *StreamHandle) pauseLocked(ctx context.Context, firstErr error) error {
	for _, ss := range h.subStreams() {
		if !ss.connected || ss.err != nil {
			continue
		}
		if err := h.corkLocked(ctx, ss, true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Abort discards buffered audio and pauses the stream. Blocked Read and
// Write calls return ErrStreamStopped.
func (h *StreamHandle) Abort(ctx context.Context) error {
	h.ctrl.Lock()
	defer h.ctrl.Unlock()

	h.sess.mu.Lock()
	defer h.sess.mu.Unlock()

	switch h.state {
	case stateClosed:
		return h.stateError(ErrStreamClosed, "abort")
	case stateStopped:
		return h.stateError(ErrStreamIsStopped, "abort")
	}

	if err := h.abortLocked(ctx); err != nil {
		h.metrics.RecordStreamError("abort")
		return err
	}
	h.log.Info("stream aborted")
	return nil
}

func (h *StreamHandle) abortLocked(ctx context.Context) error {
	h.state = stateAborting
	h.sess.cond.Broadcast()

	for _, ss := range h.subStreams() {
		if ss.ring != nil {
			ss.ring.reset()
		}
	}
	if h.proc != nil {
		h.proc.Reset()
	}

	var firstErr error
	for _, ss := range h.subStreams() {
		if !ss.connected || ss.err != nil {
			continue
		}
		err := h.sess.runSyncLocked(ctx, "flush-"+ss.cfg.dir.String(), func(op audioserver.OperationID) error {
			return ss.stream.Flush(op)
		}, nil)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	firstErr = h.pauseLocked(ctx, firstErr)

	h.state = stateStopped
	h.sess.cond.Broadcast()
	h.metrics.StreamStopped()
	return firstErr
}

// Close aborts a running stream and releases its sub-streams. Calling Close
// on a closed stream is a no-op.
func (h *StreamHandle) Close() error {
	h.ctrl.Lock()
	defer h.ctrl.Unlock()

	h.sess.mu.Lock()
	if h.state == stateClosed {
		h.sess.mu.Unlock()
		return nil
	}

	var firstErr error
	if h.running() {
		ctx, cancel := context.WithTimeout(context.Background(), h.api.cfg.ConnectTimeout)
		firstErr = h.abortLocked(ctx)
		cancel()
	}

	if h.waiters > 0 {
		h.log.Debug("closing stream with blocked callers", logger.Int("waiters", h.waiters))
	}
	h.state = stateClosed
	for _, ss := range h.subStreams() {
		h.sess.unregister(ss.id)
	}
	h.sess.cond.Broadcast()
	h.sess.mu.Unlock()

	h.releaseSubStreams()
	h.api.forget(h)

	h.log.Debug("stream closed")
	return firstErr
}

// IsStopped reports whether the stream is stopped or closed
func (h *StreamHandle) IsStopped() bool {
	h.sess.mu.Lock()
	defer h.sess.mu.Unlock()
	return h.state == stateStopped || h.state == stateClosed
}

// IsActive reports whether the stream is running and, in callback mode,
// the callback has not finished it
func (h *StreamHandle) IsActive() bool {
	h.sess.mu.Lock()
	defer h.sess.mu.Unlock()
	return h.running() && !h.finished
}

// Time returns the stream position of the output, or of the input for an
// input only stream
func (h *StreamHandle) Time() time.Duration {
	h.sess.mu.Lock()
	defer h.sess.mu.Unlock()
	return h.streamTime()
}

func (h *StreamHandle) streamTime() time.Duration {
	ss := h.out
	if ss == nil {
		ss = h.in
	}
	if !ss.connected {
		return 0
	}
	t, err := ss.stream.Time()
	if err != nil {
		return 0
	}
	return t
}

// CPULoad returns the fraction of audio time spent in the callback. Always
// 0 in blocking mode.
func (h *StreamHandle) CPULoad() float64 {
	h.sess.mu.Lock()
	defer h.sess.mu.Unlock()
	return h.cpu.value
}

package hostapi

import (
	"github.com/tphakala/pulsebridge/internal/audioserver"
	"github.com/tphakala/pulsebridge/internal/errors"
)

// Read blocks until frames input frames are buffered and copies exactly
// that many into buf. If captured audio was dropped since the previous Read,
// buf is still filled and ErrInputOverflowed is returned.
func (h *StreamHandle) Read(buf []byte, frames int) error {
	if h.mode == CallbackMode {
		return h.ioError(ErrCanNotReadFromCallbackStream, "read")
	}
	if h.in == nil {
		return h.ioError(ErrCanNotReadFromOutputStream, "read")
	}
	n, err := h.requestSize(h.in, buf, frames, "read")
	if err != nil || n == 0 {
		return err
	}

	h.sess.mu.Lock()
	defer h.sess.mu.Unlock()

	if h.state == stateClosed {
		return h.ioError(ErrStreamClosed, "read")
	}
	for {
		if h.failure != nil {
			return h.failure
		}
		if h.in.ring.length() >= n {
			h.in.ring.read(buf[:n])
			if h.inputOverflow {
				h.inputOverflow = false
				return h.ioError(ErrInputOverflowed, "read")
			}
			return nil
		}
		if err := h.waitable("read"); err != nil {
			return err
		}
		if err := h.wait("read"); err != nil {
			return err
		}
	}
}

// Write blocks until there is room for frames output frames and copies
// exactly that many from buf. A stopped stream accepts writes that fit so
// output can be primed before Start.
func (h *StreamHandle) Write(buf []byte, frames int) error {
	if h.mode == CallbackMode {
		return h.ioError(ErrCanNotWriteToCallbackStream, "write")
	}
	if h.out == nil {
		return h.ioError(ErrCanNotWriteToInputStream, "write")
	}
	n, err := h.requestSize(h.out, buf, frames, "write")
	if err != nil || n == 0 {
		return err
	}

	h.sess.mu.Lock()
	defer h.sess.mu.Unlock()

	if h.state == stateClosed {
		return h.ioError(ErrStreamClosed, "write")
	}
	for {
		if h.failure != nil {
			return h.failure
		}
		if h.out.ring.free() >= n {
			h.out.ring.write(buf[:n])
			return nil
		}
		if err := h.waitable("write"); err != nil {
			return err
		}
		if err := h.wait("write"); err != nil {
			return err
		}
	}
}

// requestSize validates a request and returns its size in bytes. The frame
// count is bounded by the ring before it is scaled to bytes.
func (h *StreamHandle) requestSize(ss *subStream, buf []byte, frames int, op string) (int, error) {
	if frames < 0 {
		return 0, h.ioError(ErrBadBufferPtr, op)
	}
	fs := ss.cfg.frameSize()
	if capFrames := ss.ring.capacity() / fs; frames > capFrames {
		return 0, newError(ErrInsufficientBuffer, errors.CategoryResource).
			Context("operation", op).
			Context("frames", frames).
			Context("capacity_frames", capFrames).
			Build()
	}
	n := frames * fs
	if len(buf) < n {
		return 0, newError(ErrBadBufferPtr, errors.CategoryValidation).
			Context("operation", op).
			Context("frames", frames).
			Context("buffer_bytes", len(buf)).
			Build()
	}
	return n, nil
}

// waitable reports why a blocked caller must give up instead of waiting.
// Caller holds the session lock.
func (h *StreamHandle) waitable(op string) error {
	if h.state != stateActive {
		return h.ioError(ErrStreamStopped, op)
	}
	if h.sess.state != audioserver.ContextReady {
		return newError(ErrNotReady, errors.CategoryAudioServer).
			Context("operation", op).
			Build()
	}
	return nil
}

// wait parks the caller until the next event. A caller woken by Stop,
// Abort or Close gives up even if its request would now fit.
func (h *StreamHandle) wait(op string) error {
	h.waiters++
	h.sess.cond.Wait()
	h.waiters--
	if h.state != stateActive {
		return h.ioError(ErrStreamStopped, op)
	}
	return nil
}

func (h *StreamHandle) ioError(err error, op string) error {
	return newError(err, errors.CategoryStream).
		Context("operation", op).
		Context("stream", h.id.String()).
		Build()
}

// ReadAvailable returns the number of frames that can be read without blocking
func (h *StreamHandle) ReadAvailable() (int, error) {
	if h.mode == CallbackMode {
		return 0, h.ioError(ErrCanNotReadFromCallbackStream, "read-available")
	}
	if h.in == nil {
		return 0, h.ioError(ErrCanNotReadFromOutputStream, "read-available")
	}
	h.sess.mu.Lock()
	defer h.sess.mu.Unlock()
	return h.in.ring.framesAvailable(), nil
}

// WriteAvailable returns the number of frames that can be written without blocking
func (h *StreamHandle) WriteAvailable() (int, error) {
	if h.mode == CallbackMode {
		return 0, h.ioError(ErrCanNotWriteToCallbackStream, "write-available")
	}
	if h.out == nil {
		return 0, h.ioError(ErrCanNotWriteToInputStream, "write-available")
	}
	h.sess.mu.Lock()
	defer h.sess.mu.Unlock()
	return h.out.ring.framesFree(), nil
}

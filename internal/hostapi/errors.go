package hostapi

import (
	"github.com/tphakala/pulsebridge/internal/errors"
)

// Sentinel errors. Failures returned by this package wrap one of these, so
// callers match with errors.Is.
var (
	ErrInsufficientMemory     = errors.NewStd("insufficient memory")
	ErrConnection             = errors.NewStd("audio server connection failed")
	ErrNotReady               = errors.NewStd("audio server session is not ready")
	ErrDeviceTableFull        = errors.NewStd("device table capacity exceeded")
	ErrInvalidDevice          = errors.NewStd("invalid device")
	ErrInvalidChannelCount    = errors.NewStd("invalid channel count")
	ErrInvalidSampleRate      = errors.NewStd("invalid sample rate")
	ErrUnsupportedFormat      = errors.NewStd("sample format not supported")
	ErrCustomSampleFormat     = errors.NewStd("custom and non-interleaved sample formats are not supported")
	ErrIncompatibleStreamInfo = errors.NewStd("incompatible host API specific stream info")
	ErrInvalidFlag            = errors.NewStd("invalid stream flag")
	ErrInsufficientBuffer     = errors.NewStd("request exceeds ring buffer capacity")
	ErrBadBufferPtr           = errors.NewStd("buffer too small for requested frames")

	ErrStreamStopped      = errors.NewStd("stream stopped")
	ErrStreamFailed       = errors.NewStd("stream failed on the audio server")
	ErrStreamIsNotStopped = errors.NewStd("stream is not stopped")
	ErrStreamIsStopped    = errors.NewStd("stream is stopped")
	ErrStreamClosed       = errors.NewStd("stream is closed")
	ErrInputOverflowed    = errors.NewStd("input overflowed")

	ErrCanNotReadFromCallbackStream = errors.NewStd("can not read from a callback stream")
	ErrCanNotWriteToCallbackStream  = errors.NewStd("can not write to a callback stream")
	ErrCanNotReadFromOutputStream   = errors.NewStd("can not read from an output only stream")
	ErrCanNotWriteToInputStream     = errors.NewStd("can not write to an input only stream")
)

const componentName = "hostapi"

// newError starts an error for this component
func newError(err error, category errors.ErrorCategory) *errors.ErrorBuilder {
	return errors.New(err).Component(componentName).Category(category)
}

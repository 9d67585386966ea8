// Package audioserver defines the boundary between the host API core and an
// asynchronous audio server client. Backends translate their client library's
// callbacks into typed events posted to an EventSink; the core never touches
// protocol internals.
package audioserver

import (
	"fmt"
	"time"
)

// ContextState is the connection state of a client session
type ContextState int

const (
	ContextUnconnected ContextState = iota
	ContextConnecting
	ContextAuthorizing
	ContextSettingName
	ContextReady
	ContextFailed
	ContextTerminated
)

func (s ContextState) String() string {
	switch s {
	case ContextUnconnected:
		return "unconnected"
	case ContextConnecting:
		return "connecting"
	case ContextAuthorizing:
		return "authorizing"
	case ContextSettingName:
		return "setting-name"
	case ContextReady:
		return "ready"
	case ContextFailed:
		return "failed"
	case ContextTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("context-state(%d)", int(s))
	}
}

// IsFinal reports whether no further transitions will follow
func (s ContextState) IsFinal() bool {
	return s == ContextReady || s == ContextFailed || s == ContextTerminated
}

// StreamState is the server-side state of a sub-stream
type StreamState int

const (
	StreamUnconnected StreamState = iota
	StreamCreating
	StreamReady
	StreamFailed
	StreamTerminated
)

func (s StreamState) String() string {
	switch s {
	case StreamUnconnected:
		return "unconnected"
	case StreamCreating:
		return "creating"
	case StreamReady:
		return "ready"
	case StreamFailed:
		return "failed"
	case StreamTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("stream-state(%d)", int(s))
	}
}

// IsGood reports whether the stream is still usable or on its way to being usable
func (s StreamState) IsGood() bool {
	return s == StreamCreating || s == StreamReady
}

// Direction selects playback (sink) or record (source)
type Direction int

const (
	Playback Direction = iota
	Record
)

func (d Direction) String() string {
	if d == Record {
		return "input"
	}
	return "output"
}

// SampleFormat is a wire sample format. Values follow PulseAudio's pa_sample_format_t.
type SampleFormat uint8

const (
	FormatU8        SampleFormat = 0
	FormatS16LE     SampleFormat = 3
	FormatFloat32LE SampleFormat = 5
	FormatS32LE     SampleFormat = 7
	FormatS24LE     SampleFormat = 9
	FormatInvalid   SampleFormat = 0xff
)

// BytesPerSample returns the size of one sample, 0 for unknown formats
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16LE:
		return 2
	case FormatS24LE:
		return 3
	case FormatFloat32LE, FormatS32LE:
		return 4
	default:
		return 0
	}
}

func (f SampleFormat) String() string {
	switch f {
	case FormatU8:
		return "u8"
	case FormatS16LE:
		return "s16le"
	case FormatS24LE:
		return "s24le"
	case FormatS32LE:
		return "s32le"
	case FormatFloat32LE:
		return "float32le"
	default:
		return "invalid"
	}
}

const (
	// MaxRate is the highest sample rate a server accepts
	MaxRate = 48000 * 8
	// MaxChannels is the channel limit of a sample spec
	MaxChannels = 32
)

// SampleSpec describes the negotiated sample format of a stream or device
type SampleSpec struct {
	Format   SampleFormat
	Rate     uint32
	Channels uint8
}

// Valid reports whether the spec has a known format, a rate in
// (0, MaxRate] and 1..MaxChannels channels.
func (s SampleSpec) Valid() bool {
	return s.Format.BytesPerSample() > 0 &&
		s.Rate > 0 && s.Rate <= MaxRate &&
		s.Channels > 0 && s.Channels <= MaxChannels
}

// FrameSize is the size of one frame (one sample per channel) in bytes
func (s SampleSpec) FrameSize() int {
	return s.Format.BytesPerSample() * int(s.Channels)
}

// UsecToBytes converts a duration in microseconds to a byte count, rounded
// down to a whole frame.
func (s SampleSpec) UsecToBytes(usec uint64) uint32 {
	return uint32((usec * uint64(s.Rate) / 1_000_000) * uint64(s.FrameSize()))
}

// BytesToUsec converts a byte count into playback time, ignoring partial frames
func (s SampleSpec) BytesToUsec(n uint64) uint64 {
	frameSize := uint64(s.FrameSize())
	if frameSize == 0 || s.Rate == 0 {
		return 0
	}
	return (n / frameSize) * 1_000_000 / uint64(s.Rate)
}

// Duration converts a byte count into a time.Duration
func (s SampleSpec) Duration(n int) time.Duration {
	return time.Duration(s.BytesToUsec(uint64(n))) * time.Microsecond
}

func (s SampleSpec) String() string {
	return fmt.Sprintf("%s %dch %dHz", s.Format, s.Channels, s.Rate)
}

// Undefined lets the server pick a buffer attribute
const Undefined = ^uint32(0)

// BufferAttr holds server-side buffering attributes, all in bytes
type BufferAttr struct {
	MaxLength    uint32
	TargetLength uint32
	Prebuf       uint32
	MinReq       uint32
	FragSize     uint32
}

// DefaultBufferAttr returns attributes with every field left to the server
func DefaultBufferAttr() BufferAttr {
	return BufferAttr{
		MaxLength:    Undefined,
		TargetLength: Undefined,
		Prebuf:       Undefined,
		MinReq:       Undefined,
		FragSize:     Undefined,
	}
}

// DeviceInfo is one entry of a sink or source listing
type DeviceInfo struct {
	Index       uint32
	Name        string // server-side identifier used to bind streams
	Description string // human readable, may be empty
	Spec        SampleSpec
	// Latency is the device's current latency, ConfiguredLatency the latency
	// its clients requested.
	Latency           time.Duration
	ConfiguredLatency time.Duration
}

// OperationID identifies an asynchronous request submitted through the session
type OperationID uint64

package hostapi

import (
	"fmt"

	"github.com/tphakala/pulsebridge/internal/audioserver"
	"github.com/tphakala/pulsebridge/internal/errors"
)

// SampleFormat is an application sample format. The bit values match PortAudio's
// PaSampleFormat so that masks such as NonInterleaved combine the same way.
type SampleFormat uint32

const (
	Float32        SampleFormat = 0x00000001
	Int32          SampleFormat = 0x00000002
	Int24          SampleFormat = 0x00000004 // packed 3 byte samples
	Int16          SampleFormat = 0x00000008
	Int8           SampleFormat = 0x00000010
	UInt8          SampleFormat = 0x00000020
	CustomFormat   SampleFormat = 0x00010000
	NonInterleaved SampleFormat = 0x80000000
)

func (f SampleFormat) String() string {
	base := f &^ NonInterleaved
	var name string
	switch base {
	case Float32:
		name = "float32"
	case Int32:
		name = "int32"
	case Int24:
		name = "int24"
	case Int16:
		name = "int16"
	case Int8:
		name = "int8"
	case UInt8:
		name = "uint8"
	case CustomFormat:
		name = "custom"
	default:
		name = fmt.Sprintf("format(0x%x)", uint32(base))
	}
	if f&NonInterleaved != 0 {
		return name + "/non-interleaved"
	}
	return name
}

// isCustom reports the formats this host API refuses outright
func (f SampleFormat) isCustom() bool {
	return f&(CustomFormat|NonInterleaved) != 0
}

// wireFormat maps an application format to the server's wire format. Both
// 8-bit formats travel as unsigned 8-bit.
func (f SampleFormat) wireFormat() (audioserver.SampleFormat, bool) {
	switch f {
	case Float32:
		return audioserver.FormatFloat32LE, true
	case Int32:
		return audioserver.FormatS32LE, true
	case Int24:
		return audioserver.FormatS24LE, true
	case Int16:
		return audioserver.FormatS16LE, true
	case Int8, UInt8:
		return audioserver.FormatU8, true
	default:
		return audioserver.FormatInvalid, false
	}
}

// ParseSampleFormat parses the names used in configuration and CLI flags
func ParseSampleFormat(name string) (SampleFormat, error) {
	switch name {
	case "float32", "f32":
		return Float32, nil
	case "int32", "s32":
		return Int32, nil
	case "int24", "s24":
		return Int24, nil
	case "int16", "s16":
		return Int16, nil
	case "int8", "s8":
		return Int8, nil
	case "uint8", "u8":
		return UInt8, nil
	default:
		return 0, newError(ErrUnsupportedFormat, errors.CategoryValidation).
			Context("format", name).
			Build()
	}
}

// StreamFlags modify stream behaviour. Only the platform independent bits
// are accepted; this host API defines no platform specific flags.
type StreamFlags uint32

const (
	NoFlag                                StreamFlags = 0
	ClipOff                               StreamFlags = 0x00000001
	DitherOff                             StreamFlags = 0x00000002
	NeverDropInput                        StreamFlags = 0x00000004
	PrimeOutputBuffersUsingStreamCallback StreamFlags = 0x00000008
	PlatformSpecificFlags                 StreamFlags = 0xFFFF0000
)

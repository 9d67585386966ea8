package bridge

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/tphakala/pulsebridge/internal/hostapi"
)

// formatForBitDepth maps a WAV PCM bit depth to the stream sample format
func formatForBitDepth(bitDepth int) (hostapi.SampleFormat, error) {
	switch bitDepth {
	case 8:
		return hostapi.UInt8, nil
	case 16:
		return hostapi.Int16, nil
	case 24:
		return hostapi.Int24, nil
	case 32:
		return hostapi.Int32, nil
	default:
		return 0, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
}

// packSamples encodes decoded integer samples as little endian PCM of the
// given bit depth into dst, which must hold len(samples)*bitDepth/8 bytes
func packSamples(dst []byte, samples []int, bitDepth int) {
	switch bitDepth {
	case 8:
		for i, v := range samples {
			dst[i] = byte(v)
		}
	case 16:
		for i, v := range samples {
			binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(v)))
		}
	case 24:
		for i, v := range samples {
			u := uint32(int32(v))
			dst[i*3] = byte(u)
			dst[i*3+1] = byte(u >> 8)
			dst[i*3+2] = byte(u >> 16)
		}
	case 32:
		for i, v := range samples {
			binary.LittleEndian.PutUint32(dst[i*4:], uint32(int32(v)))
		}
	}
}

// unpackInt16 decodes little endian 16 bit PCM into dst
func unpackInt16(dst []int, src []byte) {
	for i := range dst {
		dst[i] = int(int16(binary.LittleEndian.Uint16(src[i*2:])))
	}
}

// durationFrames converts d to whole frames at rate
func durationFrames(d time.Duration, rate int) int {
	return int(int64(d) * int64(rate) / int64(time.Second))
}

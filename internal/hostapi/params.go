package hostapi

import (
	"time"

	"github.com/tphakala/pulsebridge/internal/audioserver"
	"github.com/tphakala/pulsebridge/internal/errors"
)

// UseHostAPISpecificDeviceSpecification asks for device selection through
// HostAPISpecificStreamInfo, which this host API does not support.
const UseHostAPISpecificDeviceSpecification = -2

// StreamParameters describes one direction of a stream
type StreamParameters struct {
	Device       int
	ChannelCount int
	SampleFormat SampleFormat
	// SuggestedLatency of zero selects the configured default
	SuggestedLatency time.Duration
	// HostAPISpecificStreamInfo must be nil
	HostAPISpecificStreamInfo any
}

// directionConfig is a validated and negotiated stream direction
type directionConfig struct {
	dir     audioserver.Direction
	device  DeviceInfo
	format  SampleFormat
	spec    audioserver.SampleSpec
	latency time.Duration
}

func (c *directionConfig) frameSize() int { return c.spec.FrameSize() }

// validateParams runs the checks shared by OpenStream and IsFormatSupported.
// Nothing is allocated on the server.
func validateParams(table *DeviceTable, input, output *StreamParameters, sampleRate float64) (in, out *directionConfig, err error) {
	if input == nil && output == nil {
		return nil, nil, newError(ErrInvalidDevice, errors.CategoryValidation).
			Context("reason", "no input or output parameters").
			Build()
	}
	if input != nil {
		if in, err = validateDirection(table, input, audioserver.Record, sampleRate); err != nil {
			return nil, nil, err
		}
	}
	if output != nil {
		if out, err = validateDirection(table, output, audioserver.Playback, sampleRate); err != nil {
			return nil, nil, err
		}
	}
	return in, out, nil
}

func validateDirection(table *DeviceTable, p *StreamParameters, dir audioserver.Direction, sampleRate float64) (*directionConfig, error) {
	if p.SampleFormat.isCustom() {
		return nil, newError(ErrCustomSampleFormat, errors.CategoryValidation).
			Context("direction", dir.String()).
			Context("format", p.SampleFormat.String()).
			Build()
	}

	if p.Device == UseHostAPISpecificDeviceSpecification {
		return nil, newError(ErrInvalidDevice, errors.CategoryValidation).
			DeviceContext(p.Device, "").
			Context("direction", dir.String()).
			Context("reason", "host API specific device selection is not supported").
			Build()
	}
	device, ok := table.Device(p.Device)
	if !ok {
		return nil, newError(ErrInvalidDevice, errors.CategoryValidation).
			DeviceContext(p.Device, "").
			Context("direction", dir.String()).
			Build()
	}

	maxChannels := device.MaxOutputChannels
	if dir == audioserver.Record {
		maxChannels = device.MaxInputChannels
	}
	if p.ChannelCount <= 0 || p.ChannelCount > maxChannels {
		return nil, newError(ErrInvalidChannelCount, errors.CategoryValidation).
			DeviceContext(device.Index, device.Name).
			StreamContext(dir.String(), sampleRate, p.ChannelCount).
			Context("max_channels", maxChannels).
			Build()
	}

	if p.HostAPISpecificStreamInfo != nil {
		return nil, newError(ErrIncompatibleStreamInfo, errors.CategoryValidation).
			DeviceContext(device.Index, device.Name).
			Context("direction", dir.String()).
			Build()
	}

	wire, ok := p.SampleFormat.wireFormat()
	if !ok {
		return nil, newError(ErrUnsupportedFormat, errors.CategoryValidation).
			DeviceContext(device.Index, device.Name).
			Context("direction", dir.String()).
			Context("format", p.SampleFormat.String()).
			Build()
	}

	spec := audioserver.SampleSpec{Format: wire, Channels: uint8(p.ChannelCount)}
	if sampleRate > 0 && sampleRate <= audioserver.MaxRate {
		spec.Rate = uint32(sampleRate)
	}
	if !spec.Valid() {
		return nil, newError(ErrInvalidSampleRate, errors.CategoryValidation).
			DeviceContext(device.Index, device.Name).
			StreamContext(dir.String(), sampleRate, p.ChannelCount).
			Build()
	}

	return &directionConfig{
		dir:     dir,
		device:  device,
		format:  p.SampleFormat,
		spec:    spec,
		latency: p.SuggestedLatency,
	}, nil
}

func validateFlags(flags StreamFlags) error {
	if flags&PlatformSpecificFlags != 0 {
		return newError(ErrInvalidFlag, errors.CategoryValidation).
			Context("flags", uint32(flags)).
			Build()
	}
	return nil
}

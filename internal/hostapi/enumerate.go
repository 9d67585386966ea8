package hostapi

import (
	"context"
	"time"

	"github.com/tphakala/pulsebridge/internal/audioserver"
	"github.com/tphakala/pulsebridge/internal/errors"
	"github.com/tphakala/pulsebridge/internal/logger"
)

// DefaultDeviceCapacity is the default maximum number of devices
const DefaultDeviceCapacity = 1024

// NoDevice marks a missing default device
const NoDevice = -1

// DeviceInfo describes one playback or capture device. A device has either
// input or output channels, never both.
type DeviceInfo struct {
	Index int
	// Name is the human readable description, falling back to ServerName
	Name string
	// ServerName is the server's identifier for the sink or source
	ServerName string

	MaxInputChannels  int
	MaxOutputChannels int

	DefaultLowInputLatency   time.Duration
	DefaultHighInputLatency  time.Duration
	DefaultLowOutputLatency  time.Duration
	DefaultHighOutputLatency time.Duration

	DefaultSampleRate float64
}

// IsInput reports whether the device captures audio
func (d DeviceInfo) IsInput() bool { return d.MaxInputChannels > 0 }

// IsOutput reports whether the device plays audio
func (d DeviceInfo) IsOutput() bool { return d.MaxOutputChannels > 0 }

// DeviceTable is the ordered, capacity bounded list of devices found at
// initialization. Records are immutable once enumeration completes.
type DeviceTable struct {
	capacity      int
	devices       []DeviceInfo
	defaultInput  int
	defaultOutput int
}

// NewDeviceTable returns an empty table holding at most capacity devices
func NewDeviceTable(capacity int) (*DeviceTable, error) {
	if capacity <= 0 {
		return nil, newError(ErrInsufficientMemory, errors.CategoryConfiguration).
			Context("capacity", capacity).
			Build()
	}
	return &DeviceTable{
		capacity:      capacity,
		defaultInput:  NoDevice,
		defaultOutput: NoDevice,
	}, nil
}

// add appends a device in delivery order
func (t *DeviceTable) add(info audioserver.DeviceInfo, dir audioserver.Direction) error {
	if len(t.devices) >= t.capacity {
		return newError(ErrDeviceTableFull, errors.CategoryConfiguration).
			Context("capacity", t.capacity).
			Context("device", info.Name).
			Build()
	}

	name := info.Description
	if name == "" {
		name = info.Name
	}

	d := DeviceInfo{
		Index:             len(t.devices),
		Name:              name,
		ServerName:        info.Name,
		DefaultSampleRate: float64(info.Spec.Rate),
	}
	low, high := info.Latency, info.ConfiguredLatency
	if dir == audioserver.Playback {
		d.MaxOutputChannels = int(info.Spec.Channels)
		d.DefaultLowOutputLatency = low
		d.DefaultHighOutputLatency = high
	} else {
		d.MaxInputChannels = int(info.Spec.Channels)
		d.DefaultLowInputLatency = low
		d.DefaultHighInputLatency = high
	}

	t.devices = append(t.devices, d)
	return nil
}

// resolveDefaults picks the first device with input and with output channels
func (t *DeviceTable) resolveDefaults() {
	t.defaultInput, t.defaultOutput = NoDevice, NoDevice
	for i := range t.devices {
		if t.defaultInput == NoDevice && t.devices[i].MaxInputChannels > 0 {
			t.defaultInput = i
		}
		if t.defaultOutput == NoDevice && t.devices[i].MaxOutputChannels > 0 {
			t.defaultOutput = i
		}
	}
}

// Len returns the number of devices
func (t *DeviceTable) Len() int { return len(t.devices) }

// Capacity returns the maximum number of devices
func (t *DeviceTable) Capacity() int { return t.capacity }

// Device returns the device at index i
func (t *DeviceTable) Device(i int) (DeviceInfo, bool) {
	if i < 0 || i >= len(t.devices) {
		return DeviceInfo{}, false
	}
	return t.devices[i], true
}

// Devices returns a copy of all devices in enumeration order
func (t *DeviceTable) Devices() []DeviceInfo {
	return append([]DeviceInfo(nil), t.devices...)
}

// DefaultInput returns the default capture device index or NoDevice
func (t *DeviceTable) DefaultInput() int { return t.defaultInput }

// DefaultOutput returns the default playback device index or NoDevice
func (t *DeviceTable) DefaultOutput() int { return t.defaultOutput }

// Enumerate lists sinks then sources through s and builds the device table.
// A listing that overflows the table drains to its end and then fails with
// ErrDeviceTableFull.
func Enumerate(ctx context.Context, s *Session, capacity int) (*DeviceTable, error) {
	table, err := NewDeviceTable(capacity)
	if err != nil {
		return nil, err
	}

	for _, dir := range []audioserver.Direction{audioserver.Playback, audioserver.Record} {
		var listErr error
		onEntry := func(ev audioserver.Event) {
			entry, ok := ev.(audioserver.DeviceListEntry)
			if !ok || entry.EOL || listErr != nil {
				return
			}
			listErr = table.add(entry.Info, dir)
		}

		name := "list-sinks"
		if dir == audioserver.Record {
			name = "list-sources"
		}
		err := s.RunSync(ctx, name, func(op audioserver.OperationID) error {
			return s.backend.ListDevices(op, dir)
		}, onEntry)
		if err != nil {
			return nil, err
		}
		// listErr is written on the event goroutine under the session lock,
		// which RunSync held until the operation completed.
		if listErr != nil {
			s.log.Error("device enumeration overflowed",
				logger.Int("capacity", capacity),
				logger.Error(listErr))
			return nil, listErr
		}
	}

	table.resolveDefaults()

	inputs, outputs := 0, 0
	for _, d := range table.devices {
		if d.IsInput() {
			inputs++
		} else {
			outputs++
		}
	}
	s.metrics.SetDevices("input", inputs)
	s.metrics.SetDevices("output", outputs)
	s.log.Info("devices enumerated",
		logger.Int("count", table.Len()),
		logger.Int("default_input", table.DefaultInput()),
		logger.Int("default_output", table.DefaultOutput()))

	return table, nil
}

// Package bridge wires the configured audio server backend, the host API and
// the metrics endpoint together for the command line tools, and implements
// the tools' transfer loops on top of the host API.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/pulsebridge/internal/audioserver"
	"github.com/tphakala/pulsebridge/internal/audioserver/fake"
	"github.com/tphakala/pulsebridge/internal/audioserver/miniaudio"
	"github.com/tphakala/pulsebridge/internal/audioserver/pulse"
	"github.com/tphakala/pulsebridge/internal/conf"
	"github.com/tphakala/pulsebridge/internal/errors"
	"github.com/tphakala/pulsebridge/internal/hostapi"
	"github.com/tphakala/pulsebridge/internal/logger"
	"github.com/tphakala/pulsebridge/internal/observability"
)

const componentName = "bridge"

// FakePeriod is the clock period of the in-memory server selected with
// backend type "fake"
const FakePeriod = 10 * time.Millisecond

// GetLogger returns the bridge logger.
func GetLogger() logger.Logger {
	return logger.Global().Module(componentName)
}

// NewBackend returns the backend selected by settings.Backend.Type
func NewBackend(settings *conf.Settings) (audioserver.Backend, error) {
	log := GetLogger()
	switch settings.Backend.Type {
	case conf.BackendPulse:
		return pulse.New(
			pulse.WithServer(settings.Backend.Server),
			pulse.WithLogger(log.Module("pulse")),
		), nil
	case conf.BackendMiniaudio:
		return miniaudio.New(miniaudio.WithLogger(log.Module("miniaudio"))), nil
	case conf.BackendFake:
		opts := append(fake.DefaultDevices(), fake.WithRealtime(FakePeriod))
		return fake.NewServer(opts...), nil
	default:
		return nil, errors.Newf("unknown backend type %q", settings.Backend.Type).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Context("backend", settings.Backend.Type).
			Build()
	}
}

// Runtime is an initialized host API plus the optional metrics endpoint
type Runtime struct {
	API      *hostapi.HostAPI
	Metrics  *observability.Metrics
	Endpoint *observability.Endpoint

	log  logger.Logger
	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// Options adjusts Open for tests
type Options struct {
	// Backend replaces the one selected by settings
	Backend audioserver.Backend
	// ServeMetrics starts the metrics endpoint when settings enable metrics
	ServeMetrics bool
}

// Open connects to the audio server and enumerates its devices. With
// metrics enabled, host API metrics are recorded and, if requested, served.
func Open(ctx context.Context, settings *conf.Settings, opts Options) (*Runtime, error) {
	log := GetLogger()

	backend := opts.Backend
	if backend == nil {
		var err error
		if backend, err = NewBackend(settings); err != nil {
			return nil, err
		}
	}

	rt := &Runtime{log: log, quit: make(chan struct{})}

	cfg := settings.HostAPIConfig()
	cfg.Logger = hostapi.GetLogger()
	if settings.Metrics.Enabled {
		m, err := observability.NewMetrics()
		if err != nil {
			return nil, err
		}
		rt.Metrics = m
		cfg.Metrics = m.HostAPI
	}

	api, err := hostapi.Initialize(ctx, backend, cfg)
	if err != nil {
		return nil, err
	}
	rt.API = api

	if opts.ServeMetrics && rt.Metrics != nil {
		endpoint, err := observability.NewEndpoint(settings, rt.Metrics)
		if err != nil {
			_ = api.Terminate()
			return nil, err
		}
		if err := endpoint.Start(&rt.wg, rt.quit); err != nil {
			_ = api.Terminate()
			return nil, err
		}
		rt.Endpoint = endpoint
	}

	info := api.Info()
	log.Info("host API initialized",
		logger.String("backend", info.Name),
		logger.Int("devices", info.DeviceCount),
		logger.Int("default_input", info.DefaultInputDevice),
		logger.Int("default_output", info.DefaultOutputDevice))

	return rt, nil
}

// Close terminates the host API and stops the metrics endpoint
func (rt *Runtime) Close() error {
	var err error
	rt.once.Do(func() {
		err = rt.API.Terminate()
		close(rt.quit)
		rt.wg.Wait()
	})
	return err
}

// resolveDevice returns index, or the default device for the direction
// when index is negative
func (rt *Runtime) resolveDevice(index int, input bool) (hostapi.DeviceInfo, error) {
	if index < 0 {
		info := rt.API.Info()
		index = info.DefaultOutputDevice
		if input {
			index = info.DefaultInputDevice
		}
	}
	return rt.API.Device(index)
}

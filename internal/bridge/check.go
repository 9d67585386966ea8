package bridge

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/tphakala/pulsebridge/internal/hostapi"
	"github.com/tphakala/pulsebridge/internal/logger"
)

// CheckResult is the outcome of probing one default device
type CheckResult struct {
	Direction string
	Device    int
	Err       error
}

// Check verifies that a short blocking stream can be opened, started and
// stopped on each default device. With no device of a direction the probe
// for it is skipped.
func Check(ctx context.Context, rt *Runtime, w io.Writer) ([]CheckResult, error) {
	log := GetLogger()
	info := rt.API.Info()

	var results []CheckResult
	for _, input := range []bool{false, true} {
		index := info.DefaultOutputDevice
		direction := "output"
		if input {
			index, direction = info.DefaultInputDevice, "input"
		}
		if index < 0 {
			fmt.Fprintf(w, "%-6s  no device\n", direction)
			continue
		}

		err := probe(ctx, rt, index, input)
		results = append(results, CheckResult{Direction: direction, Device: index, Err: err})
		if err != nil {
			log.Warn("device check failed",
				logger.String("direction", direction),
				logger.Int("device", index),
				logger.Error(err))
			fmt.Fprintf(w, "%-6s  device %d  FAILED: %v\n", direction, index, err)
			continue
		}
		fmt.Fprintf(w, "%-6s  device %d  ok\n", direction, index)
	}

	for _, r := range results {
		if r.Err != nil {
			return results, fmt.Errorf("%s device %d: %w", r.Direction, r.Device, r.Err)
		}
	}
	return results, nil
}

func probe(ctx context.Context, rt *Runtime, index int, input bool) error {
	device, err := rt.API.Device(index)
	if err != nil {
		return err
	}
	params := &hostapi.StreamParameters{Device: index, ChannelCount: 1, SampleFormat: hostapi.Int16}
	p := hostapi.OpenParams{SampleRate: device.DefaultSampleRate, Name: "check"}
	if input {
		p.Input = params
	} else {
		p.Output = params
	}

	h, err := rt.API.OpenStream(p)
	if err != nil {
		return err
	}
	defer h.Close()

	frames := int(device.DefaultSampleRate / 100)
	if input {
		if err := h.Start(ctx); err != nil {
			return err
		}
		buf := make([]byte, frames*h.InputFrameSize())
		readCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		stop := context.AfterFunc(readCtx, func() { _ = h.Abort(context.Background()) })
		defer stop()
		if err := h.Read(buf, frames); err != nil {
			return err
		}
		return h.Stop(ctx)
	}

	// prime one buffer of silence, then play it out
	if err := h.Write(make([]byte, frames*h.OutputFrameSize()), frames); err != nil {
		return err
	}
	if err := h.Start(ctx); err != nil {
		return err
	}
	return h.Stop(ctx)
}

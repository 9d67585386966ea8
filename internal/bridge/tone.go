package bridge

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/tphakala/pulsebridge/internal/errors"
	"github.com/tphakala/pulsebridge/internal/hostapi"
	"github.com/tphakala/pulsebridge/internal/logger"
)

// activityPoll is how often PlayTone checks whether the callback finished
const activityPoll = 20 * time.Millisecond

// ToneOptions describe a sine wave played in callback mode
type ToneOptions struct {
	// Device is the output device index, negative for the default
	Device    int
	Frequency float64
	Amplitude float64
	Duration  time.Duration
	Latency   time.Duration
	// FramesPerBuffer is passed to the stream, zero for variable blocks
	FramesPerBuffer int
}

// sineGenerator renders interleaved float32 frames of one sine wave
type sineGenerator struct {
	step      float64
	phase     float64
	amplitude float32
	channels  int
	remaining int
}

func newSineGenerator(frequency, amplitude float64, sampleRate int, channels, frames int) *sineGenerator {
	return &sineGenerator{
		step:      2 * math.Pi * frequency / float64(sampleRate),
		amplitude: float32(amplitude),
		channels:  channels,
		remaining: frames,
	}
}

// fill writes up to frames frames into out and reports whether the tone
// has ended. Frames past the end stay zero.
func (g *sineGenerator) fill(out []byte, frames int) hostapi.CallbackResult {
	n := min(frames, g.remaining)
	for i := range n {
		v := math.Float32bits(g.amplitude * float32(math.Sin(g.phase)))
		for c := range g.channels {
			binary.LittleEndian.PutUint32(out[(i*g.channels+c)*4:], v)
		}
		g.phase += g.step
		if g.phase >= 2*math.Pi {
			g.phase -= 2 * math.Pi
		}
	}
	g.remaining -= n
	if g.remaining <= 0 {
		return hostapi.Complete
	}
	return hostapi.Continue
}

// PlayTone plays a sine wave through a callback mode stream until the
// duration has been rendered or ctx ends
func PlayTone(ctx context.Context, rt *Runtime, opts ToneOptions) (TransferResult, error) {
	log := GetLogger()

	if opts.Frequency <= 0 || opts.Duration <= 0 {
		return TransferResult{}, errors.Newf("tone needs a positive frequency and duration").
			Component(componentName).
			Category(errors.CategoryValidation).
			Context("frequency", opts.Frequency).
			Context("duration", opts.Duration.String()).
			Build()
	}
	amplitude := opts.Amplitude
	if amplitude <= 0 || amplitude > 1 {
		amplitude = 0.5
	}

	device, err := rt.resolveDevice(opts.Device, false)
	if err != nil {
		return TransferResult{}, err
	}
	channels := min(device.MaxOutputChannels, 2)
	sampleRate := int(device.DefaultSampleRate)
	frames := durationFrames(opts.Duration, sampleRate)
	gen := newSineGenerator(opts.Frequency, amplitude, sampleRate, channels, frames)

	h, err := rt.API.OpenStream(hostapi.OpenParams{
		Output: &hostapi.StreamParameters{
			Device:           device.Index,
			ChannelCount:     channels,
			SampleFormat:     hostapi.Float32,
			SuggestedLatency: opts.Latency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: opts.FramesPerBuffer,
		Name:            "tone",
		Callback: func(_, out []byte, n int, _ hostapi.CallbackTimeInfo, flags hostapi.CallbackFlags) hostapi.CallbackResult {
			if flags&hostapi.OutputUnderflow != 0 {
				log.Debug("output underflow")
			}
			return gen.fill(out, n)
		},
	})
	if err != nil {
		return TransferResult{}, err
	}
	defer h.Close()

	log.Info("playing tone",
		logger.Int("device", device.Index),
		logger.Float64("frequency", opts.Frequency),
		logger.Duration("duration", opts.Duration))

	start := time.Now()
	if err := h.Start(ctx); err != nil {
		return TransferResult{}, err
	}

	ticker := time.NewTicker(activityPoll)
	defer ticker.Stop()
	for h.IsActive() {
		select {
		case <-ctx.Done():
			_ = h.Abort(context.Background())
			return TransferResult{SampleRate: sampleRate, Channels: channels, Frames: frames - gen.remaining}, ctx.Err()
		case <-ticker.C:
		}
	}

	if err := h.Stop(ctx); err != nil {
		return TransferResult{}, err
	}
	result := TransferResult{
		Frames:     frames,
		SampleRate: sampleRate,
		Channels:   channels,
		Duration:   time.Since(start),
		CPULoad:    h.CPULoad(),
	}
	log.Info("tone finished", logger.Duration("elapsed", result.Duration))
	return result, nil
}

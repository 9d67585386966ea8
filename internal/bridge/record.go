package bridge

import (
	"context"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/pulsebridge/internal/errors"
	"github.com/tphakala/pulsebridge/internal/hostapi"
	"github.com/tphakala/pulsebridge/internal/logger"
)

const recordBitDepth = 16

// RecordOptions select the input device and recording length
type RecordOptions struct {
	// Device is the input device index, negative for the default
	Device int
	// Channels defaults to the device's channel count
	Channels int
	// SampleRate defaults to the device's rate
	SampleRate int
	// Duration is how long to record
	Duration time.Duration
	// Latency is the suggested input latency, zero for the configured default
	Latency     time.Duration
	ChunkFrames int
}

// RecordFile captures 16 bit PCM from a blocking input stream into a WAV
// file. A cancelled ctx ends the recording early and keeps what was
// captured.
func RecordFile(ctx context.Context, rt *Runtime, path string, opts RecordOptions) (TransferResult, error) {
	log := GetLogger().With(logger.String("file", path))

	if opts.Duration <= 0 {
		return TransferResult{}, errors.Newf("record duration must be positive, got %s", opts.Duration).
			Component(componentName).
			Category(errors.CategoryValidation).
			Build()
	}

	device, err := rt.resolveDevice(opts.Device, true)
	if err != nil {
		return TransferResult{}, err
	}
	channels := opts.Channels
	if channels <= 0 {
		channels = device.MaxInputChannels
	}
	sampleRate := opts.SampleRate
	if sampleRate <= 0 {
		sampleRate = int(device.DefaultSampleRate)
	}
	chunk := opts.ChunkFrames
	if chunk <= 0 {
		chunk = DefaultChunkFrames
	}

	h, err := rt.API.OpenStream(hostapi.OpenParams{
		Input: &hostapi.StreamParameters{
			Device:           device.Index,
			ChannelCount:     channels,
			SampleFormat:     hostapi.Int16,
			SuggestedLatency: opts.Latency,
		},
		SampleRate: float64(sampleRate),
		Name:       "record",
	})
	if err != nil {
		return TransferResult{}, err
	}
	defer h.Close()

	out, err := os.Create(path)
	if err != nil {
		return TransferResult{}, errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Context("operation", "create-wav").
			Context("path", path).
			Build()
	}
	defer out.Close()

	enc := wav.NewEncoder(out, sampleRate, recordBitDepth, channels, 1)

	log.Info("starting recording",
		logger.Int("device", device.Index),
		logger.Int("channels", channels),
		logger.Int("sample_rate", sampleRate),
		logger.Duration("duration", opts.Duration),
		logger.Duration("latency", h.Info().InputLatency))

	if err := h.Start(ctx); err != nil {
		return TransferResult{}, err
	}

	// Abort wakes a Read blocked when ctx ends
	stop := context.AfterFunc(ctx, func() { _ = h.Abort(context.Background()) })
	defer stop()

	result := TransferResult{SampleRate: sampleRate, Channels: channels}
	total := durationFrames(opts.Duration, sampleRate)
	raw := make([]byte, chunk*h.InputFrameSize())
	buf := &audio.IntBuffer{
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: channels},
		SourceBitDepth: recordBitDepth,
	}
	overflows := 0
	start := time.Now()

	for result.Frames < total {
		frames := min(chunk, total-result.Frames)
		if err := h.Read(raw, frames); err != nil {
			switch {
			case errors.Is(err, hostapi.ErrInputOverflowed):
				overflows++
			case ctx.Err() != nil:
				log.Info("recording interrupted", logger.Int("frames", result.Frames))
				return result, closeEncoder(enc, path, ctx.Err())
			default:
				_ = enc.Close()
				return result, err
			}
		}

		samples := frames * channels
		if cap(buf.Data) < samples {
			buf.Data = make([]int, samples)
		}
		buf.Data = buf.Data[:samples]
		unpackInt16(buf.Data, raw)
		if err := enc.Write(buf); err != nil {
			return result, closeEncoder(enc, path, err)
		}
		result.Frames += frames
	}

	if err := h.Stop(ctx); err != nil {
		log.Warn("failed to stop input stream", logger.Error(err))
	}
	result.Duration = time.Since(start)
	result.CPULoad = h.CPULoad()

	if overflows > 0 {
		log.Warn("input overflowed during recording", logger.Int("overflows", overflows))
	}
	log.Info("recording finished",
		logger.Int("frames", result.Frames),
		logger.Duration("elapsed", result.Duration))
	return result, closeEncoder(enc, path, nil)
}

// closeEncoder finalizes the WAV header and returns cause, or the close
// error when cause is nil
func closeEncoder(enc *wav.Encoder, path string, cause error) error {
	if err := enc.Close(); err != nil && cause == nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Context("operation", "close-wav").
			Context("path", path).
			Build()
	}
	return cause
}

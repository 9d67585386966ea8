package bridge

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/pulsebridge/internal/errors"
	"github.com/tphakala/pulsebridge/internal/hostapi"
	"github.com/tphakala/pulsebridge/internal/logger"
)

// DefaultChunkFrames is the number of frames moved per blocking call
const DefaultChunkFrames = 1024

// PlayOptions select the output device and stream latency
type PlayOptions struct {
	// Device is the output device index, negative for the default
	Device int
	// Latency is the suggested output latency, zero for the configured default
	Latency time.Duration
	// ChunkFrames is the number of frames per Write
	ChunkFrames int
}

// TransferResult summarizes a completed play or record run
type TransferResult struct {
	Frames     int
	SampleRate int
	Channels   int
	Duration   time.Duration
	CPULoad    float64
}

// PlayFile plays a PCM WAV or FLAC file through a blocking output stream.
// A cancelled ctx aborts the stream; reaching the end of the file stops it
// after the queued audio has played.
func PlayFile(ctx context.Context, rt *Runtime, path string, opts PlayOptions) (TransferResult, error) {
	log := GetLogger().With(logger.String("file", path))

	src, info, f, err := openSource(path)
	if err != nil {
		return TransferResult{}, err
	}
	defer f.Close()

	bitDepth, channels, sampleRate := info.BitDepth, info.Channels, info.SampleRate
	format, err := formatForBitDepth(bitDepth)
	if err != nil {
		return TransferResult{}, errors.New(err).
			Component(componentName).
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}

	device, err := rt.resolveDevice(opts.Device, false)
	if err != nil {
		return TransferResult{}, err
	}

	h, err := rt.API.OpenStream(hostapi.OpenParams{
		Output: &hostapi.StreamParameters{
			Device:           device.Index,
			ChannelCount:     channels,
			SampleFormat:     format,
			SuggestedLatency: opts.Latency,
		},
		SampleRate: float64(sampleRate),
		Name:       "playback",
	})
	if err != nil {
		return TransferResult{}, err
	}
	defer h.Close()

	chunk, err := chunkFrames(opts.ChunkFrames, h.WriteAvailable)
	if err != nil {
		return TransferResult{}, err
	}

	log.Info("starting playback",
		logger.String("format", info.Format),
		logger.Int("device", device.Index),
		logger.Int("channels", channels),
		logger.Int("sample_rate", sampleRate),
		logger.Int("bit_depth", bitDepth),
		logger.Duration("latency", h.Info().OutputLatency))

	if err := h.Start(ctx); err != nil {
		return TransferResult{}, err
	}

	result := TransferResult{SampleRate: sampleRate, Channels: channels}
	frameSize := h.OutputFrameSize()
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)

		out := make([]byte, chunk*frameSize)
		for {
			frames, err := src.Read(out)
			if err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
			if frames == 0 {
				return nil
			}
			if err := h.Write(out, frames); err != nil {
				return err
			}
			result.Frames += frames
		}
	})

	g.Go(func() error {
		select {
		case <-done:
			return nil
		case <-gctx.Done():
			return h.Abort(context.Background())
		}
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			log.Info("playback interrupted", logger.Int("frames", result.Frames))
			return result, ctx.Err()
		}
		return result, err
	}

	if err := h.Stop(ctx); err != nil {
		return result, err
	}
	result.Duration = time.Since(start)
	result.CPULoad = h.CPULoad()

	log.Info("playback finished",
		logger.Int("frames", result.Frames),
		logger.Duration("elapsed", result.Duration))
	return result, nil
}

// chunkFrames returns the requested chunk size bounded by what the stream's
// ring buffer can hold
func chunkFrames(requested int, available func() (int, error)) (int, error) {
	if requested <= 0 {
		requested = DefaultChunkFrames
	}
	capacity, err := available()
	if err != nil {
		return 0, err
	}
	if capacity <= 0 {
		return requested, nil
	}
	return min(requested, capacity), nil
}

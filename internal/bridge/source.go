package bridge

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tphakala/flac"

	"github.com/tphakala/pulsebridge/internal/errors"
)

// pcmSource decodes an audio file into interleaved little-endian PCM
type pcmSource interface {
	// Read fills p with whole frames and returns how many, zero at the end
	// of the input
	Read(p []byte) (int, error)
}

// sourceInfo describes the decoded stream
type sourceInfo struct {
	Format     string
	BitDepth   int
	Channels   int
	SampleRate int
}

func (i sourceInfo) frameSize() int {
	return i.BitDepth / 8 * i.Channels
}

// openSource opens path as FLAC when it has a .flac extension and as WAV
// otherwise. The returned file must be closed by the caller.
func openSource(path string) (pcmSource, sourceInfo, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, sourceInfo{}, nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Context("operation", "open-audio-file").
			Context("path", path).
			Build()
	}

	var (
		src  pcmSource
		info sourceInfo
	)
	if strings.EqualFold(filepath.Ext(path), ".flac") {
		src, info, err = newFLACSource(f)
	} else {
		src, info, err = newWAVSource(f)
	}
	if err != nil {
		f.Close()
		return nil, sourceInfo{}, nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}
	return src, info, f, nil
}

type wavSource struct {
	dec  *wav.Decoder
	info sourceInfo
	buf  *audio.IntBuffer
}

func newWAVSource(r io.ReadSeeker) (*wavSource, sourceInfo, error) {
	dec := wav.NewDecoder(r)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, sourceInfo{}, fmt.Errorf("invalid WAV file")
	}
	info := sourceInfo{
		Format:     "wav",
		BitDepth:   int(dec.BitDepth),
		Channels:   int(dec.NumChans),
		SampleRate: int(dec.SampleRate),
	}
	if _, err := formatForBitDepth(info.BitDepth); err != nil {
		return nil, sourceInfo{}, err
	}
	return &wavSource{
		dec:  dec,
		info: info,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{SampleRate: info.SampleRate, NumChannels: info.Channels},
			SourceBitDepth: info.BitDepth,
		},
	}, info, nil
}

func (s *wavSource) Read(p []byte) (int, error) {
	samples := len(p) / s.info.frameSize() * s.info.Channels
	if cap(s.buf.Data) < samples {
		s.buf.Data = make([]int, samples)
	}
	s.buf.Data = s.buf.Data[:samples]

	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil {
		return 0, err
	}
	frames := n / s.info.Channels
	packSamples(p, s.buf.Data[:frames*s.info.Channels], s.info.BitDepth)
	return frames, nil
}

// frameDecoder yields decoded FLAC frames as interleaved little-endian PCM
type frameDecoder interface {
	Next() ([]byte, error)
}

type flacSource struct {
	dec       frameDecoder
	frameSize int
	pending   []byte
}

func newFLACSource(r io.Reader) (*flacSource, sourceInfo, error) {
	dec, err := flac.NewDecoder(r)
	if err != nil {
		return nil, sourceInfo{}, fmt.Errorf("invalid FLAC file: %w", err)
	}
	info := sourceInfo{
		Format:     "flac",
		BitDepth:   dec.BitsPerSample,
		Channels:   dec.NChannels,
		SampleRate: dec.SampleRate,
	}
	switch info.BitDepth {
	case 16, 24, 32:
	default:
		return nil, sourceInfo{}, fmt.Errorf("unsupported FLAC bit depth %d", info.BitDepth)
	}
	return &flacSource{dec: dec, frameSize: info.frameSize()}, info, nil
}

func (s *flacSource) Read(p []byte) (int, error) {
	for len(s.pending) < s.frameSize {
		frame, err := s.dec.Next()
		if err == io.EOF {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		s.pending = frame
	}
	n := min(len(p), len(s.pending)) / s.frameSize * s.frameSize
	copy(p, s.pending[:n])
	s.pending = s.pending[n:]
	return n / s.frameSize, nil
}

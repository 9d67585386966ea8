package hostapi

import "time"

// CallbackResult tells the stream whether to keep calling the callback
type CallbackResult int

const (
	// Continue keeps the stream running
	Continue CallbackResult = iota
	// Complete finishes the stream after the current buffer
	Complete
	// Abort finishes the stream immediately
	Abort
)

func (r CallbackResult) String() string {
	switch r {
	case Continue:
		return "continue"
	case Complete:
		return "complete"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// CallbackFlags report conditions since the previous callback
type CallbackFlags uint32

const (
	InputUnderflow CallbackFlags = 1 << iota
	InputOverflow
	OutputUnderflow
	OutputOverflow
	PrimingOutput
)

// CallbackTimeInfo carries stream times for a callback invocation
type CallbackTimeInfo struct {
	InputBufferADCTime  time.Duration
	CurrentTime         time.Duration
	OutputBufferDACTime time.Duration
}

// StreamCallback produces or consumes one block of audio. in is nil for an
// output block and out is nil for an input block; out arrives zeroed. The
// callback runs on the session's event goroutine and must not block or call
// control methods of its stream.
type StreamCallback func(in, out []byte, frames int, info CallbackTimeInfo, flags CallbackFlags) CallbackResult

// BufferProcessor adapts the server's variable sized chunks to the
// application's callback
type BufferProcessor interface {
	// ProcessInput passes captured bytes to the callback
	ProcessInput(data []byte, info CallbackTimeInfo, flags CallbackFlags) CallbackResult
	// ProcessOutput fills out completely, padding with silence once the
	// callback has finished
	ProcessOutput(out []byte, info CallbackTimeInfo, flags CallbackFlags) CallbackResult
	// InputLatencyFrames and OutputLatencyFrames report buffering added by the processor
	InputLatencyFrames() int
	OutputLatencyFrames() int
	// Reset discards partially processed blocks
	Reset()
}

// FrameProcessor regroups chunks into blocks of framesPerBuffer frames. With
// framesPerBuffer 0 every chunk is passed through as it arrives.
type FrameProcessor struct {
	callback        StreamCallback
	framesPerBuffer int
	inFrameSize     int
	outFrameSize    int

	inPending  []byte
	outPending []byte
	outBlock   []byte
}

// NewFrameProcessor returns a processor for the given frame sizes. A frame
// size of 0 disables that direction.
func NewFrameProcessor(callback StreamCallback, framesPerBuffer, inFrameSize, outFrameSize int) *FrameProcessor {
	return &FrameProcessor{
		callback:        callback,
		framesPerBuffer: max(framesPerBuffer, 0),
		inFrameSize:     inFrameSize,
		outFrameSize:    outFrameSize,
	}
}

// ProcessInput implements BufferProcessor. Bytes short of a whole block are
// kept for the next chunk.
func (p *FrameProcessor) ProcessInput(data []byte, info CallbackTimeInfo, flags CallbackFlags) CallbackResult {
	if p.inFrameSize == 0 {
		return Continue
	}
	p.inPending = append(p.inPending, data...)

	frames := p.framesPerBuffer
	if frames == 0 {
		frames = len(p.inPending) / p.inFrameSize
		if frames == 0 {
			return Continue
		}
	}
	block := frames * p.inFrameSize

	consumed := 0
	result := Continue
	for len(p.inPending)-consumed >= block {
		result = p.callback(p.inPending[consumed:consumed+block], nil, frames, info, flags)
		consumed += block
		flags = 0
		if result != Continue {
			break
		}
	}
	p.inPending = append(p.inPending[:0], p.inPending[consumed:]...)
	return result
}

// ProcessOutput implements BufferProcessor
func (p *FrameProcessor) ProcessOutput(out []byte, info CallbackTimeInfo, flags CallbackFlags) CallbackResult {
	if p.outFrameSize == 0 {
		clear(out)
		return Continue
	}

	filled := 0
	for filled < len(out) {
		if len(p.outPending) > 0 {
			n := copy(out[filled:], p.outPending)
			p.outPending = p.outPending[n:]
			filled += n
			continue
		}

		frames := p.framesPerBuffer
		if frames == 0 {
			frames = (len(out) - filled) / p.outFrameSize
			if frames == 0 {
				break
			}
		}

		block := p.nextOutBlock(frames * p.outFrameSize)
		result := p.callback(nil, block, frames, info, flags)
		flags = 0
		p.outPending = block
		if result != Continue {
			n := copy(out[filled:], p.outPending)
			p.outPending = p.outPending[n:]
			clear(out[filled+n:])
			return result
		}
	}
	clear(out[filled:])
	return Continue
}

// nextOutBlock returns a zeroed scratch block; only called once outPending is empty
func (p *FrameProcessor) nextOutBlock(size int) []byte {
	if cap(p.outBlock) < size {
		p.outBlock = make([]byte, size)
	}
	block := p.outBlock[:size]
	clear(block)
	return block
}

// InputLatencyFrames implements BufferProcessor
func (p *FrameProcessor) InputLatencyFrames() int {
	if p.inFrameSize == 0 {
		return 0
	}
	return p.framesPerBuffer
}

// OutputLatencyFrames implements BufferProcessor
func (p *FrameProcessor) OutputLatencyFrames() int {
	if p.outFrameSize == 0 {
		return 0
	}
	return p.framesPerBuffer
}

// Reset implements BufferProcessor
func (p *FrameProcessor) Reset() {
	p.inPending = p.inPending[:0]
	p.outPending = nil
}

// cpuLoadCoefficient weights the previous estimate in the moving average
const cpuLoadCoefficient = 0.9

// cpuLoad is a low pass estimate of callback time relative to the audio
// duration it produced or consumed
type cpuLoad struct {
	value float64
}

func (c *cpuLoad) update(elapsed, audio time.Duration) {
	if audio <= 0 {
		return
	}
	sample := elapsed.Seconds() / audio.Seconds()
	c.value = c.value*cpuLoadCoefficient + sample*(1-cpuLoadCoefficient)
}

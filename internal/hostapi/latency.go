package hostapi

import (
	"time"

	"github.com/tphakala/pulsebridge/internal/audioserver"
)

// Latency controller defaults. Empirical values, kept configurable.
const (
	DefaultUnderflowThreshold = 6
	DefaultGrowthNumerator    = 3
	DefaultGrowthDenominator  = 2
	DefaultLatencyCeiling     = 2 * time.Second
	DefaultStreamLatency      = 20 * time.Millisecond
)

// LatencyPolicy controls how output buffering grows after underflows
type LatencyPolicy struct {
	// UnderflowThreshold is the number of underflows that trigger growth
	UnderflowThreshold int
	// Latency grows by GrowthNumerator/GrowthDenominator
	GrowthNumerator   int
	GrowthDenominator int
	// Ceiling bounds the latency
	Ceiling time.Duration
}

// DefaultLatencyPolicy returns 6 underflows, x3/2 growth and a 2s ceiling
func DefaultLatencyPolicy() LatencyPolicy {
	return LatencyPolicy{
		UnderflowThreshold: DefaultUnderflowThreshold,
		GrowthNumerator:    DefaultGrowthNumerator,
		GrowthDenominator:  DefaultGrowthDenominator,
		Ceiling:            DefaultLatencyCeiling,
	}
}

func (p *LatencyPolicy) applyDefaults() {
	d := DefaultLatencyPolicy()
	if p.UnderflowThreshold <= 0 {
		p.UnderflowThreshold = d.UnderflowThreshold
	}
	if p.GrowthNumerator <= 0 || p.GrowthDenominator <= 0 || p.GrowthNumerator <= p.GrowthDenominator {
		p.GrowthNumerator, p.GrowthDenominator = d.GrowthNumerator, d.GrowthDenominator
	}
	if p.Ceiling <= 0 {
		p.Ceiling = d.Ceiling
	}
}

// latencyState is the underflow counter and current output latency of one
// stream. Latency is held in microseconds to match the server's units.
type latencyState struct {
	policy     LatencyPolicy
	underflows int
	latencyUs  uint64
}

func newLatencyState(policy LatencyPolicy, initial time.Duration) *latencyState {
	us := uint64(initial / time.Microsecond)
	if ceiling := uint64(policy.Ceiling / time.Microsecond); us > ceiling {
		us = ceiling
	}
	return &latencyState{policy: policy, latencyUs: us}
}

// latency returns the current buffering latency
func (l *latencyState) latency() time.Duration {
	return time.Duration(l.latencyUs) * time.Microsecond
}

// onUnderflow counts one underflow and reports whether the latency grew.
// Latency never shrinks and never exceeds the ceiling; once at the ceiling
// the counter stays at the threshold.
func (l *latencyState) onUnderflow() bool {
	l.underflows++
	if l.underflows < l.policy.UnderflowThreshold {
		return false
	}

	ceiling := uint64(l.policy.Ceiling / time.Microsecond)
	if l.latencyUs >= ceiling {
		l.underflows = l.policy.UnderflowThreshold
		return false
	}

	next := l.latencyUs * uint64(l.policy.GrowthNumerator) / uint64(l.policy.GrowthDenominator)
	l.latencyUs = min(ceiling, next)
	l.underflows = 0
	return true
}

// outputAttr derives playback buffer attributes for the current latency
func (l *latencyState) outputAttr(spec audioserver.SampleSpec) audioserver.BufferAttr {
	attr := audioserver.DefaultBufferAttr()
	attr.MaxLength = spec.UsecToBytes(l.latencyUs)
	attr.TargetLength = attr.MaxLength
	return attr
}

// inputAttr derives record buffer attributes for the current latency
func (l *latencyState) inputAttr(spec audioserver.SampleSpec) audioserver.BufferAttr {
	attr := audioserver.DefaultBufferAttr()
	attr.FragSize = spec.UsecToBytes(l.latencyUs)
	return attr
}

package conf

import "github.com/tphakala/pulsebridge/internal/hostapi"

// HostAPIConfig converts the settings into a host API configuration.
// Metrics and Logger are left for the caller.
func (s *Settings) HostAPIConfig() hostapi.Config {
	return hostapi.Config{
		ClientName:         s.Client.Name,
		PollInterval:       s.Session.PollInterval,
		ConnectTimeout:     s.Session.ConnectTimeout,
		EventQueueSize:     s.Session.EventQueueSize,
		DeviceCapacity:     s.Devices.Capacity,
		RingBufferFrames:   s.Stream.RingBufferFrames,
		MaxRingBufferBytes: s.Stream.MaxRingBufferBytes,
		DefaultLatency:     s.Stream.DefaultLatency,
		DrainTimeout:       s.Stream.DrainTimeout,
		Latency: hostapi.LatencyPolicy{
			UnderflowThreshold: s.Latency.UnderflowThreshold,
			GrowthNumerator:    s.Latency.GrowthNumerator,
			GrowthDenominator:  s.Latency.GrowthDenominator,
			Ceiling:            s.Latency.Ceiling,
		},
	}
}

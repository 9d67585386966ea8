package pulse

import "github.com/jfreymuth/pulse/proto"

// PulseAudio channel positions (pa_channel_position_t)
const (
	positionMono  = 0
	positionLeft  = 1
	positionRight = 2
	positionAux0  = 12
)

// channelMap returns the default map for a channel count: mono, stereo, or
// auxiliary positions for anything else
func channelMap(channels int) proto.ChannelMap {
	switch channels {
	case 1:
		return proto.ChannelMap{positionMono}
	case 2:
		return proto.ChannelMap{positionLeft, positionRight}
	}
	m := make(proto.ChannelMap, channels)
	for i := range m {
		m[i] = byte(positionAux0 + i)
	}
	return m
}

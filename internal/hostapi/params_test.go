package hostapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pulsebridge/internal/errors"
)

func TestValidation(t *testing.T) {
	t.Parallel()

	api, srv := newTestAPI(t, testConfig())

	type extension struct{}

	testCases := []struct {
		name    string
		input   *StreamParameters
		output  *StreamParameters
		rate    float64
		wantErr error
	}{
		{"output ok", nil, outputParams(0, 2), testRate, nil},
		{"input ok", inputParams(1, 1), nil, testRate, nil},
		{"duplex ok", inputParams(1, 2), outputParams(0, 2), 44100, nil},
		{"no parameters", nil, nil, testRate, ErrInvalidDevice},
		{"host api specific device", nil, &StreamParameters{Device: UseHostAPISpecificDeviceSpecification, ChannelCount: 2, SampleFormat: Int16}, testRate, ErrInvalidDevice},
		{"device out of range", nil, outputParams(7, 2), testRate, ErrInvalidDevice},
		{"negative device", nil, outputParams(NoDevice, 2), testRate, ErrInvalidDevice},
		{"too many output channels", nil, outputParams(0, 3), testRate, ErrInvalidChannelCount},
		{"zero channels", nil, outputParams(0, 0), testRate, ErrInvalidChannelCount},
		{"output on input device", nil, outputParams(1, 1), testRate, ErrInvalidChannelCount},
		{"input on output device", inputParams(0, 1), nil, testRate, ErrInvalidChannelCount},
		{"stream info", nil, &StreamParameters{Device: 0, ChannelCount: 2, SampleFormat: Int16, HostAPISpecificStreamInfo: &extension{}}, testRate, ErrIncompatibleStreamInfo},
		{"non-interleaved", nil, &StreamParameters{Device: 0, ChannelCount: 2, SampleFormat: Float32 | NonInterleaved}, testRate, ErrCustomSampleFormat},
		{"custom format", nil, &StreamParameters{Device: 0, ChannelCount: 2, SampleFormat: CustomFormat}, testRate, ErrCustomSampleFormat},
		{"unmapped format", nil, &StreamParameters{Device: 0, ChannelCount: 2, SampleFormat: Int16 | Int32}, testRate, ErrUnsupportedFormat},
		{"zero rate", nil, outputParams(0, 2), 0, ErrInvalidSampleRate},
		{"rate above limit", nil, outputParams(0, 2), 768000, ErrInvalidSampleRate},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			supportErr := api.IsFormatSupported(tc.input, tc.output, tc.rate)
			h, openErr := api.OpenStream(OpenParams{Input: tc.input, Output: tc.output, SampleRate: tc.rate})

			if tc.wantErr == nil {
				require.NoError(t, supportErr)
				require.NoError(t, openErr)
				require.NoError(t, h.Close())
				return
			}

			assert.ErrorIs(t, supportErr, tc.wantErr)
			assert.ErrorIs(t, openErr, tc.wantErr)
			assert.Nil(t, h)
			assert.True(t, errors.IsCategory(openErr, errors.CategoryValidation))
		})
	}

	// only the successful opens reached the server
	assert.Len(t, srv.Streams(), 4)
}

func TestValidationOrder(t *testing.T) {
	t.Parallel()

	api, _ := newTestAPI(t, testConfig())

	// a custom format is reported before a bad device
	err := api.IsFormatSupported(nil, &StreamParameters{Device: 9, ChannelCount: 99, SampleFormat: CustomFormat}, testRate)
	assert.ErrorIs(t, err, ErrCustomSampleFormat)

	// a bad device is reported before the channel count
	err = api.IsFormatSupported(nil, &StreamParameters{Device: 9, ChannelCount: 99, SampleFormat: Int16}, testRate)
	assert.ErrorIs(t, err, ErrInvalidDevice)

	// the channel count is reported before stream info
	err = api.IsFormatSupported(nil, &StreamParameters{Device: 0, ChannelCount: 99, SampleFormat: Int16, HostAPISpecificStreamInfo: 1}, testRate)
	assert.ErrorIs(t, err, ErrInvalidChannelCount)

	// the input direction is checked first
	err = api.IsFormatSupported(inputParams(0, 1), outputParams(5, 2), testRate)
	assert.ErrorIs(t, err, ErrInvalidChannelCount)
}

func TestFormatMapping(t *testing.T) {
	t.Parallel()

	api, srv := newTestAPI(t, testConfig())

	testCases := []struct {
		format    SampleFormat
		frameSize int
	}{
		{Float32, 8},
		{Int32, 8},
		{Int24, 6},
		{Int16, 4},
		{Int8, 2},
		{UInt8, 2},
	}

	for _, tc := range testCases {
		t.Run(tc.format.String(), func(t *testing.T) {
			params := &StreamParameters{Device: 0, ChannelCount: 2, SampleFormat: tc.format}
			require.NoError(t, api.IsFormatSupported(nil, params, testRate))

			h, err := api.OpenStream(OpenParams{Output: params, SampleRate: testRate})
			require.NoError(t, err)
			defer func() { require.NoError(t, h.Close()) }()

			assert.Equal(t, tc.frameSize, h.OutputFrameSize())
			wire, ok := tc.format.wireFormat()
			require.True(t, ok)
			assert.Equal(t, wire, h.out.cfg.spec.Format)
		})
	}
	assert.Len(t, srv.Streams(), len(testCases))
}

func TestOpenRejectsPlatformFlags(t *testing.T) {
	t.Parallel()

	api, srv := newTestAPI(t, testConfig())

	_, err := api.OpenStream(OpenParams{Output: outputParams(0, 2), SampleRate: testRate, Flags: 0x00010000})
	assert.ErrorIs(t, err, ErrInvalidFlag)

	h, err := api.OpenStream(OpenParams{Output: outputParams(0, 2), SampleRate: testRate, Flags: ClipOff | DitherOff})
	require.NoError(t, err)
	require.NoError(t, h.Close())
	assert.Len(t, srv.Streams(), 1)
}

func TestParseSampleFormat(t *testing.T) {
	t.Parallel()

	f, err := ParseSampleFormat("s16")
	require.NoError(t, err)
	assert.Equal(t, Int16, f)

	f, err = ParseSampleFormat("float32")
	require.NoError(t, err)
	assert.Equal(t, Float32, f)

	_, err = ParseSampleFormat("s64")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	assert.Equal(t, "float32/non-interleaved", (Float32 | NonInterleaved).String())
}

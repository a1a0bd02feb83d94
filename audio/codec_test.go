package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCM16RoundTripWithinOneStep(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 0.25, -0.25, 0.9999, -0.9999, 1.0 / 3.0}
	out := ToFloat32(ToPCM16(in))
	require.Len(t, out, len(in))
	for i := range in {
		assert.InDelta(t, in[i], out[i], 1.0/32768, "sample %d", i)
	}
}

func TestToPCM16ClampsOutOfRange(t *testing.T) {
	out := ToPCM16([]float32{2.0, -2.0, 1.0, -1.0})
	assert.Equal(t, int16(32767), out[0])
	assert.Equal(t, int16(-32768), out[1])
	assert.Equal(t, int16(32767), out[2])
	assert.Equal(t, int16(-32768), out[3])
}

func TestTransportEncodingRoundTripsAllByteValues(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	decoded, err := DecodeTransport(EncodeTransport(data))
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestTransportEncodingEmpty(t *testing.T) {
	decoded, err := DecodeTransport(EncodeTransport(nil))
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestResampleOutputLength(t *testing.T) {
	cases := []struct {
		name       string
		inLen      int
		source     float64
		target     float64
	}{
		{"48k to 16k", 4800, 48000, 16000},
		{"44.1k to 16k", 4410, 44100, 16000},
		{"24k to 16k", 2400, 24000, 16000},
		{"16k to 24k", 1600, 16000, 24000},
		{"same rate", 1000, 16000, 16000},
		{"odd ratio", 977, 37123, 16000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := make([]float32, tc.inLen)
			out := Resample(in, tc.source, tc.target)
			want := int(float64(tc.inLen) * tc.target / tc.source)
			assert.Len(t, out, want)
		})
	}
}

func TestResamplePicksNearestSample(t *testing.T) {
	// A ramp survives nearest-neighbor decimation: every output sample must
	// be some input sample, in non-decreasing order.
	in := make([]float32, 441)
	for i := range in {
		in[i] = float32(i)
	}
	out := Resample(in, 44100, 16000)
	require.NotEmpty(t, out)
	prev := float32(-1)
	for i, s := range out {
		assert.Equal(t, float64(s), math.Trunc(float64(s)), "output %d is not an input sample", i)
		assert.GreaterOrEqual(t, s, prev)
		prev = s
	}
	assert.Equal(t, float32(0), out[0])
}

func TestResampleEmptyAndDegenerate(t *testing.T) {
	assert.Nil(t, Resample(nil, 48000, 16000))
	assert.Nil(t, Resample([]float32{1}, 0, 16000))
	assert.Nil(t, Resample([]float32{1}, 48000, 0))
}

func TestPCM16BytesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 12345, -12345}
	assert.Equal(t, in, PCM16FromBytes(PCM16Bytes(in)))
}

func TestPCM16FromBytesIgnoresTrailingByte(t *testing.T) {
	out := PCM16FromBytes([]byte{0x34, 0x12, 0xff})
	require.Len(t, out, 1)
	assert.Equal(t, int16(0x1234), out[0])
}

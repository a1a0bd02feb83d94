// Package audio holds the pure sample-format conversions shared by the
// capture and playback pipelines: float <-> 16-bit PCM, rate conversion,
// and the base64 transport encoding used on the wire.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"math"
)

// ToPCM16 converts float samples in [-1, 1] to signed 16-bit PCM.
// Out-of-range input is clamped, never wrapped.
func ToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := s * 32768
		if v > 32767 {
			v = 32767
		}
		out[i] = int16(v)
	}
	return out
}

// ToFloat32 is the inverse scaling of ToPCM16.
func ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// Resample converts samples from sourceRate to targetRate by picking the
// nearest source sample per output sample. No interpolation filter: the
// aliasing trade-off buys latency, which matters more on a live call.
// Arbitrary non-integer ratios are supported; the output always has
// floor(len(samples) * targetRate / sourceRate) samples.
func Resample(samples []float32, sourceRate, targetRate float64) []float32 {
	if len(samples) == 0 || sourceRate <= 0 || targetRate <= 0 {
		return nil
	}
	outLen := int(float64(len(samples)) * targetRate / sourceRate)
	if outLen == 0 {
		return nil
	}
	stride := sourceRate / targetRate
	out := make([]float32, outLen)
	for i := range out {
		idx := int(math.Round(float64(i) * stride))
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		out[i] = samples[idx]
	}
	return out
}

// EncodeTransport encodes raw bytes for the JSON envelope.
func EncodeTransport(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeTransport is the exact inverse of EncodeTransport.
func DecodeTransport(text string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(text)
}

// PCM16Bytes packs samples as little-endian 16-bit, the layout both the
// upstream model and the browser's decoder expect.
func PCM16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// PCM16FromBytes unpacks little-endian 16-bit samples. A trailing odd byte
// is ignored.
func PCM16FromBytes(data []byte) []int16 {
	n := len(data) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

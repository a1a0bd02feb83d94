package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWAVHeader(t *testing.T) {
	samples := []int16{1, 2, 3, 4}
	data, err := EncodeWAV(samples, 24000)
	require.NoError(t, err)
	require.Len(t, data, 44+len(samples)*2)

	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Equal(t, uint32(24000), binary.LittleEndian.Uint32(data[24:28]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(data[34:36]))
	assert.Equal(t, uint32(8), binary.LittleEndian.Uint32(data[40:44]))
	assert.Equal(t, int16(1), int16(binary.LittleEndian.Uint16(data[44:46])))
}

func TestEncodeWAVRejectsBadInput(t *testing.T) {
	_, err := EncodeWAV(nil, 24000)
	assert.Error(t, err)
	_, err = EncodeWAV([]int16{1}, 0)
	assert.Error(t, err)
}

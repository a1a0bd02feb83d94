package chat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStitcherConcatenatesInOrder(t *testing.T) {
	ps := NewPartStitcher()
	require.NoError(t, ps.Append([]byte{1, 2}))
	require.NoError(t, ps.Append(nil))
	require.NoError(t, ps.Append([]byte{3}))
	require.NoError(t, ps.Append([]byte{4, 5, 6}))

	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, ps.Bytes())
	assert.Equal(t, 6, ps.Len())
}

func TestStitcherCopiesParts(t *testing.T) {
	ps := NewPartStitcher()
	src := []byte{9, 9}
	require.NoError(t, ps.Append(src))
	src[0] = 0
	assert.Equal(t, []byte{9, 9}, ps.Bytes())
}

func TestStitcherEnforcesCap(t *testing.T) {
	ps := NewPartStitcher()
	require.NoError(t, ps.Append(make([]byte, maxClipBytes)))
	err := ps.Append([]byte{1})
	require.Error(t, err)
	// The oversized part was discarded, not partially kept.
	assert.Equal(t, maxClipBytes, ps.Len())
}

func TestStitcherReset(t *testing.T) {
	ps := NewPartStitcher()
	require.NoError(t, ps.Append([]byte{1, 2, 3}))
	ps.Reset()
	assert.Zero(t, ps.Len())
	assert.Empty(t, ps.Bytes())
}

func TestSanitizeForSpeech(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"**bold** and _italic_", "bold and italic"},
		{"# Heading\nbody", "Heading\nbody"},
		{"see [the docs](https://example.com) here", "see the docs here"},
		{"run `go test` now", "run now"},
		{"- first\n- second", "first\nsecond"},
		{"plain sentence.", "plain sentence."},
		{"  spaced   out  ", "spaced out"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeForSpeech(tc.in), "input %q", tc.in)
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(errors.New("rpc error: code = Unavailable")))
	assert.True(t, isTransient(errors.New("model is overloaded")))
	assert.True(t, isTransient(errors.New("HTTP 503 from upstream")))
	assert.False(t, isTransient(errors.New("invalid api key")))
}

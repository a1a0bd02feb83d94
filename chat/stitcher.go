package chat

import (
	"fmt"
	"sync"
)

// maxClipBytes caps a stitched clip at ten minutes of 24kHz PCM16.
const maxClipBytes = 10 * 60 * 24000 * 2

// PartStitcher accumulates the audio parts of a synthesis response into one
// contiguous PCM buffer. Responses arrive as a handful of inline-data parts
// that must be concatenated in order.
type PartStitcher struct {
	mu    sync.Mutex
	parts [][]byte
	size  int
}

func NewPartStitcher() *PartStitcher {
	return &PartStitcher{}
}

// Append adds one part. Returns an error when the clip would exceed the
// size cap, in which case the part is discarded.
func (ps *PartStitcher) Append(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.size+len(data) > maxClipBytes {
		return fmt.Errorf("clip exceeds %d bytes", maxClipBytes)
	}
	part := make([]byte, len(data))
	copy(part, data)
	ps.parts = append(ps.parts, part)
	ps.size += len(data)
	return nil
}

// Bytes concatenates all parts in arrival order.
func (ps *PartStitcher) Bytes() []byte {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	out := make([]byte, 0, ps.size)
	for _, part := range ps.parts {
		out = append(out, part...)
	}
	return out
}

// Len returns the total byte count accumulated so far.
func (ps *PartStitcher) Len() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.size
}

// Reset discards everything.
func (ps *PartStitcher) Reset() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.parts = nil
	ps.size = 0
}

// Package playback schedules inbound audio frames for gapless rendering.
// Frames arrive in bursts from the network; the scheduler lines them up
// back-to-back on the output clock so nothing gaps and nothing overlaps.
package playback

import (
	"log"

	"github.com/spoc-ai/voicebridge/audio"
)

// OutputRate is the model's fixed output sample rate.
const OutputRate = 24000

// maskOffset nudges a frame's start earlier by a hair to hide per-frame
// scheduling overhead. Small enough that audible overlap never exceeds it.
const maskOffset = 0.025 // seconds

const logEveryFrame = 5

// Clock reads the output device's clock, in seconds. It must be
// monotonically non-decreasing.
type Clock interface {
	Now() float64
}

// Sink accepts decoded samples for rendering at an absolute start time on
// the output clock. PlayAt must not block; actual rendering happens on the
// audio output thread.
type Sink interface {
	PlayAt(start float64, samples []float32)
}

// Scheduler tracks the playback cursor for one conversational turn. Not
// safe for concurrent use; drive it from the single connection goroutine.
type Scheduler struct {
	clock Clock
	sink  Sink

	nextPlayTime float64
	received     int
}

func NewScheduler(clock Clock, sink Sink) *Scheduler {
	return &Scheduler{clock: clock, sink: sink}
}

// Schedule decodes one PCM16 frame at OutputRate and queues it to start at
// max(now, cursor - offset). The cursor then advances past the frame, so a
// fast burst of frames lands back-to-back while a late frame restarts from
// the current clock instead of gapping forever.
//
// An empty frame is a no-op. Returns the scheduled start time.
func (s *Scheduler) Schedule(pcm []byte) (start float64, ok bool) {
	samples := audio.ToFloat32(audio.PCM16FromBytes(pcm))
	if len(samples) == 0 {
		return 0, false
	}

	now := s.clock.Now()
	start = s.nextPlayTime - maskOffset
	if start < now {
		start = now
	}

	s.sink.PlayAt(start, samples)

	duration := float64(len(samples)) / OutputRate
	s.nextPlayTime = start + duration

	s.received++
	if s.received%logEveryFrame == 0 {
		log.Printf("🔊 Scheduled playback frame #%d at %.3fs", s.received, start)
	}
	return start, true
}

// Reset zeroes the cursor and counter. Called at every turn boundary and
// whenever playback is explicitly stopped or interrupted.
func (s *Scheduler) Reset() {
	s.nextPlayTime = 0
	s.received = 0
}

// Received returns frames scheduled since the last reset.
func (s *Scheduler) Received() int {
	return s.received
}

// NextPlayTime exposes the cursor, mainly for diagnostics.
func (s *Scheduler) NextPlayTime() float64 {
	return s.nextPlayTime
}

package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spoc-ai/voicebridge/audio"
)

type fakeClock struct {
	now float64
}

func (c *fakeClock) Now() float64 { return c.now }

type scheduledFrame struct {
	start    float64
	duration float64
}

type fakeSink struct {
	frames []scheduledFrame
}

func (s *fakeSink) PlayAt(start float64, samples []float32) {
	s.frames = append(s.frames, scheduledFrame{
		start:    start,
		duration: float64(len(samples)) / OutputRate,
	})
}

// frame returns a PCM16 payload of the given duration in milliseconds.
func frame(ms int) []byte {
	return audio.PCM16Bytes(make([]int16, OutputRate*ms/1000))
}

func TestBackToBackFramesScheduleGaplessly(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeSink{}
	s := NewScheduler(clock, sink)

	// Three 100ms frames arriving instantly.
	for i := 0; i < 3; i++ {
		_, ok := s.Schedule(frame(100))
		require.True(t, ok)
	}

	require.Len(t, sink.frames, 3)
	assert.InDelta(t, 0.0, sink.frames[0].start, 1e-9)
	assert.InDelta(t, 0.100, sink.frames[1].start, maskOffset+1e-9)
	assert.InDelta(t, 0.200, sink.frames[2].start, 2*maskOffset+1e-9)
}

func TestNoFrameScheduledInThePast(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeSink{}
	s := NewScheduler(clock, sink)

	s.Schedule(frame(50))
	clock.now = 1.0 // arrival stalls well past the cursor
	start, ok := s.Schedule(frame(50))
	require.True(t, ok)
	assert.Equal(t, 1.0, start)
}

func TestSchedulingInvariants(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeSink{}
	s := NewScheduler(clock, sink)

	// Irregular arrival times and durations.
	steps := []struct {
		clockAt float64
		ms      int
	}{
		{0, 120}, {0, 80}, {0.05, 200}, {0.6, 40}, {0.61, 40}, {0.62, 300}, {2.0, 60},
	}
	for _, step := range steps {
		clock.now = step.clockAt
		start, ok := s.Schedule(frame(step.ms))
		require.True(t, ok)
		assert.GreaterOrEqual(t, start, step.clockAt, "frame scheduled in the past")
	}
	for i := 1; i < len(sink.frames); i++ {
		prevEnd := sink.frames[i-1].start + sink.frames[i-1].duration
		assert.GreaterOrEqual(t, sink.frames[i].start, prevEnd-maskOffset-1e-9,
			"frame %d starts before previous audible content ends", i)
	}
}

func TestEmptyFrameIsNoOp(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeSink{}
	s := NewScheduler(clock, sink)

	_, ok := s.Schedule(nil)
	assert.False(t, ok)
	_, ok = s.Schedule([]byte{})
	assert.False(t, ok)
	assert.Empty(t, sink.frames)
	assert.Zero(t, s.Received())
	assert.Zero(t, s.NextPlayTime())
}

func TestResetZeroesCursorAndCounter(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeSink{}
	s := NewScheduler(clock, sink)

	s.Schedule(frame(100))
	s.Schedule(frame(100))
	require.Equal(t, 2, s.Received())
	require.Greater(t, s.NextPlayTime(), 0.0)

	s.Reset()
	assert.Zero(t, s.Received())
	assert.Zero(t, s.NextPlayTime())

	// Next turn starts fresh from the clock.
	clock.now = 5.0
	start, ok := s.Schedule(frame(100))
	require.True(t, ok)
	assert.Equal(t, 5.0, start)
}

// Package capture turns raw microphone buffers into outbound audio frames
// at the fixed upstream rate. It runs on the audio callback cadence, so
// every call must finish well under one buffer's duration.
package capture

import (
	"log"

	"github.com/spoc-ai/voicebridge/audio"
	"github.com/spoc-ai/voicebridge/messages"
)

// TargetRate is the sample rate the upstream model ingests.
const TargetRate = 16000

const logEveryFrame = 20

// Transport carries framed audio toward the relay.
type Transport interface {
	Send(env *messages.Envelope) error
	// Writable reports whether the channel is open and accepting frames.
	Writable() bool
}

// Gate reports whether the session is in a state where capture should flow.
type Gate interface {
	CaptureActive() bool
}

// Pipeline resamples, encodes and frames one microphone stream. Buffers
// that arrive while the gate is shut or the transport is not writable are
// dropped on the floor: under backpressure a lost buffer beats growing
// latency.
type Pipeline struct {
	transport Transport
	gate      Gate
	sent      int
}

func NewPipeline(transport Transport, gate Gate) *Pipeline {
	return &Pipeline{transport: transport, gate: gate}
}

// Process handles one hardware buffer of float samples at the device's
// native rate. Returns true if a frame was handed to the transport.
func (p *Pipeline) Process(samples []float32, sourceRate float64) bool {
	if len(samples) == 0 {
		return false
	}
	if p.gate != nil && !p.gate.CaptureActive() {
		return false
	}
	if !p.transport.Writable() {
		return false
	}

	resampled := audio.Resample(samples, sourceRate, TargetRate)
	if len(resampled) == 0 {
		return false
	}
	pcm := audio.PCM16Bytes(audio.ToPCM16(resampled))
	env := messages.NewClientAudio(audio.EncodeTransport(pcm), messages.DefaultInputMimeType)

	if err := p.transport.Send(env); err != nil {
		log.Printf("⚠️ Dropping capture buffer: %v", err)
		return false
	}

	p.sent++
	if p.sent%logEveryFrame == 0 {
		log.Printf("🎤 Sent %d capture frames", p.sent)
	}
	return true
}

// Sent returns the number of frames handed to the transport. Diagnostic
// only; nothing orders or acks frames by this number.
func (p *Pipeline) Sent() int {
	return p.sent
}

// ResetCounter zeroes the sent-frame counter.
func (p *Pipeline) ResetCounter() {
	p.sent = 0
}

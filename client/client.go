// Package client implements a voice client for the relay: it captures
// microphone audio, streams it over the relay websocket and schedules the
// model's spoken replies for playback.
package client

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spoc-ai/voicebridge/audio"
	"github.com/spoc-ai/voicebridge/capture"
	"github.com/spoc-ai/voicebridge/messages"
	"github.com/spoc-ai/voicebridge/playback"
)

const writeTimeout = 10 * time.Second

// Device is an audio input source. Start begins delivering hardware
// buffers to onBuffer along with the device's native sample rate; Stop
// releases the device and must be safe to call more than once.
type Device interface {
	Start(onBuffer func(samples []float32, sampleRate float64)) error
	Stop()
}

// VoiceClient drives one live conversation. It owns the websocket, the
// capture pipeline and the playback scheduler, and exposes its lifecycle
// through OnStateChange.
type VoiceClient struct {
	url       string
	device    Device
	scheduler *playback.Scheduler
	pipeline  *capture.Pipeline

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	state   State
	stopped bool

	// Optional callbacks, set before Connect. Invoked from the read
	// goroutine.
	OnStateChange func(State)
	OnText        func(string)
	OnError       func(error)
}

// NewVoiceClient wires a client around an input device and a playback
// scheduler. url is the relay's websocket endpoint.
func NewVoiceClient(url string, device Device, scheduler *playback.Scheduler) *VoiceClient {
	vc := &VoiceClient{
		url:       url,
		device:    device,
		scheduler: scheduler,
		state:     StateIdle,
	}
	vc.pipeline = capture.NewPipeline(vc, vc)
	return vc
}

// State returns the current lifecycle state.
func (vc *VoiceClient) State() State {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.state
}

func (vc *VoiceClient) setState(s State) {
	vc.mu.Lock()
	if vc.state == s || vc.state == StateClosed {
		vc.mu.Unlock()
		return
	}
	vc.state = s
	cb := vc.OnStateChange
	vc.mu.Unlock()

	log.Printf("🔄 Client state: %s", s)
	if cb != nil {
		cb(s)
	}
}

// CaptureActive reports whether microphone buffers should be forwarded.
// Capture stays live while the model speaks so barge-in reaches upstream.
func (vc *VoiceClient) CaptureActive() bool {
	s := vc.State()
	return s == StateListening || s == StateModelSpeaking
}

// Writable reports whether the relay socket is open.
func (vc *VoiceClient) Writable() bool {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.conn != nil && !vc.stopped
}

// Send writes one envelope to the relay.
func (vc *VoiceClient) Send(env *messages.Envelope) error {
	vc.mu.Lock()
	conn := vc.conn
	vc.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	data, err := messages.Encode(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}

	vc.writeMu.Lock()
	defer vc.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// SendText submits a typed message into the live conversation.
func (vc *VoiceClient) SendText(text string) error {
	return vc.Send(messages.NewText(text))
}

// Connect acquires the input device, dials the relay and starts the read
// loop. It returns once the socket is up; the conversation becomes live
// when the relay reports its upstream connection.
func (vc *VoiceClient) Connect(ctx context.Context) error {
	vc.mu.Lock()
	if vc.state != StateIdle {
		state := vc.state
		vc.mu.Unlock()
		return fmt.Errorf("connect from state %s", state)
	}
	vc.mu.Unlock()
	vc.setState(StateConnecting)

	// Device first. A missing or busy microphone should fail fast,
	// before anything touches the network.
	if err := vc.device.Start(func(samples []float32, sampleRate float64) {
		vc.pipeline.Process(samples, sampleRate)
	}); err != nil {
		vc.Stop()
		return fmt.Errorf("starting audio device: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, vc.url, nil)
	if err != nil {
		vc.Stop()
		return fmt.Errorf("dialing relay: %w", err)
	}

	vc.mu.Lock()
	vc.conn = conn
	vc.mu.Unlock()
	vc.setState(StateAwaitingUpstreamReady)

	go vc.readLoop(conn)
	return nil
}

func (vc *VoiceClient) readLoop(conn *websocket.Conn) {
	defer vc.Stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if vc.State() != StateClosed {
				log.Printf("📡 Relay connection closed: %v", err)
			}
			return
		}

		env, err := messages.Decode(data)
		if err != nil {
			log.Printf("⚠️ Dropping malformed relay frame: %v", err)
			continue
		}
		if terminal := vc.handleEnvelope(env); terminal {
			return
		}
	}
}

// handleEnvelope processes one relay frame. Returns true when the frame
// ends the conversation.
func (vc *VoiceClient) handleEnvelope(env *messages.Envelope) bool {
	switch env.Type {
	case messages.TypeConnected:
		log.Printf("✅ Relay ready: %s", env.Message)
		vc.setState(StateListening)

	case messages.TypeAudio:
		pcm, err := audio.DecodeTransport(env.Data)
		if err != nil {
			log.Printf("⚠️ Dropping undecodable audio frame: %v", err)
			return false
		}
		vc.setState(StateModelSpeaking)
		vc.scheduler.Schedule(pcm)

	case messages.TypeText:
		// A turn can lead with text before any audio arrives.
		vc.setState(StateModelSpeaking)
		if vc.OnText != nil {
			vc.OnText(env.Text)
		}

	case messages.TypeTurnComplete:
		vc.scheduler.Reset()
		vc.setState(StateListening)

	case messages.TypeInterrupted:
		// The model was cut off; flush whatever playback was queued so
		// the user's own speech is not talked over.
		vc.scheduler.Reset()
		vc.setState(StateListening)

	case messages.TypeError:
		err := fmt.Errorf("relay error: %s", env.Error)
		log.Printf("❌ %v", err)
		if vc.OnError != nil {
			vc.OnError(err)
		}
		return true

	default:
		log.Printf("⚠️ Dropping frame with unknown type %q", env.Type)
	}
	return false
}

// Stop tears the client down: device released, socket closed, playback
// flushed. Safe to call from any state, any number of times.
func (vc *VoiceClient) Stop() {
	vc.mu.Lock()
	if vc.stopped {
		vc.mu.Unlock()
		return
	}
	vc.stopped = true
	conn := vc.conn
	vc.conn = nil
	vc.mu.Unlock()

	vc.device.Stop()
	if conn != nil {
		conn.Close()
	}
	vc.scheduler.Reset()
	vc.setState(StateClosed)
}

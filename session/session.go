// Package session owns the per-client relay state: one websocket to the
// browser, one upstream connection to the model, and the translation between
// the two. Each session's data is touched only by its own goroutines; there
// is no cross-session state.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spoc-ai/voicebridge/messages"
	"github.com/spoc-ai/voicebridge/upstream"
)

// Lifecycle is the relay-side session state.
type Lifecycle int

const (
	// StateAwaitingUpstreamReady: upstream dialed, setup sent, ack not yet
	// observed. Audio in either direction is dropped, never queued.
	StateAwaitingUpstreamReady Lifecycle = iota
	// StateActive: setup acknowledged, frames flow both ways.
	StateActive
	// StateClosed is terminal; a closed session's upstream is never reused.
	StateClosed
)

func (l Lifecycle) String() string {
	switch l {
	case StateAwaitingUpstreamReady:
		return "awaiting_upstream_ready"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Upstream is the model-endpoint connection a session forwards into. The
// concrete implementation is upstream.Client; tests substitute fakes.
type Upstream interface {
	Bind(h upstream.Handlers)
	Start(ctx context.Context)
	SendMediaChunk(mimeType, data string) error
	SendText(text string) error
	Close() error
}

// ClientConn is the subset of *websocket.Conn the session touches.
type ClientConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	Close() error
}

const (
	writeBufferSize = 256
	writeTimeout    = 10 * time.Second

	// Periodic diagnostic logging cadence; per-frame logging would swamp
	// the output at 10+ frames a second.
	logEveryOutbound = 20
	logEveryInbound  = 5
)

// Options tunes a single session.
type Options struct {
	HandshakeTimeout time.Duration // 0 disables the timeout
	MaxFrameSize     int64
}

// ClientSession bridges one browser client to its own upstream connection.
type ClientSession struct {
	ID           string
	ClientConn   ClientConn
	Upstream     Upstream
	CreatedAt    time.Time
	LastActivity time.Time

	state      Lifecycle
	setupAcked bool

	// Per-turn counters, reset at every turn boundary.
	framesSent    int
	framesRecv    int
	framesDropped int

	writeChan chan *messages.Envelope
	CloseChan chan struct{}

	handshakeTimer *time.Timer

	mu     sync.RWMutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
}

// New wires a session around an already-dialed upstream connection. The
// upstream handshake was sent during dialing; the session takes over
// waiting for its acknowledgment.
func New(ctx context.Context, id string, conn ClientConn, up Upstream, opts Options) *ClientSession {
	ctx, cancel := context.WithCancel(ctx)

	if opts.MaxFrameSize > 0 {
		conn.SetReadLimit(opts.MaxFrameSize)
	}

	cs := &ClientSession{
		ID:           id,
		ClientConn:   conn,
		Upstream:     up,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
		state:        StateAwaitingUpstreamReady,
		writeChan:    make(chan *messages.Envelope, writeBufferSize),
		CloseChan:    make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}

	if opts.HandshakeTimeout > 0 {
		cs.handshakeTimer = time.AfterFunc(opts.HandshakeTimeout, cs.handshakeTimedOut)
	}

	return cs
}

// Start begins bidirectional forwarding.
func (cs *ClientSession) Start() {
	go cs.writePump()
	cs.Upstream.Bind(cs.upstreamHandlers())
	cs.Upstream.Start(cs.ctx)
	go cs.readLoop()
}

// State returns the current lifecycle state.
func (cs *ClientSession) State() Lifecycle {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.state
}

// Ready reports whether the upstream handshake has been acknowledged.
func (cs *ClientSession) Ready() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.setupAcked
}

// TurnCounters returns frames sent upstream and received from upstream
// since the last turn boundary.
func (cs *ClientSession) TurnCounters() (sent, received int) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.framesSent, cs.framesRecv
}

func (cs *ClientSession) upstreamHandlers() upstream.Handlers {
	return upstream.Handlers{
		OnReady:        cs.handleUpstreamReady,
		OnAudio:        cs.handleUpstreamAudio,
		OnText:         cs.handleUpstreamText,
		OnTurnComplete: cs.handleTurnComplete,
		OnInterrupted:  cs.handleInterrupted,
		OnError:        cs.handleUpstreamError,
	}
}

func (cs *ClientSession) handleUpstreamReady() {
	cs.mu.Lock()
	if cs.state != StateAwaitingUpstreamReady {
		cs.mu.Unlock()
		return
	}
	cs.setupAcked = true
	cs.state = StateActive
	cs.mu.Unlock()

	if cs.handshakeTimer != nil {
		cs.handshakeTimer.Stop()
	}

	log.Printf("✅ [%s] Upstream handshake acknowledged", cs.shortID())
	cs.queueMessage(messages.NewConnected("Connected to live model - ready for voice"))
}

func (cs *ClientSession) handleUpstreamAudio(data string) {
	cs.mu.Lock()
	if !cs.setupAcked {
		cs.framesDropped++
		dropped := cs.framesDropped
		cs.mu.Unlock()
		log.Printf("⏳ [%s] Setup not acknowledged, dropped inbound audio frame (%d)", cs.shortID(), dropped)
		return
	}
	cs.framesRecv++
	n := cs.framesRecv
	cs.mu.Unlock()

	if n%logEveryInbound == 0 {
		log.Printf("📥 [%s] Audio chunk #%d forwarded to client", cs.shortID(), n)
	}
	cs.queueMessage(messages.NewAudio(data))
}

func (cs *ClientSession) handleUpstreamText(text string) {
	cs.queueMessage(messages.NewText(text))
}

func (cs *ClientSession) handleTurnComplete() {
	cs.mu.Lock()
	sent, recv := cs.framesSent, cs.framesRecv
	cs.framesSent = 0
	cs.framesRecv = 0
	cs.framesDropped = 0
	cs.mu.Unlock()

	log.Printf("✅ [%s] Turn complete (sent: %d, received: %d)", cs.shortID(), sent, recv)
	cs.queueMessage(messages.NewTurnComplete())
}

// handleInterrupted forwards the barge-in signal so the client can flush
// its playback queue. The relay itself holds no audio to discard.
func (cs *ClientSession) handleInterrupted() {
	log.Printf("⚠️ [%s] User interrupted model turn", cs.shortID())
	cs.queueMessage(messages.NewInterrupted())
}

func (cs *ClientSession) handleUpstreamError(err error) {
	if cs.IsClosed() {
		return
	}
	log.Printf("❌ [%s] Upstream error: %v", cs.shortID(), err)
	cs.queueMessage(messages.NewError(err.Error()))
	cs.Close()
}

func (cs *ClientSession) handshakeTimedOut() {
	if cs.Ready() || cs.IsClosed() {
		return
	}
	log.Printf("❌ [%s] Upstream handshake timed out", cs.shortID())
	cs.queueMessage(messages.NewError("upstream handshake timed out"))
	// Give the write pump one beat to flush the error before teardown.
	time.AfterFunc(100*time.Millisecond, func() { cs.Close() })
}

// readLoop pulls frames off the client connection until it drops.
func (cs *ClientSession) readLoop() {
	defer cs.Close()

	for {
		select {
		case <-cs.CloseChan:
			return
		default:
			_, data, err := cs.ClientConn.ReadMessage()
			if err != nil {
				if !cs.IsClosed() {
					log.Printf("🔌 [%s] Client disconnected: %v", cs.shortID(), err)
				}
				return
			}

			cs.touch()

			env, err := messages.Decode(data)
			if err != nil {
				log.Printf("⚠️ [%s] Dropping client frame: %v", cs.shortID(), err)
				continue
			}
			cs.processClientMessage(env)
		}
	}
}

// processClientMessage translates one client frame into its upstream form.
// No buffering happens here: a frame either goes out now or is dropped.
func (cs *ClientSession) processClientMessage(env *messages.Envelope) {
	if cs.IsClosed() {
		return
	}
	switch env.Type {
	case messages.TypeAudio:
		cs.forwardAudio(env)
	case messages.TypeText:
		cs.forwardText(env)
	default:
		log.Printf("⚠️ [%s] Unknown client frame type %q, dropping", cs.shortID(), env.Type)
	}
}

func (cs *ClientSession) forwardAudio(env *messages.Envelope) {
	if env.Data == "" {
		return
	}

	cs.mu.Lock()
	if !cs.setupAcked {
		cs.framesDropped++
		dropped := cs.framesDropped
		cs.mu.Unlock()
		if dropped == 1 || dropped%logEveryOutbound == 0 {
			log.Printf("⏳ [%s] Upstream not ready, dropped %d audio frame(s)", cs.shortID(), dropped)
		}
		return
	}
	cs.framesSent++
	sent := cs.framesSent
	cs.mu.Unlock()

	mimeType := env.MimeType
	if mimeType == "" {
		mimeType = messages.DefaultInputMimeType
	}

	if err := cs.Upstream.SendMediaChunk(mimeType, env.Data); err != nil {
		log.Printf("❌ [%s] Failed to forward audio upstream: %v", cs.shortID(), err)
		cs.queueMessage(messages.NewError(err.Error()))
		cs.Close()
		return
	}

	if sent%logEveryOutbound == 0 {
		log.Printf("📤 [%s] Forwarded %d audio chunks upstream", cs.shortID(), sent)
	}
}

func (cs *ClientSession) forwardText(env *messages.Envelope) {
	if env.Text == "" {
		return
	}
	if !cs.Ready() {
		log.Printf("⏳ [%s] Upstream not ready, dropping text frame", cs.shortID())
		return
	}
	if err := cs.Upstream.SendText(env.Text); err != nil {
		log.Printf("❌ [%s] Failed to forward text upstream: %v", cs.shortID(), err)
		cs.queueMessage(messages.NewError(err.Error()))
		cs.Close()
	}
}

// writePump serializes all client-bound writes onto one goroutine.
func (cs *ClientSession) writePump() {
	defer func() {
		cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
		cs.ClientConn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
	}()

	for {
		select {
		case <-cs.CloseChan:
			return
		case env := <-cs.writeChan:
			if err := cs.writeEnvelope(env); err != nil {
				return
			}
			// Drain whatever accumulated while we were writing.
			for n := len(cs.writeChan); n > 0; n-- {
				if err := cs.writeEnvelope(<-cs.writeChan); err != nil {
					return
				}
			}
		}
	}
}

func (cs *ClientSession) writeEnvelope(env *messages.Envelope) error {
	data, err := messages.Encode(env)
	if err != nil {
		log.Printf("❌ [%s] Failed to encode envelope: %v", cs.shortID(), err)
		return nil
	}
	cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return cs.ClientConn.WriteMessage(websocket.TextMessage, data)
}

// queueMessage enqueues a client-bound frame without blocking. A full queue
// means the client cannot keep up; dropping beats unbounded latency.
func (cs *ClientSession) queueMessage(env *messages.Envelope) {
	if cs.IsClosed() {
		return
	}
	select {
	case cs.writeChan <- env:
		cs.touch()
	default:
	}
}

func (cs *ClientSession) touch() {
	cs.mu.Lock()
	cs.LastActivity = time.Now()
	cs.mu.Unlock()
}

// IsClosed reports whether the session has been torn down.
func (cs *ClientSession) IsClosed() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.closed
}

// LastActive returns the last time either side produced a frame.
func (cs *ClientSession) LastActive() time.Time {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.LastActivity
}

// Close tears down both legs and discards all per-session state. Safe to
// call from any goroutine, any number of times.
func (cs *ClientSession) Close() error {
	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return nil
	}
	cs.closed = true
	cs.state = StateClosed
	cs.mu.Unlock()

	if cs.handshakeTimer != nil {
		cs.handshakeTimer.Stop()
	}

	cs.cancel()
	close(cs.CloseChan)

	if cs.Upstream != nil {
		cs.Upstream.Close()
	}
	if cs.ClientConn != nil {
		cs.ClientConn.Close()
	}

	return nil
}

func (cs *ClientSession) shortID() string {
	if len(cs.ID) >= 8 {
		return cs.ID[:8]
	}
	return cs.ID
}

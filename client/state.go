package client

// State tracks where a voice client is in its connection lifecycle. The
// capture gate and the playback scheduler both key off it.
type State int

const (
	// StateIdle means no connection attempt has been made yet.
	StateIdle State = iota
	// StateConnecting covers device acquisition and the websocket dial.
	StateConnecting
	// StateAwaitingUpstreamReady means the socket is open but the relay has
	// not yet confirmed its model connection. Capture stays off.
	StateAwaitingUpstreamReady
	// StateListening means the conversation is live and the user may speak.
	StateListening
	// StateModelSpeaking means playback is in progress. Capture keeps
	// flowing so the user can interrupt.
	StateModelSpeaking
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAwaitingUpstreamReady:
		return "awaiting_upstream_ready"
	case StateListening:
		return "listening"
	case StateModelSpeaking:
		return "model_speaking"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

package protocol

// State is the lifecycle position of a Session.
type State int

const (
	// StateUnstarted is the initial state; no handshake has been attempted.
	StateUnstarted State = iota
	// StateInitializing means initialize has been sent and not yet answered.
	StateInitializing
	// StateReady means the handshake completed and requests may be sent.
	StateReady
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

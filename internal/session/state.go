package session

// State is the lifecycle of a session.
type State uint8

const (
	StateDisconnected State = iota
	StateConnected
	StateAwaitingCreationConfirm
	StateActive
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateAwaitingCreationConfirm:
		return "awaiting_creation_confirm"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

package controller

// State is the session-level state derived from the connection and the
// journal cursor.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateLive
	StateReviewing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateReviewing:
		return "reviewing"
	default:
		return "unknown"
	}
}

// SessionConfig carries the identifiers a Network needs to join a game. The
// controller treats every field as opaque.
type SessionConfig struct {
	URL  string
	User string
	Auth string
	Game string
}

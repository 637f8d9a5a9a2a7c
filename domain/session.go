package domain

// SessionState is the lifecycle of one client connection.
type SessionState int

const (
	Connected SessionState = iota
	InRoom
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Connected:
		return "connected"
	case InRoom:
		return "in_room"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

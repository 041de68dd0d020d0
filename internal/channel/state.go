package channel

// State is the lifecycle state of the realtime channel. It is owned by
// the channel and only ever observed from outside.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticating
	StateOpen
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// active reports whether a Connect for the same event should be a no-op
func (s State) active() bool {
	switch s {
	case StateConnecting, StateAuthenticating, StateOpen, StateReconnecting:
		return true
	}
	return false
}

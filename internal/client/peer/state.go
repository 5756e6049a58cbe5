// Package peer runs one negotiation state machine per remote participant of
// a voice channel.
package peer

type State int

const (
	StateNew State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateReconnecting
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateFailed:
		return "FAILED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

var allowedTransitions = map[State]map[State]struct{}{
	StateNew: {
		StateConnecting: {},
		StateClosed:     {},
	},
	StateConnecting: {
		StateConnected:    {},
		StateReconnecting: {},
		StateFailed:       {},
		StateClosed:       {},
	},
	StateConnected: {
		StateDisconnected: {},
		StateClosed:       {},
	},
	StateDisconnected: {
		StateReconnecting: {},
		StateFailed:       {},
		StateClosed:       {},
	},
	StateReconnecting: {
		StateConnected: {},
		StateFailed:    {},
		StateClosed:    {},
	},
}

func CanTransition(from, to State) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateClosed
}

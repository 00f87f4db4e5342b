package controller

import "fmt"

// AuthState is one-way: once Authenticated it never goes back.
type AuthState int

const (
	Unauthenticated AuthState = iota
	Authenticated
)

func (s AuthState) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// ConnectionState mirrors the transport connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connected
)

func (s ConnectionState) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// State is the whole lifecycle state of a session. Degraded means the
// transport is structurally absent and the session stays Disconnected.
type State struct {
	Auth     AuthState
	Conn     ConnectionState
	Degraded bool
}

func (s State) String() string {
	if s.Degraded {
		return fmt.Sprintf("%s/%s/degraded", s.Auth, s.Conn)
	}
	return fmt.Sprintf("%s/%s", s.Auth, s.Conn)
}

// Trigger drives a state transition.
type Trigger int

const (
	TriggerUnlock Trigger = iota + 1
	TriggerUnlockDegraded
	TriggerConnected
	TriggerDisconnected
	TriggerConnectionError
)

func (t Trigger) String() string {
	switch t {
	case TriggerUnlock:
		return "unlock"
	case TriggerUnlockDegraded:
		return "unlock_degraded"
	case TriggerConnected:
		return "connected"
	case TriggerDisconnected:
		return "disconnected"
	case TriggerConnectionError:
		return "connection_error"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}

var (
	stateLocked  = State{Auth: Unauthenticated, Conn: Disconnected}
	stateWaiting = State{Auth: Authenticated, Conn: Disconnected}
	stateOnline  = State{Auth: Authenticated, Conn: Connected}
	stateOffline = State{Auth: Authenticated, Conn: Disconnected, Degraded: true}
)

// transitions lists every allowed move. Anything missing is ignored.
var transitions = map[State]map[Trigger]State{
	stateLocked: {
		TriggerUnlock:         stateWaiting,
		TriggerUnlockDegraded: stateOffline,
	},
	stateWaiting: {
		TriggerConnected:       stateOnline,
		TriggerDisconnected:    stateWaiting,
		TriggerConnectionError: stateWaiting,
	},
	stateOnline: {
		TriggerDisconnected:    stateWaiting,
		TriggerConnectionError: stateWaiting,
	},
	stateOffline: {},
}

func transition(s State, t Trigger) (State, bool) {
	next, ok := transitions[s][t]
	return next, ok
}

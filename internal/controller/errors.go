package controller

import (
	"fmt"
	"time"
)

// ErrorKind classifies a CommandError.
type ErrorKind int

const (
	// KindRemote is a failure reported by the backend.
	KindRemote ErrorKind = iota + 1
	// KindTimeout means no completion arrived within the command timeout.
	KindTimeout
	// KindOverlap means a submission was refused while another command ran.
	KindOverlap
	// KindSend means the command could not be handed to the transport.
	KindSend
)

// CommandError is a failure of one submitted command. It is rendered inline
// and never ends the session.
type CommandError struct {
	Kind    ErrorKind
	Command string
	Message string
	Timeout time.Duration
	Err     error
}

func (e *CommandError) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("command timed out after %s", e.Timeout)
	case KindOverlap:
		return "a command is already running (Ctrl+C to cancel)"
	case KindSend:
		return fmt.Sprintf("could not send command: %v", e.Err)
	default:
		return e.Message
	}
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

package transport

import "fmt"

// EventType identifies a normalized transport event.
type EventType int

const (
	EventConnected EventType = iota + 1
	EventDisconnected
	EventConnectionError
	EventOutput
	EventCompleted
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventConnectionError:
		return "connection_error"
	case EventOutput:
		return "output"
	case EventCompleted:
		return "completed"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is one lifecycle or session event delivered to the controller.
// Which fields are set depends on Type.
type Event struct {
	Type EventType

	// SessionID is set on Output, Completed and Error.
	SessionID string
	// Data is the output chunk of an Output event.
	Data string
	// ReturnCode is the exit status of a Completed event.
	ReturnCode int
	// Message is the error text of an Error event.
	Message string
	// Reason describes why a connection ended.
	Reason string
	// Err is the dial failure of a ConnectionError event.
	Err error
}

// SessionScoped reports whether the event belongs to one session.
func (e Event) SessionScoped() bool {
	switch e.Type {
	case EventOutput, EventCompleted, EventError:
		return true
	}
	return false
}

// DialError is a failure to establish the connection.
type DialError struct {
	URL string
	Err error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("dial %s: %v", e.URL, e.Err)
}

func (e *DialError) Unwrap() error {
	return e.Err
}

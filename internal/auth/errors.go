package auth

import "fmt"

// Kind classifies an authentication failure.
type Kind int

const (
	// KindEmptyCredential means nothing was entered; no request was made.
	KindEmptyCredential Kind = iota + 1
	// KindRejected means the endpoint refused the credential.
	KindRejected
	// KindConnectivity means the endpoint could not be reached.
	KindConnectivity
)

func (k Kind) String() string {
	switch k {
	case KindEmptyCredential:
		return "empty_credential"
	case KindRejected:
		return "rejected"
	case KindConnectivity:
		return "connectivity"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Default user-facing messages.
const (
	msgEmptyCredential = "Please enter a password."
	msgRejected        = "Invalid password."
	msgConnectivity    = "Could not reach the server."
)

// Error is a credential or connectivity failure reported by the Gate.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// ErrEmptyCredential is returned when Submit is called with an empty credential.
var ErrEmptyCredential = &Error{Kind: KindEmptyCredential, Message: msgEmptyCredential}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("auth %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrEmptyCredential)
// works for every empty-credential failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

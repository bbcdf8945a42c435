package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication refuses a connection before any session state is
	// created. Bad or expired token.
	ErrAuthentication = fmt.Errorf("authentication failed")
	// ErrAuthorization rejects a request from a non-member; the session
	// survives.
	ErrAuthorization = fmt.Errorf("not a member of this conversation")
	// ErrValidation rejects a malformed payload; the session survives.
	ErrValidation = fmt.Errorf("invalid payload")
	// ErrTransientStore marks persistence failures as retryable: the client
	// may resend with the same dedup token without risking a duplicate.
	ErrTransientStore = fmt.Errorf("storage temporarily unavailable")

	ErrWorkerPanic   = fmt.Errorf("worker panic")
	ErrSessionClosed = fmt.Errorf("session closed")
)

// ClientMessage maps an error to the text of a protocol `error` frame.
// Internal details never cross the wire.
func ClientMessage(err error) string {
	switch {
	case errors.Is(err, ErrAuthorization):
		return "Not a member of this conversation"
	case errors.Is(err, ErrValidation):
		return "Invalid message format"
	case errors.Is(err, ErrTransientStore):
		return "Temporary failure, please retry"
	case errors.Is(err, ErrAuthentication):
		return "Authentication required"
	default:
		return "Request failed"
	}
}

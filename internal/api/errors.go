package api

import (
	"errors"
	"fmt"
)

// Error taxonomy of the gateway. Callers branch with errors.Is/As and
// decide how to surface each case; the gateway never retries.
var (
	// ErrUnreachable wraps transport failures and timeouts.
	ErrUnreachable = errors.New("backend unreachable")
	// ErrUnauthenticated means the backend rejected the stored token.
	// The gateway has already cleared the session when this is returned.
	ErrUnauthenticated = errors.New("authentication rejected")
	// ErrInvalidCredentials is login failing on bad login/password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotFound means the referenced absence id does not exist.
	ErrNotFound = errors.New("absence not found")
)

// ValidationError carries the backend's rejection message verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "validation rejected: " + e.Message
}

// StatusError covers the remaining non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

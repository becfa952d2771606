package endpoint

import "errors"

// Endpoint errors.
var (
	// ErrClosed is returned when the endpoint was stopped.
	ErrClosed = errors.New("endpoint: closed")

	// ErrNoContext is returned when a peer has no security context.
	ErrNoContext = errors.New("endpoint: peer has no security context")

	// ErrNotRequest is returned when Do is given a message without a request code.
	ErrNotRequest = errors.New("endpoint: message is not a request")
)

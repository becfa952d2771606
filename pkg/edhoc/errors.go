package edhoc

import "errors"

// EDHOC package errors.
var (
	// ErrEncodingFailed is returned when a message cannot be serialized or
	// exceeds MaxMessage1Size.
	ErrEncodingFailed = errors.New("edhoc: encoding failed")

	// ErrDecodingFailed is returned when the received bytes are not a valid
	// message_1 item sequence.
	ErrDecodingFailed = errors.New("edhoc: decoding failed")

	// ErrInvalidPrivateKey is returned when an ephemeral scalar has the wrong size.
	ErrInvalidPrivateKey = errors.New("edhoc: invalid X25519 private key")
)

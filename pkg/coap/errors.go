package coap

import "errors"

// CoAP codec errors.
var (
	// Header errors
	ErrMessageTooShort    = errors.New("coap: data too short")
	ErrInvalidVersion     = errors.New("coap: invalid version (must be 1)")
	ErrInvalidTokenLength = errors.New("coap: invalid token length (must be 0-8)")
	ErrTokenTooLong       = errors.New("coap: token longer than 8 bytes")
	ErrInvalidMessageType = errors.New("coap: invalid message type")

	// Option errors
	ErrReservedNibble   = errors.New("coap: reserved option delta/length nibble")
	ErrOptionTruncated  = errors.New("coap: option exceeds message")
	ErrOptionTooLong    = errors.New("coap: option value too long")
	ErrOptionOutOfRange = errors.New("coap: option number out of range")
	ErrEmptyPayload     = errors.New("coap: payload marker followed by empty payload")
)

// Format constants from RFC 7252.
const (
	// HeaderSize is the fixed header size: Ver/T/TKL (1) + Code (1) + Message ID (2).
	HeaderSize = 4

	// MaxTokenLength is the largest token a message may carry.
	MaxTokenLength = 8

	// PayloadMarker separates options from the payload.
	PayloadMarker byte = 0xFF

	// MaxOptionValueLength is the largest option length the 2-byte extension encodes.
	MaxOptionValueLength = 0xFFFF + 269

	// MaxMessageSize is the recommended upper bound for a CoAP datagram
	// (RFC 7252 Section 4.6).
	MaxMessageSize = 1152
)

// Option delta/length nibble values (RFC 7252 Section 3.1).
const (
	nibbleExt8     = 13
	nibbleExt16    = 14
	nibbleReserved = 15

	ext8Offset  = 13
	ext16Offset = 269
)

// Package coap implements the CoAP message format (RFC 7252 Section 3).
// It is the outer framing that OSCORE protection reads and rewrites:
//   - Message header, token, options and payload encoding/decoding
//   - Option lists on their own, as used for the OSCORE inner plaintext
//   - Code, type and option number constants
package coap

import "fmt"

// Version is the only CoAP protocol version (RFC 7252 Section 3).
const Version uint8 = 1

// Type is the CoAP message type (T field, 2 bits).
type Type uint8

const (
	// Confirmable messages require an acknowledgement.
	Confirmable Type = 0

	// NonConfirmable messages do not require an acknowledgement.
	NonConfirmable Type = 1

	// Acknowledgement acknowledges a Confirmable message.
	Acknowledgement Type = 2

	// Reset indicates a message could not be processed.
	Reset Type = 3
)

// String returns a human-readable name for the message type.
func (t Type) String() string {
	switch t {
	case Confirmable:
		return "CON"
	case NonConfirmable:
		return "NON"
	case Acknowledgement:
		return "ACK"
	case Reset:
		return "RST"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the type fits the 2-bit field.
func (t Type) IsValid() bool {
	return t <= Reset
}

// Code is the 8-bit CoAP code, class in the top 3 bits and detail in the low 5.
type Code uint8

// Method codes (RFC 7252 Section 12.1.1).
const (
	Empty  Code = 0x00
	GET    Code = 0x01
	POST   Code = 0x02
	PUT    Code = 0x03
	DELETE Code = 0x04
	FETCH  Code = 0x05
	PATCH  Code = 0x06
)

// Response codes (RFC 7252 Section 12.1.2).
const (
	Created             Code = 0x41
	Deleted             Code = 0x42
	Valid               Code = 0x43
	Changed             Code = 0x44
	Content             Code = 0x45
	BadRequest          Code = 0x80
	Unauthorized        Code = 0x81
	BadOption           Code = 0x82
	Forbidden           Code = 0x83
	NotFound            Code = 0x84
	MethodNotAllowed    Code = 0x85
	InternalServerError Code = 0xA0
	ServiceUnavailable  Code = 0xA3
)

// Class returns the code class (0 request, 2 success, 4 client error, 5 server error).
func (c Code) Class() uint8 {
	return uint8(c) >> 5
}

// Detail returns the code detail.
func (c Code) Detail() uint8 {
	return uint8(c) & 0x1F
}

// IsRequest returns true for method codes.
func (c Code) IsRequest() bool {
	return c.Class() == 0 && c != Empty
}

// IsResponse returns true for response codes.
func (c Code) IsResponse() bool {
	return c.Class() >= 2
}

// String formats the code in the dotted "c.dd" notation.
func (c Code) String() string {
	return fmt.Sprintf("%d.%02d", c.Class(), c.Detail())
}

// OptionNumber identifies a CoAP option (RFC 7252 Section 12.2).
type OptionNumber uint16

const (
	OptionIfMatch       OptionNumber = 1
	OptionURIHost       OptionNumber = 3
	OptionETag          OptionNumber = 4
	OptionIfNoneMatch   OptionNumber = 5
	OptionObserve       OptionNumber = 6
	OptionURIPort       OptionNumber = 7
	OptionLocationPath  OptionNumber = 8
	OptionOSCORE        OptionNumber = 9
	OptionURIPath       OptionNumber = 11
	OptionContentFormat OptionNumber = 12
	OptionMaxAge        OptionNumber = 14
	OptionURIQuery      OptionNumber = 15
	OptionAccept        OptionNumber = 17
	OptionLocationQuery OptionNumber = 20
	OptionBlock2        OptionNumber = 23
	OptionBlock1        OptionNumber = 27
	OptionSize2         OptionNumber = 28
	OptionProxyURI      OptionNumber = 35
	OptionProxyScheme   OptionNumber = 39
	OptionSize1         OptionNumber = 60
)

// String returns the registered name of the option.
func (n OptionNumber) String() string {
	switch n {
	case OptionIfMatch:
		return "If-Match"
	case OptionURIHost:
		return "Uri-Host"
	case OptionETag:
		return "ETag"
	case OptionIfNoneMatch:
		return "If-None-Match"
	case OptionObserve:
		return "Observe"
	case OptionURIPort:
		return "Uri-Port"
	case OptionLocationPath:
		return "Location-Path"
	case OptionOSCORE:
		return "OSCORE"
	case OptionURIPath:
		return "Uri-Path"
	case OptionContentFormat:
		return "Content-Format"
	case OptionMaxAge:
		return "Max-Age"
	case OptionURIQuery:
		return "Uri-Query"
	case OptionAccept:
		return "Accept"
	case OptionLocationQuery:
		return "Location-Query"
	case OptionBlock2:
		return "Block2"
	case OptionBlock1:
		return "Block1"
	case OptionSize2:
		return "Size2"
	case OptionProxyURI:
		return "Proxy-Uri"
	case OptionProxyScheme:
		return "Proxy-Scheme"
	case OptionSize1:
		return "Size1"
	default:
		return fmt.Sprintf("Option(%d)", uint16(n))
	}
}

// IsCritical returns true for odd option numbers (RFC 7252 Section 5.4.1).
func (n OptionNumber) IsCritical() bool {
	return n&1 == 1
}

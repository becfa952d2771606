package coap

import (
	"encoding/binary"
	"fmt"
)

// Message is a CoAP message (RFC 7252 Section 3).
//
// Wire layout:
//
//	 0                   1                   2                   3
//	|Ver| T |  TKL  |      Code     |          Message ID           |
//	|   Token (if any, TKL bytes) ...
//	|   Options (if any) ...
//	|1 1 1 1 1 1 1 1|    Payload (if any) ...
type Message struct {
	Type      Type
	Code      Code
	MessageID uint16
	Token     []byte
	Options   Options
	Payload   []byte
}

// Size returns the encoded size of the message in bytes.
func (m *Message) Size() int {
	return HeaderSize + len(m.Token) + EncodedSize(m.Options, m.Payload)
}

// Marshal serializes the message. Options are written in ascending number
// order regardless of their order in m.Options.
func (m *Message) Marshal() ([]byte, error) {
	if len(m.Token) > MaxTokenLength {
		return nil, ErrTokenTooLong
	}
	if !m.Type.IsValid() {
		return nil, ErrInvalidMessageType
	}

	buf := make([]byte, HeaderSize, m.Size())
	buf[0] = Version<<6 | uint8(m.Type)<<4 | uint8(len(m.Token))
	buf[1] = uint8(m.Code)
	binary.BigEndian.PutUint16(buf[2:], m.MessageID)
	buf = append(buf, m.Token...)

	return AppendOptions(buf, m.Options, m.Payload)
}

// Unmarshal parses a message from data. Token, option values and payload
// alias data.
func (m *Message) Unmarshal(data []byte) error {
	if len(data) < HeaderSize {
		return ErrMessageTooShort
	}
	if data[0]>>6 != Version {
		return ErrInvalidVersion
	}
	tkl := int(data[0] & 0x0F)
	if tkl > MaxTokenLength {
		return ErrInvalidTokenLength
	}
	if len(data) < HeaderSize+tkl {
		return ErrMessageTooShort
	}

	opts, payload, err := DecodeOptions(data[HeaderSize+tkl:])
	if err != nil {
		return err
	}

	m.Type = Type(data[0] >> 4 & 0x03)
	m.Code = Code(data[1])
	m.MessageID = binary.BigEndian.Uint16(data[2:])
	m.Token = data[HeaderSize : HeaderSize+tkl]
	m.Options = opts
	m.Payload = payload
	return nil
}

// Parse is a convenience wrapper around Unmarshal.
func Parse(data []byte) (*Message, error) {
	m := &Message{}
	if err := m.Unmarshal(data); err != nil {
		return nil, err
	}
	return m, nil
}

// Path returns the request path built from the Uri-Path options.
func (m *Message) Path() string {
	return m.Options.Path()
}

// String returns a short description for logs. Payload bytes are not printed.
func (m *Message) String() string {
	return fmt.Sprintf("%s %s mid=%d token=%x options=%d payload=%dB",
		m.Type, m.Code, m.MessageID, m.Token, len(m.Options), len(m.Payload))
}

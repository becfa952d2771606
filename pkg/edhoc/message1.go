// Package edhoc implements the message_1 codec of the EDHOC key exchange
// used to bootstrap an OSCORE security context.
//
// On the wire message_1 is a CBOR sequence of four items:
//
//	TYPE : int, SUITE : int, X_U : bstr, C_U : bstr
//
// The codec encodes the items as a CBOR array and strips the array header
// on send; on receive the header is put back before decoding.
package edhoc

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/curve25519"
)

const (
	// MaxMessage1Size bounds the encoded array form of message_1.
	MaxMessage1Size = 128

	// Message1Type is the TYPE value of an initiator's message_1.
	Message1Type = 1

	// SuiteX25519AESCCM is cipher suite 0 (X25519, AES-CCM-16-64-128, SHA-256).
	SuiteX25519AESCCM = 0

	// array4 is the CBOR header of a four element array.
	array4 = 0x84
)

// Message1 is the first message of an EDHOC exchange.
type Message1 struct {
	_ struct{} `cbor:",toarray"`

	// Type is the message type.
	Type int
	// Suite is the selected cipher suite.
	Suite int
	// XU is the initiator's ephemeral public key.
	XU []byte
	// CU is the initiator's connection identifier.
	CU []byte
}

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.NilContainers = cbor.NilContainerAsEmpty
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		IndefLength:      cbor.IndefLengthForbidden,
		MaxArrayElements: 16,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// Marshal returns the message as a CBOR sequence.
func (m *Message1) Marshal() ([]byte, error) {
	data, err := encMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}
	if len(data) > MaxMessage1Size {
		return nil, ErrEncodingFailed
	}
	return data[1:], nil
}

// ParseMessage1 decodes a message_1 CBOR sequence.
func ParseMessage1(data []byte) (*Message1, error) {
	if len(data)+1 > MaxMessage1Size {
		return nil, ErrDecodingFailed
	}

	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, array4)
	buf = append(buf, data...)

	var m Message1
	if err := decMode.Unmarshal(buf, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodingFailed, err)
	}
	return &m, nil
}

// NewMessage1 generates an X25519 ephemeral key pair and returns the
// message_1 carrying its public key together with the private scalar.
// A nil rand uses crypto/rand.
func NewMessage1(suite int, connID []byte, random io.Reader) (*Message1, []byte, error) {
	if random == nil {
		random = rand.Reader
	}

	private := make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(random, private); err != nil {
		return nil, nil, err
	}

	public, err := curve25519.X25519(private, curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}

	m := &Message1{
		Type:  Message1Type,
		Suite: suite,
		XU:    public,
		CU:    append([]byte{}, connID...),
	}
	return m, private, nil
}

// SharedSecret computes the X25519 shared secret between an ephemeral
// private scalar and the peer's public key.
func SharedSecret(private, peerPublic []byte) ([]byte, error) {
	if len(private) != curve25519.ScalarSize {
		return nil, ErrInvalidPrivateKey
	}
	return curve25519.X25519(private, peerPublic)
}

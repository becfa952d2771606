package edhoc

import (
	"bytes"
	"errors"
	"testing"
)

// Message with TYPE 1, SUITE 0, X_U 00..1f and C_U c3.
var vectorMessage1 = []byte{
	0x01, 0x00, 0x58, 0x20, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06,
	0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11,
	0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19, 0x1a, 0x1b, 0x1c,
	0x1d, 0x1e, 0x1f, 0x41, 0xc3,
}

func vectorXU() []byte {
	x := make([]byte, 32)
	for i := range x {
		x[i] = byte(i)
	}
	return x
}

func TestMessage1Marshal(t *testing.T) {
	m := &Message1{Type: 1, Suite: 0, XU: vectorXU(), CU: []byte{0xc3}}

	got, err := m.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !bytes.Equal(got, vectorMessage1) {
		t.Errorf("Marshal mismatch\ngot:  %x\nwant: %x", got, vectorMessage1)
	}
}

func TestParseMessage1(t *testing.T) {
	m, err := ParseMessage1(vectorMessage1)
	if err != nil {
		t.Fatalf("ParseMessage1 failed: %v", err)
	}
	if m.Type != 1 || m.Suite != 0 {
		t.Errorf("Type, Suite = %d, %d; want 1, 0", m.Type, m.Suite)
	}
	if !bytes.Equal(m.XU, vectorXU()) {
		t.Errorf("XU = %x", m.XU)
	}
	if !bytes.Equal(m.CU, []byte{0xc3}) {
		t.Errorf("CU = %x, want c3", m.CU)
	}
}

func TestParseMessage1Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", vectorMessage1[:20]},
		{"three items", []byte{0x01, 0x00, 0x41, 0x00}},
		{"map instead of bytes", []byte{0x01, 0x00, 0xa0, 0x41, 0xc3}},
		{"trailing item", append(append([]byte{}, vectorMessage1...), 0x00)},
		{"too long", append([]byte{0x01, 0x00, 0x58, 0x80}, make([]byte, 0x80+2)...)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseMessage1(tc.data); !errors.Is(err, ErrDecodingFailed) {
				t.Errorf("got %v, want ErrDecodingFailed", err)
			}
		})
	}
}

func TestMessage1TooLarge(t *testing.T) {
	m := &Message1{Type: 1, XU: make([]byte, 32), CU: make([]byte, 100)}
	if _, err := m.Marshal(); !errors.Is(err, ErrEncodingFailed) {
		t.Errorf("got %v, want ErrEncodingFailed", err)
	}

	// 1 (header) + 1 + 1 + 2+32 + 2+90 = 129
	m.CU = make([]byte, 90)
	if _, err := m.Marshal(); !errors.Is(err, ErrEncodingFailed) {
		t.Errorf("129-byte message: got %v, want ErrEncodingFailed", err)
	}
	// 128 bytes fits.
	m.CU = make([]byte, 89)
	if _, err := m.Marshal(); err != nil {
		t.Errorf("128-byte message: %v", err)
	}
}

func TestNewMessage1(t *testing.T) {
	initiator, initiatorKey, err := NewMessage1(SuiteX25519AESCCM, []byte{0xc3}, nil)
	if err != nil {
		t.Fatalf("NewMessage1 failed: %v", err)
	}
	if initiator.Type != Message1Type || len(initiator.XU) != 32 || len(initiatorKey) != 32 {
		t.Fatalf("unexpected message %+v", initiator)
	}

	data, err := initiator.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	parsed, err := ParseMessage1(data)
	if err != nil {
		t.Fatalf("ParseMessage1 failed: %v", err)
	}
	if !bytes.Equal(parsed.XU, initiator.XU) || !bytes.Equal(parsed.CU, initiator.CU) {
		t.Errorf("parsed %+v, want %+v", parsed, initiator)
	}

	responder, responderKey, err := NewMessage1(SuiteX25519AESCCM, []byte{0x37}, nil)
	if err != nil {
		t.Fatalf("NewMessage1 failed: %v", err)
	}
	a, err := SharedSecret(initiatorKey, responder.XU)
	if err != nil {
		t.Fatalf("SharedSecret failed: %v", err)
	}
	b, err := SharedSecret(responderKey, parsed.XU)
	if err != nil {
		t.Fatalf("SharedSecret failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("shared secrets differ: %x vs %x", a, b)
	}

	if _, err := SharedSecret(initiatorKey[:16], responder.XU); err != ErrInvalidPrivateKey {
		t.Errorf("short key: got %v, want ErrInvalidPrivateKey", err)
	}
}

func TestNewMessage1Deterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 64)
	a, _, err := NewMessage1(SuiteX25519AESCCM, nil, bytes.NewReader(seed))
	if err != nil {
		t.Fatalf("NewMessage1 failed: %v", err)
	}
	b, _, err := NewMessage1(SuiteX25519AESCCM, nil, bytes.NewReader(seed))
	if err != nil {
		t.Fatalf("NewMessage1 failed: %v", err)
	}
	if !bytes.Equal(a.XU, b.XU) {
		t.Error("same randomness produced different keys")
	}

	if _, _, err := NewMessage1(SuiteX25519AESCCM, nil, bytes.NewReader(nil)); err == nil {
		t.Error("NewMessage1 with empty randomness succeeded")
	}
}

func FuzzParseMessage1(f *testing.F) {
	f.Add(vectorMessage1)
	f.Add([]byte{0x01, 0x00, 0x40, 0x40})

	f.Fuzz(func(t *testing.T, data []byte) {
		m, err := ParseMessage1(data)
		if err != nil {
			return
		}
		if _, err := m.Marshal(); err != nil {
			t.Fatalf("parsed message does not marshal: %v", err)
		}
	})
}

package coap

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("failed to decode %q: %v", s, err)
	}
	return b
}

// Messages from RFC 8613 Appendix C.4 and C.7.
func TestMessageVectors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Message
	}{
		{
			name: "GET request",
			raw:  "44015d1f00003974396c6f63616c686f737483747631",
			want: Message{
				Type:      Confirmable,
				Code:      GET,
				MessageID: 0x5d1f,
				Token:     []byte{0x00, 0x00, 0x39, 0x74},
				Options: Options{
					{Number: OptionURIHost, Value: []byte("localhost")},
					{Number: OptionURIPath, Value: []byte("tv1")},
				},
			},
		},
		{
			name: "Content response",
			raw:  "64455d1f00003974ff48656c6c6f20576f726c6421",
			want: Message{
				Type:      Acknowledgement,
				Code:      Content,
				MessageID: 0x5d1f,
				Token:     []byte{0x00, 0x00, 0x39, 0x74},
				Payload:   []byte("Hello World!"),
			},
		},
		{
			name: "empty OSCORE option",
			raw:  "64445d1f0000397490ffdbaad1e9a7e7b2a813d3c31524378303cdafae119106",
			want: Message{
				Type:      Acknowledgement,
				Code:      Changed,
				MessageID: 0x5d1f,
				Token:     []byte{0x00, 0x00, 0x39, 0x74},
				Options: Options{
					{Number: OptionOSCORE, Value: []byte{}},
				},
				Payload: mustHex(t, "dbaad1e9a7e7b2a813d3c31524378303cdafae119106"),
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw := mustHex(t, tc.raw)

			var got Message
			if err := got.Unmarshal(raw); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if got.Type != tc.want.Type {
				t.Errorf("Type = %v, want %v", got.Type, tc.want.Type)
			}
			if got.Code != tc.want.Code {
				t.Errorf("Code = %v, want %v", got.Code, tc.want.Code)
			}
			if got.MessageID != tc.want.MessageID {
				t.Errorf("MessageID = %#x, want %#x", got.MessageID, tc.want.MessageID)
			}
			if !bytes.Equal(got.Token, tc.want.Token) {
				t.Errorf("Token = %x, want %x", got.Token, tc.want.Token)
			}
			if len(got.Options) != len(tc.want.Options) {
				t.Fatalf("got %d options, want %d", len(got.Options), len(tc.want.Options))
			}
			for i := range got.Options {
				if got.Options[i].Number != tc.want.Options[i].Number ||
					!bytes.Equal(got.Options[i].Value, tc.want.Options[i].Value) {
					t.Errorf("option %d = %v %x, want %v %x", i,
						got.Options[i].Number, got.Options[i].Value,
						tc.want.Options[i].Number, tc.want.Options[i].Value)
				}
			}
			if !bytes.Equal(got.Payload, tc.want.Payload) {
				t.Errorf("Payload = %x, want %x", got.Payload, tc.want.Payload)
			}

			encoded, err := tc.want.Marshal()
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if !bytes.Equal(encoded, raw) {
				t.Errorf("Marshal mismatch\ngot:  %x\nwant: %x", encoded, raw)
			}
			if tc.want.Size() != len(raw) {
				t.Errorf("Size() = %d, want %d", tc.want.Size(), len(raw))
			}
		})
	}
}

func TestMessageUnmarshalErrors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"empty", "", ErrMessageTooShort},
		{"short header", "4401", ErrMessageTooShort},
		{"version 0", "04015d1f00003974", ErrInvalidVersion},
		{"version 2", "84015d1f", ErrInvalidVersion},
		{"token length 9", "49015d1f000000000000000000", ErrInvalidTokenLength},
		{"token truncated", "44015d1f0000", ErrMessageTooShort},
		{"marker without payload", "40015d1fff", ErrEmptyPayload},
		{"reserved delta", "40015d1ff0", ErrReservedNibble},
		{"reserved length", "40015d1f0f", ErrReservedNibble},
		{"option value truncated", "40015d1f3961", ErrOptionTruncated},
		{"missing 1-byte extension", "40015d1fd0", ErrOptionTruncated},
		{"missing 2-byte extension", "40015d1fe000", ErrOptionTruncated},
		{"number overflow", "40015d1fe0ffffe0ffff", ErrOptionOutOfRange},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var m Message
			if err := m.Unmarshal(mustHex(t, tc.raw)); err != tc.wantErr {
				t.Errorf("Unmarshal error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestMessageMarshalErrors(t *testing.T) {
	m := Message{Token: make([]byte, 9)}
	if _, err := m.Marshal(); err != ErrTokenTooLong {
		t.Errorf("Marshal with 9-byte token: got %v, want ErrTokenTooLong", err)
	}

	m = Message{Type: 4}
	if _, err := m.Marshal(); err != ErrInvalidMessageType {
		t.Errorf("Marshal with type 4: got %v, want ErrInvalidMessageType", err)
	}
}

func TestCodeString(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{Empty, "0.00"},
		{GET, "0.01"},
		{POST, "0.02"},
		{Changed, "2.04"},
		{Content, "2.05"},
		{Unauthorized, "4.01"},
		{InternalServerError, "5.00"},
	}
	for _, tc := range tests {
		if got := tc.code.String(); got != tc.want {
			t.Errorf("Code(%#x).String() = %q, want %q", uint8(tc.code), got, tc.want)
		}
	}

	if !GET.IsRequest() || GET.IsResponse() {
		t.Error("GET should be a request code")
	}
	if Empty.IsRequest() {
		t.Error("Empty should not be a request code")
	}
	if !Content.IsResponse() || Content.IsRequest() {
		t.Error("Content should be a response code")
	}
}

func TestMessagePath(t *testing.T) {
	m := Message{Code: GET}
	if got := m.Path(); got != "/" {
		t.Errorf("Path() with no options = %q, want /", got)
	}

	m.Options = m.Options.SetPath("/oscore/hello/1")
	if got := m.Path(); got != "/oscore/hello/1" {
		t.Errorf("Path() = %q, want /oscore/hello/1", got)
	}
	if n := len(m.Options.All(OptionURIPath)); n != 3 {
		t.Errorf("got %d Uri-Path options, want 3", n)
	}

	m.Options = m.Options.SetPath("tv1")
	if got := m.Path(); got != "/tv1" {
		t.Errorf("Path() after SetPath = %q, want /tv1", got)
	}
}

func FuzzMessageUnmarshal(f *testing.F) {
	f.Add(mustHexF(f, "44015d1f00003974396c6f63616c686f737483747631"))
	f.Add(mustHexF(f, "64445d1f00003974920100ff4d4c13669384b67354b2b6175ff4b8658c666a6cf88e"))
	f.Add([]byte{0x40, 0x01, 0x00, 0x00, 0xe0, 0xff, 0xff})

	f.Fuzz(func(t *testing.T, data []byte) {
		var m Message
		if err := m.Unmarshal(data); err != nil {
			return
		}
		encoded, err := m.Marshal()
		if err != nil {
			t.Fatalf("Marshal of parsed message failed: %v", err)
		}
		var again Message
		if err := again.Unmarshal(encoded); err != nil {
			t.Fatalf("re-parse failed: %v", err)
		}
		if len(again.Options) != len(m.Options) || !bytes.Equal(again.Payload, m.Payload) {
			t.Fatalf("re-parse changed message: %v vs %v", &again, &m)
		}
	})
}

func mustHexF(f *testing.F, s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		f.Fatalf("failed to decode %q: %v", s, err)
	}
	return b
}

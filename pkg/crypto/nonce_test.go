package crypto

import (
	"bytes"
	"testing"
)

// Nonce vectors from RFC 8613 Appendix C.
func TestBuildOSCORENonce(t *testing.T) {
	commonIV := []byte{
		0x46, 0x22, 0xd4, 0xdd, 0x6d, 0x94, 0x41, 0x68, 0xee, 0xfb, 0x54, 0x98, 0x7c,
	}

	tests := []struct {
		name      string
		id        []byte
		partialIV []byte
		wantNonce []byte
	}{
		{
			name:      "Client request, empty ID, PIV 0x14",
			id:        []byte{},
			partialIV: []byte{0x14},
			wantNonce: []byte{
				0x46,                                     // len(ID) ^ IV
				0x22, 0xd4, 0xdd, 0x6d, 0x94, 0x41, 0x68, // ID (none)
				0xee, 0xfb, 0x54, 0x98, 0x68, // PIV
			},
		},
		{
			name:      "Server response, ID 0x01, PIV 0x00",
			id:        []byte{0x01},
			partialIV: []byte{0x00},
			wantNonce: []byte{
				0x47,
				0x22, 0xd4, 0xdd, 0x6d, 0x94, 0x41, 0x69,
				0xee, 0xfb, 0x54, 0x98, 0x7c,
			},
		},
		{
			name:      "Empty PIV leaves IV bytes",
			id:        nil,
			partialIV: nil,
			wantNonce: commonIV,
		},
		{
			name:      "Maximum sizes",
			id:        []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07},
			partialIV: []byte{0xff, 0xff, 0xff, 0xff, 0xff},
			wantNonce: []byte{
				0x46 ^ 0x07,
				0x22 ^ 0x01, 0xd4 ^ 0x02, 0xdd ^ 0x03, 0x6d ^ 0x04, 0x94 ^ 0x05, 0x41 ^ 0x06, 0x68 ^ 0x07,
				0xee ^ 0xff, 0xfb ^ 0xff, 0x54 ^ 0xff, 0x98 ^ 0xff, 0x7c ^ 0xff,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := BuildOSCORENonce(commonIV, tc.id, tc.partialIV)
			if err != nil {
				t.Fatalf("BuildOSCORENonce failed: %v", err)
			}
			if !bytes.Equal(got, tc.wantNonce) {
				t.Errorf("nonce mismatch\ngot:  %x\nwant: %x", got, tc.wantNonce)
			}
		})
	}
}

func TestBuildOSCORENonceErrors(t *testing.T) {
	commonIV := make([]byte, NonceSize)

	if _, err := BuildOSCORENonce(commonIV[:12], nil, nil); err != ErrInvalidCommonIVSize {
		t.Errorf("short common IV: got %v, want ErrInvalidCommonIVSize", err)
	}
	if _, err := BuildOSCORENonce(commonIV, make([]byte, 8), nil); err != ErrInvalidIDSize {
		t.Errorf("8-byte ID: got %v, want ErrInvalidIDSize", err)
	}
	if _, err := BuildOSCORENonce(commonIV, nil, make([]byte, 6)); err != ErrInvalidPartialIVSize {
		t.Errorf("6-byte PIV: got %v, want ErrInvalidPartialIVSize", err)
	}
}

// Nonces for distinct (ID, PIV) pairs never collide.
func TestBuildOSCORENonceDistinct(t *testing.T) {
	commonIV := make([]byte, NonceSize)
	seen := make(map[string]string)

	ids := [][]byte{{}, {0x00}, {0x01}, {0x00, 0x01}, {0x01, 0x00}}
	pivs := [][]byte{{0x00}, {0x01}, {0x01, 0x00}, {0x01, 0x00, 0x00}}

	for _, id := range ids {
		for _, piv := range pivs {
			nonce, err := BuildOSCORENonce(commonIV, id, piv)
			if err != nil {
				t.Fatalf("BuildOSCORENonce failed: %v", err)
			}
			key := string(nonce)
			label := string(id) + "/" + string(piv)
			if prev, ok := seen[key]; ok {
				t.Errorf("nonce collision between %x and %x", prev, label)
			}
			seen[key] = label
		}
	}
}

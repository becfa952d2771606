// Nonce construction for OSCORE message protection.
// This implements RFC 8613 Section 5.2.

package crypto

import (
	"errors"
)

// Message security constants for the AES-CCM-16-64-128 profile.
const (
	// NonceSize is the AEAD nonce length.
	NonceSize = AESCCMNonceSize

	// SymmetricKeySize is the symmetric key length.
	SymmetricKeySize = AESCCMKeySize

	// MaxIDSize is the largest sender/recipient ID a nonce can carry (NonceSize - 6).
	MaxIDSize = NonceSize - 6

	// MaxPartialIVSize is the largest partial IV a nonce can carry.
	MaxPartialIVSize = 5
)

// Errors for nonce operations.
var (
	ErrInvalidCommonIVSize  = errors.New("nonce: invalid common IV size, must be 13 bytes")
	ErrInvalidIDSize        = errors.New("nonce: ID longer than 7 bytes")
	ErrInvalidPartialIVSize = errors.New("nonce: partial IV longer than 5 bytes")
)

// BuildOSCORENonce constructs the 13-byte AEAD nonce for one message.
//
// Format before XOR: len(ID) (1 byte) || ID left-padded (7 bytes) || PIV left-padded (5 bytes)
//
// Parameters:
//   - commonIV: The 13-byte Common IV of the security context
//   - id: The Sender ID of the endpoint that generated the partial IV
//   - partialIV: The partial IV in minimal big-endian form
//
// Returns commonIV XOR the padded identifier block.
func BuildOSCORENonce(commonIV, id, partialIV []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if err := BuildOSCORENonceTo(nonce, commonIV, id, partialIV); err != nil {
		return nil, err
	}
	return nonce, nil
}

// BuildOSCORENonceTo writes the nonce of BuildOSCORENonce into dst, which must
// be NonceSize bytes long.
func BuildOSCORENonceTo(dst, commonIV, id, partialIV []byte) error {
	if len(commonIV) != NonceSize || len(dst) != NonceSize {
		return ErrInvalidCommonIVSize
	}
	if len(id) > MaxIDSize {
		return ErrInvalidIDSize
	}
	if len(partialIV) > MaxPartialIVSize {
		return ErrInvalidPartialIVSize
	}

	clear(dst)

	// Byte 0: size of ID
	dst[0] = byte(len(id))

	// Bytes 1-7: ID, left-padded with zeros
	copy(dst[1+MaxIDSize-len(id):1+MaxIDSize], id)

	// Bytes 8-12: Partial IV, left-padded with zeros
	copy(dst[NonceSize-len(partialIV):], partialIV)

	for i := range dst {
		dst[i] ^= commonIV[i]
	}
	return nil
}

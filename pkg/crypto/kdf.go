// Package crypto provides the AEAD, key derivation and nonce primitives used
// for OSCORE message protection.
package crypto

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDFMaxLength is the largest output HKDF-SHA256 can produce (255 * HashLen).
const HKDFMaxLength = 255 * sha256.Size

// ErrHKDFInvalidLength is returned when the requested output length is zero
// or above HKDFMaxLength.
var ErrHKDFInvalidLength = errors.New("hkdf: invalid output length")

// HKDFSHA256 derives key material using HKDF-SHA256 (RFC 5869).
// This is the key derivation function of the OSCORE default algorithm
// (RFC 8613 Section 3.2.1).
//
// Parameters:
//   - inputKey: Input keying material (IKM), the master secret
//   - salt: Optional salt value (can be nil or empty), the master salt
//   - info: Context/application-specific info
//   - length: Number of bytes to derive
//
// Returns the derived key material of the specified length.
func HKDFSHA256(inputKey, salt, info []byte, length int) ([]byte, error) {
	if length <= 0 || length > HKDFMaxLength {
		return nil, ErrHKDFInvalidLength
	}

	// HKDF = HKDF-Expand(PRK := HKDF-Extract(salt, IKM), info, L)
	reader := hkdf.New(sha256.New, inputKey, salt, info)
	result := make([]byte, length)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AES-CCM* implementation for OSCORE message protection.
// This implements the CCM construction of NIST 800-38C and RFC 3610 with the
// parameters of the COSE AES-CCM-16-64-128 algorithm (RFC 8152 Section 10.2):
//   - Key length: 128 bits (16 bytes)
//   - Nonce length: 13 bytes, so the length field is q = 2 bytes
//   - Tag length: even, 4 to 16 bytes (8 for AES-CCM-16-64-128)
//
// The construction only ever calls the forward direction of the block cipher.

package crypto

import (
	"crypto/aes"
	"crypto/subtle"
	"encoding/binary"
	"errors"
)

// AES-CCM constants.
const (
	// AESCCMKeySize is the AES-128 key size in bytes.
	AESCCMKeySize = 16

	// AESCCMTagSize is the tag size of AES-CCM-16-64-128 in bytes.
	AESCCMTagSize = 8

	// AESCCMNonceSize is the nonce size in bytes (15 - q, with q = 2).
	AESCCMNonceSize = 13

	// AESCCMAADLimit is the exclusive upper bound on associated data length.
	// Longer associated data would need the 6 or 10 byte length prefix.
	AESCCMAADLimit = 0xFF00

	// AESCCMPayloadLimit is the exclusive upper bound on payload length,
	// set by the 2-byte length field in B_0.
	AESCCMPayloadLimit = 0x10000

	// aesBlockSize is the AES block size (always 16 bytes).
	aesBlockSize = 16

	// ccmLengthFieldSize is q, the size of the message length field.
	ccmLengthFieldSize = 2
)

// Errors
var (
	ErrAESCCMInvalidKeySize     = errors.New("aesccm: invalid key size, must be 16 bytes")
	ErrAESCCMInvalidNonceSize   = errors.New("aesccm: invalid nonce size, must be 13 bytes")
	ErrAESCCMInvalidTagSize     = errors.New("aesccm: invalid tag size, must be 4, 6, 8, 10, 12, 14, or 16")
	ErrAESCCMAADTooLong         = errors.New("aesccm: associated data too long")
	ErrAESCCMPlaintextTooLong   = errors.New("aesccm: plaintext too long")
	ErrAESCCMCiphertextTooShort = errors.New("aesccm: ciphertext too short")
	ErrAESCCMBufferTooSmall     = errors.New("aesccm: output buffer too small")
	ErrAESCCMAuthFailed         = errors.New("aesccm: message authentication failed")
)

// BlockEncrypter is the single-block encrypt primitive CCM* is built from.
// Encrypt must accept distinct 16-byte dst and src slices.
// Any cipher.Block satisfies it.
type BlockEncrypter interface {
	Encrypt(dst, src []byte)
}

// NewAESBlock expands a 16-byte key into an AES-128 block encrypter.
func NewAESBlock(key []byte) (BlockEncrypter, error) {
	if len(key) != AESCCMKeySize {
		return nil, ErrAESCCMInvalidKeySize
	}
	return aes.NewCipher(key)
}

// macMode selects how cbcMAC treats the buffer it absorbs.
type macMode int

const (
	// macWithLength XORs the 2-byte big-endian buffer length into the
	// accumulator before the data. Used for the associated data.
	macWithLength macMode = iota

	// macContinue absorbs the buffer without a length prefix. Used for the
	// payload, which is already covered by the length in B_0.
	macContinue
)

// AESCCM is an AES-128-CCM* cipher bound to one key and one tag size.
// It holds no per-message state and is safe for concurrent use.
type AESCCM struct {
	block   BlockEncrypter
	tagSize int // M: authentication tag size
}

// NewAESCCM creates an AES-128-CCM* cipher with the given tag size.
func NewAESCCM(key []byte, tagSize int) (*AESCCM, error) {
	block, err := NewAESBlock(key)
	if err != nil {
		return nil, err
	}
	return NewAESCCMWithBlock(block, tagSize)
}

// NewAESCCMWithBlock creates a CCM* cipher on top of an existing block
// encrypter. The tag size must be even and between 4 and 16.
func NewAESCCMWithBlock(block BlockEncrypter, tagSize int) (*AESCCM, error) {
	if tagSize < 4 || tagSize > aesBlockSize || tagSize%2 != 0 {
		return nil, ErrAESCCMInvalidTagSize
	}
	return &AESCCM{
		block:   block,
		tagSize: tagSize,
	}, nil
}

// NonceSize returns the required nonce size for this cipher.
func (c *AESCCM) NonceSize() int {
	return AESCCMNonceSize
}

// TagSize returns the authentication tag size for this cipher.
func (c *AESCCM) TagSize() int {
	return c.tagSize
}

// Overhead returns the number of bytes Seal adds to the plaintext.
func (c *AESCCM) Overhead() int {
	return c.tagSize
}

// Seal encrypts and authenticates plaintext with associated data.
// Returns ciphertext || tag in a newly allocated slice.
func (c *AESCCM) Seal(nonce, plaintext, aad []byte) ([]byte, error) {
	if err := c.checkBounds(nonce, len(aad), len(plaintext)); err != nil {
		return nil, err
	}
	out := make([]byte, len(plaintext)+c.tagSize)
	if _, err := c.SealTo(out, nonce, plaintext, aad); err != nil {
		return nil, err
	}
	return out, nil
}

// SealTo writes ciphertext || tag into out and returns the number of bytes
// written. out must hold at least len(plaintext)+TagSize() bytes. out may
// alias plaintext exactly; any other overlap is not allowed.
//
// All bounds are checked before the block cipher is invoked, so a rejected
// call leaves out untouched.
func (c *AESCCM) SealTo(out, nonce, plaintext, aad []byte) (int, error) {
	if err := c.checkBounds(nonce, len(aad), len(plaintext)); err != nil {
		return 0, err
	}
	n := len(plaintext) + c.tagSize
	if len(out) < n {
		return 0, ErrAESCCMBufferTooSmall
	}

	// The MAC runs over the plaintext before CTR overwrites it in place.
	var mac [aesBlockSize]byte
	c.authenticate(&mac, nonce, aad, plaintext)

	var ctr [aesBlockSize]byte
	counterBlock(&ctr, nonce)
	c.ctrXOR(out[:len(plaintext)], plaintext, &ctr)

	var s0 [aesBlockSize]byte
	c.firstKeystreamBlock(&s0, nonce)

	tag := out[len(plaintext):n]
	for i := range tag {
		tag[i] = mac[i] ^ s0[i]
	}

	return n, nil
}

// Open decrypts and verifies ciphertext || tag with associated data.
// Returns the plaintext in a newly allocated slice, or ErrAESCCMAuthFailed.
func (c *AESCCM) Open(nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(ciphertext) < c.tagSize {
		return nil, ErrAESCCMCiphertextTooShort
	}
	out := make([]byte, len(ciphertext)-c.tagSize)
	n, err := c.OpenTo(out, nonce, ciphertext, aad)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// OpenTo decrypts ciphertext || tag into out and returns the plaintext length.
// out must hold at least len(ciphertext)-TagSize() bytes and may alias the
// ciphertext exactly.
//
// The payload is decrypted before the tag can be checked. When the check fails
// the recovered bytes in out are zeroed before ErrAESCCMAuthFailed is returned.
func (c *AESCCM) OpenTo(out, nonce, ciphertext, aad []byte) (int, error) {
	if len(ciphertext) < c.tagSize {
		return 0, ErrAESCCMCiphertextTooShort
	}
	n := len(ciphertext) - c.tagSize
	if err := c.checkBounds(nonce, len(aad), n); err != nil {
		return 0, err
	}
	if len(out) < n {
		return 0, ErrAESCCMBufferTooSmall
	}

	// Save the received tag first: out may share memory with ciphertext.
	var received [aesBlockSize]byte
	copy(received[:], ciphertext[n:])

	var ctr [aesBlockSize]byte
	counterBlock(&ctr, nonce)
	c.ctrXOR(out[:n], ciphertext[:n], &ctr)

	var expected [aesBlockSize]byte
	c.authenticate(&expected, nonce, aad, out[:n])

	var s0 [aesBlockSize]byte
	c.firstKeystreamBlock(&s0, nonce)
	for i := 0; i < c.tagSize; i++ {
		expected[i] ^= s0[i]
	}

	if subtle.ConstantTimeCompare(expected[:c.tagSize], received[:c.tagSize]) != 1 {
		clear(out[:n])
		return 0, ErrAESCCMAuthFailed
	}

	return n, nil
}

func (c *AESCCM) checkBounds(nonce []byte, aadLen, payloadLen int) error {
	switch {
	case len(nonce) != AESCCMNonceSize:
		return ErrAESCCMInvalidNonceSize
	case aadLen >= AESCCMAADLimit:
		return ErrAESCCMAADTooLong
	case payloadLen >= AESCCMPayloadLimit:
		return ErrAESCCMPlaintextTooLong
	}
	return nil
}

// authenticate computes the raw CBC-MAC value T into mac.
// Only the first TagSize() bytes are meaningful.
func (c *AESCCM) authenticate(mac *[aesBlockSize]byte, nonce, aad, payload []byte) {
	// B_0: Flags || Nonce || l(m)
	// Flags = Reserved(1) || Adata(1) || M'(3) || L'(3)
	var b0 [aesBlockSize]byte
	if len(aad) > 0 {
		b0[0] = 0x40
	}
	b0[0] |= byte((c.tagSize-2)/2) << 3
	b0[0] |= ccmLengthFieldSize - 1
	copy(b0[1:1+AESCCMNonceSize], nonce)
	binary.BigEndian.PutUint16(b0[aesBlockSize-ccmLengthFieldSize:], uint16(len(payload)))

	c.block.Encrypt(mac[:], b0[:])

	if len(aad) > 0 {
		c.cbcMAC(mac, aad, macWithLength)
	}
	if len(payload) > 0 {
		c.cbcMAC(mac, payload, macContinue)
	}
}

// cbcMAC absorbs data into the accumulator. The accumulator is re-encrypted
// at every 16-byte boundary and once more if data ends mid-block, which is
// the same as zero-padding the final block.
func (c *AESCCM) cbcMAC(mac *[aesBlockSize]byte, data []byte, mode macMode) {
	offset := 0
	if mode == macWithLength {
		mac[0] ^= byte(len(data) >> 8)
		mac[1] ^= byte(len(data))
		offset = ccmLengthFieldSize
	}
	total := offset + len(data)

	var scratch [aesBlockSize]byte
	for i, b := range data {
		pos := offset + i
		mac[pos%aesBlockSize] ^= b
		if (pos+1)%aesBlockSize == 0 || pos+1 == total {
			c.block.Encrypt(scratch[:], mac[:])
			*mac = scratch
		}
	}
	clear(scratch[:])
}

// ctrXOR runs the CCM flavour of CTR mode over src. The 16-bit counter in the
// last two bytes of ctr is incremented before each keystream block, so a
// counter block starting at A_0 produces keystream from A_1 onwards.
func (c *AESCCM) ctrXOR(dst, src []byte, ctr *[aesBlockSize]byte) {
	var keystream [aesBlockSize]byte
	counter := binary.BigEndian.Uint16(ctr[aesBlockSize-ccmLengthFieldSize:])

	for i := range src {
		if i%aesBlockSize == 0 {
			counter++
			binary.BigEndian.PutUint16(ctr[aesBlockSize-ccmLengthFieldSize:], counter)
			c.block.Encrypt(keystream[:], ctr[:])
		}
		dst[i] = src[i] ^ keystream[i%aesBlockSize]
	}
	clear(keystream[:])
}

// firstKeystreamBlock computes S_0 = E(K, A_0), used to mask the tag.
func (c *AESCCM) firstKeystreamBlock(s0 *[aesBlockSize]byte, nonce []byte) {
	var a0 [aesBlockSize]byte
	counterBlock(&a0, nonce)
	c.block.Encrypt(s0[:], a0[:])
}

// counterBlock builds A_0: Flags = L' || Nonce || counter 0.
func counterBlock(a *[aesBlockSize]byte, nonce []byte) {
	*a = [aesBlockSize]byte{}
	a[0] = ccmLengthFieldSize - 1
	copy(a[1:1+AESCCMNonceSize], nonce)
}

// AESCCM128Encrypt is a convenience function for AES-CCM-16-64-128 encryption.
// Returns ciphertext || tag.
func AESCCM128Encrypt(key, nonce, plaintext, aad []byte) ([]byte, error) {
	ccm, err := NewAESCCM(key, AESCCMTagSize)
	if err != nil {
		return nil, err
	}
	return ccm.Seal(nonce, plaintext, aad)
}

// AESCCM128Decrypt is a convenience function for AES-CCM-16-64-128 decryption.
func AESCCM128Decrypt(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	ccm, err := NewAESCCM(key, AESCCMTagSize)
	if err != nil {
		return nil, err
	}
	return ccm.Open(nonce, ciphertext, aad)
}

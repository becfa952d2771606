package oscore

import (
	"fmt"

	"github.com/backkem/oscore/pkg/crypto"
)

// Derived parameter sizes for AES-CCM-16-64-128.
const (
	// KeySize is the sender and recipient key length.
	KeySize = crypto.AESCCMKeySize

	// CommonIVSize is the Common IV length, equal to the AEAD nonce length.
	CommonIVSize = crypto.AESCCMNonceSize

	// TagSize is the AEAD tag length.
	TagSize = crypto.AESCCMTagSize

	// MaxIDSize is the largest sender or recipient ID (nonce length - 6).
	MaxIDSize = crypto.MaxIDSize
)

// HKDF info type labels (RFC 8613 Section 3.2.1).
const (
	infoTypeKey = "Key"
	infoTypeIV  = "IV"
)

// kdfInfo is the HKDF info array:
//
//	[ id, id_context, alg_aead, type, L ]
//
// IDContext is nil (CBOR null) when no ID Context is configured.
type kdfInfo struct {
	_         struct{} `cbor:",toarray"`
	ID        []byte
	IDContext any
	AlgAEAD   int
	Type      string
	L         int
}

// encodeKDFInfo serializes the info parameter for one derivation.
func encodeKDFInfo(id, idContext []byte, typ string, length int) ([]byte, error) {
	info := kdfInfo{
		ID:      id,
		AlgAEAD: AlgAESCCM16_64_128,
		Type:    typ,
		L:       length,
	}
	if idContext != nil {
		info.IDContext = idContext
	}
	return encMode.Marshal(info)
}

// deriveParameter runs HKDF-SHA256 over the master secret and salt with the
// info for (id, type, length).
func deriveParameter(secret, salt, id, idContext []byte, typ string, length int) ([]byte, error) {
	info, err := encodeKDFInfo(id, idContext, typ, length)
	if err != nil {
		return nil, fmt.Errorf("%w: info: %v", ErrKeyDerivationFailed, err)
	}
	out, err := crypto.HKDFSHA256(secret, salt, info, length)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivationFailed, err)
	}
	return out, nil
}

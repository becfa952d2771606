package oscore

import (
	"fmt"
)

// COSE constants used by OSCORE (RFC 8613 Section 5.4).
const (
	// AlgAESCCM16_64_128 is the COSE algorithm identifier of AES-CCM-16-64-128.
	AlgAESCCM16_64_128 = 10

	// oscoreVersion is the external_aad oscore_version field.
	oscoreVersion = 1

	// encrypt0Context is the Enc_structure context label for COSE_Encrypt0.
	encrypt0Context = "Encrypt0"
)

// externalAAD is the external_aad array:
//
//	[ oscore_version, algorithms: [alg_aead], request_kid, request_piv, options ]
type externalAAD struct {
	_          struct{} `cbor:",toarray"`
	Version    int
	Algorithms []int
	RequestKID []byte
	RequestPIV []byte
	Options    []byte
}

// encStructure is the COSE Enc_structure with an empty protected header.
type encStructure struct {
	_           struct{} `cbor:",toarray"`
	Context     string
	Protected   []byte
	ExternalAAD []byte
}

// BuildAAD returns the associated data bound to a message:
//
//	[ "Encrypt0", h'', bstr .cbor external_aad ]
//
// requestKID and requestPIV are always the request's, also for responses.
// options holds the Class I options, which are empty for this profile.
func BuildAAD(alg int, requestKID, requestPIV, options []byte) ([]byte, error) {
	ext, err := encMode.Marshal(externalAAD{
		Version:    oscoreVersion,
		Algorithms: []int{alg},
		RequestKID: requestKID,
		RequestPIV: requestPIV,
		Options:    options,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: external_aad: %v", ErrEncodingFailed, err)
	}

	aad, err := encMode.Marshal(encStructure{
		Context:     encrypt0Context,
		Protected:   []byte{},
		ExternalAAD: ext,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: Enc_structure: %v", ErrEncodingFailed, err)
	}
	return aad, nil
}

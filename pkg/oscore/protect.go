package oscore

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/backkem/oscore/pkg/crypto"
)

// RequestBinding identifies the request a response answers. Responses are
// authenticated over the request's kid and partial IV, and a response without
// its own partial IV reuses the request nonce.
type RequestBinding struct {
	// KID is the request's kid, the Sender ID of the requesting endpoint.
	KID []byte

	// PartialIV is the request's partial IV.
	PartialIV []byte

	// nonceReused is set once a response was protected under the request
	// nonce.
	nonceReused bool
}

// Sealed is the output of a protect operation.
type Sealed struct {
	// Option is the compressed OSCORE option value.
	Option []byte

	// Ciphertext is ciphertext || tag.
	Ciphertext []byte

	// Binding is the request identity the AAD was built over. For a request
	// it is the binding the matching response must use.
	Binding RequestBinding
}

// Protect encrypts plaintext with the sender key.
//
// With a nil binding the message is a request: it gets a fresh partial IV and
// the option carries the Sender ID as kid. With a binding the message is a
// response to that request: it gets a fresh partial IV and no kid.
// options holds the Class I option bytes bound into the AAD.
func (c *SecurityContext) Protect(binding *RequestBinding, plaintext, options []byte) (*Sealed, error) {
	c.senderMu.Lock()
	defer c.senderMu.Unlock()

	nonce, partialIV, err := c.nextSenderNonceLocked()
	if err != nil {
		return nil, err
	}

	var kid []byte
	var bound RequestBinding
	if binding == nil {
		kid = c.senderID
		bound = RequestBinding{KID: bytes.Clone(c.senderID), PartialIV: partialIV}
	} else {
		bound = cloneBinding(*binding)
	}

	option, err := CompressOption(kid, partialIV)
	if err != nil {
		return nil, err
	}

	ciphertext, err := c.seal(nonce, bound, plaintext, options)
	if err != nil {
		return nil, err
	}

	return &Sealed{Option: option, Ciphertext: ciphertext, Binding: bound}, nil
}

// ProtectReusingNonce encrypts a response with the nonce of the request it
// answers. The option is empty and no sender sequence number is consumed.
//
// Only one response per request may be protected this way: binding is marked
// and a second call returns ErrNonceReused. A binding without a partial IV
// returns ErrMissingIdentity.
func (c *SecurityContext) ProtectReusingNonce(binding *RequestBinding, plaintext, options []byte) (*Sealed, error) {
	if binding == nil || len(binding.PartialIV) == 0 {
		return nil, ErrMissingIdentity
	}

	c.senderMu.Lock()
	defer c.senderMu.Unlock()

	if c.destroyed {
		return nil, ErrContextDestroyed
	}
	if binding.nonceReused {
		return nil, ErrNonceReused
	}

	bound := cloneBinding(*binding)
	nonce, err := crypto.BuildOSCORENonce(c.commonIV, bound.KID, bound.PartialIV)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOption, err)
	}

	ciphertext, err := c.seal(nonce, bound, plaintext, options)
	if err != nil {
		return nil, err
	}

	binding.nonceReused = true
	return &Sealed{Option: []byte{}, Ciphertext: ciphertext, Binding: bound}, nil
}

// seal runs the AEAD with the sender key. Caller holds senderMu.
func (c *SecurityContext) seal(nonce []byte, binding RequestBinding, plaintext, options []byte) ([]byte, error) {
	aad, err := BuildAAD(AlgAESCCM16_64_128, binding.KID, binding.PartialIV, options)
	if err != nil {
		return nil, err
	}

	ciphertext, err := c.senderAEAD.Seal(nonce, plaintext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}
	return ciphertext, nil
}

// Unprotect verifies and decrypts ciphertext with the recipient key.
//
// With a nil binding the message is a request: the option must carry kid and
// partial IV, and the kid must equal the Recipient ID. With a binding the
// message is a response to that request; when the option has no partial IV
// the request nonce is reused.
//
// A received partial IV is checked against the replay window before
// decryption and committed only after the tag verifies. On any error the
// window is unchanged and no plaintext is returned.
//
// The returned binding is the request identity the AAD was built over.
func (c *SecurityContext) Unprotect(option []byte, binding *RequestBinding, ciphertext, options []byte) ([]byte, RequestBinding, error) {
	kid, partialIV, err := DecompressOption(option)
	if err != nil {
		return nil, RequestBinding{}, err
	}

	c.recipientMu.Lock()
	defer c.recipientMu.Unlock()

	if c.destroyed {
		return nil, RequestBinding{}, ErrContextDestroyed
	}

	var bound RequestBinding
	if binding == nil {
		if kid == nil || partialIV == nil {
			return nil, RequestBinding{}, ErrMissingIdentity
		}
		if !bytes.Equal(kid, c.recipientID) {
			return nil, RequestBinding{}, ErrUnknownKID
		}
		bound = RequestBinding{KID: kid, PartialIV: partialIV}
	} else {
		bound = cloneBinding(*binding)
	}

	var nonce []byte
	accept := func() {}
	if partialIV != nil {
		seq, err := DecodePartialIV(partialIV)
		if err != nil {
			return nil, RequestBinding{}, err
		}

		var ok bool
		accept, ok = c.replay.Check(seq)
		if !ok {
			if c.log != nil {
				c.log.Debugf("replay rejected: recipient=%x seq=%d", c.recipientID, seq)
			}
			return nil, RequestBinding{}, ErrReplayRejected
		}

		nonce, err = crypto.BuildOSCORENonce(c.commonIV, c.recipientID, partialIV)
		if err != nil {
			return nil, RequestBinding{}, fmt.Errorf("%w: %v", ErrMalformedOption, err)
		}
	} else {
		nonce, err = crypto.BuildOSCORENonce(c.commonIV, bound.KID, bound.PartialIV)
		if err != nil {
			return nil, RequestBinding{}, fmt.Errorf("%w: %v", ErrMalformedOption, err)
		}
	}

	aad, err := BuildAAD(AlgAESCCM16_64_128, bound.KID, bound.PartialIV, options)
	if err != nil {
		return nil, RequestBinding{}, err
	}

	plaintext, err := c.recipientAEAD.Open(nonce, ciphertext, aad)
	if err != nil {
		if c.log != nil {
			c.log.Debugf("unprotect failed: recipient=%x: %v", c.recipientID, err)
		}
		if errors.Is(err, crypto.ErrAESCCMAuthFailed) || errors.Is(err, crypto.ErrAESCCMCiphertextTooShort) {
			return nil, RequestBinding{}, ErrAuthenticationFailed
		}
		return nil, RequestBinding{}, fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}

	accept()
	return plaintext, bound, nil
}

func cloneBinding(b RequestBinding) RequestBinding {
	return RequestBinding{
		KID:       bytes.Clone(nonNil(b.KID)),
		PartialIV: bytes.Clone(b.PartialIV),
	}
}

// Package oscore implements OSCORE message protection (RFC 8613) with the
// AES-CCM-16-64-128 algorithm and HKDF-SHA256.
//
// The package provides:
//   - Security context derivation from a master secret and salt
//   - Sender sequence numbers and the recipient replay window
//   - The OSCORE option codec and the AAD builder
//   - Payload protection (Protect/Unprotect) and full CoAP message protection
//   - A context table keyed by recipient ID
package oscore

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/backkem/oscore/pkg/crypto"
	"github.com/pion/logging"
)

// Additional configuration errors.
var (
	// ErrInvalidReplayWindow is returned when the replay window size exceeds
	// MaxReplayWindowSize.
	ErrInvalidReplayWindow = errors.New("oscore: replay window larger than 64")

	// ErrIDCollision is returned when sender and recipient ID are equal.
	ErrIDCollision = errors.New("oscore: sender ID equals recipient ID")

	// ErrMissingMasterSecret is returned when no master secret is configured.
	ErrMissingMasterSecret = errors.New("oscore: missing master secret")
)

// ContextConfig holds the input parameters of a security context.
type ContextConfig struct {
	// MasterSecret is the shared secret from the key establishment.
	MasterSecret []byte

	// MasterSalt is optional; empty means the default empty salt.
	MasterSalt []byte

	// SenderID identifies this endpoint. At most MaxIDSize bytes, may be empty.
	SenderID []byte

	// RecipientID identifies the peer. At most MaxIDSize bytes, may be empty.
	RecipientID []byte

	// IDContext is the optional ID Context. nil means absent.
	IDContext []byte

	// InitialSequenceNumber is the first sender sequence number, used when
	// restoring a persisted context.
	InitialSequenceNumber uint64

	// ReplayWindowSize is the recipient window size (0 uses DefaultReplayWindowSize).
	ReplayWindowSize uint

	// LoggerFactory creates the context logger. nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// WithDefaults returns a copy of the configuration with zero values replaced
// by defaults.
func (c ContextConfig) WithDefaults() ContextConfig {
	result := c
	if result.ReplayWindowSize == 0 {
		result.ReplayWindowSize = DefaultReplayWindowSize
	}
	return result
}

// Validate checks the configuration without deriving anything.
func (c ContextConfig) Validate() error {
	if len(c.MasterSecret) == 0 {
		return ErrMissingMasterSecret
	}
	if len(c.SenderID) > MaxIDSize || len(c.RecipientID) > MaxIDSize {
		return ErrIDTooLong
	}
	if bytes.Equal(c.SenderID, c.RecipientID) {
		return ErrIDCollision
	}
	if c.ReplayWindowSize > MaxReplayWindowSize {
		return ErrInvalidReplayWindow
	}
	if c.InitialSequenceNumber > MaxSequenceNumber {
		return ErrSequenceExhausted
	}
	return nil
}

// SecurityContext holds the state of one OSCORE peer relationship.
//
// Keys and the Common IV are derived once in DeriveContext and never change.
// The sender side (sequence number) and recipient side (replay window) are
// guarded by separate locks so one protect and one unprotect can run at the
// same time.
type SecurityContext struct {
	// === Identity ===
	senderID    []byte
	recipientID []byte
	idContext   []byte

	// === Input material ===
	masterSecret []byte
	masterSalt   []byte

	// === Derived material ===
	senderKey    []byte
	recipientKey []byte
	commonIV     []byte

	senderAEAD    *crypto.AESCCM
	recipientAEAD *crypto.AESCCM

	// === Mutable state ===
	sequence  *SenderSequence
	replay    *ReplayWindow
	destroyed bool

	senderMu    sync.Mutex
	recipientMu sync.Mutex

	log logging.LeveledLogger
}

// DeriveContext validates config and derives the sender key, recipient key
// and Common IV with HKDF-SHA256 (RFC 8613 Section 3.2.1).
func DeriveContext(config ContextConfig) (_ *SecurityContext, err error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &SecurityContext{
		senderID:     bytes.Clone(nonNil(config.SenderID)),
		recipientID:  bytes.Clone(nonNil(config.RecipientID)),
		idContext:    bytes.Clone(config.IDContext),
		masterSecret: bytes.Clone(config.MasterSecret),
		masterSalt:   bytes.Clone(config.MasterSalt),
		sequence:     NewSenderSequence(config.InitialSequenceNumber),
		replay:       NewReplayWindow(config.ReplayWindowSize),
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("oscore")
	}
	defer func() {
		if err != nil {
			c.wipe()
		}
	}()

	c.senderKey, err = deriveParameter(c.masterSecret, c.masterSalt, c.senderID, c.idContext, infoTypeKey, KeySize)
	if err != nil {
		return nil, err
	}
	c.recipientKey, err = deriveParameter(c.masterSecret, c.masterSalt, c.recipientID, c.idContext, infoTypeKey, KeySize)
	if err != nil {
		return nil, err
	}
	c.commonIV, err = deriveParameter(c.masterSecret, c.masterSalt, []byte{}, c.idContext, infoTypeIV, CommonIVSize)
	if err != nil {
		return nil, err
	}

	c.senderAEAD, err = crypto.NewAESCCM(c.senderKey, TagSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivationFailed, err)
	}
	c.recipientAEAD, err = crypto.NewAESCCM(c.recipientKey, TagSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivationFailed, err)
	}

	if c.log != nil {
		c.log.Debugf("derived context sender=%x recipient=%x ssn=%d window=%d",
			c.senderID, c.recipientID, config.InitialSequenceNumber, config.ReplayWindowSize)
	}
	return c, nil
}

// SenderID returns a copy of the sender ID.
func (c *SecurityContext) SenderID() []byte {
	return bytes.Clone(c.senderID)
}

// RecipientID returns a copy of the recipient ID.
func (c *SecurityContext) RecipientID() []byte {
	return bytes.Clone(c.recipientID)
}

// IDContext returns a copy of the ID Context, or nil if none is configured.
func (c *SecurityContext) IDContext() []byte {
	return bytes.Clone(c.idContext)
}

// SequenceNumber returns the next sender sequence number, for persistence.
func (c *SecurityContext) SequenceNumber() uint64 {
	return c.sequence.Current()
}

// NextSenderNonce reserves the next sender sequence number and builds the
// nonce for it from the sender ID.
// Returns ErrSequenceExhausted when the sequence number space is used up.
func (c *SecurityContext) NextSenderNonce() (nonce, partialIV []byte, err error) {
	c.senderMu.Lock()
	defer c.senderMu.Unlock()
	return c.nextSenderNonceLocked()
}

func (c *SecurityContext) nextSenderNonceLocked() (nonce, partialIV []byte, err error) {
	if c.destroyed {
		return nil, nil, ErrContextDestroyed
	}

	seq, err := c.sequence.Next()
	if err != nil {
		if c.log != nil {
			c.log.Warnf("sender sequence number exhausted, context must be re-established")
		}
		return nil, nil, err
	}

	partialIV = EncodePartialIV(seq)
	nonce, err = crypto.BuildOSCORENonce(c.commonIV, c.senderID, partialIV)
	if err != nil {
		return nil, nil, err
	}
	return nonce, partialIV, nil
}

// Destroy wipes the master secret, derived keys and Common IV. Every later
// operation on the context fails with ErrContextDestroyed.
func (c *SecurityContext) Destroy() {
	c.senderMu.Lock()
	defer c.senderMu.Unlock()
	c.recipientMu.Lock()
	defer c.recipientMu.Unlock()

	if c.destroyed {
		return
	}
	c.destroyed = true
	c.wipe()

	if c.log != nil {
		c.log.Debugf("destroyed context sender=%x recipient=%x", c.senderID, c.recipientID)
	}
}

// wipe zeroes the secret material held by the context.
func (c *SecurityContext) wipe() {
	clear(c.masterSecret)
	clear(c.masterSalt)
	clear(c.senderKey)
	clear(c.recipientKey)
	clear(c.commonIV)
	c.senderAEAD = nil
	c.recipientAEAD = nil
}

// IsDestroyed returns true once Destroy has been called.
func (c *SecurityContext) IsDestroyed() bool {
	c.senderMu.Lock()
	defer c.senderMu.Unlock()
	return c.destroyed
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

package oscore

import (
	"errors"
	"fmt"

	"github.com/backkem/oscore/pkg/coap"
)

// OSCORE package errors.
var (
	// ErrMissingSecurityIndicator is returned when a message lacks the OSCORE option.
	ErrMissingSecurityIndicator = errors.New("oscore: missing OSCORE option")

	// ErrMissingIdentity is returned when a request lacks a kid or partial IV.
	ErrMissingIdentity = errors.New("oscore: request lacks kid or partial IV")

	// ErrReplayRejected is returned when a partial IV was already accepted or
	// fell behind the replay window.
	ErrReplayRejected = errors.New("oscore: replay detected")

	// ErrMalformedOption is returned when the OSCORE option value claims more
	// bytes than it carries or sets reserved flag bits.
	ErrMalformedOption = errors.New("oscore: malformed OSCORE option")

	// ErrUnsupportedOption is matched by UnsupportedOptionError.
	ErrUnsupportedOption = errors.New("oscore: unsupported option")

	// ErrKeyDerivationFailed is returned when the context keys cannot be derived.
	// The context under construction is unusable.
	ErrKeyDerivationFailed = errors.New("oscore: key derivation failed")

	// ErrAuthenticationFailed is returned when the AEAD tag does not verify.
	ErrAuthenticationFailed = errors.New("oscore: authentication failed")

	// ErrEncodingFailed is returned when a structure cannot be serialized
	// within its bounds.
	ErrEncodingFailed = errors.New("oscore: encoding failed")

	// ErrSequenceExhausted is returned when the sender sequence number reached
	// its maximum. The context must be re-established.
	ErrSequenceExhausted = errors.New("oscore: sender sequence number exhausted")

	// ErrIDTooLong is returned when a sender or recipient ID exceeds MaxIDSize.
	ErrIDTooLong = errors.New("oscore: ID longer than 7 bytes")

	// ErrUnknownKID is returned when a request kid does not name a known context.
	ErrUnknownKID = errors.New("oscore: unknown kid")

	// ErrNonceReused is returned when a second response is protected under the
	// same request nonce.
	ErrNonceReused = errors.New("oscore: request nonce already used for a response")

	// ErrContextDestroyed is returned by operations on a destroyed context.
	ErrContextDestroyed = errors.New("oscore: security context destroyed")

	// ErrDuplicateContext is returned when adding a context whose recipient ID
	// is already in the table.
	ErrDuplicateContext = errors.New("oscore: duplicate recipient ID")

	// ErrContextTableFull is returned when no more contexts can be added.
	ErrContextTableFull = errors.New("oscore: context table full")
)

// UnsupportedOptionError reports an outer option that cannot be carried
// through OSCORE protection.
type UnsupportedOptionError struct {
	Option coap.OptionNumber
}

func (e *UnsupportedOptionError) Error() string {
	return fmt.Sprintf("oscore: unsupported option %v", e.Option)
}

// Is matches ErrUnsupportedOption.
func (e *UnsupportedOptionError) Is(err error) bool {
	return err == ErrUnsupportedOption
}

package oscore

import (
	"encoding/binary"
	"sync"
)

// Sequence number constants (RFC 8613 Section 7.2.1).
const (
	// MaxSequenceNumber is the largest sender sequence number, limited by
	// the 5-byte partial IV.
	MaxSequenceNumber uint64 = 1<<40 - 1

	// MaxPartialIVSize is the largest encoded partial IV.
	MaxPartialIVSize = 5
)

// SenderSequence manages the outgoing sender sequence number.
// It is safe for concurrent use.
type SenderSequence struct {
	next      uint64
	exhausted bool
	mu        sync.Mutex
}

// NewSenderSequence creates a sequence whose first value is initial.
// Used for new contexts (0) or restoring persisted counters.
func NewSenderSequence(initial uint64) *SenderSequence {
	return &SenderSequence{
		next:      initial,
		exhausted: initial > MaxSequenceNumber,
	}
}

// Next returns the next sequence number and increments the internal counter.
// Returns ErrSequenceExhausted once MaxSequenceNumber has been used; the
// context must be re-established.
func (s *SenderSequence) Next() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exhausted {
		return 0, ErrSequenceExhausted
	}

	current := s.next
	if current == MaxSequenceNumber {
		s.exhausted = true
	} else {
		s.next++
	}
	return current, nil
}

// Current returns the next sequence number Next would hand out.
func (s *SenderSequence) Current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// IsExhausted returns true if no sequence numbers remain.
func (s *SenderSequence) IsExhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exhausted
}

// EncodePartialIV returns the minimal big-endian encoding of a sequence
// number. Zero encodes as a single 0x00 byte.
func EncodePartialIV(seq uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)

	i := 0
	for i < len(buf)-1 && buf[i] == 0 {
		i++
	}
	out := make([]byte, len(buf)-i)
	copy(out, buf[i:])
	return out
}

// DecodePartialIV returns the sequence number carried by a partial IV.
// The partial IV must be 1 to MaxPartialIVSize bytes long.
func DecodePartialIV(piv []byte) (uint64, error) {
	if len(piv) == 0 || len(piv) > MaxPartialIVSize {
		return 0, ErrMalformedOption
	}
	var seq uint64
	for _, b := range piv {
		seq = seq<<8 | uint64(b)
	}
	return seq, nil
}

package oscore

import "bytes"

// OSCORE option value flag bits (RFC 8613 Section 6.1).
//
//	 0 1 2 3 4 5 6 7
//	|0 0 0|h|k|  n  |
const (
	// flagPIVLengthMask is the partial IV length n (bits 0-2).
	flagPIVLengthMask byte = 0x07

	// flagKIDPresent is the k flag (bit 3).
	flagKIDPresent byte = 0x08

	// flagKIDContext is the h flag (bit 4). Not supported.
	flagKIDContext byte = 0x10

	// flagReserved covers bits 5-7, which must be zero.
	flagReserved byte = 0xE0

	// MaxOptionPartialIVSize is the largest partial IV length the flag byte encodes.
	MaxOptionPartialIVSize = 7
)

// CompressOption encodes a kid and partial IV into an OSCORE option value.
//
// A nil kid is absent; an empty non-nil kid is present with zero length.
// An empty partial IV is absent. Both absent encodes to a zero-length value.
func CompressOption(kid, partialIV []byte) ([]byte, error) {
	if len(partialIV) > MaxOptionPartialIVSize {
		return nil, ErrEncodingFailed
	}
	if kid == nil && len(partialIV) == 0 {
		return []byte{}, nil
	}

	flag := byte(len(partialIV))
	if kid != nil {
		flag |= flagKIDPresent
	}

	out := make([]byte, 0, 1+len(partialIV)+len(kid))
	out = append(out, flag)
	out = append(out, partialIV...)
	out = append(out, kid...)
	return out, nil
}

// DecompressOption decodes an OSCORE option value into kid and partial IV.
// Absent fields are returned as nil; a present empty kid is non-nil. The
// returned slices do not alias value.
//
// Returns ErrMalformedOption if the declared partial IV length exceeds the
// remaining bytes, bytes remain without the k flag, a non-empty value has
// no flag bits set, or the h or reserved bits are set.
func DecompressOption(value []byte) (kid, partialIV []byte, err error) {
	if len(value) == 0 {
		return nil, nil, nil
	}

	flag := value[0]
	rest := value[1:]

	if flag == 0 || flag&(flagReserved|flagKIDContext) != 0 {
		return nil, nil, ErrMalformedOption
	}

	n := int(flag & flagPIVLengthMask)
	if n > len(rest) {
		return nil, nil, ErrMalformedOption
	}
	if n > 0 {
		partialIV = bytes.Clone(rest[:n])
	}
	rest = rest[n:]

	if flag&flagKIDPresent != 0 {
		kid = append([]byte{}, rest...)
	} else if len(rest) > 0 {
		return nil, nil, ErrMalformedOption
	}

	return kid, partialIV, nil
}

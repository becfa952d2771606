package coap

import (
	"encoding/binary"
	"sort"
	"strings"
)

// Option is a single CoAP option instance.
type Option struct {
	Number OptionNumber
	Value  []byte
}

// Options is an ordered option list. Repeated options keep their relative order.
type Options []Option

// Get returns the value of the first option with the given number.
func (o Options) Get(n OptionNumber) ([]byte, bool) {
	for _, opt := range o {
		if opt.Number == n {
			return opt.Value, true
		}
	}
	return nil, false
}

// Has returns true if at least one option with the given number is present.
func (o Options) Has(n OptionNumber) bool {
	_, ok := o.Get(n)
	return ok
}

// All returns the values of every option with the given number, in order.
func (o Options) All(n OptionNumber) [][]byte {
	var values [][]byte
	for _, opt := range o {
		if opt.Number == n {
			values = append(values, opt.Value)
		}
	}
	return values
}

// Remove returns a copy of the list without options of the given number.
func (o Options) Remove(n OptionNumber) Options {
	out := make(Options, 0, len(o))
	for _, opt := range o {
		if opt.Number != n {
			out = append(out, opt)
		}
	}
	return out
}

// Set replaces every option of the given number with a single instance.
func (o Options) Set(n OptionNumber, value []byte) Options {
	return append(o.Remove(n), Option{Number: n, Value: value})
}

// Sorted returns a copy of the list sorted by option number. The sort is
// stable so repeated options stay in order.
func (o Options) Sorted() Options {
	out := make(Options, len(o))
	copy(out, o)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Number < out[j].Number
	})
	return out
}

// Path returns the Uri-Path options joined into an absolute path.
func (o Options) Path() string {
	var b strings.Builder
	for _, seg := range o.All(OptionURIPath) {
		b.WriteByte('/')
		b.Write(seg)
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// SetPath replaces the Uri-Path options with the segments of path.
func (o Options) SetPath(path string) Options {
	out := o.Remove(OptionURIPath)
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" {
			continue
		}
		out = append(out, Option{Number: OptionURIPath, Value: []byte(seg)})
	}
	return out
}

// EncodedSize returns the number of bytes EncodeOptions writes for the list
// and payload.
func EncodedSize(opts Options, payload []byte) int {
	size := 0
	prev := OptionNumber(0)
	for _, opt := range opts.Sorted() {
		size += 1 + extSize(uint32(opt.Number-prev)) + extSize(uint32(len(opt.Value))) + len(opt.Value)
		prev = opt.Number
	}
	if len(payload) > 0 {
		size += 1 + len(payload)
	}
	return size
}

// EncodeOptions serializes an option list followed by an optional payload:
// the options in delta encoding, then PayloadMarker and the payload when the
// payload is non-empty.
func EncodeOptions(opts Options, payload []byte) ([]byte, error) {
	buf := make([]byte, 0, EncodedSize(opts, payload))
	return AppendOptions(buf, opts, payload)
}

// AppendOptions appends the encoding of EncodeOptions to dst.
func AppendOptions(dst []byte, opts Options, payload []byte) ([]byte, error) {
	prev := OptionNumber(0)
	for _, opt := range opts.Sorted() {
		if len(opt.Value) > MaxOptionValueLength {
			return nil, ErrOptionTooLong
		}
		delta := uint32(opt.Number - prev)
		length := uint32(len(opt.Value))

		dst = append(dst, nibble(delta)<<4|nibble(length))
		dst = appendExt(dst, delta)
		dst = appendExt(dst, length)
		dst = append(dst, opt.Value...)
		prev = opt.Number
	}
	if len(payload) > 0 {
		dst = append(dst, PayloadMarker)
		dst = append(dst, payload...)
	}
	return dst, nil
}

// DecodeOptions parses an option list followed by an optional payload.
// A payload marker with nothing after it is malformed. Returned slices alias data.
func DecodeOptions(data []byte) (Options, []byte, error) {
	var opts Options
	number := uint32(0)
	offset := 0

	for offset < len(data) {
		head := data[offset]
		offset++

		if head == PayloadMarker {
			if offset == len(data) {
				return nil, nil, ErrEmptyPayload
			}
			return opts, data[offset:], nil
		}

		delta, n, err := readExt(data[offset:], head>>4)
		if err != nil {
			return nil, nil, err
		}
		offset += n

		length, n, err := readExt(data[offset:], head&0x0F)
		if err != nil {
			return nil, nil, err
		}
		offset += n

		number += delta
		if number > 0xFFFF {
			return nil, nil, ErrOptionOutOfRange
		}
		if uint32(len(data)-offset) < length {
			return nil, nil, ErrOptionTruncated
		}

		opts = append(opts, Option{
			Number: OptionNumber(number),
			Value:  data[offset : offset+int(length)],
		})
		offset += int(length)
	}

	return opts, nil, nil
}

// nibble returns the 4-bit field value for a delta or length.
func nibble(v uint32) byte {
	switch {
	case v < ext8Offset:
		return byte(v)
	case v < ext16Offset:
		return nibbleExt8
	default:
		return nibbleExt16
	}
}

// extSize returns the number of extension bytes for a delta or length.
func extSize(v uint32) int {
	switch {
	case v < ext8Offset:
		return 0
	case v < ext16Offset:
		return 1
	default:
		return 2
	}
}

func appendExt(dst []byte, v uint32) []byte {
	switch {
	case v < ext8Offset:
		return dst
	case v < ext16Offset:
		return append(dst, byte(v-ext8Offset))
	default:
		return binary.BigEndian.AppendUint16(dst, uint16(v-ext16Offset))
	}
}

// readExt resolves a nibble and its extension bytes from data.
// Returns the value and the number of extension bytes consumed.
func readExt(data []byte, nib byte) (uint32, int, error) {
	switch nib {
	case nibbleExt8:
		if len(data) < 1 {
			return 0, 0, ErrOptionTruncated
		}
		return uint32(data[0]) + ext8Offset, 1, nil
	case nibbleExt16:
		if len(data) < 2 {
			return 0, 0, ErrOptionTruncated
		}
		return uint32(binary.BigEndian.Uint16(data)) + ext16Offset, 2, nil
	case nibbleReserved:
		return 0, 0, ErrReservedNibble
	default:
		return uint32(nib), 0, nil
	}
}

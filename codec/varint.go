// Package codec implements the primitive wire encodings of the game protocol:
// variable-length integers, fixed-width big-endian integers, booleans and
// length-prefixed strings, all operating on a cursor-based frame Buffer.
package codec

import "errors"

const (
	// MaxVarIntLen32 is the maximum number of 7-bit groups of a 32-bit varint.
	MaxVarIntLen32 = 5
	// MaxVarIntLen64 is the maximum number of 7-bit groups of a 64-bit varint.
	MaxVarIntLen64 = 10

	_continueBit = 0x80
	_groupMask   = 0x7F
)

// ErrVarIntTooLong is returned when a varint has more groups than its type allows.
var ErrVarIntTooLong = errors.New("codec: varint too long")

// AppendVarUint64 appends the varint encoding of v to dst.
func AppendVarUint64(dst []byte, v uint64) []byte {
	for v >= _continueBit {
		dst = append(dst, byte(v&_groupMask)|_continueBit)
		v >>= 7
	}
	return append(dst, byte(v))
}

// AppendVarUint32 appends the varint encoding of v to dst.
func AppendVarUint32(dst []byte, v uint32) []byte {
	return AppendVarUint64(dst, uint64(v))
}

// AppendVarInt32 appends v using its two's complement bit pattern, so negative
// values always take five groups.
func AppendVarInt32(dst []byte, v int32) []byte {
	return AppendVarUint64(dst, uint64(uint32(v)))
}

// AppendVarInt64 appends v using its two's complement bit pattern.
func AppendVarInt64(dst []byte, v int64) []byte {
	return AppendVarUint64(dst, uint64(v))
}

// VarUintSize returns the number of bytes AppendVarUint64 would produce.
func VarUintSize(v uint64) int {
	n := 1
	for v >= _continueBit {
		v >>= 7
		n++
	}
	return n
}

// DecodeVarUint64 decodes a varint from the start of src, allowing at most
// maxGroups groups. It returns the value and the number of bytes consumed.
func DecodeVarUint64(src []byte, maxGroups int) (uint64, int, error) {
	var r VarIntReader
	r.Reset(maxGroups)
	for i, b := range src {
		more, err := r.AppendByte(b)
		if err != nil {
			return 0, 0, err
		}
		if !more {
			return r.Value(), i + 1, nil
		}
	}
	return 0, 0, ErrOutOfBounds
}

// VarIntReader assembles a varint one byte at a time. It is used where the
// width of a varint is not known up front, such as the frame length header.
// The zero value accepts up to MaxVarIntLen64 groups.
type VarIntReader struct {
	value     uint64
	n         int
	maxGroups int
}

// NewVarIntReader creates a reader bounded to maxGroups groups.
func NewVarIntReader(maxGroups int) *VarIntReader {
	r := &VarIntReader{}
	r.Reset(maxGroups)
	return r
}

// Reset clears the accumulated value so the reader can assemble the next varint.
func (r *VarIntReader) Reset(maxGroups int) {
	r.value = 0
	r.n = 0
	r.maxGroups = maxGroups
}

// AppendByte adds the next byte of the sequence. It reports whether more
// bytes are expected.
func (r *VarIntReader) AppendByte(b byte) (more bool, _ error) {
	limit := r.maxGroups
	if limit <= 0 || limit > MaxVarIntLen64 {
		limit = MaxVarIntLen64
	}
	if r.n >= limit {
		return false, ErrVarIntTooLong
	}

	r.value |= uint64(b&_groupMask) << (7 * r.n)
	r.n++

	more = b&_continueBit != 0
	if more && r.n >= limit {
		return false, ErrVarIntTooLong
	}
	return more, nil
}

// Value returns the assembled value.
func (r *VarIntReader) Value() uint64 {
	return r.value
}

// Len returns the number of groups consumed so far.
func (r *VarIntReader) Len() int {
	return r.n
}

package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// MaxStringLength is the largest declared string length ReadString accepts.
const MaxStringLength = 4096

const _defaultBufferCap = 512

var (
	// ErrOutOfBounds is returned when a read would run past the end of the buffer.
	ErrOutOfBounds = errors.New("codec: read past end of buffer")
	// ErrStringTooLong is returned when a string declares more than MaxStringLength bytes.
	ErrStringTooLong = errors.New("codec: string too long")
)

// Buffer is a growable byte sequence with a single read/write cursor.
// Writes at the cursor overwrite existing bytes and grow the buffer when they
// pass its end; reads past the end fail and leave the cursor untouched.
// A Buffer is not safe for concurrent use.
type Buffer struct {
	data []byte
	pos  int
}

// NewBuffer creates an empty buffer ready for writing.
func NewBuffer() *Buffer {
	return &Buffer{data: make([]byte, 0, _defaultBufferCap)}
}

// NewBufferFrom wraps data; the cursor starts at 0. The buffer takes ownership of data.
func NewBufferFrom(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Bytes returns the full contents regardless of the cursor.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the length of the contents.
func (b *Buffer) Len() int { return len(b.data) }

// Pos returns the cursor position.
func (b *Buffer) Pos() int { return b.pos }

// Remaining returns the number of bytes between the cursor and the end.
func (b *Buffer) Remaining() int { return len(b.data) - b.pos }

// Rewind moves the cursor back to the start.
func (b *Buffer) Rewind() { b.pos = 0 }

// Seek moves the cursor to pos, which must lie within [0, Len()].
func (b *Buffer) Seek(pos int) error {
	if pos < 0 || pos > len(b.data) {
		return fmt.Errorf("seek to %d of %d: %w", pos, len(b.data), ErrOutOfBounds)
	}
	b.pos = pos
	return nil
}

// Write copies p at the cursor, growing the buffer as needed. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.data) {
		if end > cap(b.data) {
			grown := make([]byte, end, max(end, 2*cap(b.data)))
			copy(grown, b.data)
			b.data = grown
		} else {
			b.data = b.data[:end]
		}
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

// WriteByte writes a single byte at the cursor.
func (b *Buffer) WriteByte(c byte) error {
	_, _ = b.Write([]byte{c})
	return nil
}

// Next returns the next n bytes and advances the cursor. The returned slice
// aliases the buffer.
func (b *Buffer) Next(n int) ([]byte, error) {
	if n < 0 || n > b.Remaining() {
		return nil, fmt.Errorf("need %d bytes, have %d: %w", n, b.Remaining(), ErrOutOfBounds)
	}
	p := b.data[b.pos : b.pos+n]
	b.pos += n
	return p, nil
}

// Read copies exactly len(p) bytes into p or fails without moving the cursor.
func (b *Buffer) Read(p []byte) (int, error) {
	src, err := b.Next(len(p))
	if err != nil {
		return 0, err
	}
	return copy(p, src), nil
}

// ReadByte reads one byte.
func (b *Buffer) ReadByte() (byte, error) {
	if b.pos >= len(b.data) {
		return 0, ErrOutOfBounds
	}
	c := b.data[b.pos]
	b.pos++
	return c, nil
}

// WriteBool writes v as a single 0/1 byte.
func (b *Buffer) WriteBool(v bool) {
	if v {
		_ = b.WriteByte(1)
		return
	}
	_ = b.WriteByte(0)
}

// ReadBool reads one byte; any non-zero value is true.
func (b *Buffer) ReadBool() (bool, error) {
	c, err := b.ReadByte()
	return c != 0, err
}

// WriteUint8 writes v as one byte.
func (b *Buffer) WriteUint8(v uint8) { _ = b.WriteByte(v) }

// WriteInt8 writes v as one two's complement byte.
func (b *Buffer) WriteInt8(v int8) { _ = b.WriteByte(byte(v)) }

// ReadUint8 reads one byte.
func (b *Buffer) ReadUint8() (uint8, error) { return b.ReadByte() }

// ReadInt8 reads one byte as a signed value.
func (b *Buffer) ReadInt8() (int8, error) {
	c, err := b.ReadByte()
	return int8(c), err
}

// WriteUint16 writes v in network byte order.
func (b *Buffer) WriteUint16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	_, _ = b.Write(tmp[:])
}

// ReadUint16 reads a network byte order uint16.
func (b *Buffer) ReadUint16() (uint16, error) {
	p, err := b.Next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p), nil
}

// WriteInt16 writes v in network byte order.
func (b *Buffer) WriteInt16(v int16) { b.WriteUint16(uint16(v)) }

// ReadInt16 reads a network byte order int16.
func (b *Buffer) ReadInt16() (int16, error) {
	v, err := b.ReadUint16()
	return int16(v), err
}

// WriteUint32 writes v in network byte order.
func (b *Buffer) WriteUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	_, _ = b.Write(tmp[:])
}

// ReadUint32 reads a network byte order uint32.
func (b *Buffer) ReadUint32() (uint32, error) {
	p, err := b.Next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}

// WriteInt32 writes v in network byte order.
func (b *Buffer) WriteInt32(v int32) { b.WriteUint32(uint32(v)) }

// ReadInt32 reads a network byte order int32.
func (b *Buffer) ReadInt32() (int32, error) {
	v, err := b.ReadUint32()
	return int32(v), err
}

// WriteUint64 writes v in network byte order.
func (b *Buffer) WriteUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	_, _ = b.Write(tmp[:])
}

// ReadUint64 reads a network byte order uint64.
func (b *Buffer) ReadUint64() (uint64, error) {
	p, err := b.Next(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(p), nil
}

// WriteInt64 writes v in network byte order.
func (b *Buffer) WriteInt64(v int64) { b.WriteUint64(uint64(v)) }

// ReadInt64 reads a network byte order int64.
func (b *Buffer) ReadInt64() (int64, error) {
	v, err := b.ReadUint64()
	return int64(v), err
}

// WriteVarUint writes a 32-bit unsigned varint.
func (b *Buffer) WriteVarUint(v uint32) {
	var tmp [MaxVarIntLen32]byte
	_, _ = b.Write(AppendVarUint32(tmp[:0], v))
}

// WriteVarInt writes a 32-bit signed varint.
func (b *Buffer) WriteVarInt(v int32) {
	b.WriteVarUint(uint32(v))
}

// WriteVarLong writes a 64-bit signed varint.
func (b *Buffer) WriteVarLong(v int64) {
	var tmp [MaxVarIntLen64]byte
	_, _ = b.Write(AppendVarInt64(tmp[:0], v))
}

func (b *Buffer) readVar(maxGroups int) (uint64, error) {
	v, n, err := DecodeVarUint64(b.data[b.pos:], maxGroups)
	if err != nil {
		return 0, err
	}
	b.pos += n
	return v, nil
}

// ReadVarUint reads a 32-bit unsigned varint.
func (b *Buffer) ReadVarUint() (uint32, error) {
	v, err := b.readVar(MaxVarIntLen32)
	return uint32(v), err
}

// ReadVarInt reads a 32-bit signed varint.
func (b *Buffer) ReadVarInt() (int32, error) {
	v, err := b.readVar(MaxVarIntLen32)
	return int32(uint32(v)), err
}

// ReadVarLong reads a 64-bit signed varint.
func (b *Buffer) ReadVarLong() (int64, error) {
	v, err := b.readVar(MaxVarIntLen64)
	return int64(v), err
}

// WriteString writes a varint byte length followed by the raw bytes of s.
func (b *Buffer) WriteString(s string) {
	b.WriteVarUint(uint32(len(s)))
	_, _ = b.Write([]byte(s))
}

// ReadString reads a length-prefixed string of at most MaxStringLength bytes.
func (b *Buffer) ReadString() (string, error) {
	start := b.pos
	n, err := b.ReadVarUint()
	if err != nil {
		return "", err
	}
	if n > MaxStringLength {
		b.pos = start
		return "", fmt.Errorf("declared %d bytes, max %d: %w", n, MaxStringLength, ErrStringTooLong)
	}
	p, err := b.Next(int(n))
	if err != nil {
		b.pos = start
		return "", err
	}
	return string(p), nil
}

// HexDump renders the whole buffer, 16 bytes per line, for diagnostics.
func (b *Buffer) HexDump() string {
	return HexDump(b.data)
}

// HexDump renders data as lowercase hex pairs, 16 bytes per line, each line
// preceded by a newline.
func HexDump(data []byte) string {
	const hexDigits = "0123456789abcdef"

	var sb strings.Builder
	sb.Grow(len(data)*3 + len(data)/16 + 1)
	sb.WriteByte('\n')
	for i, c := range data {
		if i > 0 && i%16 == 0 {
			sb.WriteByte('\n')
		}
		sb.WriteByte(hexDigits[c>>4])
		sb.WriteByte(hexDigits[c&0x0F])
		sb.WriteByte(' ')
	}
	return sb.String()
}

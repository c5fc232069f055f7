package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferReadPastEndFails(t *testing.T) {
	buf := NewBufferFrom([]byte{1, 2, 3})

	_, err := buf.Next(4)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.Equal(t, 0, buf.Pos(), "failed read must not move the cursor")

	_, err = buf.ReadUint32()
	assert.ErrorIs(t, err, ErrOutOfBounds)

	p, err := buf.Next(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, p)

	_, err = buf.ReadByte()
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = buf.ReadBool()
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestBufferWriteGrowsWithoutLosingData(t *testing.T) {
	buf := NewBufferFrom([]byte{0xaa, 0xbb})
	require.NoError(t, buf.Seek(2))

	big := make([]byte, 2000)
	for i := range big {
		big[i] = byte(i)
	}
	n, err := buf.Write(big)
	require.NoError(t, err)
	assert.Equal(t, len(big), n)
	assert.Equal(t, 2002, buf.Len())
	assert.Equal(t, []byte{0xaa, 0xbb}, buf.Bytes()[:2])
	assert.Equal(t, big, buf.Bytes()[2:])
}

func TestBufferOverwriteInMiddle(t *testing.T) {
	buf := NewBufferFrom([]byte{1, 2, 3, 4})
	require.NoError(t, buf.Seek(1))
	buf.WriteUint16(0x0909)
	assert.Equal(t, []byte{1, 9, 9, 4}, buf.Bytes())
	assert.Equal(t, 3, buf.Pos())

	// straddle the end
	buf.WriteUint16(0x0707)
	assert.Equal(t, []byte{1, 9, 9, 7, 7}, buf.Bytes())
}

func TestBufferSeekBounds(t *testing.T) {
	buf := NewBufferFrom([]byte{1, 2})
	assert.NoError(t, buf.Seek(2))
	assert.ErrorIs(t, buf.Seek(3), ErrOutOfBounds)
	assert.ErrorIs(t, buf.Seek(-1), ErrOutOfBounds)
}

func TestFixedWidthIsBigEndian(t *testing.T) {
	buf := NewBuffer()
	buf.WriteUint16(25565)
	buf.WriteInt32(-2)
	buf.WriteUint64(123456789)
	buf.WriteInt8(-1)
	buf.WriteUint8(10)

	assert.Equal(t, []byte{
		0x63, 0xdd,
		0xff, 0xff, 0xff, 0xfe,
		0x00, 0x00, 0x00, 0x00, 0x07, 0x5b, 0xcd, 0x15,
		0xff,
		0x0a,
	}, buf.Bytes())

	buf.Rewind()
	port, err := buf.ReadUint16()
	require.NoError(t, err)
	assert.EqualValues(t, 25565, port)

	i32, err := buf.ReadInt32()
	require.NoError(t, err)
	assert.EqualValues(t, -2, i32)

	u64, err := buf.ReadUint64()
	require.NoError(t, err)
	assert.EqualValues(t, 123456789, u64)

	i8, err := buf.ReadInt8()
	require.NoError(t, err)
	assert.EqualValues(t, -1, i8)

	u8, err := buf.ReadUint8()
	require.NoError(t, err)
	assert.EqualValues(t, 10, u8)
}

func TestBoolEncoding(t *testing.T) {
	buf := NewBuffer()
	buf.WriteBool(true)
	buf.WriteBool(false)
	assert.Equal(t, []byte{1, 0}, buf.Bytes())

	v, err := NewBufferFrom([]byte{7}).ReadBool()
	require.NoError(t, err)
	assert.True(t, v)
}

func TestStringRoundTrip(t *testing.T) {
	buf := NewBuffer()
	buf.WriteString("localhost")
	assert.Equal(t, append([]byte{9}, "localhost"...), buf.Bytes())

	buf.Rewind()
	s, err := buf.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "localhost", s)
}

func TestStringLengthLimit(t *testing.T) {
	exact := strings.Repeat("x", MaxStringLength)
	buf := NewBuffer()
	buf.WriteString(exact)
	buf.Rewind()
	s, err := buf.ReadString()
	require.NoError(t, err)
	assert.Equal(t, exact, s)

	// writing is unbounded, reading is not
	tooLong := strings.Repeat("y", MaxStringLength+1)
	buf = NewBuffer()
	buf.WriteString(tooLong)
	assert.Equal(t, MaxStringLength+1+2, buf.Len())
	buf.Rewind()
	_, err = buf.ReadString()
	assert.ErrorIs(t, err, ErrStringTooLong)
	assert.Equal(t, 0, buf.Pos())
}

func TestStringDeclaredLongerThanBuffer(t *testing.T) {
	buf := NewBufferFrom([]byte{5, 'a', 'b'})
	_, err := buf.ReadString()
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestHexDump(t *testing.T) {
	data := make([]byte, 18)
	for i := range data {
		data[i] = byte(i)
	}
	want := "\n00 01 02 03 04 05 06 07 08 09 0a 0b 0c 0d 0e 0f \n10 11 "
	assert.Equal(t, want, NewBufferFrom(data).HexDump())
	assert.Equal(t, "\n", HexDump(nil))
}

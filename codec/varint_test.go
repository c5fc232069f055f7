package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarUintRoundTrip(t *testing.T) {
	cases := []struct {
		value  uint64
		groups int
	}{
		{0, 1},
		{1, 1},
		{127, 1},
		{128, 2},
		{255, 2},
		{16383, 2},
		{16384, 3},
		{2097151, 3},
		{2097152, 4},
		{math.MaxUint32, 5},
		{math.MaxInt64, 9},
		{math.MaxUint64, 10},
	}

	for _, c := range cases {
		enc := AppendVarUint64(nil, c.value)
		assert.Len(t, enc, c.groups, "value %d", c.value)
		assert.Equal(t, c.groups, VarUintSize(c.value))

		got, n, err := DecodeVarUint64(enc, MaxVarIntLen64)
		require.NoError(t, err, "value %d", c.value)
		assert.Equal(t, c.value, got)
		assert.Equal(t, len(enc), n)
	}
}

func TestVarIntKnownEncodings(t *testing.T) {
	assert.Equal(t, []byte{0x00}, AppendVarInt32(nil, 0))
	assert.Equal(t, []byte{0x7f}, AppendVarInt32(nil, 127))
	assert.Equal(t, []byte{0x80, 0x01}, AppendVarInt32(nil, 128))
	assert.Equal(t, []byte{0xff, 0x7f}, AppendVarInt32(nil, 16383))
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0x07}, AppendVarInt32(nil, math.MaxInt32))
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, AppendVarInt32(nil, -1))
	assert.Equal(t, []byte{0x80, 0x80, 0x80, 0x80, 0x08}, AppendVarInt32(nil, math.MinInt32))
}

func TestVarInt32SignedRoundTrip(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 47, 25565, math.MaxInt32, math.MinInt32} {
		buf := NewBuffer()
		buf.WriteVarInt(v)
		buf.Rewind()

		got, err := buf.ReadVarInt()
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, 0, buf.Remaining())
	}
}

func TestVarLongRoundTrip(t *testing.T) {
	for _, v := range []int64{0, -1, math.MaxInt64, math.MinInt64, 1 << 40} {
		buf := NewBuffer()
		buf.WriteVarLong(v)
		buf.Rewind()

		got, err := buf.ReadVarLong()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestVarIntReaderByteAtATime(t *testing.T) {
	r := NewVarIntReader(MaxVarIntLen32)
	enc := AppendVarUint32(nil, 300)

	for i, b := range enc {
		more, err := r.AppendByte(b)
		require.NoError(t, err)
		assert.Equal(t, i < len(enc)-1, more)
	}
	assert.EqualValues(t, 300, r.Value())
	assert.Equal(t, 2, r.Len())

	// reusable after reset
	r.Reset(MaxVarIntLen32)
	more, err := r.AppendByte(0x05)
	require.NoError(t, err)
	assert.False(t, more)
	assert.EqualValues(t, 5, r.Value())
}

func TestVarIntReaderStopsAtMaxGroups(t *testing.T) {
	r := NewVarIntReader(MaxVarIntLen32)
	for i := 0; i < MaxVarIntLen32-1; i++ {
		more, err := r.AppendByte(0xff)
		require.NoError(t, err)
		assert.True(t, more)
	}
	_, err := r.AppendByte(0xff)
	assert.ErrorIs(t, err, ErrVarIntTooLong)
}

func TestDecodeVarUintErrors(t *testing.T) {
	_, _, err := DecodeVarUint64([]byte{0x80, 0x80}, MaxVarIntLen32)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, _, err = DecodeVarUint64([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}, MaxVarIntLen32)
	assert.ErrorIs(t, err, ErrVarIntTooLong)

	_, _, err = DecodeVarUint64(nil, MaxVarIntLen32)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

package protocol

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcx/mcgate/codec"
)

const _statusLiteral = `{"description":"Bariumsulfate","players":{"max":20,"online":0},"version":{"name":"1.8","protocol":47}}`

type sentFrame struct {
	data  []byte
	force bool
}

type fakeSender struct {
	mu        sync.Mutex
	frames    []sentFrame
	shutdowns int
}

func (s *fakeSender) Send(frame []byte, forceFlush bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, sentFrame{data: append([]byte(nil), frame...), force: forceFlush})
}

func (s *fakeSender) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdowns++
}

func (s *fakeSender) RemoteAddr() string { return "127.0.0.1:50000" }

func newTestClient() (*Client, *fakeSender) {
	sender := &fakeSender{}
	return NewClient(sender, nil, nil, nil), sender
}

func handshake(version int32, host string, port uint16, next int32) []byte {
	b := codec.NewBuffer()
	b.WriteVarUint(uint32(OpHandshake))
	b.WriteVarInt(version)
	b.WriteString(host)
	b.WriteUint16(port)
	b.WriteVarInt(next)
	return b.Bytes()
}

func loginStart(name string) []byte {
	b := codec.NewBuffer()
	b.WriteVarUint(uint32(OpLoginStart))
	b.WriteString(name)
	return b.Bytes()
}

func TestHandshake_ToStatus(t *testing.T) {
	c, sender := newTestClient()

	require.NoError(t, c.Submit(handshake(47, "localhost", 25565, 1)))

	assert.Equal(t, StateStatus, c.State())
	assert.Empty(t, sender.frames)
	assert.Zero(t, sender.shutdowns)
}

func TestHandshake_ToLogin(t *testing.T) {
	c, sender := newTestClient()

	require.NoError(t, c.Submit(handshake(47, "localhost", 25565, 2)))

	assert.Equal(t, StateLogin, c.State())
	assert.Empty(t, sender.frames)
}

func TestHandshake_InvalidNextState(t *testing.T) {
	for _, next := range []int32{0, 3, -1, 1000} {
		c, sender := newTestClient()

		err := c.Submit(handshake(47, "localhost", 25565, next))

		require.ErrorIs(t, err, ErrInvalidState, "next state %d", next)
		assert.Equal(t, StateFresh, c.State())
		assert.Equal(t, 1, sender.shutdowns)
	}
}

func TestHandshake_VersionMismatch(t *testing.T) {
	c, sender := newTestClient()

	// next state 2 is valid, the version alone must reject the client
	err := c.Submit(handshake(5, "localhost", 25565, 2))

	require.ErrorIs(t, err, ErrProtocolVersionMismatch)
	assert.Equal(t, StateFresh, c.State())
	assert.Equal(t, 1, sender.shutdowns)
	assert.Empty(t, sender.frames)
}

func TestHandshake_VersionMismatchWithTruncatedPacket(t *testing.T) {
	c, sender := newTestClient()
	frame := handshake(5, "localhost", 25565, 2)

	// the packet is parsed completely before the version is judged
	err := c.Submit(frame[:len(frame)-1])

	require.ErrorIs(t, err, ErrMalformedFrame)
	assert.Equal(t, StateFresh, c.State())
	assert.Equal(t, 1, sender.shutdowns)
}

func TestStatusRequest(t *testing.T) {
	c, sender := newTestClient()
	require.NoError(t, c.Submit(handshake(47, "localhost", 25565, 1)))

	require.NoError(t, c.Submit([]byte{0x00}))

	require.Len(t, sender.frames, 1)
	expected := append([]byte{0x00}, codec.AppendVarUint32(nil, uint32(len(_statusLiteral)))...)
	expected = append(expected, _statusLiteral...)
	assert.Equal(t, expected, sender.frames[0].data)
	assert.False(t, sender.frames[0].force)
	assert.Equal(t, StateStatus, c.State())
}

func TestStatusPing_ForceFlushed(t *testing.T) {
	c, sender := newTestClient()
	require.NoError(t, c.Submit(handshake(47, "localhost", 25565, 1)))

	ping := codec.NewBuffer()
	ping.WriteVarUint(uint32(OpStatusPing))
	ping.WriteUint64(123456789)
	require.NoError(t, c.Submit(ping.Bytes()))

	require.Len(t, sender.frames, 1)
	assert.Equal(t, []byte{0x01, 0, 0, 0, 0, 0x07, 0x5b, 0xcd, 0x15}, sender.frames[0].data)
	assert.True(t, sender.frames[0].force)
}

func TestStatusPing_ShortPayload(t *testing.T) {
	c, sender := newTestClient()
	require.NoError(t, c.Submit(handshake(47, "localhost", 25565, 1)))

	err := c.Submit([]byte{0x01, 0x00, 0x01})

	require.ErrorIs(t, err, ErrMalformedFrame)
	require.ErrorIs(t, err, codec.ErrOutOfBounds)
	assert.Equal(t, 1, sender.shutdowns)
}

func TestLoginStart(t *testing.T) {
	c, sender := newTestClient()
	require.NoError(t, c.Submit(handshake(47, "localhost", 25565, 2)))

	require.NoError(t, c.Submit(loginStart("Steve")))

	require.Len(t, sender.frames, 2)

	success := codec.NewBuffer()
	success.WriteVarUint(0x02)
	success.WriteString("d99974de-50e1-4861-bb7a-60e0e59cf611")
	success.WriteString("Steve")
	assert.Equal(t, success.Bytes(), sender.frames[0].data)

	joinGame := []byte{
		0x01,       // opcode
		0, 0, 0, 0, // entity id
		0,    // game mode
		0,    // dimension
		0,    // difficulty
		0x0a, // max players
		0x04, 'f', 'l', 'a', 't',
		0x01, // reduced debug info
	}
	assert.Equal(t, joinGame, sender.frames[1].data)
	assert.False(t, sender.frames[0].force)
	assert.False(t, sender.frames[1].force)
}

// Login answers with join game but does not move the client to play, so the
// play table is unreachable from the wire until a promotion is added.
func TestLoginStart_StaysInLoginState(t *testing.T) {
	c, _ := newTestClient()
	require.NoError(t, c.Submit(handshake(47, "localhost", 25565, 2)))
	require.NoError(t, c.Submit(loginStart("Steve")))

	assert.Equal(t, StateLogin, c.State())
	assert.NotEqual(t, StatePlay, c.State())
}

func TestInvalidOpcode(t *testing.T) {
	cases := []struct {
		name  string
		setup [][]byte
		frame []byte
	}{
		{name: "fresh", frame: []byte{0x01}},
		{name: "status", setup: [][]byte{handshake(47, "h", 1, 1)}, frame: []byte{0x02}},
		{name: "login", setup: [][]byte{handshake(47, "h", 1, 2)}, frame: []byte{0x01}},
		{name: "multi byte opcode", frame: []byte{0x80, 0x01}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, sender := newTestClient()
			for _, f := range tc.setup {
				require.NoError(t, c.Submit(f))
			}
			before := c.State()

			err := c.Submit(tc.frame)

			require.ErrorIs(t, err, ErrInvalidOpcode)
			assert.Equal(t, before, c.State())
			assert.Equal(t, 1, sender.shutdowns)
		})
	}
}

func TestMalformedOpcode(t *testing.T) {
	for _, frame := range [][]byte{{}, {0x80}, {0xff, 0xff, 0xff, 0xff, 0xff, 0x01}} {
		c, sender := newTestClient()

		err := c.Submit(frame)

		require.ErrorIs(t, err, ErrMalformedFrame)
		assert.Equal(t, 1, sender.shutdowns)
	}
}

func TestPlayOpcodesAreUnhandled(t *testing.T) {
	c, sender := newTestClient()
	c.state = StatePlay

	for op := OpKeepAlive; op <= OpResourcePackStatus; op++ {
		require.NoError(t, c.Submit([]byte{byte(op), 0xde, 0xad}), "opcode 0x%02x", op)
	}
	assert.Zero(t, sender.shutdowns)
	assert.Empty(t, sender.frames)

	err := c.Submit([]byte{byte(OpResourcePackStatus) + 1})
	require.ErrorIs(t, err, ErrInvalidOpcode)
	assert.Equal(t, 1, sender.shutdowns)
}

func TestHandlerPanicIsFatal(t *testing.T) {
	table := NewTable(map[State][]HandlerEntry{
		StateFresh: {{Mode: Instant, Name: "boom", Handler: HandlerFunc(func(*Client, *codec.Buffer) error {
			panic("index out of range")
		})}},
	})
	sender := &fakeSender{}
	c := NewClient(sender, table, nil, nil)

	err := c.Submit([]byte{0x00})

	require.ErrorIs(t, err, ErrHandlerPanic)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 1, sender.shutdowns)
}

func TestHandlerErrorIsFatal(t *testing.T) {
	sentinel := errors.New("bad payload")
	table := NewTable(map[State][]HandlerEntry{
		StateFresh: {{Mode: Instant, Name: "picky", Handler: HandlerFunc(func(*Client, *codec.Buffer) error {
			return sentinel
		})}},
	})
	sender := &fakeSender{}
	c := NewClient(sender, table, nil, nil)

	err := c.Submit([]byte{0x00})

	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, sender.shutdowns)
}

func TestDeferredFramesQueueInOrder(t *testing.T) {
	called := false
	table := NewTable(map[State][]HandlerEntry{
		StateFresh: {
			{Mode: Deferred, Name: "later", Handler: HandlerFunc(func(*Client, *codec.Buffer) error {
				called = true
				return nil
			})},
		},
	})
	sender := &fakeSender{}
	c := NewClient(sender, table, nil, nil)

	require.NoError(t, c.Submit([]byte{0x00, 0x01}))
	require.NoError(t, c.Submit([]byte{0x00, 0x02}))

	assert.False(t, called, "deferred handlers must not run inline")
	assert.Equal(t, 2, c.Pending())

	drained := c.Drain()
	require.Len(t, drained, 2)
	for i, buf := range drained {
		assert.Zero(t, buf.Pos(), "deferred frame %d must be rewound", i)
		assert.Equal(t, []byte{0x00, byte(i + 1)}, buf.Bytes())
	}
	assert.Zero(t, c.Pending())
	assert.Empty(t, c.Drain())
	assert.Zero(t, sender.shutdowns)
}

func TestFullStatusExchange(t *testing.T) {
	c, sender := newTestClient()

	require.NoError(t, c.Submit(handshake(47, "play.example.net", 25565, 1)))
	require.NoError(t, c.Submit([]byte{0x00}))
	require.NoError(t, c.Submit([]byte{0x01, 0, 0, 0, 0, 0, 0, 0, 42}))

	require.Len(t, sender.frames, 2)
	reply := codec.NewBufferFrom(sender.frames[0].data)
	op, err := reply.ReadVarUint()
	require.NoError(t, err)
	assert.Zero(t, op)
	body, err := reply.ReadString()
	require.NoError(t, err)
	assert.JSONEq(t, _statusLiteral, body)

	assert.Equal(t, []byte{0x01, 0, 0, 0, 0, 0, 0, 0, 42}, sender.frames[1].data)
}

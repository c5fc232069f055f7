package protocol

import "errors"

// Every error returned by Client.Submit wraps one of these. All of them
// except ErrUnhandledOpcode end the connection.
var (
	ErrMalformedFrame          = errors.New("malformed frame")
	ErrInvalidOpcode           = errors.New("invalid opcode")
	ErrUnhandledOpcode         = errors.New("unhandled opcode")
	ErrProtocolVersionMismatch = errors.New("protocol version mismatch")
	ErrInvalidState            = errors.New("invalid next state")
	ErrHandlerPanic            = errors.New("handler panic")
)

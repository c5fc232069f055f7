// Package net carries protocol frames between game clients and the
// protocol layer.
//
// The wire unit is a frame: a varint body length followed by the body. The
// transport accepts TCP connections and wraps each in a Conn, which reads
// frames and hands their bodies to a FrameReceiver, and batches outbound
// frames into gather writes.
package net

// Transport is the lifecycle of a listening transport.
type Transport interface {
	// Start begins accepting connections. Every accepted connection gets a
	// receiver from opt.Creator.
	Start(opt TransportOption) error

	// Stop closes the listener and gracefully shuts every connection down.
	Stop() error
}

// FrameReceiver consumes inbound frame bodies of one connection. Submit is
// never called concurrently for the same connection. A non-nil error ends
// the read loop; the receiver is expected to have asked the connection to
// shut down already.
type FrameReceiver interface {
	Submit(frame []byte) error
}

// ReceiverFunc adapts a function to FrameReceiver.
type ReceiverFunc func(frame []byte) error

func (f ReceiverFunc) Submit(frame []byte) error { return f(frame) }

// ReceiverCreator builds the receiver for a newly accepted connection.
type ReceiverCreator func(c *Conn) FrameReceiver

// TransportOption carries what Start needs from the layer above.
type TransportOption struct {
	Creator ReceiverCreator
}

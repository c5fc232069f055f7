// Package protocol implements the server side of the Minecraft 1.8
// (protocol 47) handshake, status and login exchange.
//
// A Client owns the protocol state of one connection. The connection hands
// it every inbound frame body through Submit, and it answers through the
// Sender it was created with. Submit is never called concurrently for one
// Client, so the state needs no locking.
package protocol

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lcx/mcgate/codec"
	"github.com/lcx/mcgate/log"
	"github.com/lcx/mcgate/metrics"
)

const _metricsGroup = "protocol"

// Sender is the outbound side of a connection.
type Sender interface {
	// Send queues a complete frame body. forceFlush skips write batching.
	Send(frame []byte, forceFlush bool)
	// Shutdown closes the connection once queued frames are written.
	Shutdown()
	RemoteAddr() string
}

// Client is the protocol state machine of one connection.
type Client struct {
	sender   Sender
	table    *Table
	settings *Settings
	logger   log.Logger
	tracer   trace.Tracer

	state State

	deferredMu sync.Mutex
	deferred   []*codec.Buffer
}

// TracerName names the tracer Submit spans are recorded under.
const TracerName = "github.com/lcx/mcgate/protocol"

type options struct {
	tracerProvider trace.TracerProvider
}

// Option configures a Client or Factory.
type Option func(*options)

// WithTracerProvider records Submit spans with tp instead of the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{tracerProvider: otel.GetTracerProvider()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewClient creates a client in StateFresh. A nil table or settings selects
// the protocol 47 defaults.
func NewClient(sender Sender, table *Table, settings *Settings, logger log.Logger, opts ...Option) *Client {
	if table == nil {
		table = DefaultTable()
	}
	if settings == nil {
		settings = MustDefaultSettings()
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	o := buildOptions(opts)
	return &Client{
		sender:   sender,
		table:    table,
		settings: settings,
		logger:   logger,
		tracer:   o.tracerProvider.Tracer(TracerName),
		state:    StateFresh,
	}
}

// State returns the current protocol state.
func (c *Client) State() State {
	return c.state
}

// Settings returns the reply payloads the client answers with.
func (c *Client) Settings() *Settings {
	return c.settings
}

// Sender returns the connection the client replies through.
func (c *Client) Sender() Sender {
	return c.sender
}

// Logger returns the connection logger.
func (c *Client) Logger() log.Logger {
	return c.logger
}

func (c *Client) setState(next State) {
	c.logger.Debug().Str("from", c.state.String()).Str("to", next.String()).Msg("protocol state changed")
	metrics.IncrCounterWithDimGroup(_metricsGroup, "state_transition_total", 1, metrics.Dimension{"to": next.String()})
	c.state = next
}

// Submit dispatches one frame body (opcode plus payload). A non-nil error
// means the frame was fatal: the connection has already been asked to shut
// down and the caller must stop reading.
func (c *Client) Submit(frame []byte) (err error) {
	_, span := c.tracer.Start(context.Background(), "protocol.Submit",
		trace.WithAttributes(
			attribute.String("mc.state", c.state.String()),
			attribute.Int("mc.frame_len", len(frame)),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	buf := codec.NewBufferFrom(frame)

	op, rerr := buf.ReadVarUint()
	if rerr != nil {
		return c.fail(buf, "malformed", fmt.Errorf("%w: opcode: %w", ErrMalformedFrame, rerr))
	}
	span.SetAttributes(attribute.Int64("mc.opcode", int64(op)))

	entry, ok := c.table.Lookup(c.state, Opcode(op))
	if !ok {
		return c.fail(buf, "invalid_opcode", fmt.Errorf("%w: 0x%02x in state %s (table size %d)",
			ErrInvalidOpcode, op, c.state, c.table.Len(c.state)))
	}

	metrics.IncrCounterWithDimGroup(_metricsGroup, "packet_total", 1,
		metrics.Dimension{"state": c.state.String(), "opcode": strconv.FormatUint(uint64(op), 10)})

	if entry.Mode == Deferred {
		c.enqueue(buf)
		return nil
	}

	if herr := c.runInstant(entry, buf); herr != nil {
		return c.fail(buf, entry.Name, herr)
	}
	return nil
}

func (c *Client) runInstant(entry HandlerEntry, buf *codec.Buffer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrHandlerPanic, entry.Name, r)
		}
	}()

	if err := entry.Handler.HandlePacket(c, buf); err != nil {
		return fmt.Errorf("%s: %w", entry.Name, err)
	}
	return nil
}

// fail logs a fatal frame and asks the connection to shut down.
func (c *Client) fail(buf *codec.Buffer, reason string, err error) error {
	c.logger.Error().Err(err).Str("state", c.state.String()).Str("frame", buf.HexDump()).Msg("fatal packet, closing connection")
	metrics.IncrCounterWithDimGroup(_metricsGroup, "fatal_total", 1, metrics.Dimension{"reason": reason})
	c.sender.Shutdown()
	return err
}

func (c *Client) enqueue(buf *codec.Buffer) {
	buf.Rewind()

	c.deferredMu.Lock()
	c.deferred = append(c.deferred, buf)
	c.deferredMu.Unlock()
}

// Drain removes and returns every deferred frame in arrival order. Each
// buffer is positioned at offset 0, before the opcode.
//
// Nothing in this module consumes deferred frames; a simulation loop would
// call Drain once per tick.
func (c *Client) Drain() []*codec.Buffer {
	c.deferredMu.Lock()
	defer c.deferredMu.Unlock()

	out := c.deferred
	c.deferred = nil
	return out
}

// Pending returns the number of queued deferred frames.
func (c *Client) Pending() int {
	c.deferredMu.Lock()
	defer c.deferredMu.Unlock()
	return len(c.deferred)
}

// Unhandled accepts a valid opcode that has no real handler. It logs the
// opcode and keeps the connection open.
func Unhandled(c *Client, buf *codec.Buffer) error {
	buf.Rewind()
	op, _ := buf.ReadVarUint()

	err := fmt.Errorf("%w: 0x%02x in state %s", ErrUnhandledOpcode, op, c.state)
	c.logger.Warn().Err(err).Int("len", buf.Len()).Msg("packet ignored")
	metrics.IncrCounterWithDimGroup(_metricsGroup, "unhandled_total", 1, metrics.Dimension{"state": c.state.String()})
	return nil
}

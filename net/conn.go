package net

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lcx/mcgate/codec"
	"github.com/lcx/mcgate/log"
	"github.com/lcx/mcgate/metrics"
)

// ErrOversizedPacket is logged when a client declares a frame longer than
// the configured maximum.
var ErrOversizedPacket = errors.New("oversized packet")

const _metricsGroup = "net"

// Conn is one client connection.
//
// Outbound frames are queued by Send and written in batches: the first frame
// queued on an idle connection opens a short window, and everything queued
// before it closes goes out in one gather write. At most one write is in
// flight; frames queued meanwhile are written as soon as it completes.
//
// A Conn stays alive while something holds a reference to it. The read
// loop, every in-flight write and every armed flush timer hold one, and
// Retain lets other owners hold one too. When the count drops to zero the
// socket is closed and the close hooks run.
type Conn struct {
	id        uint64
	sessionID string
	conn      net.Conn
	logger    *log.ConnLogger
	receiver  FrameReceiver

	maxPacketSize  int
	flushDelay     time.Duration
	idleTimeout    time.Duration
	readBufferSize int
	recvLimiter    *RecvLimiter

	mu         sync.Mutex
	queue      [][]byte
	sending    bool
	shutdown   bool
	stopped    bool
	flushTimer *time.Timer

	refs      atomic.Int32
	stopOnce  sync.Once
	closeOnce sync.Once
	onClose   []func(*Conn)

	// writev performs one gather write; replaced in tests.
	writev func(bufs *net.Buffers) (int64, error)
}

func newConn(id uint64, nc net.Conn, cfg *TCPTransportCfg, base *log.GameLogger) *Conn {
	c := &Conn{
		id:             id,
		sessionID:      uuid.NewString(),
		conn:           nc,
		logger:         log.NewConnLogger(base, id, nc.RemoteAddr().String()),
		maxPacketSize:  cfg.MaxPacketSize,
		flushDelay:     cfg.flushDelay(),
		idleTimeout:    cfg.idleTimeout(),
		readBufferSize: cfg.ReadBufferSize,
	}
	if c.readBufferSize <= 0 {
		c.readBufferSize = 4096
	}
	if cfg.RecvRateLimit > 0 {
		c.recvLimiter = NewRecvLimiter(cfg.RecvRateLimit, cfg.RecvBurst)
	}
	c.writev = func(bufs *net.Buffers) (int64, error) {
		return bufs.WriteTo(c.conn)
	}
	return c
}

// ID returns the transport-unique connection id.
func (c *Conn) ID() uint64 { return c.id }

// SessionID returns a globally unique id for correlating logs and traces.
func (c *Conn) SessionID() string { return c.sessionID }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// Logger returns the logger stamped with this connection.
func (c *Conn) Logger() *log.ConnLogger { return c.logger }

// OnClose registers fn to run once the connection is released. Hooks must
// be registered before Start.
func (c *Conn) OnClose(fn func(*Conn)) {
	c.onClose = append(c.onClose, fn)
}

// Start begins reading frames into receiver.
func (c *Conn) Start(receiver FrameReceiver) {
	c.receiver = receiver
	c.refs.Add(1)
	go c.readLoop()
}

// Retain takes a reference that keeps the connection alive. It fails once
// the connection has been released.
func (c *Conn) Retain() bool {
	for {
		n := c.refs.Load()
		if n <= 0 {
			return false
		}
		if c.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops a reference taken by Retain.
func (c *Conn) Release() {
	if c.refs.Add(-1) == 0 {
		c.finalize()
	}
}

func (c *Conn) finalize() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		c.shutdown = true
		c.queue = nil
		c.mu.Unlock()
		_ = c.conn.Close()

		for _, fn := range c.onClose {
			fn(c)
		}

		metrics.IncrCounterWithGroup(_metricsGroup, "connection_close_total", 1)
		c.logger.Debug().Str("session", c.sessionID).Msg("connection released")
	})
}

// Send queues one frame body. It is safe from any goroutine and silently
// drops the frame once the connection is shutting down. forceFlush writes
// everything queued so far without waiting for the batching window. The
// frame must not be modified after the call.
func (c *Conn) Send(frame []byte, forceFlush bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown || c.stopped {
		metrics.IncrCounterWithDimGroup(_metricsGroup, "frame_dropped_total", 1, metrics.Dimension{"reason": "shutdown"})
		return
	}

	c.queue = append(c.queue, frame)
	if c.sending {
		return
	}

	if forceFlush || c.flushDelay <= 0 {
		c.flushLocked()
		return
	}

	if len(c.queue) == 1 {
		c.armTimerLocked()
	}
}

func (c *Conn) armTimerLocked() {
	if c.flushTimer != nil || !c.Retain() {
		return
	}
	c.flushTimer = time.AfterFunc(c.flushDelay, c.onFlushTimer)
}

func (c *Conn) onFlushTimer() {
	defer c.Release()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.flushTimer = nil
	if c.sending || len(c.queue) == 0 || c.stopped {
		return
	}
	c.flushLocked()
}

// flushLocked hands the whole queue to a write goroutine. c.mu must be
// held, no write may be in flight and the queue must not be empty.
func (c *Conn) flushLocked() {
	if c.sending || len(c.queue) == 0 {
		return
	}
	if !c.Retain() {
		return
	}

	frames := c.queue
	c.queue = nil

	prefixes := make([]byte, 0, len(frames)*codec.MaxVarIntLen32)
	bufs := make(net.Buffers, 0, 2*len(frames))
	for _, f := range frames {
		start := len(prefixes)
		prefixes = codec.AppendVarUint32(prefixes, uint32(len(f)))
		bufs = append(bufs, prefixes[start:len(prefixes):len(prefixes)], f)
	}

	c.sending = true
	go c.write(bufs, len(frames))
}

func (c *Conn) write(bufs net.Buffers, frames int) {
	defer c.Release()

	start := time.Now()
	n, err := c.writev(&bufs)
	if err != nil {
		c.logger.Debug().Err(err).Int("frames", frames).Msg("write failed")
		metrics.IncrCounterWithGroup(_metricsGroup, "write_error_total", 1)
		c.Stop()
		return
	}

	metrics.IncrCounterWithGroup(_metricsGroup, "write_total", 1)
	metrics.IncrCounterWithGroup(_metricsGroup, "frame_sent_total", metrics.Value(frames))
	metrics.IncrCounterWithGroup(_metricsGroup, "bytes_sent_total", metrics.Value(n))
	metrics.RecordStopwatchWithGroup(_metricsGroup, "write_seconds", start)

	c.mu.Lock()
	if len(c.queue) > 0 && !c.stopped {
		c.sending = false
		c.flushLocked()
		c.mu.Unlock()
		return
	}
	c.sending = false
	shutdown := c.shutdown
	c.mu.Unlock()

	if shutdown {
		c.Stop()
	}
}

// Shutdown closes the connection once every queued frame is written.
func (c *Conn) Shutdown() {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return
	}
	c.shutdown = true

	if c.sending {
		c.mu.Unlock()
		return
	}
	if len(c.queue) > 0 {
		c.flushLocked()
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.Stop()
}

// Stop shuts both directions of the socket down at once, discarding
// anything still queued. Blocked reads and writes return immediately.
func (c *Conn) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		c.shutdown = true
		c.queue = nil
		// a timer that never fires would hold its reference forever
		timerRef := c.flushTimer != nil && c.flushTimer.Stop()
		c.flushTimer = nil
		c.mu.Unlock()

		type halfCloser interface {
			CloseRead() error
			CloseWrite() error
		}
		if hc, ok := c.conn.(halfCloser); ok {
			_ = hc.CloseRead()
			_ = hc.CloseWrite()
		} else {
			_ = c.conn.Close()
		}
		c.logger.Debug().Msg("connection stopped")

		if timerRef {
			c.Release()
		}
	})
}

func (c *Conn) readLoop() {
	defer c.Release()

	r := bufio.NewReaderSize(c.conn, c.readBufferSize)
	length := codec.NewVarIntReader(codec.MaxVarIntLen32)

	for {
		c.refreshReadDeadline()

		length.Reset(codec.MaxVarIntLen32)
		for {
			b, err := r.ReadByte()
			if err != nil {
				c.readFailed(err)
				return
			}
			more, err := length.AppendByte(b)
			if err != nil {
				c.logger.Warn().Err(err).Msg("malformed frame length")
				metrics.IncrCounterWithDimGroup(_metricsGroup, "read_error_total", 1, metrics.Dimension{"reason": "length"})
				c.Stop()
				return
			}
			if !more {
				break
			}
		}

		size := length.Value()
		if size > uint64(c.maxPacketSize) {
			err := fmt.Errorf("%w: declared %d bytes, max %d", ErrOversizedPacket, size, c.maxPacketSize)
			c.logger.Warn().Err(err).Msg("closing connection")
			metrics.IncrCounterWithDimGroup(_metricsGroup, "read_error_total", 1, metrics.Dimension{"reason": "oversized"})
			c.Stop()
			return
		}

		frame := make([]byte, size)
		if _, err := io.ReadFull(r, frame); err != nil {
			c.readFailed(err)
			return
		}
		metrics.IncrCounterWithGroup(_metricsGroup, "frame_recv_total", 1)

		if c.recvLimiter != nil {
			if err := c.recvLimiter.Wait(context.Background()); err != nil {
				c.readFailed(err)
				return
			}
		}

		if err := c.receiver.Submit(frame); err != nil {
			c.logger.Debug().Err(err).Msg("receiver ended the connection")
			c.Shutdown()
			return
		}
	}
}

// refreshReadDeadline restarts the idle window. It runs before every frame,
// so only a peer silent for the whole window times out.
func (c *Conn) refreshReadDeadline() {
	if c.idleTimeout <= 0 {
		return
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
}

func (c *Conn) readFailed(err error) {
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		c.logger.Info().Dur("idle", c.idleTimeout).Msg("idle timeout")
		metrics.IncrCounterWithDimGroup(_metricsGroup, "read_error_total", 1, metrics.Dimension{"reason": "idle"})
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		c.logger.Debug().Err(err).Msg("peer closed")
	default:
		c.logger.Warn().Err(err).Msg("read failed")
		metrics.IncrCounterWithDimGroup(_metricsGroup, "read_error_total", 1, metrics.Dimension{"reason": "io"})
	}
	c.Stop()
}

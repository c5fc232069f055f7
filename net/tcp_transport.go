package net

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lcx/mcgate/config"
	"github.com/lcx/mcgate/log"
	"github.com/lcx/mcgate/metrics"
)

// TCPTransport accepts game clients over TCP. Every connection gets its
// own read goroutine, so frames of one connection are processed in order
// and never concurrently.
type TCPTransport struct {
	cfg           atomic.Pointer[TCPTransportCfg]
	logger        *log.GameLogger
	creator       ReceiverCreator
	acceptLimiter *AcceptLimiter

	listener *net.TCPListener
	serving  sync.WaitGroup
	stopping atomic.Bool

	lock   sync.RWMutex
	conns  map[uint64]*Conn
	nextID atomic.Uint64
	closed chan struct{}
}

// NewTCPTransport creates a transport from cfg. A nil cfg uses
// DefaultTCPTransportCfg.
func NewTCPTransport(cfg *TCPTransportCfg, logger *log.GameLogger) *TCPTransport {
	if cfg == nil {
		cfg = DefaultTCPTransportCfg()
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	t := &TCPTransport{
		logger:        logger,
		acceptLimiter: NewAcceptLimiter(cfg.AcceptRate),
		conns:         make(map[uint64]*Conn),
		closed:        make(chan struct{}, 1),
	}
	t.cfg.Store(cfg)
	return t
}

// NewTCPTransportWithConfigManager loads tcp_transport.yaml, falling back
// to defaults when the file is absent, and follows later reloads.
func NewTCPTransportWithConfigManager(configManager config.ConfigManager, logger *log.GameLogger) (*TCPTransport, error) {
	if configManager == nil {
		return nil, errors.New("configManager cannot be nil")
	}

	cfg := DefaultTCPTransportCfg()
	if err := configManager.LoadConfig(cfg.GetName(), cfg); err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return nil, fmt.Errorf("failed to load tcp_transport config: %w", err)
	}

	t := NewTCPTransport(cfg, logger)
	configManager.AddChangeListener(t)
	return t, nil
}

// OnConfigChanged applies a reloaded tcp_transport.yaml. The listen address
// is fixed once started; everything else applies to new connections.
func (t *TCPTransport) OnConfigChanged(configName string, newConfig, _ config.Config) error {
	if configName != "tcp_transport" {
		return nil
	}

	newCfg, ok := newConfig.(*TCPTransportCfg)
	if !ok {
		return fmt.Errorf("invalid configuration type for TCPTransport")
	}
	if err := newCfg.Validate(); err != nil {
		return fmt.Errorf("invalid TCP transport configuration: %w", err)
	}

	old := t.cfg.Swap(newCfg)
	if old != nil && old.Addr != newCfg.Addr && t.listener != nil {
		t.logger.Warn().Str("addr", newCfg.Addr).Msg("listen address change needs a restart")
	}
	t.acceptLimiter.Reload(newCfg.AcceptRate)

	t.logger.Info().Str("configName", configName).Msg("TCP transport configuration updated")
	return nil
}

// Config returns the configuration in effect.
func (t *TCPTransport) Config() *TCPTransportCfg {
	return t.cfg.Load()
}

// Start implements Transport.
func (t *TCPTransport) Start(opt TransportOption) error {
	metrics.IncrCounterWithGroup(_metricsGroup, "transport_start_total", 1)

	if opt.Creator == nil {
		metrics.IncrCounterWithDimGroup(_metricsGroup, "transport_start_error_total", 1, metrics.Dimension{"error_type": "nil_creator"})
		return errors.New("receiver creator is nil")
	}
	t.creator = opt.Creator

	cfg := t.cfg.Load()
	if err := cfg.Validate(); err != nil {
		metrics.IncrCounterWithDimGroup(_metricsGroup, "transport_start_error_total", 1, metrics.Dimension{"error_type": "config"})
		return err
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", cfg.Addr)
	if err != nil {
		metrics.IncrCounterWithDimGroup(_metricsGroup, "transport_start_error_total", 1, metrics.Dimension{"error_type": "resolve"})
		return fmt.Errorf("resolve %s: %w", cfg.Addr, err)
	}

	listener, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		metrics.IncrCounterWithDimGroup(_metricsGroup, "transport_start_error_total", 1, metrics.Dimension{"error_type": "listen"})
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	t.listener = listener

	metrics.IncrCounterWithDimGroup(_metricsGroup, "transport_start_success_total", 1, metrics.Dimension{"transport_type": "tcp"})
	t.logger.Info().Str("addr", listener.Addr().String()).Msg("listening")

	t.serving.Add(1)
	go t.serve(listener)
	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (t *TCPTransport) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *TCPTransport) serve(listener *net.TCPListener) {
	defer t.serving.Done()

	var tempDelay time.Duration
	for {
		t.acceptLimiter.Take()

		conn, err := listener.AcceptTCP()
		if err != nil {
			if t.stopping.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				// back off like net/http does on temporary accept failures
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else if tempDelay *= 2; tempDelay > time.Second {
					tempDelay = time.Second
				}
				time.Sleep(tempDelay)
				continue
			}
			t.logger.Error().Err(err).Msg("accept failed, listener stopped")
			return
		}
		tempDelay = 0

		t.accept(conn)
	}
}

func (t *TCPTransport) accept(conn *net.TCPConn) {
	cfg := t.cfg.Load()

	if err := conn.SetNoDelay(cfg.NoDelay); err != nil {
		t.logger.Warn().Err(err).Msg("set TCP_NODELAY failed")
	}
	if cfg.SocketBufferSize > 0 {
		if err := conn.SetReadBuffer(cfg.SocketBufferSize); err != nil {
			t.logger.Error().Int("BufSize", cfg.SocketBufferSize).Err(err).Msg("set read buffer failed")
			_ = conn.Close()
			return
		}
		if err := conn.SetWriteBuffer(cfg.SocketBufferSize); err != nil {
			t.logger.Error().Int("BufSize", cfg.SocketBufferSize).Err(err).Msg("set write buffer failed")
			_ = conn.Close()
			return
		}
	}

	c := newConn(t.nextID.Add(1), conn, cfg, t.logger)
	c.OnClose(t.removeConn)
	t.addConn(c)

	metrics.IncrCounterWithGroup(_metricsGroup, "connection_success_total", 1)
	metrics.UpdateGaugeWithGroup(_metricsGroup, "current_connections", metrics.Value(t.ConnCount()))
	c.logger.Debug().Str("session", c.sessionID).Msg("accepted")

	c.Start(t.creator(c))
}

func (t *TCPTransport) addConn(c *Conn) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.conns[c.id] = c
}

func (t *TCPTransport) removeConn(c *Conn) {
	t.lock.Lock()
	delete(t.conns, c.id)
	n := len(t.conns)
	t.lock.Unlock()

	metrics.UpdateGaugeWithGroup(_metricsGroup, "current_connections", metrics.Value(n))
	if n == 0 {
		select {
		case t.closed <- struct{}{}:
		default:
		}
	}
}

// ConnCount returns the number of live connections.
func (t *TCPTransport) ConnCount() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return len(t.conns)
}

// Conn returns the live connection with the given id.
func (t *TCPTransport) Conn(id uint64) (*Conn, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	c, ok := t.conns[id]
	return c, ok
}

// CloseConn gracefully shuts down one connection.
func (t *TCPTransport) CloseConn(id uint64) error {
	c, ok := t.Conn(id)
	if !ok {
		return fmt.Errorf("tcp transport CloseConn: connection %d not found", id)
	}
	c.Shutdown()
	return nil
}

// Broadcast queues frame on every live connection and returns how many
// connections it was offered to.
func (t *TCPTransport) Broadcast(frame []byte) int {
	t.lock.RLock()
	targets := make([]*Conn, 0, len(t.conns))
	for _, c := range t.conns {
		targets = append(targets, c)
	}
	t.lock.RUnlock()

	for _, c := range targets {
		c.Send(frame, false)
	}
	return len(targets)
}

// Stop implements Transport. Connections get ShutdownTimeoutSec to flush
// their queues before they are stopped hard.
func (t *TCPTransport) Stop() error {
	if !t.stopping.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	if t.listener != nil {
		if cerr := t.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
		t.serving.Wait()
	}

	t.lock.RLock()
	live := make([]*Conn, 0, len(t.conns))
	for _, c := range t.conns {
		live = append(live, c)
	}
	t.lock.RUnlock()

	for _, c := range live {
		c.Shutdown()
	}

	timeout := t.cfg.Load().shutdownTimeout()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for t.ConnCount() > 0 {
		select {
		case <-t.closed:
		case <-deadline.C:
			for _, c := range live {
				c.Stop()
			}
			t.logger.Warn().Int("remaining", t.ConnCount()).Msg("shutdown timeout, connections stopped")
			t.logger.Info().Msg("transport stopped")
			return err
		}
	}

	t.logger.Info().Msg("transport stopped")
	return err
}

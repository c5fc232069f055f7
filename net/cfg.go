package net

import (
	"fmt"
	"time"
)

const (
	DefaultAddr          = "0.0.0.0:25565"
	DefaultMaxPacketSize = 8192
	DefaultFlushDelayMS  = 10
)

// TCPTransportCfg is loaded from tcp_transport.yaml.
type TCPTransportCfg struct {
	// Addr is the listen address.
	Addr string `mapstructure:"addr"`

	// MaxPacketSize is the largest frame body accepted. A larger declared
	// length closes the connection before the body is read.
	MaxPacketSize int `mapstructure:"maxPacketSize"`

	// FlushDelayMS is the batching window opened by the first queued frame.
	FlushDelayMS int `mapstructure:"flushDelayMS"`

	// ReadBufferSize sizes the buffered reader of each connection.
	ReadBufferSize int `mapstructure:"readBufferSize"`

	// SocketBufferSize sets SO_RCVBUF and SO_SNDBUF. 0 keeps the OS default.
	SocketBufferSize int `mapstructure:"socketBufferSize"`

	NoDelay bool `mapstructure:"noDelay"`

	// RecvRateLimit caps inbound frames per second per connection, with
	// RecvBurst as bucket size. 0 disables the limit.
	RecvRateLimit int `mapstructure:"recvRateLimit"`
	RecvBurst     int `mapstructure:"recvBurst"`

	// AcceptRate caps accepted connections per second. 0 disables it.
	AcceptRate int `mapstructure:"acceptRate"`

	// IdleTimeoutSec closes a connection that sends nothing for this long.
	// 0 waits forever.
	IdleTimeoutSec int `mapstructure:"idleTimeoutSec"`

	// ShutdownTimeoutSec bounds how long Stop waits for connections to
	// drain before closing them hard.
	ShutdownTimeoutSec int `mapstructure:"shutdownTimeoutSec"`
}

func (c *TCPTransportCfg) GetName() string {
	return "tcp_transport"
}

func (c *TCPTransportCfg) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if c.MaxPacketSize <= 0 {
		return fmt.Errorf("maxPacketSize must be positive")
	}
	if c.FlushDelayMS < 0 {
		return fmt.Errorf("flushDelayMS cannot be negative")
	}
	if c.ReadBufferSize < 0 || c.SocketBufferSize < 0 {
		return fmt.Errorf("buffer sizes cannot be negative")
	}
	if c.RecvRateLimit < 0 || c.RecvBurst < 0 || c.AcceptRate < 0 {
		return fmt.Errorf("rate limits cannot be negative")
	}
	if c.RecvRateLimit > 0 && c.RecvBurst == 0 {
		return fmt.Errorf("recvBurst must be positive when recvRateLimit is set")
	}
	if c.IdleTimeoutSec < 0 || c.ShutdownTimeoutSec < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}
	return nil
}

func (c *TCPTransportCfg) flushDelay() time.Duration {
	return time.Duration(c.FlushDelayMS) * time.Millisecond
}

func (c *TCPTransportCfg) idleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSec) * time.Second
}

func (c *TCPTransportCfg) shutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

// DefaultTCPTransportCfg returns the settings used without tcp_transport.yaml.
func DefaultTCPTransportCfg() *TCPTransportCfg {
	return &TCPTransportCfg{
		Addr:               DefaultAddr,
		MaxPacketSize:      DefaultMaxPacketSize,
		FlushDelayMS:       DefaultFlushDelayMS,
		ReadBufferSize:     4096,
		NoDelay:            true,
		ShutdownTimeoutSec: 5,
	}
}

package admin

import (
	"fmt"
	"time"
)

// AdminCfg is loaded from admin.yaml.
type AdminCfg struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`

	// ReadHeaderTimeoutSec bounds how long a client may take to send headers.
	ReadHeaderTimeoutSec int `mapstructure:"readHeaderTimeoutSec"`

	// ShutdownTimeoutSec bounds how long Stop waits for in-flight requests.
	ShutdownTimeoutSec int `mapstructure:"shutdownTimeoutSec"`
}

func (c *AdminCfg) GetName() string {
	return "admin"
}

func (c *AdminCfg) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Addr == "" {
		return fmt.Errorf("addr cannot be empty when admin is enabled")
	}
	if c.ReadHeaderTimeoutSec < 0 || c.ShutdownTimeoutSec < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}
	return nil
}

func (c *AdminCfg) readHeaderTimeout() time.Duration {
	return time.Duration(c.ReadHeaderTimeoutSec) * time.Second
}

func (c *AdminCfg) shutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

// DefaultAdminCfg binds to loopback so metrics are not exposed by accident.
func DefaultAdminCfg() *AdminCfg {
	return &AdminCfg{
		Enabled:              true,
		Addr:                 "127.0.0.1:8025",
		ReadHeaderTimeoutSec: 5,
		ShutdownTimeoutSec:   5,
	}
}

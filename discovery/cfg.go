package discovery

import (
	"fmt"
	"time"
)

// DiscoveryCfg is loaded from discovery.yaml.
type DiscoveryCfg struct {
	Enabled bool `mapstructure:"enabled"`

	// ConsulAddr is the agent HTTP address, host:port.
	ConsulAddr string `mapstructure:"consulAddr"`
	Token      string `mapstructure:"token"`

	ServiceName string `mapstructure:"serviceName"`
	// ServiceID defaults to ServiceName-host-port.
	ServiceID string   `mapstructure:"serviceID"`
	Tags      []string `mapstructure:"tags"`

	// AdvertiseAddr is the address other services dial. When empty the game
	// listener address is used.
	AdvertiseAddr string `mapstructure:"advertiseAddr"`

	CheckIntervalSec   int `mapstructure:"checkIntervalSec"`
	CheckTimeoutSec    int `mapstructure:"checkTimeoutSec"`
	DeregisterAfterSec int `mapstructure:"deregisterAfterSec"`
}

func (c *DiscoveryCfg) GetName() string {
	return "discovery"
}

func (c *DiscoveryCfg) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ConsulAddr == "" {
		return fmt.Errorf("consulAddr cannot be empty when discovery is enabled")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("serviceName cannot be empty")
	}
	if c.CheckIntervalSec <= 0 || c.CheckTimeoutSec <= 0 {
		return fmt.Errorf("check interval and timeout must be positive")
	}
	if c.DeregisterAfterSec < 0 {
		return fmt.Errorf("deregisterAfterSec cannot be negative")
	}
	return nil
}

func seconds(n int) string {
	return (time.Duration(n) * time.Second).String()
}

// DefaultDiscoveryCfg leaves registration off.
func DefaultDiscoveryCfg() *DiscoveryCfg {
	return &DiscoveryCfg{
		Enabled:            false,
		ConsulAddr:         "127.0.0.1:8500",
		ServiceName:        "mcgate",
		Tags:               []string{"minecraft", "protocol-47"},
		CheckIntervalSec:   10,
		CheckTimeoutSec:    2,
		DeregisterAfterSec: 60,
	}
}

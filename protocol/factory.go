package protocol

import (
	"fmt"
	"sync/atomic"

	"github.com/lcx/mcgate/config"
	"github.com/lcx/mcgate/log"
)

// Factory creates clients that share one table and the current settings.
// Reloaded settings apply to clients created afterwards.
type Factory struct {
	table    *Table
	settings atomic.Pointer[Settings]
	logger   log.Logger
	opts     []Option
}

// NewFactory compiles cfg and returns a factory using the default table.
// opts are passed to every client it creates.
func NewFactory(cfg *ProtocolCfg, logger log.Logger, opts ...Option) (*Factory, error) {
	if cfg == nil {
		cfg = DefaultProtocolCfg()
	}
	settings, err := cfg.Compile()
	if err != nil {
		return nil, err
	}

	f := &Factory{table: DefaultTable(), logger: logger, opts: opts}
	f.settings.Store(settings)
	return f, nil
}

// NewClient creates the state machine for one connection.
func (f *Factory) NewClient(sender Sender, logger log.Logger) *Client {
	if logger == nil {
		logger = f.logger
	}
	return NewClient(sender, f.table, f.settings.Load(), logger, f.opts...)
}

// Settings returns the settings new clients receive.
func (f *Factory) Settings() *Settings {
	return f.settings.Load()
}

// OnConfigChanged swaps in a reloaded protocol.yaml.
func (f *Factory) OnConfigChanged(configName string, newConfig, _ config.Config) error {
	if configName != "protocol" {
		return nil
	}
	cfg, ok := newConfig.(*ProtocolCfg)
	if !ok {
		return fmt.Errorf("invalid configuration type for protocol")
	}
	settings, err := cfg.Compile()
	if err != nil {
		return err
	}
	f.settings.Store(settings)
	if f.logger != nil {
		f.logger.Info().Str("status", settings.StatusJSON()).Msg("protocol configuration updated")
	}
	return nil
}

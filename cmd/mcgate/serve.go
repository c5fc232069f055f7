package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/lcx/mcgate/admin"
	"github.com/lcx/mcgate/config"
	"github.com/lcx/mcgate/discovery"
	"github.com/lcx/mcgate/log"
	mcnet "github.com/lcx/mcgate/net"
	"github.com/lcx/mcgate/plugin"
	"github.com/lcx/mcgate/protocol"
)

type serveOptions struct {
	configDir string
	env       string
	quiet     bool
}

func serveCmd() *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept game clients until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !opts.quiet {
				pterm.DefaultHeader.Println("mcgate " + version)
			}
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configDir, "config", "c", "./configs", "Directory holding the yaml config files")
	cmd.Flags().StringVarP(&opts.env, "env", "e", "development", "Environment subdirectory that overrides the config directory")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Skip the startup banner")
	return cmd
}

// loadOptional fills cfg from its yaml file, keeping the defaults already in
// cfg when the file does not exist.
func loadOptional(cm config.ConfigManager, cfg config.Config) error {
	err := cm.LoadConfig(cfg.GetName(), cfg)
	if err == nil || errors.Is(err, config.ErrConfigNotFound) {
		return cfg.Validate()
	}
	return fmt.Errorf("load %s config: %w", cfg.GetName(), err)
}

func runServe(ctx context.Context, opts serveOptions) (err error) {
	cm := config.NewConfigManager()
	cm.SetBasePath(opts.configDir)
	cm.SetEnvironment(opts.env)
	defer func() {
		if cerr := cm.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	logCfg := log.DefaultLogCfg()
	if err := loadOptional(cm, logCfg); err != nil {
		return err
	}
	logger, err := log.NewLogger(logCfg)
	if err != nil {
		return fmt.Errorf("open log sinks: %w", err)
	}
	defer func() { _ = logger.Close() }()

	cm.SetErrorHandler(func(configName string, err error) {
		logger.Error().Str("config", configName).Err(err).Msg("config reload rejected")
	})
	cm.AddChangeListener(logger)

	protoCfg := protocol.DefaultProtocolCfg()
	if err := loadOptional(cm, protoCfg); err != nil {
		return err
	}
	factory, err := protocol.NewFactory(protoCfg, logger)
	if err != nil {
		return fmt.Errorf("protocol settings: %w", err)
	}
	cm.AddChangeListener(factory)

	transport, err := mcnet.NewTCPTransportWithConfigManager(cm, logger)
	if err != nil {
		return err
	}
	if err := transport.Start(mcnet.TransportOption{
		Creator: func(c *mcnet.Conn) mcnet.FrameReceiver {
			return factory.NewClient(c, c.Logger())
		},
	}); err != nil {
		return err
	}

	plugins, err := buildPlugins(cm, transport, logger)
	if err != nil {
		_ = transport.Stop()
		return err
	}
	if err := plugins.StartAll(); err != nil {
		_ = transport.Stop()
		return err
	}

	if !opts.quiet {
		pterm.Success.Printfln("listening on %s", transport.Addr())
	}
	logger.Info().Str("addr", transport.Addr().String()).Str("version", version).Msg("mcgate started")

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	// deregister and stop admin before the game listener goes away
	var result *multierror.Error
	if err := plugins.StopAll(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := transport.Stop(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func buildPlugins(cm config.ConfigManager, transport *mcnet.TCPTransport, logger *log.GameLogger) (*plugin.Manager, error) {
	plugins := plugin.NewManager(logger)

	adminCfg := admin.DefaultAdminCfg()
	if err := loadOptional(cm, adminCfg); err != nil {
		return nil, err
	}
	if adminCfg.Enabled {
		if err := plugins.Register(admin.NewServer(adminCfg, transport, logger, admin.WithVersion(version))); err != nil {
			return nil, err
		}
	}

	discCfg := discovery.DefaultDiscoveryCfg()
	if err := loadOptional(cm, discCfg); err != nil {
		return nil, err
	}
	if discCfg.Enabled {
		listenAddr := func() string { return transport.Addr().String() }
		if err := plugins.Register(discovery.NewRegistrar(discCfg, listenAddr, logger)); err != nil {
			return nil, err
		}
	}

	return plugins, nil
}

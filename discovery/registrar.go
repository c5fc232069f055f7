// Package discovery registers the game listener with a Consul agent so load
// balancers and proxies can find it. Consul runs a TCP health check against
// the advertised address.
package discovery

import (
	"fmt"
	"net"
	"strconv"

	"github.com/hashicorp/consul/api"

	"github.com/lcx/mcgate/log"
	"github.com/lcx/mcgate/metrics"
	"github.com/lcx/mcgate/plugin"
)

// PluginName is the name the registrar registers under.
const PluginName = "discovery"

// Registrar is the discovery plugin.
type Registrar struct {
	cfg    *DiscoveryCfg
	addr   func() string
	logger log.Logger

	client     *api.Client
	serviceID  string
	registered bool
}

var _ plugin.Plugin = (*Registrar)(nil)

// NewRegistrar creates the discovery plugin. listenAddr is asked for the
// game listener address at Start, after the transport has bound it; it is
// only used when AdvertiseAddr is empty.
func NewRegistrar(cfg *DiscoveryCfg, listenAddr func() string, logger log.Logger) *Registrar {
	if cfg == nil {
		cfg = DefaultDiscoveryCfg()
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Registrar{cfg: cfg, addr: listenAddr, logger: logger}
}

func (r *Registrar) Name() string           { return PluginName }
func (r *Registrar) Version() string        { return "1.0.0" }
func (r *Registrar) Dependencies() []string { return nil }

// Init creates the Consul client. No request is made yet.
func (r *Registrar) Init() error {
	if err := r.cfg.Validate(); err != nil {
		return err
	}

	apiCfg := api.DefaultConfig()
	apiCfg.Address = r.cfg.ConsulAddr
	if r.cfg.Token != "" {
		apiCfg.Token = r.cfg.Token
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return fmt.Errorf("consul client: %w", err)
	}
	r.client = client
	return nil
}

// Start registers the service.
func (r *Registrar) Start() error {
	if r.client == nil {
		if err := r.Init(); err != nil {
			return err
		}
	}

	reg, err := r.registration()
	if err != nil {
		return err
	}

	if err := r.client.Agent().ServiceRegister(reg); err != nil {
		metrics.IncrCounterWithDimGroup("discovery", "register_total", 1, metrics.Dimension{"result": "error"})
		return fmt.Errorf("consul register %s: %w", reg.ID, err)
	}
	metrics.IncrCounterWithDimGroup("discovery", "register_total", 1, metrics.Dimension{"result": "ok"})

	r.serviceID = reg.ID
	r.registered = true
	r.logger.Info().Str("id", reg.ID).Str("addr", reg.Address).Int("port", reg.Port).Msg("registered with consul")
	return nil
}

// Stop deregisters the service.
func (r *Registrar) Stop() error {
	if !r.registered {
		return nil
	}
	if err := r.client.Agent().ServiceDeregister(r.serviceID); err != nil {
		return fmt.Errorf("consul deregister %s: %w", r.serviceID, err)
	}
	r.registered = false
	r.logger.Info().Str("id", r.serviceID).Msg("deregistered from consul")
	return nil
}

// ServiceID returns the registered id, empty before Start.
func (r *Registrar) ServiceID() string {
	return r.serviceID
}

func (r *Registrar) registration() (*api.AgentServiceRegistration, error) {
	advertise := r.cfg.AdvertiseAddr
	if advertise == "" && r.addr != nil {
		advertise = r.addr()
	}
	host, portStr, err := net.SplitHostPort(advertise)
	if err != nil {
		return nil, fmt.Errorf("advertise address %q: %w", advertise, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("advertise port %q: %w", portStr, err)
	}

	id := r.cfg.ServiceID
	if id == "" {
		id = fmt.Sprintf("%s-%s-%d", r.cfg.ServiceName, host, port)
	}

	check := &api.AgentServiceCheck{
		TCP:      net.JoinHostPort(host, portStr),
		Interval: seconds(r.cfg.CheckIntervalSec),
		Timeout:  seconds(r.cfg.CheckTimeoutSec),
	}
	if r.cfg.DeregisterAfterSec > 0 {
		check.DeregisterCriticalServiceAfter = seconds(r.cfg.DeregisterAfterSec)
	}

	return &api.AgentServiceRegistration{
		ID:      id,
		Name:    r.cfg.ServiceName,
		Tags:    r.cfg.Tags,
		Address: host,
		Port:    port,
		Meta:    map[string]string{"protocol": "47"},
		Check:   check,
	}, nil
}

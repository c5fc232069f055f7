package plugin

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/lcx/mcgate/log"
)

// Manager owns the registered plugins and their lifecycle.
type Manager struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	infos   map[string]*PluginInfo
	started map[string]bool
	// names keeps registration order so start order is stable between runs
	names  []string
	logger log.Logger
}

// NewManager creates an empty manager. A nil logger discards output.
func NewManager(logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Manager{
		plugins: make(map[string]Plugin),
		infos:   make(map[string]*PluginInfo),
		started: make(map[string]bool),
		logger:  logger,
	}
}

// Register adds a plugin. Names must be unique.
func (m *Manager) Register(p Plugin) error {
	if p == nil {
		return fmt.Errorf("plugin cannot be nil")
	}

	name := p.Name()
	if name == "" {
		return fmt.Errorf("plugin name cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.plugins[name]; exists {
		return fmt.Errorf("plugin %s already registered", name)
	}

	m.plugins[name] = p
	m.names = append(m.names, name)
	m.infos[name] = &PluginInfo{
		Name:         name,
		Version:      p.Version(),
		Status:       PluginStatusRegistered,
		Dependencies: p.Dependencies(),
	}

	m.logger.Info().Str("name", name).Str("version", p.Version()).Msg("plugin registered")
	return nil
}

// Unregister removes a plugin, stopping it first if it runs.
func (m *Manager) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, exists := m.plugins[name]
	if !exists {
		return fmt.Errorf("plugin %s not found", name)
	}

	if m.started[name] {
		if err := p.Stop(); err != nil {
			m.logger.Error().Str("name", name).Err(err).Msg("failed to stop plugin during unregister")
		}
		delete(m.started, name)
	}

	delete(m.plugins, name)
	delete(m.infos, name)
	for i, n := range m.names {
		if n == name {
			m.names = append(m.names[:i], m.names[i+1:]...)
			break
		}
	}

	m.logger.Info().Str("name", name).Msg("plugin unregistered")
	return nil
}

// StartAll initializes then starts every plugin in dependency order. When a
// plugin fails, the ones already started are stopped again in reverse order
// and the failure is returned.
func (m *Manager) StartAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, err := m.resolveDependencies()
	if err != nil {
		return fmt.Errorf("failed to resolve dependencies: %w", err)
	}

	m.logger.Info().Strs("order", order).Msg("starting plugins in order")

	for _, name := range order {
		if err := m.initLocked(name); err != nil {
			return err
		}
	}

	var startedNow []string
	for _, name := range order {
		if m.started[name] {
			continue
		}
		if err := m.startLocked(name); err != nil {
			for i := len(startedNow) - 1; i >= 0; i-- {
				_ = m.stopLocked(startedNow[i])
			}
			return err
		}
		startedNow = append(startedNow, name)
	}

	return nil
}

// StopAll stops every running plugin in reverse dependency order. It keeps
// going past failures and returns all of them together.
func (m *Manager) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, err := m.resolveDependencies()
	if err != nil {
		return fmt.Errorf("failed to resolve dependencies: %w", err)
	}

	var result *multierror.Error
	for i := len(order) - 1; i >= 0; i-- {
		if !m.started[order[i]] {
			continue
		}
		if err := m.stopLocked(order[i]); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// StartPlugin initializes if needed and starts one plugin. Its dependencies
// must already run.
func (m *Manager) StartPlugin(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, exists := m.plugins[name]
	if !exists {
		return fmt.Errorf("plugin %s not found", name)
	}
	if m.started[name] {
		return fmt.Errorf("plugin %s already started", name)
	}
	for _, dep := range p.Dependencies() {
		if !m.started[dep] {
			return fmt.Errorf("plugin %s depends on %s which is not started", name, dep)
		}
	}

	if err := m.initLocked(name); err != nil {
		return err
	}
	return m.startLocked(name)
}

// StopPlugin stops one running plugin.
func (m *Manager) StopPlugin(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.plugins[name]; !exists {
		return fmt.Errorf("plugin %s not found", name)
	}
	if !m.started[name] {
		return fmt.Errorf("plugin %s not started", name)
	}
	return m.stopLocked(name)
}

func (m *Manager) initLocked(name string) error {
	info := m.infos[name]
	if info.Status != PluginStatusRegistered {
		return nil
	}

	if err := m.plugins[name].Init(); err != nil {
		info.Status = PluginStatusError
		info.Error = err
		m.logger.Error().Str("name", name).Err(err).Msg("plugin init failed")
		return NewPluginError(name, "init", err)
	}
	info.Status = PluginStatusInitialized
	m.logger.Debug().Str("name", name).Msg("plugin initialized")
	return nil
}

func (m *Manager) startLocked(name string) error {
	info := m.infos[name]
	if err := m.plugins[name].Start(); err != nil {
		info.Status = PluginStatusError
		info.Error = err
		m.logger.Error().Str("name", name).Err(err).Msg("plugin start failed")
		return NewPluginError(name, "start", err)
	}

	info.Status = PluginStatusStarted
	info.StartTime = time.Now()
	info.Error = nil
	m.started[name] = true
	m.logger.Info().Str("name", name).Msg("plugin started")
	return nil
}

func (m *Manager) stopLocked(name string) error {
	info := m.infos[name]
	delete(m.started, name)

	if err := m.plugins[name].Stop(); err != nil {
		info.Status = PluginStatusError
		info.Error = err
		m.logger.Error().Str("name", name).Err(err).Msg("failed to stop plugin")
		return NewPluginError(name, "stop", err)
	}

	info.Status = PluginStatusStopped
	info.StopTime = time.Now()
	m.logger.Info().Str("name", name).Msg("plugin stopped")
	return nil
}

// Get returns the named plugin or nil.
func (m *Manager) Get(name string) Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.plugins[name]
}

// Info returns a copy of the named plugin's lifecycle snapshot.
func (m *Manager) Info(name string) (*PluginInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, exists := m.infos[name]
	if !exists {
		return nil, fmt.Errorf("plugin %s not found", name)
	}
	infoCopy := *info
	return &infoCopy, nil
}

// List returns snapshots of every plugin sorted by name.
func (m *Manager) List() []PluginInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]PluginInfo, 0, len(m.infos))
	for _, info := range m.infos {
		infos = append(infos, *info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// resolveDependencies orders plugins so every plugin follows its
// dependencies (depth first topological sort).
func (m *Manager) resolveDependencies() ([]string, error) {
	visited := make(map[string]bool)
	visiting := make(map[string]bool)
	result := make([]string, 0, len(m.plugins))

	var visit func(string) error
	visit = func(name string) error {
		if visiting[name] {
			return fmt.Errorf("circular dependency detected involving plugin %s", name)
		}
		if visited[name] {
			return nil
		}

		p, exists := m.plugins[name]
		if !exists {
			return fmt.Errorf("plugin %s not found", name)
		}

		visiting[name] = true
		for _, dep := range p.Dependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		visiting[name] = false
		visited[name] = true
		result = append(result, name)
		return nil
	}

	for _, name := range m.names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return result, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

// ErrConfigNotFound is returned by LoadConfig when no file exists for the name.
var ErrConfigNotFound = errors.New("config file not found")

// ConfigManager loads, validates and watches named configurations.
type ConfigManager interface {
	LoadConfig(configName string, config Config) error
	GetConfig(configName string) (Config, error)
	RegisterValidator(configName string, validator ValidatorFunc)
	RegisterHook(configName string, hook HookFunc)
	AddChangeListener(listener ConfigChangeListener)
	RemoveChangeListener(listener ConfigChangeListener)
	SetErrorHandler(handler ErrorHandler)
	SetBasePath(path string)
	SetEnvironment(env string)
	Close() error
}

// ValidatorFunc is an extra validation step run after Config.Validate.
type ValidatorFunc func(Config) error

// HookFunc runs before a reloaded configuration is installed. An error
// rejects the reload and keeps the old value.
type HookFunc func(oldVal, newVal Config) error

// ErrorHandler receives reload failures, which have no caller to return to.
type ErrorHandler func(configName string, err error)

type configManager struct {
	mu         sync.RWMutex
	configs    map[string]Config
	watchers   map[string]*fsnotify.Watcher
	validators map[string]ValidatorFunc
	hooks      map[string][]HookFunc
	listeners  []ConfigChangeListener
	onError    ErrorHandler
	basePath   string
	env        string
}

// NewConfigManager creates a manager reading from ./configs in the
// development environment.
func NewConfigManager() ConfigManager {
	return &configManager{
		configs:    make(map[string]Config),
		watchers:   make(map[string]*fsnotify.Watcher),
		validators: make(map[string]ValidatorFunc),
		hooks:      make(map[string][]HookFunc),
		onError: func(configName string, err error) {
			fmt.Fprintf(os.Stderr, "config %s: %v\n", configName, err)
		},
		basePath: "./configs",
		env:      "development",
	}
}

func (cm *configManager) newViper(configName string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	// the environment directory wins over the base directory
	v.AddConfigPath(filepath.Join(cm.basePath, cm.env))
	v.AddConfigPath(cm.basePath)

	v.AutomaticEnv()
	v.SetEnvPrefix(strings.ToUpper(configName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func decodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
}

func (cm *configManager) read(configName string, config Config) (*viper.Viper, error) {
	v := cm.newViper(configName)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configName)
		}
		return nil, fmt.Errorf("read config failed: %w", err)
	}

	if err := v.Unmarshal(config, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config failed: %w", err)
	}
	if validator, exists := cm.validators[configName]; exists {
		if err := validator(config); err != nil {
			return nil, fmt.Errorf("validate config failed: %w", err)
		}
	}
	return v, nil
}

// LoadConfig reads <configName>.yaml into config, validates it and starts
// watching the file. Fields absent from the file keep the values config
// already holds, so callers pass in a populated default.
func (cm *configManager) LoadConfig(configName string, config Config) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	v, err := cm.read(configName, config)
	if err != nil {
		return err
	}

	cm.configs[configName] = config

	if err := cm.watchConfigFile(configName, v); err != nil {
		return fmt.Errorf("watch config file failed: %w", err)
	}
	return nil
}

// GetConfig returns the current value of a loaded configuration.
func (cm *configManager) GetConfig(configName string) (Config, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	config, exists := cm.configs[configName]
	if !exists {
		return nil, fmt.Errorf("config %s not found", configName)
	}
	return config, nil
}

func (cm *configManager) RegisterValidator(configName string, validator ValidatorFunc) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.validators[configName] = validator
}

func (cm *configManager) RegisterHook(configName string, hook HookFunc) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.hooks[configName] = append(cm.hooks[configName], hook)
}

func (cm *configManager) AddChangeListener(listener ConfigChangeListener) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.listeners = append(cm.listeners, listener)
}

func (cm *configManager) RemoveChangeListener(listener ConfigChangeListener) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for i, l := range cm.listeners {
		if l == listener {
			cm.listeners = append(cm.listeners[:i], cm.listeners[i+1:]...)
			return
		}
	}
}

func (cm *configManager) SetErrorHandler(handler ErrorHandler) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if handler != nil {
		cm.onError = handler
	}
}

func (cm *configManager) SetBasePath(path string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.basePath = path
}

func (cm *configManager) SetEnvironment(env string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.env = env
}

func (cm *configManager) watchConfigFile(configName string, v *viper.Viper) error {
	configFile := v.ConfigFileUsed()
	if configFile == "" {
		return nil
	}
	if _, exists := cm.watchers[configName]; exists {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// watch the directory so editors that replace the file are seen too
	if err := watcher.Add(filepath.Dir(configFile)); err != nil {
		_ = watcher.Close()
		return err
	}
	cm.watchers[configName] = watcher

	target := filepath.Clean(configFile)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					cm.reloadConfig(configName)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				cm.reportError(configName, fmt.Errorf("watcher: %w", err))
			}
		}
	}()

	return nil
}

func (cm *configManager) reportError(configName string, err error) {
	cm.mu.RLock()
	onError := cm.onError
	cm.mu.RUnlock()
	onError(configName, err)
}

// reloadConfig re-reads a changed file. Any failure keeps the old value.
func (cm *configManager) reloadConfig(configName string) {
	cm.mu.Lock()

	oldConfig, exists := cm.configs[configName]
	if !exists {
		cm.mu.Unlock()
		return
	}

	// start from a copy of the old value so keys removed from the file keep it
	fresh := reflect.New(reflect.TypeOf(oldConfig).Elem())
	fresh.Elem().Set(reflect.ValueOf(oldConfig).Elem())
	newConfig := fresh.Interface().(Config)

	if _, err := cm.read(configName, newConfig); err != nil {
		cm.mu.Unlock()
		cm.reportError(configName, fmt.Errorf("reload: %w", err))
		return
	}

	for _, hook := range cm.hooks[configName] {
		if err := hook(oldConfig, newConfig); err != nil {
			cm.mu.Unlock()
			cm.reportError(configName, fmt.Errorf("reload hook: %w", err))
			return
		}
	}

	cm.configs[configName] = newConfig
	listeners := append([]ConfigChangeListener(nil), cm.listeners...)
	cm.mu.Unlock()

	for _, listener := range listeners {
		if err := listener.OnConfigChanged(configName, newConfig, oldConfig); err != nil {
			cm.reportError(configName, fmt.Errorf("change listener: %w", err))
		}
	}
}

// Close stops every file watcher.
func (cm *configManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var result *multierror.Error
	for name, watcher := range cm.watchers {
		if err := watcher.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close watcher %s: %w", name, err))
		}
		delete(cm.watchers, name)
	}
	return result.ErrorOrNil()
}

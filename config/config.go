// Package config loads named yaml configurations through viper and keeps
// them current as the files change on disk.
package config

// Config is implemented by every configuration section.
type Config interface {
	GetName() string
	Validate() error
}

// ConfigChangeListener is notified after a configuration has been reloaded
// and validated. Listeners receive every reload and filter on configName.
type ConfigChangeListener interface {
	OnConfigChanged(configName string, newConfig, oldConfig Config) error
}

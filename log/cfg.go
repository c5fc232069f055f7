package log

import "fmt"

// LogCfg is the logger configuration, loaded from logger.yaml.
type LogCfg struct {
	// LogPath is the file written by the file appender.
	LogPath string `mapstructure:"path"`

	// LogLevel is the minimum level written. Supports hot reload.
	LogLevel Level `mapstructure:"level"`

	// FileSplitMB rotates the log file once it would exceed this size. 0 disables rotation.
	FileSplitMB int `mapstructure:"splitmb"`

	// IsAsync queues file writes and flushes them from a background goroutine.
	IsAsync bool `mapstructure:"isasync"`

	// AsyncCacheSize bounds the async queue. Default 1024.
	AsyncCacheSize int `mapstructure:"asynccachesize"`

	// AsyncWriteMillSec is the async flush interval. Default 200ms.
	AsyncWriteMillSec int `mapstructure:"asyncwritemillsec"`

	// CallerSkip is the number of extra stack frames skipped for caller info.
	CallerSkip int `mapstructure:"callerSkip"`

	FileAppender    bool `mapstructure:"fileAppender"`
	ConsoleAppender bool `mapstructure:"consoleAppender"`

	// RemoteWhiteList lists peer IPs whose connection loggers ignore the level
	// filter, for targeted debugging of a single client in production.
	RemoteWhiteList []string `mapstructure:"remoteWhiteList"`

	EnabledCallerInfo bool `mapstructure:"enabledCallerInfo"`
}

// GetName returns the configuration name for LogCfg.
func (cfg *LogCfg) GetName() string {
	return "logger"
}

// Validate validates the LogCfg parameters.
func (cfg *LogCfg) Validate() error {
	if cfg.FileAppender && cfg.LogPath == "" {
		return fmt.Errorf("path cannot be empty when fileAppender is enabled")
	}
	if cfg.LogLevel > Disabled {
		return fmt.Errorf("invalid level %d", cfg.LogLevel)
	}
	if cfg.FileSplitMB < 0 {
		return fmt.Errorf("splitmb cannot be negative")
	}
	return nil
}

// IsInWhiteList reports whether the peer IP is whitelisted.
func (cfg *LogCfg) IsInWhiteList(ip string) bool {
	// the list is short and read concurrently by every new connection
	for _, r := range cfg.RemoteWhiteList {
		if r == ip {
			return true
		}
	}
	return false
}

// DefaultLogCfg returns the configuration used when logger.yaml is absent.
func DefaultLogCfg() *LogCfg {
	return &LogCfg{
		LogPath:         "./mcgate.log",
		LogLevel:        DebugLevel,
		FileSplitMB:     50,
		IsAsync:         true,
		FileAppender:    true,
		ConsoleAppender: true,
	}
}

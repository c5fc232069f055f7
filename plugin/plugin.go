// Package plugin runs the optional server components (admin HTTP, service
// discovery) next to the game transport. Plugins declare what they depend
// on; the manager starts them in dependency order and stops them in reverse.
package plugin

import (
	"fmt"
	"time"
)

// Plugin is one managed component.
type Plugin interface { //nolint:revive
	Name() string
	Version() string
	// Dependencies names the plugins that must be started first.
	Dependencies() []string
	Init() error
	Start() error
	Stop() error
}

// PluginStatus is the lifecycle position of a registered plugin.
type PluginStatus int //nolint:revive

const (
	PluginStatusUnknown PluginStatus = iota
	PluginStatusRegistered
	PluginStatusInitialized
	PluginStatusStarted
	PluginStatusStopped
	PluginStatusError
)

func (s PluginStatus) String() string {
	switch s {
	case PluginStatusRegistered:
		return "registered"
	case PluginStatusInitialized:
		return "initialized"
	case PluginStatusStarted:
		return "started"
	case PluginStatusStopped:
		return "stopped"
	case PluginStatusError:
		return "error"
	default:
		return "unknown"
	}
}

// PluginInfo is a snapshot of one plugin's lifecycle.
type PluginInfo struct { //nolint:revive
	Name         string
	Version      string
	Status       PluginStatus
	Dependencies []string
	StartTime    time.Time
	StopTime     time.Time
	Error        error
}

// PluginError reports which lifecycle step of which plugin failed.
type PluginError struct { //nolint:revive
	PluginName string
	Operation  string
	Err        error
}

func NewPluginError(name, operation string, err error) *PluginError {
	return &PluginError{PluginName: name, Operation: operation, Err: err}
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s %s failed: %v", e.PluginName, e.Operation, e.Err)
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

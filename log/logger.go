// Package log provides the leveled, structured logger used throughout mcgate.
//
// There is no package-level default logger: a *GameLogger is built once at
// startup from LogCfg and handed to every component that logs.
package log

// Logger is the logging capability components depend on.
type Logger interface {
	Trace() *LogEvent
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	Fatal() *LogEvent
	IgnoreCheckLevel() bool
	GetAppender() []LogAppender
	AddAppender(appender LogAppender)
	OnEventEnd(e *LogEvent)
}

var (
	_ Logger = (*GameLogger)(nil)
	_ Logger = (*ConnLogger)(nil)
)

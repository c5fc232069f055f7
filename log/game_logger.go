package log

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lcx/mcgate/config"
)

// GameLogger is a thread-safe leveled logger writing JSON lines to one or
// more appenders. Events are pooled so the hot path does not allocate.
//
//	logger, err := NewLogger(&LogCfg{LogLevel: InfoLevel, ConsoleAppender: true})
//	logger.Info().Str("addr", addr).Int("conns", 42).Msg("listening")
type GameLogger struct {
	appenders         []LogAppender
	appendersMu       sync.RWMutex
	minLevel          atomic.Uint32
	callerSkip        int
	eventPool         *sync.Pool
	callerCache       sync.Map
	enabledCallerInfo atomic.Bool
	configMutex       sync.RWMutex
	currentConfig     *LogCfg
}

// NewLogger creates a logger from cfg, opening every configured sink.
// A nil cfg uses DefaultLogCfg. An error means a sink could not be opened.
func NewLogger(cfg *LogCfg) (*GameLogger, error) {
	if cfg == nil {
		cfg = DefaultLogCfg()
	}

	logger := newGameLogger(cfg)

	if cfg.FileAppender {
		fa, err := NewFileAppender(cfg)
		if err != nil {
			return nil, fmt.Errorf("file appender %s: %w", cfg.LogPath, err)
		}
		logger.AddAppender(fa)
	}

	if cfg.ConsoleAppender {
		logger.AddAppender(NewConsoleAppender())
	}

	return logger, nil
}

// NewNopLogger returns a logger that drops everything.
func NewNopLogger() *GameLogger {
	return newGameLogger(&LogCfg{LogLevel: Disabled})
}

func newGameLogger(cfg *LogCfg) *GameLogger {
	logger := &GameLogger{
		callerSkip:    cfg.CallerSkip,
		currentConfig: cfg,
	}
	logger.minLevel.Store(uint32(cfg.LogLevel))
	logger.enabledCallerInfo.Store(cfg.EnabledCallerInfo)

	logger.eventPool = &sync.Pool{
		New: func() any {
			return newEvent(logger)
		},
	}
	return logger
}

// OnConfigChanged applies a reloaded logger.yaml. Only the level and caller
// settings are hot; sink changes need a restart.
func (x *GameLogger) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	if configName != "logger" {
		return nil
	}

	newLogCfg, ok := newConfig.(*LogCfg)
	if !ok {
		return fmt.Errorf("invalid configuration type for logger")
	}

	x.configMutex.Lock()
	x.currentConfig = newLogCfg
	x.configMutex.Unlock()

	x.SetLevel(newLogCfg.LogLevel)
	x.enabledCallerInfo.Store(newLogCfg.EnabledCallerInfo)
	x.Info().Str("level", newLogCfg.LogLevel.String()).Msg("logger configuration updated")
	return nil
}

// GetCurrentConfig returns the configuration in effect.
func (x *GameLogger) GetCurrentConfig() *LogCfg {
	x.configMutex.RLock()
	defer x.configMutex.RUnlock()
	return x.currentConfig
}

// SetLevel changes the minimum level.
func (x *GameLogger) SetLevel(level Level) {
	x.minLevel.Store(uint32(level))
}

// GetLevel returns the minimum level.
func (x *GameLogger) GetLevel() Level {
	return Level(x.minLevel.Load())
}

func (x *GameLogger) checkLevel(level Level) bool {
	return level != Disabled && Level(x.minLevel.Load()) <= level
}

// AddAppender adds an output sink.
func (x *GameLogger) AddAppender(appender LogAppender) {
	x.appendersMu.Lock()
	defer x.appendersMu.Unlock()
	x.appenders = append(x.appenders, appender)
}

// GetAppender returns the registered sinks.
func (x *GameLogger) GetAppender() []LogAppender {
	x.appendersMu.RLock()
	defer x.appendersMu.RUnlock()
	return append([]LogAppender(nil), x.appenders...)
}

// Refresh flushes every sink.
func (x *GameLogger) Refresh() {
	for _, appender := range x.GetAppender() {
		appender.Refresh()
	}
}

// Close flushes and closes every sink.
func (x *GameLogger) Close() error {
	var firstErr error
	for _, appender := range x.GetAppender() {
		if err := appender.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// IgnoreCheckLevel is always false for the base logger.
func (x *GameLogger) IgnoreCheckLevel() bool {
	return false
}

// OnEventEnd writes the finished event to every sink and recycles it.
// A fatal event panics after it has been written.
func (x *GameLogger) OnEventEnd(e *LogEvent) {
	x.appendersMu.RLock()
	for _, appender := range x.appenders {
		_, _ = appender.Write(e.buf.Bytes())
	}
	x.appendersMu.RUnlock()

	if e.level == FatalLevel {
		x.Refresh()
		panic(strings.TrimSpace(e.buf.String()))
	}

	x.eventPool.Put(e)
}

func (x *GameLogger) Trace() *LogEvent { return x.logAt(TraceLevel, false, 0) }
func (x *GameLogger) Debug() *LogEvent { return x.logAt(DebugLevel, false, 0) }
func (x *GameLogger) Info() *LogEvent  { return x.logAt(InfoLevel, false, 0) }
func (x *GameLogger) Warn() *LogEvent  { return x.logAt(WarnLevel, false, 0) }
func (x *GameLogger) Error() *LogEvent { return x.logAt(ErrorLevel, false, 0) }

// Fatal events panic once written.
func (x *GameLogger) Fatal() *LogEvent { return x.logAt(FatalLevel, false, 0) }

type callerInfo struct {
	str string
}

var _unknownCallerInfo = &callerInfo{str: "???"}

// getCallerInfo resolves file:line of the code that asked for the event.
// depth counts wrapper frames between the public method and logAt.
func (x *GameLogger) getCallerInfo(depth int) *callerInfo {
	pc, file, line, ok := runtime.Caller(3 + depth + x.callerSkip)
	if !ok {
		return _unknownCallerInfo
	}

	if cached, found := x.callerCache.Load(pc); found {
		return cached.(*callerInfo)
	}

	// keep the last directory and the file name
	if lastSlash := strings.LastIndexByte(file, '/'); lastSlash > 0 {
		if secondLastSlash := strings.LastIndexByte(file[:lastSlash], '/'); secondLastSlash >= 0 {
			file = file[secondLastSlash+1:]
		}
	}

	c := &callerInfo{str: file + ":" + strconv.Itoa(line)}
	x.callerCache.Store(pc, c)
	return c
}

// logAt returns a fresh event carrying time, level and optionally caller, or
// nil when the level is filtered out and ignoreLevel is false.
func (x *GameLogger) logAt(level Level, ignoreLevel bool, depth int) *LogEvent {
	if !ignoreLevel && !x.checkLevel(level) {
		return nil
	}

	e := x.eventPool.Get().(*LogEvent)
	e.Reset()
	e.level = level
	e.logger = x

	t := time.Now()
	e.Time("time", &t)
	e.Str("level", level.String())

	if x.enabledCallerInfo.Load() {
		e.Str("caller", x.getCallerInfo(depth).str)
	}

	return e
}

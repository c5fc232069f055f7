package log

// ConnLogger stamps every line with the connection it belongs to. It shares
// sinks and level with the server logger it was derived from.
//
// A connection whose peer IP is listed in LogCfg.RemoteWhiteList logs at
// every level regardless of the configured minimum.
type ConnLogger struct {
	*GameLogger
	connID      uint64
	remote      string
	inWhiteList bool
}

// NewConnLogger derives a connection logger from base. remote is the peer
// address as "ip:port"; the whitelist is matched on the IP part.
func NewConnLogger(base *GameLogger, connID uint64, remote string) *ConnLogger {
	if base == nil {
		base = NewNopLogger()
	}

	cfg := base.GetCurrentConfig()
	return &ConnLogger{
		GameLogger:  base,
		connID:      connID,
		remote:      remote,
		inWhiteList: cfg != nil && cfg.IsInWhiteList(hostOf(remote)),
	}
}

// ConnID returns the connection id stamped on every line.
func (x *ConnLogger) ConnID() uint64 {
	return x.connID
}

func (x *ConnLogger) log(level Level) *LogEvent {
	e := x.GameLogger.logAt(level, x.inWhiteList, 1)
	if e == nil {
		return nil
	}

	return e.Uint64("conn", x.connID).Str("remote", x.remote)
}

// IgnoreCheckLevel reports whether the peer is whitelisted.
func (x *ConnLogger) IgnoreCheckLevel() bool {
	return x.inWhiteList
}

func (x *ConnLogger) Trace() *LogEvent { return x.log(TraceLevel) }
func (x *ConnLogger) Debug() *LogEvent { return x.log(DebugLevel) }
func (x *ConnLogger) Info() *LogEvent  { return x.log(InfoLevel) }
func (x *ConnLogger) Warn() *LogEvent  { return x.log(WarnLevel) }
func (x *ConnLogger) Error() *LogEvent { return x.log(ErrorLevel) }
func (x *ConnLogger) Fatal() *LogEvent { return x.log(FatalLevel) }

func hostOf(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			host := addr[:i]
			if len(host) >= 2 && host[0] == '[' && host[len(host)-1] == ']' {
				host = host[1 : len(host)-1]
			}
			return host
		}
	}
	return addr
}

// Package admin serves the operator HTTP endpoints: prometheus metrics, a
// liveness probe and a small JSON stats document.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lcx/mcgate/log"
	"github.com/lcx/mcgate/metrics"
	"github.com/lcx/mcgate/plugin"
	"github.com/lcx/mcgate/protocol"
)

// PluginName is the name the admin server registers under.
const PluginName = "admin"

// StatsSource reports live connection counts. *net.TCPTransport implements it.
type StatsSource interface {
	ConnCount() int
}

// Stats is the /stats document.
type Stats struct {
	Connections     int    `json:"connections"`
	ProtocolVersion int    `json:"protocolVersion"`
	UptimeSeconds   int64  `json:"uptimeSeconds"`
	Version         string `json:"version"`
}

// Server is the admin HTTP plugin.
type Server struct {
	cfg     *AdminCfg
	stats   StatsSource
	metrics http.Handler
	version string
	logger  log.Logger

	router   chi.Router
	srv      *http.Server
	listener net.Listener
	started  time.Time
	stopping atomic.Bool
	done     chan error
}

var _ plugin.Plugin = (*Server)(nil)

// Option customizes a Server.
type Option func(*Server)

// WithMetricsHandler serves h on /metrics instead of the default reporter.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithVersion sets the build version shown by /stats.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates the admin plugin. A nil cfg uses DefaultAdminCfg.
func NewServer(cfg *AdminCfg, stats StatsSource, logger log.Logger, opts ...Option) *Server {
	if cfg == nil {
		cfg = DefaultAdminCfg()
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &Server{
		cfg:     cfg,
		stats:   stats,
		metrics: metrics.Handler(),
		version: "dev",
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Name() string           { return PluginName }
func (s *Server) Version() string        { return s.version }
func (s *Server) Dependencies() []string { return nil }

// Init builds the router.
func (s *Server) Init() error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	s.router = s.Router()
	return nil
}

// Router returns the admin routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Method(http.MethodGet, "/metrics", s.metrics)
	return r
}

// Start binds the listen address and serves in the background. Bind errors
// are returned synchronously.
func (s *Server) Start() error {
	if s.router == nil {
		s.router = s.Router()
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("admin listen %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.readHeaderTimeout(),
	}
	s.started = time.Now()
	s.stopping.Store(false)
	s.done = make(chan error, 1)

	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			s.logger.Error().Err(err).Msg("admin server stopped")
		}
		s.done <- err
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("admin server listening")
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop drains in-flight requests for up to ShutdownTimeoutSec.
func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}
	s.stopping.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.shutdownTimeout())
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("admin shutdown: %w", err)
	}
	err := <-s.done
	s.srv = nil
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.stopping.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := Stats{
		ProtocolVersion: protocol.Version,
		Version:         s.version,
	}
	if s.stats != nil {
		st.Connections = s.stats.ConnCount()
	}
	if !s.started.IsZero() {
		st.UptimeSeconds = int64(time.Since(s.started) / time.Second)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(&st); err != nil {
		s.logger.Warn().Err(err).Msg("encode stats")
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("reqID", middleware.GetReqID(r.Context())).
			Msg("admin request")
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		metrics.IncrCounterWithDimGroup("admin", "request_total", 1, metrics.Dimension{"route": route})
	})
}

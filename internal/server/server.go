// Package server exposes the component registry, the dispatch proxy and the
// user configuration over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kingrea/smart-mirror/internal/dispatch"
	"github.com/kingrea/smart-mirror/internal/logging"
	"github.com/kingrea/smart-mirror/internal/registry"
	"github.com/kingrea/smart-mirror/internal/stream"
	"github.com/kingrea/smart-mirror/internal/userconfig"
)

// Status reports runtime lifecycle states for the HTTP server.
type Status string

const (
	StatusStarting Status = "starting"
	StatusReady    Status = "ready"
	StatusDraining Status = "draining"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Registry *registry.Registry
	Store    *userconfig.Store
	Proxy    *dispatch.Proxy
	Hub      *stream.Hub
	Version  string
}

// Server wraps the HTTP listener and the API router.
type Server struct {
	settings Settings
	deps     Deps
	logger   logging.Logger
	clock    func() time.Time
	registry prometheus.Registerer
	gatherer prometheus.Gatherer
	metrics  *httpMetrics
	handler  http.Handler

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    Status
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithLogger overrides the default no-op logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetrics records request metrics in reg and serves gatherer on
// /metrics.
func WithMetrics(reg prometheus.Registerer, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.registry = reg
		s.gatherer = gatherer
	}
}

// New prepares a server using the provided settings and services.
func New(settings Settings, deps Deps, opts ...Option) *Server {
	settings.normalize()
	s := &Server{
		settings: settings,
		deps:     deps,
		logger:   logging.Nop(),
		clock:    func() time.Time { return time.Now().UTC() },
		status:   StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.registry != nil {
		s.metrics = newHTTPMetrics(s.registry)
	}
	s.handler = s.routes()
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.recoverer)
	r.Use(s.logRequests)
	if s.metrics != nil {
		r.Use(s.metrics.middleware)
	}

	r.Get("/health", s.handleHealth)
	r.Head("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", metricsHandler(s.gatherer))
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/components/manifests", s.handleManifests)
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
			r.MethodFunc(method, "/components/{id}", s.handleComponent)
		}
		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)
		r.Get("/config/validate", s.handleValidate)
		r.Get("/config/stream", s.handleStream)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
	})
	return r
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server: server is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("server: already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = s.clock()
	server := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("server: serve error: %v", err)
		}
	}()
	s.logger.Infof("server: listening on %s", listener.Addr().String())
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests
// to exit. Stream subscribers are disconnected first.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(deadline); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL (scheme + host:port) for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return s.settings.URL()
	}
	return "http://" + addr
}

// Status reports the server's lifecycle state.
func (s *Server) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(s.clock().Sub(s.startTime).Seconds())
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tasklist/tasklist/internal/config"
	"github.com/tasklist/tasklist/internal/core/throttle"
	apperrors "github.com/tasklist/tasklist/internal/errors"
	"github.com/tasklist/tasklist/internal/observability"
	"github.com/tasklist/tasklist/internal/server/handlers"
	servermw "github.com/tasklist/tasklist/internal/server/middleware"
)

// Options wires the server's collaborators. Zero values disable the
// corresponding feature: no Tasks means no /api routes, no Throttle means
// unthrottled routes, no Health means a manager without checkers.
type Options struct {
	Server     config.ServerConfig
	CORS       config.CORSConfig
	Tasks      handlers.TaskStore
	Throttle   *throttle.RequestThrottle
	Health     *handlers.HealthManager
	AdminToken string
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	opts   Options
	host   string

	mu     sync.Mutex
	server *http.Server
	port   int
}

// New creates a new HTTP server instance
func New(opts Options) *Server {
	if opts.Health == nil {
		opts.Health = handlers.NewHealthManager("dev")
	}

	r := chi.NewRouter()

	r.Use(middleware.CleanPath)

	// RequestID → Metrics → Recovery → CORS; the throttle is applied per route group
	r.Use(servermw.RequestID)       // 1. Request ID (early for correlation)
	r.Use(servermw.RequestMetrics)  // 2. Metrics (measure everything, including 429s)
	r.Use(servermw.Recovery)        // 3. Panic recovery
	r.Use(servermw.CORS(opts.CORS)) // 4. Preflight answered before any quota is spent

	// Unmatched requests spend quota like any other application request.
	throttled := servermw.Throttle(opts.Throttle)
	r.NotFound(throttled(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		err := apperrors.NewNotFoundError("The requested resource was not found")
		apperrors.RespondWithError(w, req, err)
	})).ServeHTTP)
	r.MethodNotAllowed(throttled(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		err := apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource")
		apperrors.RespondWithError(w, req, err)
	})).ServeHTTP)

	s := &Server{
		router: r,
		opts:   opts,
		host:   opts.Server.Host,
		port:   opts.Server.Port,
	}
	s.registerRoutes()

	return s
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.host, strconv.Itoa(s.Port())))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln. It returns nil after a graceful Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	cfg := s.opts.Server
	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           s.router,
		ReadTimeout:       durationOr(cfg.ReadTimeout, 30*time.Second),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      durationOr(cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:       durationOr(cfg.IdleTimeout, 120*time.Second),
	}

	s.mu.Lock()
	s.server = srv
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcp.Port
	}
	port := s.port
	s.mu.Unlock()

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Starting HTTP server",
			zap.String("host", s.host),
			zap.Int("port", port),
			zap.String("addr", srv.Addr))
	}

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down HTTP server")
	}
	return srv.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the bound port once serving, else the configured one.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}

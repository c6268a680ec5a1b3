package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-groups/internal/config"
	"github.com/kozaktomas/face-groups/internal/web/handlers"
	"github.com/kozaktomas/face-groups/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
	grouper    handlers.Grouper
	status     handlers.StatusReporter
	listener   net.Listener
}

// NewServer creates a new web server. status reports face detector readiness
// for the health check.
func NewServer(cfg *config.Config, grouper handlers.Grouper, status handlers.StatusReporter) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:  cfg,
		router:  r,
		grouper: grouper,
		status:  status,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(cfg.Server.RequestTimeout))
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Listen binds the configured port. When the port is taken it tries the
// following ports, up to PortAttempts in total.
func (s *Server) Listen() (net.Addr, error) {
	if s.listener != nil {
		return s.listener.Addr(), nil
	}

	host := s.config.Server.Host
	port := s.config.Server.Port
	var lastErr error
	for attempt := 0; attempt < s.config.Server.PortAttempts && port <= 65535; attempt++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			s.listener = ln
			return ln.Addr(), nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listening on port %d: %w", port, err)
		}
		log.Printf("Port %d is in use, trying %d", port, port+1)
		lastErr = err
		port++
	}
	return nil, fmt.Errorf("no free port in %d attempts from %d: %w",
		s.config.Server.PortAttempts, s.config.Server.Port, lastErr)
}

// Start listens (if Listen was not called yet) and serves until Shutdown.
func (s *Server) Start() error {
	addr, err := s.Listen()
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	log.Printf("Starting web server on %s", addr)
	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Package web serves a read-only JSON status API for a running visualizer.
package web

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Provider supplies the documents served by the API.
type Provider interface {
	// Status returns a JSON-serializable snapshot of runtime counters.
	Status() any
	// Settings returns the effective configuration.
	Settings() any
}

// Server is the status server
type Server struct {
	app      *fiber.App
	addr     string
	provider Provider
	logger   *slog.Logger
	started  time.Time

	mu sync.Mutex
	ln net.Listener
}

// NewServer creates a status server for addr, e.g. ":8090".
func NewServer(addr string, provider Provider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:     addr,
		provider: provider,
		logger:   logger,
		started:  time.Now(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "depthview",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/status", s.handleStatus)
	api.Get("/config", s.handleConfig)

	s.app = app
	return s
}

// Start binds addr and serves until Shutdown. It blocks.
func (s *Server) Start() error {
	ln, err := s.listen()
	if err != nil {
		return err
	}
	return s.app.Listener(ln)
}

// StartAsync binds addr and serves in a goroutine. Only the bind error is
// returned; serve errors are logged.
func (s *Server) StartAsync() error {
	ln, err := s.listen()
	if err != nil {
		return err
	}
	go func() {
		if err := s.app.Listener(ln); err != nil {
			s.logger.Warn("status server stopped", "error", err)
		}
	}()
	return nil
}

func (s *Server) listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("web: listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info("status server listening", "addr", ln.Addr().String())
	return ln, nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Shutdown gracefully stops the web server. The listener is closed as well,
// so a serve loop that had not started yet returns at once.
func (s *Server) Shutdown() error {
	err := s.app.ShutdownWithTimeout(2 * time.Second)
	s.mu.Lock()
	if s.ln != nil {
		s.ln.Close()
	}
	s.mu.Unlock()
	return err
}

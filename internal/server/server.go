package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an http.Handler that knows the paths it serves.
type Handler interface {
	http.Handler
	Routes() []string
}

// Server is a short-lived local HTTP server, started for the duration of a login.
type Server struct {
	http     *http.Server
	listener net.Listener
	logger   *log.Logger
}

// Listen binds addr and serves handler in the background. Use ":0" for a random port.
func Listen(addr string, handler http.Handler, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.Default()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &Server{
		http:     &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second},
		listener: ln,
		logger:   logger,
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("callback server stopped", "error", err)
		}
	}()

	logger.Debug("callback server listening", "addr", ln.Addr().String())
	return s, nil
}

// Addr returns the address the server is bound to.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server, waiting for in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

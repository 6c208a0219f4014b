package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/delsur/comandero/internal/config"
)

// Server wraps the HTTP server around the route tree.
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
}

// NewServer builds the server. The CORS origins come from configuration so
// the wall display can live on another host.
func NewServer(cfg config.ServerConfig, corsCfg config.CORSConfig, h *Handlers) *Server {
	return &Server{
		config:  cfg,
		handler: SetupRoutes(h, corsCfg.AllowedOrigins),
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.config.GetHost(), s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler,
		// WriteTimeout stays zero: the SSE stream holds its response open
		// for as long as the wall display is up. Data-plane requests are
		// bounded by the per-request deadline middleware instead.
		ReadTimeout:       time.Minute,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

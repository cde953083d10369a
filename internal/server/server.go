// Package server provides the HTTP server for the enrichment service.
// It handles graceful shutdown, middleware setup, and request routing.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MathiasSchindler/commonsimagedescription/internal/config"
	"github.com/MathiasSchindler/commonsimagedescription/internal/logger"
)

// Server represents the HTTP server with all dependencies.
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
	config     *config.Config
}

// New creates a new Server instance.
func New(cfg *config.Config, handler http.Handler, log *logger.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:        fmt.Sprintf(":%d", cfg.Port),
			Handler:     handler,
			ReadTimeout: 30 * time.Second,
			// Vision calls can hold a response open for minutes.
			WriteTimeout: 180 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: log,
		config: cfg,
	}
}

// Start begins listening for HTTP requests.
// It blocks until the server is shut down.
func (s *Server) Start() error {
	s.logger.WithField("port", s.config.Port).Info("starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
// It waits for active connections to complete within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.WithField("timeout", s.config.ShutdownTimeout.String()).Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("shutdown error")
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

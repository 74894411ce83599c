package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/zippycoin-network/trust_engine/internal/config"
	"github.com/zippycoin-network/trust_engine/pkg/logger"
)

// Server wraps the HTTP listener with graceful shutdown.
type Server struct {
	srv *http.Server
	log *logger.Logger
}

// NewServer builds the listener from server config.
func NewServer(cfg config.ServerConfig, handler http.Handler, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("trust-http")
	}
	// WriteTimeout stays unset: it would sever long-lived SSE subscriptions.
	// The configured write timeout bounds idle keep-alive connections instead.
	return &Server{
		srv: &http.Server{
			Addr:        cfg.Addr,
			Handler:     handler,
			ReadTimeout: cfg.ReadTimeout.Std(),
			IdleTimeout: cfg.WriteTimeout.Std(),
		},
		log: log,
	}
}

// Start blocks serving requests until Shutdown is called or the listener
// fails.
func (s *Server) Start() error {
	s.log.WithField("addr", s.srv.Addr).Info("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("http server shutting down")
	return s.srv.Shutdown(ctx)
}

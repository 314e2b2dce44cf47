// Package server exposes the gateway operations over HTTP with JSON
// bodies.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/stowgate/stowgate/internal/errors"
	"github.com/stowgate/stowgate/internal/server/middleware"
	"github.com/stowgate/stowgate/pkg/gateway"
)

// Server wraps the HTTP listener around a gateway.
type Server struct {
	host    string
	port    int
	version string

	gateway *gateway.Gateway
	logger  *zap.Logger
	http    *http.Server
}

// Option adjusts server construction.
type Option func(*Server)

// WithVersion sets the version string reported by /version.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New builds a server. The gateway may be nil in tests that only
// exercise routing.
func New(host string, port int, gw *gateway.Gateway, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		host:    host,
		port:    port,
		version: "dev",
		gateway: gw,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Handler builds the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logger(s.logger))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.WriteError(w, http.StatusNotFound, "NOT_FOUND",
			"route not found", req.Header.Get("X-Request-ID"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"method not allowed", req.Header.Get("X-Request-ID"))
	})

	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)

	r.Route("/connections", func(r chi.Router) {
		r.Get("/", s.handleListConnections)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetConnection)
			r.Post("/test", s.handleTestConnection)
			r.Get("/files", s.handleListFiles)
			r.Post("/grants", s.handleIssueGrant)
			r.Get("/diagnose", s.handleDiagnose)
			r.Put("/enabled", s.handleSetEnabled)
			r.Put("/folder", s.handleAssignFolder)
			r.Post("/oauth/begin", s.handleBeginOAuth)
			r.Post("/oauth/complete", s.handleCompleteOAuth)
		})
	})

	return r
}

// ListenAndServe runs the server until ctx is cancelled, then drains
// within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, readTimeout, writeTimeout, idleTimeout, shutdownTimeout time.Duration) error {
	s.http = &http.Server{
		Addr:         addr(s.host, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func addr(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}

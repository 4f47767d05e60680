// Package core provides the API chassis for the Traindeck notification
// engine. It creates a chi router, enforces cross-cutting concerns
// (recovery, request IDs, logging, caller identity, error envelopes) before
// requests reach domain handlers, and owns request validation.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"traindeck/internal/config"
)

// RouteRegistrar mounts one handler group onto the v1 router. Populated by
// the application entry point to avoid import cycles between core and
// handler packages.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the API dependencies, allowing injection during
// testing and distinct configuration per environment.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// V1RouteRegistrars are mounted under /v1 by MountRoutes.
	V1RouteRegistrars []RouteRegistrar

	router *chi.Mux
	closer func() error
}

// NewServer initializes the chassis. The closer, if non-nil, releases
// shared resources (the database pool) on Shutdown.
func NewServer(cfg *config.Config, logger *slog.Logger, closer func() error) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
		closer:    closer,
	}, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// MountRoutes registers the global middleware chain, the /v1 handler groups
// and the health endpoint. Middleware order matters: recovery is outermost,
// then correlation, then logging, then identity.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger))

	s.router.Get("/health", s.HandleHealth)

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.IdentityMiddleware)
		for _, registrar := range s.V1RouteRegistrars {
			registrar(r)
		}
	})
}

// HandleHealth reports process liveness.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": s.Config.Service,
	})
}

// Shutdown releases server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")
	if s.closer != nil {
		if err := s.closer(); err != nil {
			return fmt.Errorf("closing resources: %w", err)
		}
	}
	s.Logger.Info("server shutdown complete")
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

// Package server is the HTTP surface of the host: the huma admin API,
// the middleware stack plugin routes run under, and the route registrar
// that is the only path for binding plugin handlers.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	atriumerr "github.com/atrium-host/atrium/pkg/errors"
)

// Config holds the HTTP listener settings.
type Config struct {
	ListenAddr   string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// withDefaults fills the timeouts the caller left zero.
func (c Config) withDefaults() Config {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60 * time.Second
	}
	return c
}

// Server wraps a chi router with the huma admin API and the plugin
// route registrar.
type Server struct {
	router    chi.Router
	api       huma.API
	cfg       Config
	rt        Runtime
	registrar *Registrar
}

// New assembles the router, middleware stack, and admin API around the
// given runtime. The runtime must carry every registry the handlers
// reach for; a partially wired one is rejected up front.
func New(cfg Config, rt Runtime) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, atriumerr.New(atriumerr.CodeServerConfigInvalid, "listen address is required")
	}
	if err := rt.validate(); err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg.withDefaults(), rt: rt}
	s.router = chi.NewRouter()
	s.router.Use(middleware.Recoverer, middleware.RealIP, corsMiddleware(cfg.CORSOrigins))

	apiCfg := huma.DefaultConfig("Atrium Host", "0.1.0")
	apiCfg.Info.Description = "Multi-tenant plugin host admin API"
	s.api = humachi.New(s.router, apiCfg)

	s.registrar = &Registrar{srv: s}
	s.registerAdminRoutes()

	return s, nil
}

// Registrar returns the route registrar bound to this server. Mounting
// happens after boot, before Start.
func (s *Server) Registrar() *Registrar {
	return s.registrar
}

// Handler returns the router for tests that drive requests directly.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API backing the admin surface.
func (s *Server) API() huma.API {
	return s.api
}

// Start listens on the configured address and serves until ctx is
// cancelled, then drains in-flight requests before returning.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return atriumerr.Wrapf(err, atriumerr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}

	httpSrv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		err := httpSrv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	<-ctx.Done()

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(drainCtx); err != nil {
		return atriumerr.Wrapf(err, atriumerr.CodeServerShutdownFailure, "shutting down")
	}

	return <-serveErr
}

// corsMiddleware builds the CORS layer. With no configured origins the
// local Vite dev origin is allowed so plugin UI development works
// against a default host.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Atrium-User", "X-Atrium-Tenant", "X-Atrium-Role"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

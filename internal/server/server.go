// Package server implements the HTTP transport of the registry: member
// register, update and list calls, the routing gateway list, and admin endpoints.
package server

import (
	"net/http"

	"github.com/woozymasta/warden/internal/config"
	"github.com/woozymasta/warden/internal/game"
	"github.com/woozymasta/warden/internal/registry"
	"github.com/woozymasta/warden/internal/telemetry"
)

// New creates a Server. events may be nil.
func New(reg *registry.Registry, events EventReader, metrics *telemetry.Metrics, cfg *config.Config) *Server {
	return &Server{
		registry:       reg,
		events:         events,
		metrics:        metrics,
		probe:          game.Probe,
		a2sOptions:     cfg.A2S,
		authToken:      cfg.Server.AuthToken,
		maxBody:        cfg.Server.MaxBodySize,
		trustProxy:     cfg.Server.TrustProxy,
		hardLimitCount: cfg.RateLimit.HardLimitCount,
		hardLimitWin:   cfg.RateLimit.HardLimitWin,
		shutdown:       make(chan struct{}),
	}
}

// Stop terminates background goroutines. Safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.shutdown) })
}

// Run configures the HTTP routes and returns the main handler.
func (s *Server) Run() http.Handler {
	mux := http.NewServeMux()

	member := func(op string, h http.HandlerFunc) http.Handler {
		return s.metrics.Instrument(op, h)
	}
	admin := func(op string, h http.HandlerFunc) http.Handler {
		return s.metrics.Instrument(op, AdminAuthMiddleware(s.authToken, h))
	}

	limiter := s.RateLimitMiddleware
	mux.Handle("POST /api/server/register", limiter(member("register", s.handleRegister)))
	mux.Handle("POST /api/server/update", limiter(member("update", s.handleUpdate)))
	mux.Handle("GET /api/server/list", member("list", s.handleList))
	mux.Handle("GET /api/gate/list", member("gate_list", s.handleGateList))

	mux.Handle("GET /api/server", admin("get", s.handleGetServer))
	mux.Handle("DELETE /api/server", admin("deregister", s.handleDeregister))
	mux.Handle("GET /api/server/probe", admin("probe", s.handleProbe))
	mux.Handle("GET /api/gates", admin("gates", s.handleGates))
	mux.Handle("GET /api/events", admin("events", s.handleEvents))

	mux.Handle("GET /api/version", http.HandlerFunc(s.handleVersion))
	mux.Handle("GET /metrics", s.metrics.Handler())

	return s.LoggingMiddleware(mux)
}

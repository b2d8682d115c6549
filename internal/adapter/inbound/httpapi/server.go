package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aegiscore/aegis/internal/adapter/outbound/telemetry"
	"github.com/aegiscore/aegis/internal/domain/auth"
	"github.com/aegiscore/aegis/internal/domain/ratelimit"
	"github.com/aegiscore/aegis/internal/domain/trace"
	"github.com/aegiscore/aegis/internal/service"
)

// Config tunes the HTTP transport boundary independent of the domain
// components it fronts.
type Config struct {
	Addr             string
	AllowedOrigins   []string
	RequireAuth      bool
	MaxRequestBytes  int64
	RateLimitPerMin  int
}

// Deps bundles the collaborators the inbound adapter calls into; none of
// them are owned by Server.
type Deps struct {
	Orchestrator *service.Orchestrator
	Ledger       trace.Ledger
	APIKeys      *auth.APIKeyService
	RateLimiter  ratelimit.RateLimiter
	Metrics      *telemetry.Metrics
	Registry     *prometheus.Registry
	Health       *HealthChecker
	Logger       *slog.Logger
}

// Server is the inbound HTTP adapter: a thin transport that parses
// requests, calls the Orchestrator, and writes the response, keeping
// transport concerns separate from domain logic.
type Server struct {
	orchestrator *service.Orchestrator
	ledger       trace.Ledger
	httpServer   *http.Server
	logger       *slog.Logger
}

// New builds a Server and its underlying *http.Server, wiring every route
// behind the middleware chain (outermost first): metrics, disclosure
// header, request ID, real IP, DNS-rebinding, max body size, rate limit,
// bearer auth.
func New(cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{orchestrator: deps.Orchestrator, ledger: deps.Ledger, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", s.handleChat)
	mux.HandleFunc("POST /v1/tools/approve", s.handleApprove)
	mux.HandleFunc("POST /v1/tools/execute", s.handleExecute)
	mux.HandleFunc("GET /v1/trust/events", s.handleTrustEvents)
	mux.HandleFunc("GET /v1/trust/trace/{id}", s.handleTrustTrace)
	mux.HandleFunc("GET /v1/trust/verify/{id}", s.handleTrustVerify)
	if deps.Health != nil {
		mux.HandleFunc("GET /health", deps.Health.handleHealth)
		mux.HandleFunc("GET /ready", deps.Health.handleReady)
	}
	if deps.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	var handler http.Handler = mux
	handler = bearerAuthMiddleware(deps.APIKeys, cfg.RequireAuth)(handler)
	handler = rateLimitMiddleware(deps.RateLimiter, cfg.RateLimitPerMin)(handler)
	handler = maxBodyMiddleware(cfg.MaxRequestBytes)(handler)
	handler = dnsRebindingProtection(cfg.AllowedOrigins)(handler)
	handler = realIPMiddleware(handler)
	handler = requestIDMiddleware(logger)(handler)
	handler = disclosureMiddleware(handler)
	handler = metricsMiddleware(deps.Metrics, "control_plane")(handler)

	addr := cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:8080"
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving and blocks until ctx is cancelled or the listener
// fails, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down http server")
		return s.Close()
	case err := <-errCh:
		return err
	}
}

// Close gracefully shuts down the HTTP server.
func (s *Server) Close() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Addr returns the configured listen address, for logging in cmd/start.go.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Package server exposes the orchestrator over HTTP: job submission and
// inspection, an SSE progress stream, session creation and runtime stats.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/storyloom/orchestrator/internal/orchestrator"
	"github.com/storyloom/orchestrator/internal/session"
)

// Stats aggregates runtime counters from the orchestrator's collaborators
// for the stats endpoint.
type Stats struct {
	CacheHits          uint64            `json:"cache_hits"`
	CacheMisses        uint64            `json:"cache_misses"`
	CacheEntries       int               `json:"cache_entries"`
	RateLimitRetries   uint64            `json:"rate_limit_retries"`
	TransientRetries   uint64            `json:"transient_retries"`
	CircuitStates      map[string]string `json:"circuit_states"`
	RegisteredBackends []string          `json:"registered_backends"`
}

// StatsFunc collects a Stats snapshot.
type StatsFunc func() Stats

// Server is the HTTP front end.
type Server struct {
	Router *chi.Mux
	Port   int

	orch     *orchestrator.Orchestrator
	sessions *session.Manager
	stats    StatsFunc
	logger   *slog.Logger

	defaultMaxCalls int
}

// Option configures a Server.
type Option func(*Server)

// WithStats installs the stats collector backing GET /v1/stats.
func WithStats(fn StatsFunc) Option {
	return func(s *Server) { s.stats = fn }
}

// WithDefaultMaxCalls sets the session budget used when a create-session
// request does not specify one.
func WithDefaultMaxCalls(n int) Option {
	return func(s *Server) { s.defaultMaxCalls = n }
}

// New builds the server and mounts all routes. The SSE events route is
// mounted outside the timeout middleware so long-lived streams survive.
func New(port int, orch *orchestrator.Orchestrator, sessions *session.Manager, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		Port:            port,
		orch:            orch,
		sessions:        sessions,
		logger:          logger,
		defaultMaxCalls: 50,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "orchestrator")
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/v1/jobs/{jobID}/events", s.handleJobEvents)

	r.Group(func(r chi.Router) {
		r.Use(TimeoutMiddleware(30 * time.Second))
		r.Post("/v1/jobs", s.handleSubmitJob)
		r.Get("/v1/jobs/{jobID}", s.handleGetJob)
		r.Delete("/v1/jobs/{jobID}", s.handleCancelJob)
		r.Post("/v1/sessions", s.handleCreateSession)
		r.Get("/v1/sessions/{sessionID}", s.handleGetSession)
		r.Get("/v1/stats", s.handleStats)
	})

	s.Router = r
	return s
}

// Start runs the listener until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Port),
		Handler: s.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", slog.Int("port", s.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

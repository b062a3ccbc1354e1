// Package gateway is the HTTP surface of StepGate: submission, status
// polling, the operator-channel webhook, and the ops/debug endpoints.
package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aqubia/stepgate/internal/audit"
	"github.com/aqubia/stepgate/internal/flow"
	"github.com/aqubia/stepgate/internal/metrics"
	"github.com/aqubia/stepgate/internal/notify"
	"github.com/aqubia/stepgate/internal/screen"
)

// Options configures a Server.
type Options struct {
	Addr     string
	Store    *flow.Store
	Engine   screen.Engine
	Notifier notify.Notifier
	Audit    audit.Store
	Logger   *slog.Logger

	// FallbackSynthesis controls the unknown-flow behavior of the status
	// endpoint: synthesize a pending record (availability) or report 404
	// (strictness).
	FallbackSynthesis bool

	// RateLimit caps submissions; nil disables limiting.
	RateLimit *RateLimiter
}

// Server is the StepGate HTTP server.
type Server struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	store    *flow.Store
	engine   screen.Engine
	notifier notify.Notifier
	audit    audit.Store
	fallback bool
	limiter  *RateLimiter
	addr     string
}

// NewServer creates a new gateway server.
func NewServer(opts Options) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		logger:   opts.Logger,
		store:    opts.Store,
		engine:   opts.Engine,
		notifier: opts.Notifier,
		audit:    opts.Audit,
		fallback: opts.FallbackSynthesis,
		limiter:  opts.RateLimit,
		addr:     opts.Addr,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/v1/flows", s.handleSubmit)
	s.mux.HandleFunc("GET /api/v1/flows/status", s.handleStatus)
	s.mux.HandleFunc("POST /webhook/telegram", s.handleWebhook)

	// Ops/debug surfaces, not part of the client contract
	s.mux.HandleFunc("POST /api/v1/flows/{id}/resolve", s.handleManualResolve)
	s.mux.HandleFunc("GET /api/v1/flows/debug", s.handleDebug)
	s.mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/v1/audit", s.handleAuditLog)
	s.mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())
}

// ListenAndServe starts the gateway HTTP server.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.mux,
	}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	s.logger.Info("starting gateway", "addr", s.addr)
	return srv.ListenAndServe()
}

// Handler returns the HTTP handler for embedding in other servers and tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Package server exposes the portfolio over HTTP and websockets.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/portfolio-tracker/internal/config"
	"github.com/rickgao/portfolio-tracker/internal/dispatch"
	"github.com/rickgao/portfolio-tracker/internal/model"
	"github.com/rickgao/portfolio-tracker/internal/portfolio"
)

// Portfolio is the holdings API. Implemented by *portfolio.Service.
type Portfolio interface {
	Holdings() []model.Holding
	Get(id uuid.UUID) (model.Holding, bool)
	Add(ctx context.Context, in portfolio.NewHolding) (model.Holding, error)
	Update(ctx context.Context, id uuid.UUID, in portfolio.HoldingUpdate) (model.Holding, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Metrics() portfolio.Metrics
}

// QuoteSource fetches one quote. Implemented by *watch.Registry.
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (*model.Quote, error)
}

// DispatcherStats reports outbound request counters. Implemented by
// *dispatch.Dispatcher.
type DispatcherStats interface {
	Stats() dispatch.Stats
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Server serves the REST API and the price stream.
type Server struct {
	cfg        config.ServerConfig
	portfolio  Portfolio
	quotes     QuoteSource
	dispatcher DispatcherStats
	stream     http.Handler
	checks     map[string]HealthCheck
	logger     *slog.Logger

	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithQuotes enables GET /api/quote/{symbol}.
func WithQuotes(q QuoteSource) Option {
	return func(s *Server) {
		s.quotes = q
	}
}

// WithDispatcher enables GET /api/dispatcher.
func WithDispatcher(d DispatcherStats) Option {
	return func(s *Server) {
		s.dispatcher = d
	}
}

// WithStream mounts a websocket handler at /ws.
func WithStream(h http.Handler) Option {
	return func(s *Server) {
		s.stream = h
	}
}

// WithHealthCheck adds a named component to GET /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// New creates a new Server.
func New(cfg config.ServerConfig, p Portfolio, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		portfolio: p,
		checks:    make(map[string]HealthCheck),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/holdings", s.handleListHoldings)
	mux.HandleFunc("POST /api/holdings", s.handleAddHolding)
	mux.HandleFunc("GET /api/holdings/{id}", s.handleGetHolding)
	mux.HandleFunc("PUT /api/holdings/{id}", s.handleUpdateHolding)
	mux.HandleFunc("DELETE /api/holdings/{id}", s.handleDeleteHolding)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)

	if s.quotes != nil {
		mux.HandleFunc("GET /api/quote/{symbol}", s.handleQuote)
	}
	if s.dispatcher != nil {
		mux.HandleFunc("GET /api/dispatcher", s.handleDispatcher)
	}
	if s.stream != nil {
		mux.Handle("GET /ws", s.stream)
	}

	return s.logRequests(s.cors(mux))
}

// Start listens on the configured port and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.cfg.Port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "err", err)
		}
	}()

	s.logger.Info("http server started", "addr", ln.Addr().String())
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// healthTimeout bounds the dependency checks behind GET /health.
const healthTimeout = 5 * time.Second

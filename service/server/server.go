package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/swapper/service/config"
	"github.com/brojonat/swapper/service/db"
	"github.com/brojonat/swapper/service/jupiter"
	"github.com/brojonat/swapper/service/metrics"
	natspkg "github.com/brojonat/swapper/service/nats"
	"github.com/brojonat/swapper/service/temporal"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SwapStore is the slice of *db.Store the handlers use.
type SwapStore interface {
	CreateSwap(ctx context.Context, params db.CreateSwapParams) (*db.Swap, error)
	GetSwap(ctx context.Context, id uuid.UUID) (*db.Swap, error)
	ListSwaps(ctx context.Context, params db.ListSwapsParams) ([]*db.Swap, error)
	UpdateSwapResult(ctx context.Context, params db.UpdateSwapResultParams) (*db.Swap, error)
	CountSwapsByStatus(ctx context.Context) (map[string]int64, error)
}

// Quoter prices routes. *jupiter.Client implements it.
type Quoter interface {
	GetQuote(ctx context.Context, p jupiter.QuoteParams) (*jupiter.Quote, error)
}

// SwapEventSource streams swap events. *nats.Subscriber implements it.
type SwapEventSource interface {
	Subscribe(ctx context.Context, wallet string) (<-chan *natspkg.SwapEvent, error)
}

// Server represents the HTTP server for the swap service.
type Server struct {
	addr    string
	cfg     *config.Config
	store   SwapStore
	starter temporal.SwapStarter
	quoter  Quoter
	events  SwapEventSource
	wallet  string
	metrics *metrics.Metrics
	logger  *slog.Logger
	server  *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The starter is used to start a swap workflow for every accepted request.
// The wallet is the address that pays for and signs swaps; it is stored on
// every swap record.
// The events source is optional - if nil, streaming endpoints won't be available.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, cfg *config.Config, store SwapStore, starter temporal.SwapStarter, quoter Quoter, events SwapEventSource, wallet string, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:    addr,
		cfg:     cfg,
		store:   store,
		starter: starter,
		quoter:  quoter,
		events:  events,
		wallet:  wallet,
		metrics: m,
		logger:  logger,
	}
}

// Handler returns the routed handler with every middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	instrument := func(name string, h http.Handler) http.Handler {
		return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
	}

	// Swap routes
	mux.Handle("POST /api/v1/swaps", instrument("/api/v1/swaps", handleCreateSwap(s.store, s.starter, s.cfg, s.wallet, s.logger)))
	mux.Handle("GET /api/v1/swaps/stats", instrument("/api/v1/swaps/stats", handleSwapStats(s.store, s.logger)))
	mux.Handle("GET /api/v1/swaps/{id}", instrument("/api/v1/swaps/{id}", handleGetSwap(s.store, s.logger)))
	mux.Handle("GET /api/v1/swaps", instrument("/api/v1/swaps", handleListSwaps(s.store, s.logger)))
	mux.Handle("GET /api/v1/quote", instrument("/api/v1/quote", handleQuote(s.quoter, s.cfg, s.logger)))

	// SSE streaming endpoints (if an event source is configured)
	if s.events != nil {
		mux.Handle("GET /api/v1/stream/swaps/{wallet}", instrument("/api/v1/stream/swaps", handleStreamSwaps(s.events, s.logger)))
		mux.Handle("GET /api/v1/stream/swaps", instrument("/api/v1/stream/swaps", handleStreamSwaps(s.events, s.logger)))
		s.logger.Info("SSE streaming endpoints enabled")
	} else {
		s.logger.Warn("event source not configured, streaming endpoints disabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: event streams stay open
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr, "wallet", s.wallet)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

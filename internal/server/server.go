// Package server exposes uploaded databases and the question workflow over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"askdb/internal/database"
	"askdb/internal/nouns"
	"askdb/internal/workflow"
)

// Asker answers questions about one registered database.
type Asker interface {
	Handle(ctx context.Context, question string) workflow.Response
}

// Builder wires the question pipeline for a freshly ingested database.
// ix is nil when the proper-noun index is disabled.
type Builder func(h *database.Handle, ix *nouns.Index) (Asker, error)

// Config holds configuration for the web server
type Config struct {
	DataDir        string
	MaxRows        int
	RequestTimeout time.Duration
	DatabaseTTL    time.Duration
	RateLimit      float64
	RateBurst      int
	MaxUploadBytes int64
	StripNumbers   bool

	// NewIndex creates an empty proper-noun index per upload. Nil disables
	// the index.
	NewIndex func() *nouns.Index
	Logger   *slog.Logger
}

// Server serves the HTTP API.
type Server struct {
	cfg      Config
	build    Builder
	registry *registry
	limiter  *rate.Limiter
	rebuilds singleflight.Group
	logger   *slog.Logger
}

// New creates a Server. build is required.
func New(cfg Config, build Builder) (*Server, error) {
	if build == nil {
		return nil, errors.New("server: builder is required")
	}
	if cfg.DataDir == "" {
		return nil, errors.New("server: data dir is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	if cfg.DatabaseTTL <= 0 {
		cfg.DatabaseTTL = time.Hour
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 5
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 200 << 20
	}

	return &Server{
		cfg:      cfg,
		build:    build,
		registry: newRegistry(cfg.DatabaseTTL, cfg.Logger),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:   cfg.Logger,
	}, nil
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	r.Get("/healthz", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/databases", func(r chi.Router) {
		r.Post("/", s.Upload)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/tables", s.Tables)
			r.With(s.rateLimit).Post("/ask", s.Ask)
			r.Post("/index", s.RebuildIndex)
			r.Delete("/", s.Delete)
		})
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully and closes every registered database.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	defer s.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("Server started", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("Server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// Close closes every registered database.
func (s *Server) Close() {
	s.registry.closeAll()
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			respondError(w, http.StatusTooManyRequests, "Too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Package api provides the operational HTTP server for LaunchPipe.
//
// It exposes a health check, Prometheus metrics and the current launch snapshot.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BTreeMap/LaunchPipe/internal/session"
	"github.com/BTreeMap/LaunchPipe/internal/snapshot"
)

// Constants for server configuration
const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"
	// DefaultStaleAfter is how old the snapshot may get before health degrades.
	DefaultStaleAfter = 30 * time.Minute
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Opts holds configuration options for the Server.
type Opts struct {
	Addr       string
	Engine     *session.Engine
	Gatherer   prometheus.Gatherer
	StaleAfter time.Duration
	Clock      func() time.Time
}

// Option defines a configuration option for the Server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithEngine reports session counts in the health check.
func WithEngine(e *session.Engine) Option {
	return func(o *Opts) { o.Engine = e }
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *Opts) { o.Gatherer = g }
}

// WithStaleAfter sets the snapshot age at which health degrades.
func WithStaleAfter(d time.Duration) Option {
	return func(o *Opts) { o.StaleAfter = d }
}

// WithClock overrides the time source (tests).
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// Server serves the operational endpoints.
type Server struct {
	addr       string
	snap       *snapshot.Store
	engine     *session.Engine
	gatherer   prometheus.Gatherer
	staleAfter time.Duration
	clock      func() time.Time
}

// NewServer creates a Server over snap.
func NewServer(snap *snapshot.Store, opts ...Option) *Server {
	cfg := Opts{
		Addr:       DefaultAddr,
		Gatherer:   prometheus.DefaultGatherer,
		StaleAfter: DefaultStaleAfter,
		Clock:      time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		addr:       cfg.Addr,
		snap:       snap,
		engine:     cfg.Engine,
		gatherer:   cfg.Gatherer,
		staleAfter: cfg.StaleAfter,
		clock:      cfg.Clock,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthHandler)
	mux.HandleFunc("/launches", s.launchesHandler)
	mux.HandleFunc("/launches/", s.launchHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: shutdown failed", "error", err)
		return fmt.Errorf("api server shutdown: %w", err)
	}
	slog.Info("Server.Run: stopped")
	return nil
}

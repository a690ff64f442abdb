// Package api serves design resolution over HTTP.
//
// The server holds one engine at a time. A reload builds a complete new
// engine from the catalog and formulas directories and swaps it in, so
// requests in flight finish against the catalog they started with.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/unitdesign/internal/api/notifier"
	"github.com/leapstack-labs/unitdesign/internal/engine"
)

// Config holds configuration for the API server.
type Config struct {
	// Addr is the listen address, host:port.
	Addr string
	// Engine configures every engine the server builds.
	Engine engine.Config
	// Watch reloads the engine when catalog or formula files change.
	Watch bool
	// ShutdownTimeout bounds graceful shutdown. Zero means 5s.
	ShutdownTimeout time.Duration
	// BatchLimit caps concurrent resolutions in one batch request. Zero
	// means GOMAXPROCS.
	BatchLimit int
	// Logger for server operations. If nil, logging is disabled.
	Logger *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	cfg        Config
	engine     atomic.Pointer[engine.Engine]
	generation atomic.Uint64
	notifier   *notifier.Notifier
	logger     *slog.Logger
	router     chi.Router
}

// NewServer builds the initial engine and the router. It fails if the
// catalog cannot be loaded.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.Engine.Logger == nil {
		cfg.Engine.Logger = cfg.Logger
	}

	eng, err := engine.New(cfg.Engine)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		notifier: notifier.New(),
		logger:   cfg.Logger,
	}
	s.engine.Store(eng)
	s.generation.Store(1)
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(s.logger),
		middleware.Recoverer,
	)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(instrument)
		r.Get("/unit-processes", s.handleList)
		r.Get("/unit-processes/{type}", s.handleShow)
		r.Post("/unit-processes/{type}/resolve", s.handleResolve)
		r.Post("/resolve", s.handleBatch)
		r.Get("/events", s.handleEvents)
	})
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Engine returns the live engine.
func (s *Server) Engine() *engine.Engine { return s.engine.Load() }

// Generation returns the number of engines built so far, starting at 1.
func (s *Server) Generation() uint64 { return s.generation.Load() }

// Notifier returns the reload event broadcaster.
func (s *Server) Notifier() *notifier.Notifier { return s.notifier }

// Reload builds a new engine and swaps it in. On failure the live engine
// stays in place.
func (s *Server) Reload() error {
	eng, err := engine.New(s.cfg.Engine)
	if err != nil {
		reloadTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("reload failed: %w", err)
	}
	s.engine.Store(eng)
	gen := s.generation.Add(1)
	reloadTotal.WithLabelValues("ok").Inc()

	n := eng.Catalog().Len()
	s.logger.Info("catalog reloaded", "generation", gen, "unit_processes", n)
	s.notifier.Broadcast(notifier.Event{Generation: gen, UnitProcesses: n})
	return nil
}

// Serve listens on the configured address and blocks until ctx is
// cancelled.
func (s *Server) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting API server", "addr", ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.router,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.cfg.Watch {
		eg.Go(func() error {
			return s.watchFiles(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		s.logger.Debug("shutting down API server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/raido/internal/api"
	"github.com/starford/raido/internal/forms"
	"github.com/starford/raido/internal/metadata"
	"github.com/starford/raido/internal/metrics"
	"github.com/starford/raido/internal/refresh"
	"github.com/starford/raido/internal/registry"
	"github.com/starford/raido/internal/saml"
	"github.com/starford/raido/internal/sse"
	"github.com/starford/raido/internal/tou"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("registry_path", cfg.Registry.Path),
		slog.String("store_path", cfg.Store.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure the metadata store directory exists.
	if err := os.MkdirAll(cfg.Store.Path, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	// Initialize the versioned metadata store.
	store, err := metadata.NewFS(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	// Initialize the SQLite registry.
	reg, err := registry.Open(cfg.Registry.Path)
	if err != nil {
		return fmt.Errorf("init registry: %w", err)
	}
	defer reg.Close()

	// SSE broker.
	broker := sse.NewBroker()
	defer broker.Close()

	m := metrics.New()
	fetcher := forms.NewFetcher(cfg.Fetch.Timeout())
	terms := tou.NewLoader(cfg.Terms.Dir)

	apiRouter := api.NewRouter(api.RouterConfig{
		Registry:    reg,
		Store:       store,
		Fetcher:     fetcher,
		Metrics:     m,
		Broker:      broker,
		Terms:       terms,
		Validate:    saml.Validate,
		AuthEnabled: cfg.Auth.AuthEnabled(),
		AuthToken:   cfg.Auth.Token,
	})

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheus metrics (unauthenticated, like health).
	r.Method(http.MethodGet, "/metrics", m.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	// SSE endpoint.
	r.Get("/api/events", broker.ServeHTTP)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the store for out-of-band metadata changes.
	g.Go(func() error {
		err := metadata.Watch(gCtx, store.Root(), logger, func(name string) {
			id, parseErr := strconv.ParseInt(name, 10, 64)
			if parseErr != nil {
				return
			}
			if touchErr := reg.TouchEntity(id, ""); touchErr != nil {
				logger.Debug("store watcher: touch entity failed",
					slog.Int64("entity_id", id), slog.String("error", touchErr.Error()))
			}
			broker.PublishEntityEvent("metadata", id, "")
		})
		if err != nil {
			logger.Warn("store watcher failed", slog.String("error", err.Error()))
		}
		return nil
	})

	// Background metadata refresher.
	if cfg.Refresh.Enabled {
		deps := forms.Deps{Store: store, Registry: reg, Validate: saml.Validate}
		refresher := refresh.New(reg, deps, fetcher, m, logger, cfg.Refresh.Interval(),
			func(kind string, entityID int64, name string) {
				broker.PublishEntityEvent(kind, entityID, name)
			})
		g.Go(func() error {
			return refresher.Run(gCtx)
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

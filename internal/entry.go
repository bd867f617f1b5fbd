// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/gpabois/emerald/internal/api"
	"github.com/gpabois/emerald/internal/index"
	"github.com/gpabois/emerald/internal/markdown"
	"github.com/gpabois/emerald/internal/mcpserver"
	"github.com/gpabois/emerald/internal/shardservice"
	"github.com/gpabois/emerald/internal/sse"
	"github.com/gpabois/emerald/internal/vault"
)

// NewLogger creates the structured logger used by every command, in the
// configured format.
func NewLogger(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.App.LogLevel}
	if cfg.App.LogFormat == LogFormatText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// OpenVault opens the configured vault with its strictness and link policy.
func OpenVault(cfg *Config, logger *slog.Logger) (*vault.Vault, error) {
	v, err := vault.Open(cfg.Vault.Path,
		vault.WithStrict(cfg.Vault.Strict),
		vault.WithFollowLinks(cfg.Vault.FollowLinks),
		vault.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	return v, nil
}

// ParseOptions returns the markdown options matching the configuration.
func ParseOptions(cfg *Config, logger *slog.Logger) []markdown.Option {
	return []markdown.Option{
		markdown.WithStrict(cfg.Vault.Strict),
		markdown.WithLogger(logger),
	}
}

// services holds what both the HTTP and the MCP servers run on.
type services struct {
	vault *vault.Vault
	db    *index.DB
	svc   *shardservice.Service
}

func (a *application) open(logger *slog.Logger) (*services, error) {
	cfg := a.config

	// A missing root is a configuration error, never created here.
	v, err := OpenVault(cfg, logger)
	if err != nil {
		return nil, err
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	// Run initial sync.
	if err := index.Sync(db, v, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	return &services{
		vault: v,
		db:    db,
		svc:   shardservice.NewService(v, db, ParseOptions(cfg, logger)...),
	}, nil
}

// Run starts the HTTP server, the index watcher and the SSE broker.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := NewLogger(cfg, app.logOutput(os.Stdout))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("strict", cfg.Vault.Strict),
		slog.String("log_level", cfg.App.LogLevel.String()))

	s, err := app.open(logger)
	if err != nil {
		return err
	}
	defer s.db.Close()

	// SSE broker.
	broker := sse.NewBroker(cfg.Events.IndexThrottle)
	defer broker.Close()

	apiRouter := api.NewRouter(s.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		if _, err := s.vault.ReadDir(""); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"vault unavailable"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		if err := index.Watch(gCtx, s.db, s.vault, logger, broker.PublishChange); err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

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
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.HTTP.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group once the server is asked to stop, so the
// watcher exits with it.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdio. Logs go to stderr.
func RunMCP(_ context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := NewLogger(app.config, app.logOutput(os.Stderr))
	slog.SetDefault(logger)

	s, err := app.open(logger)
	if err != nil {
		return err
	}
	defer s.db.Close()

	logger.Info("MCP server starting", slog.String("vault_path", app.config.Vault.Path))
	return mcpserver.New(s.svc, app.version).ServeStdio()
}

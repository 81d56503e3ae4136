// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/agora/internal/api"
	"github.com/starford/agora/internal/feed"
	"github.com/starford/agora/internal/index"
	"github.com/starford/agora/internal/mcpserver"
	"github.com/starford/agora/internal/monitoring"
	"github.com/starford/agora/internal/notifications"
	"github.com/starford/agora/internal/recordstore"
	"github.com/starford/agora/internal/replica"
	"github.com/starford/agora/internal/social"
	"github.com/starford/agora/internal/sse"
	"github.com/starford/agora/internal/urlnorm"
)

// core is the wired record layer and services shared by every command.
type core struct {
	cfg      *Config
	logger   *slog.Logger
	registry *replica.Registry
	db       *index.DB
	metrics  *monitoring.Metrics
	indexer  *index.Indexer
	services api.Services
}

func (c *core) Close() error {
	return c.db.Close()
}

// newCore applies opts, opens the replica root and the SQLite index and wires
// the services. The caller must Close the result.
func newCore(opts ...Option) (*core, error) {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger
	if logger == nil {
		// Initialize structured JSON logger.
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("replicas_path", cfg.Replicas.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("user_origin", cfg.User.Origin),
		slog.String("log_level", cfg.App.LogLevel.String()))

	reg, err := replica.Open(cfg.Replicas.Path)
	if err != nil {
		return nil, fmt.Errorf("init replicas: %w", err)
	}
	userOrigin := urlnorm.CanonicalOrigin(cfg.User.Origin)
	if name, ok := replicaName(userOrigin); ok && cfg.User.Create {
		if _, err := reg.Create(name); err != nil {
			return nil, fmt.Errorf("create user replica: %w", err)
		}
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	metrics := monitoring.New()
	ix := index.NewIndexer(db, userOrigin, logger, index.WithMetrics(metrics))
	store := recordstore.New(reg, ix)

	return &core{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		db:       db,
		metrics:  metrics,
		indexer:  ix,
		services: api.Services{
			Social:        social.NewService(store),
			Feed:          feed.NewService(store),
			Notifications: notifications.NewService(db),
		},
	}, nil
}

// replicaName returns the local replica name of a peer origin.
func replicaName(origin string) (string, bool) {
	origin = urlnorm.CanonicalOrigin(origin)
	if !urlnorm.IsPeer(origin) {
		return "", false
	}
	return strings.TrimPrefix(origin, urlnorm.PeerScheme+"://"), true
}

// sync runs one full index pass and reports how long it took.
func (c *core) sync(ctx context.Context) error {
	start := time.Now()
	if err := index.Sync(ctx, c.indexer, c.registry, c.logger); err != nil {
		return err
	}
	c.logger.Info("Index synced",
		slog.Int("replicas", len(c.registry.Origins())),
		slog.Duration("took", time.Since(start)))
	return nil
}

// Run starts the HTTP server, the replica watcher and the SSE broker.
func Run(ctx context.Context, opts ...Option) error {
	c, err := newCore(opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	cfg, logger := c.cfg, c.logger

	// Run initial sync.
	if err := c.sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	// SSE broker receives every index event, including local writes.
	broker := sse.NewBroker(cfg.Events.FeedThrottle, sse.WithKeepAlive(cfg.Events.KeepAlive))
	defer broker.Close()
	c.indexer.SetEventCallback(broker.PublishIndexEvent)

	apiRouter := api.NewRouter(c.services, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(c.metrics.Middleware)

	// Health and metrics stay outside the authenticated API.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, nil)
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		_, err := c.db.Checksums(req.Context())
		writeHealth(w, err)
	})
	r.Handle("/metrics", c.metrics.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	// Request contexts derive from gCtx so open SSE streams end on shutdown.
	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: cfg.App.HTTP.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return gCtx },
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	// Keep the index in step with replicated files.
	g.Go(func() error {
		if err := index.Watch(gCtx, c.indexer, c.registry, logger); err != nil {
			logger.Error("watcher failed", slog.String("error", err.Error()))
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

	// Shut the server down once a signal arrives or the context ends.
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.HTTP.ShutdownTimeout)
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

// RunSync indexes every replica once and exits.
func RunSync(ctx context.Context, opts ...Option) error {
	c, err := newCore(opts...)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.sync(ctx)
}

// RunMCP serves the MCP tools over stdio while the watcher keeps the index
// current. Logs must not go to stdout; pass WithLogger.
func RunMCP(ctx context.Context, opts ...Option) error {
	c, err := newCore(opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.sync(ctx); err != nil {
		c.logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := index.Watch(ctx, c.indexer, c.registry, c.logger); err != nil {
			c.logger.Error("watcher failed", slog.String("error", err.Error()))
		}
	}()

	srv := mcpserver.New(c.services.Social, c.services.Feed, c.services.Notifications)
	return srv.ServeStdio()
}

func writeHealth(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

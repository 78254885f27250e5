package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/tweetbox/backend/internal/config"
	"github.com/tweetbox/backend/internal/db"
	"github.com/tweetbox/backend/internal/handlers"
	"github.com/tweetbox/backend/internal/httpserver"
	"github.com/tweetbox/backend/internal/logging"
	"github.com/tweetbox/backend/internal/middleware"
)

// Run bootstraps the tweetbox backend application.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, worker, migrate, or seed")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(os.Stdout, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "serve":
		return serve(ctx, cfg, logger)
	case "worker":
		return runWorker(ctx, cfg, logger)
	case "migrate":
		return runMigrations(ctx, cfg, logger, args[1:])
	case "seed":
		return runSeed(ctx, cfg, logger, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// serve runs the HTTP API until ctx ends. With the memory queue it also runs
// the cleanup worker; a Redis queue is left to the worker command.
func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.Options{MaxConns: cfg.DatabaseMaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	comps, err := buildComponents(ctx, pool, cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	srv := httpserver.New(cfg.AppPort, newHandler(comps.deps, logger))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", "port", cfg.AppPort)
		return srv.Run(gctx)
	})
	if embedsWorker(cfg) {
		g.Go(func() error {
			return superviseWorker(gctx, comps, logger)
		})
	} else {
		logger.Info("cleanup worker left to the worker command", "queue", cfg.Queue.Backend)
	}

	err = g.Wait()
	logger.Info("shutdown complete", "error", err)
	return err
}

// runWorker consumes the shared queue without serving HTTP.
func runWorker(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.Queue.Backend != config.QueueRedis {
		return fmt.Errorf("worker command needs the %q queue backend, got %q", config.QueueRedis, cfg.Queue.Backend)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.Options{MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	comps, err := buildComponents(ctx, pool, cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	return superviseWorker(ctx, comps, logger)
}

// embedsWorker reports whether serve consumes the deletion queue itself.
// Redis queues belong to the worker command.
func embedsWorker(cfg config.Config) bool {
	return cfg.Queue.Backend == config.QueueMemory
}

func superviseWorker(ctx context.Context, comps *components, logger *slog.Logger) error {
	if err := comps.worker.Start(ctx); err != nil {
		return fmt.Errorf("start cleanup worker: %w", err)
	}
	logger.Info("cleanup worker started")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
	defer cancel()
	if err := comps.worker.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("stop cleanup worker: %w", err)
	}
	logger.Info("cleanup worker stopped")
	return nil
}

func newHandler(deps handlers.Dependencies, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps)
	return middleware.RequestLogger(logger)(mux)
}

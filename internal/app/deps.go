package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tweetbox/backend/internal/auth"
	"github.com/tweetbox/backend/internal/cleanup"
	"github.com/tweetbox/backend/internal/config"
	"github.com/tweetbox/backend/internal/db"
	"github.com/tweetbox/backend/internal/graph"
	"github.com/tweetbox/backend/internal/handlers"
	"github.com/tweetbox/backend/internal/media"
	"github.com/tweetbox/backend/internal/middleware"
	"github.com/tweetbox/backend/internal/repositories"
	"github.com/tweetbox/backend/internal/storage"
	"github.com/tweetbox/backend/internal/tweets"
)

// components holds everything a process needs besides the pool.
type components struct {
	deps    handlers.Dependencies
	worker  *cleanup.Worker
	queue   cleanup.Queue
	closers []func()
}

// Close releases queue resources in reverse order of acquisition.
func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// buildComponents wires together concrete implementations used by the HTTP
// handlers and the cleanup worker.
func buildComponents(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (*components, error) {
	store, err := newObjectStore(ctx, cfg.ObjectStore)
	if err != nil {
		return nil, err
	}
	queue, closeQueue, err := newQueue(ctx, cfg.Queue)
	if err != nil {
		return nil, err
	}

	c := assemble(pool, cfg, store, queue, logger)
	c.closers = append(c.closers, closeQueue)
	return c, nil
}

// assemble builds the object graph around an already chosen store and queue.
func assemble(pool db.Pool, cfg config.Config, store storage.ObjectStore, queue cleanup.Queue, logger *slog.Logger) *components {
	users := repositories.NewPostgresUserRepository(pool)
	follows := repositories.NewPostgresFollowRepository(pool)
	mediaRepo := repositories.NewPostgresMediaRepository(pool)
	tweetRepo := repositories.NewPostgresTweetRepository(pool)

	orchestrator := media.NewOrchestrator(store, mediaRepo, media.Config{
		StagingDir:       cfg.StagingDir,
		DirectLinkPrefix: cfg.ObjectStore.DirectLinkPrefix,
		CallTimeout:      cfg.ObjectStore.CallTimeout,
		PublishAttempts:  cfg.ObjectStore.PublishAttempts,
		PublishDelay:     cfg.ObjectStore.PublishDelay,
	})

	policy := cleanup.RetryPolicy{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BaseDelay:   cfg.Queue.BaseDelay,
		FinalDelay:  cfg.Queue.FinalDelay,
		Transient:   storage.IsTransient,
	}
	worker := cleanup.NewWorker(queue, store, policy, cleanup.WorkerConfig{
		Workers:     cfg.Queue.Workers,
		CallTimeout: cfg.ObjectStore.CallTimeout,
	}, logger)

	return &components{
		deps: handlers.Dependencies{
			Database:       pool,
			Users:          auth.NewResolver(users),
			Follows:        graph.NewService(follows),
			Media:          orchestrator,
			Tweets:         tweets.NewService(tweetRepo, cleanup.NewClient(queue)),
			UploadLimiter:  middleware.NewKeyedRateLimiter(cfg.UploadRate, cfg.UploadBurst, 10*time.Minute),
			MaxUploadBytes: cfg.MaxUploadBytes,
		},
		worker: worker,
		queue:  queue,
	}
}

func newObjectStore(ctx context.Context, cfg config.ObjectStoreConfig) (storage.ObjectStore, error) {
	switch cfg.Backend {
	case config.StorageDisk:
		return storage.NewDiskStore(cfg, &http.Client{Timeout: cfg.CallTimeout})
	case config.StorageS3:
		return storage.NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func newQueue(ctx context.Context, cfg config.QueueConfig) (cleanup.Queue, func(), error) {
	switch cfg.Backend {
	case config.QueueMemory:
		q := cleanup.NewMemoryQueue(0)
		return q, func() { _ = q.Close() }, nil
	case config.QueueRedis:
		client, err := cleanup.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		q := cleanup.NewRedisQueue(client, cfg.Name)
		return q, func() {
			_ = q.Close()
			_ = client.Close()
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}

// Package media stages uploaded files locally, pushes them to the remote
// object store, publishes a link and records the result as an unbound Media row.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/tweetbox/backend/internal/apperr"
	"github.com/tweetbox/backend/internal/logging"
	"github.com/tweetbox/backend/internal/models"
	"github.com/tweetbox/backend/internal/repositories"
	"github.com/tweetbox/backend/internal/storage"
)

// Config controls remote call bounds and link publication retries.
type Config struct {
	StagingDir       string
	DirectLinkPrefix string
	CallTimeout      time.Duration
	PublishAttempts  int
	PublishDelay     time.Duration
}

// Orchestrator runs the upload pipeline. It holds no per-upload state and is
// safe for concurrent use.
type Orchestrator struct {
	store   storage.ObjectStore
	media   repositories.MediaRepository
	staging *Staging
	cfg     Config
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator wires the pipeline to its object store and repository.
func NewOrchestrator(store storage.ObjectStore, repo repositories.MediaRepository, cfg Config) *Orchestrator {
	if store == nil || repo == nil {
		panic("media: object store and repository must not be nil")
	}
	if cfg.PublishAttempts <= 0 {
		cfg.PublishAttempts = 3
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	return &Orchestrator{
		store:   store,
		media:   repo,
		staging: NewStaging(cfg.StagingDir),
		cfg:     cfg,
		sleep:   sleepContext,
	}
}

// StageAndUpload persists body under a per-owner staging directory, uploads
// it, publishes it and stores an unbound Media row.
//
// No Media row exists unless every step succeeded. The staged copy is kept on
// failure for manual recovery and removed on success.
func (o *Orchestrator) StageAndUpload(ctx context.Context, ownerID int64, body io.Reader, filename string) (_ models.Media, err error) {
	ctx, span := logging.StartSpan(ctx, "media.stage_and_upload")
	defer func() { span.Finish(err) }()
	logger := logging.FromContext(ctx).With(slog.Int64("owner_id", ownerID))

	staged, err := o.staging.Stage(ownerID, filename, body)
	if err != nil {
		return models.Media{}, err
	}
	defer staged.Close()

	remotePath := staged.RemotePath()
	logger = logger.With(slog.String("remote_path", remotePath), slog.Int64("size", staged.Size))

	target, err := o.requestUpload(ctx, remotePath)
	if err != nil {
		logger.Error("request upload target failed", "error", err)
		return models.Media{}, err
	}

	if err := o.upload(ctx, target, staged); err != nil {
		logger.Error("remote upload failed", "error", err)
		return models.Media{}, err
	}

	publicURL, err := o.publish(ctx, remotePath)
	if err != nil {
		logger.Error("link publication failed", "error", err)
		return models.Media{}, err
	}

	directURL, err := DeriveDirectLink(o.cfg.DirectLinkPrefix, publicURL)
	if err != nil {
		return models.Media{}, err
	}

	record, err := o.media.Create(ctx, models.Media{DirectURL: directURL, RemotePath: remotePath})
	if err != nil {
		logger.Error("persist media failed", "error", err)
		return models.Media{}, persistenceError(err)
	}

	staged.Close()
	if err := o.staging.Purge(staged); err != nil {
		logger.Warn("purge staging directory", "dir", staged.Dir, "error", err)
	}

	logger.Info("media uploaded", "media_id", record.ID)
	return record, nil
}

func (o *Orchestrator) requestUpload(ctx context.Context, remotePath string) (storage.UploadTarget, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	target, err := o.store.RequestUpload(callCtx, remotePath)
	if err != nil {
		return storage.UploadTarget{}, fmt.Errorf("%w: %v", apperr.ErrRemoteUpload, err)
	}
	if strings.TrimSpace(target.URL) == "" {
		return storage.UploadTarget{}, fmt.Errorf("%w: %v", apperr.ErrRemoteUpload, storage.ErrNoUploadTarget)
	}
	return target, nil
}

func (o *Orchestrator) upload(ctx context.Context, target storage.UploadTarget, staged *StagedFile) error {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	if err := o.store.Upload(callCtx, target, staged.File, staged.Size); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrRemoteUpload, err)
	}
	return nil
}

// publish retries publish plus metadata read because the store reports the
// public link eventually, not immediately.
func (o *Orchestrator) publish(ctx context.Context, remotePath string) (string, error) {
	logger := logging.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= o.cfg.PublishAttempts; attempt++ {
		publicURL, err := o.publishOnce(ctx, remotePath)
		if err == nil && publicURL != "" {
			logger.Debug("public link obtained", "attempt", attempt)
			return publicURL, nil
		}
		if err == nil {
			err = errors.New("public url not yet available")
		}
		lastErr = err
		logger.Warn("publish attempt failed", "attempt", attempt, "error", err)

		if attempt < o.cfg.PublishAttempts {
			if err := o.sleep(ctx, o.cfg.PublishDelay); err != nil {
				return "", fmt.Errorf("%w: %v", apperr.ErrLinkPublication, err)
			}
		}
	}

	return "", fmt.Errorf("%w after %d attempts: %v", apperr.ErrLinkPublication, o.cfg.PublishAttempts, lastErr)
}

func (o *Orchestrator) publishOnce(ctx context.Context, remotePath string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	if err := o.store.Publish(callCtx, remotePath); err != nil {
		return "", err
	}
	return o.store.PublicURL(callCtx, remotePath)
}

func persistenceError(err error) error {
	if errors.Is(err, apperr.ErrPersistence) {
		return err
	}
	return apperr.Persistence("insert media", err)
}

// DeriveDirectLink turns a public share link into a hot-linkable URL by
// prefixing it with the configured link resolver. It makes no network call.
func DeriveDirectLink(prefix, publicURL string) (string, error) {
	publicURL = strings.TrimSpace(publicURL)
	if publicURL == "" {
		return "", apperr.ErrDirectLink
	}
	return prefix + publicURL, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

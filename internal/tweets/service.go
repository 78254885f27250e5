// Package tweets implements posting, deleting and liking content items.
package tweets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/tweetbox/backend/internal/apperr"
	"github.com/tweetbox/backend/internal/auth"
	"github.com/tweetbox/backend/internal/logging"
	"github.com/tweetbox/backend/internal/models"
	"github.com/tweetbox/backend/internal/repositories"
)

// MaxBodyLength bounds the body in characters.
const MaxBodyLength = 1000

// NewTweet is the input for Create. Body may be empty when media is attached.
type NewTweet struct {
	Body     string
	MediaIDs []int64 `validate:"dive,gt=0"`
}

// DeletionQueue accepts remote objects to remove after a tweet is gone.
type DeletionQueue interface {
	EnqueueDelete(ctx context.Context, remotePath string) error
}

// Service coordinates tweet persistence with deferred remote cleanup.
type Service struct {
	tweets   repositories.TweetRepository
	cleanup  DeletionQueue
	validate *validator.Validate
}

// NewService constructs a Service.
func NewService(tweets repositories.TweetRepository, cleanup DeletionQueue) *Service {
	if tweets == nil || cleanup == nil {
		panic("tweets: repository and deletion queue must not be nil")
	}
	return &Service{
		tweets:   tweets,
		cleanup:  cleanup,
		validate: validator.New(),
	}
}

// Create posts a tweet for ownerID and claims the listed media in the same
// transaction. Either the tweet and every binding persist or nothing does.
func (s *Service) Create(ctx context.Context, ownerID int64, in NewTweet) (models.Tweet, error) {
	in.Body = strings.TrimSpace(in.Body)
	if in.Body == "" && len(in.MediaIDs) == 0 {
		return models.Tweet{}, apperr.Validation("tweet needs text or at least one media item")
	}
	if utf8.RuneCountInString(in.Body) > MaxBodyLength {
		return models.Tweet{}, apperr.Validation("tweet text must be at most %d characters", MaxBodyLength)
	}
	if err := s.validate.Struct(in); err != nil {
		return models.Tweet{}, apperr.Validation("media ids must be positive")
	}

	tweet, err := s.tweets.Create(ctx, models.Tweet{Body: in.Body, AuthorID: ownerID}, in.MediaIDs)
	if err != nil {
		return models.Tweet{}, fmt.Errorf("create tweet: %w", err)
	}

	logging.FromContext(ctx).Info("tweet created", "tweet_id", tweet.ID, "owner_id", ownerID, "media", len(tweet.Media))
	return tweet, nil
}

// Delete removes a tweet owned by ownerID, then queues removal of its remote
// attachments. Queueing happens only after the database delete committed.
// A tweet that does not exist or belongs to someone else is ErrNotFound.
func (s *Service) Delete(ctx context.Context, tweetID, ownerID int64) error {
	paths, err := s.tweets.DeleteOwned(ctx, tweetID, ownerID)
	if err != nil {
		return fmt.Errorf("delete tweet %d: %w", tweetID, err)
	}

	ctx = logging.With(ctx, "tweet_id", tweetID)
	logger := logging.FromContext(ctx)
	var enqueueErrs []error
	for _, path := range paths {
		if err := s.cleanup.EnqueueDelete(ctx, path); err != nil {
			logger.Error("enqueue remote delete", "remote_path", path, "error", err)
			enqueueErrs = append(enqueueErrs, err)
		}
	}
	if len(enqueueErrs) > 0 {
		// The rows are already deleted, so the request still succeeds.
		logger.Warn("remote objects left behind", "error", errors.Join(enqueueErrs...))
	}

	logger.Info("tweet deleted", "owner_id", ownerID, "attachments", len(paths))
	return nil
}

// Like records userID's like. Liking twice is a no-op.
func (s *Service) Like(ctx context.Context, userID, tweetID int64) error {
	if _, err := s.tweets.Like(ctx, userID, tweetID); err != nil {
		return fmt.Errorf("like tweet %d: %w", tweetID, err)
	}
	return nil
}

// Unlike removes userID's like. Unliking a tweet that was not liked is a no-op.
func (s *Service) Unlike(ctx context.Context, userID, tweetID int64) error {
	if _, err := s.tweets.Unlike(ctx, userID, tweetID); err != nil {
		return fmt.Errorf("unlike tweet %d: %w", tweetID, err)
	}
	return nil
}

// Get returns a tweet with author, attachments and likers.
func (s *Service) Get(ctx context.Context, tweetID int64) (models.Tweet, error) {
	tweet, err := s.tweets.FindByID(ctx, tweetID)
	if err != nil {
		return models.Tweet{}, fmt.Errorf("get tweet %d: %w", tweetID, err)
	}
	return tweet, nil
}

// Feed returns tweets by identities userID follows, newest first.
func (s *Service) Feed(ctx context.Context, userID int64, limit, offset int) ([]models.Tweet, error) {
	limit, offset = auth.ClampPage(limit, offset)
	tweets, err := s.tweets.Feed(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("feed for %d: %w", userID, err)
	}
	return tweets, nil
}

// ListByAuthors returns tweets written by any of authorIDs, newest first.
func (s *Service) ListByAuthors(ctx context.Context, authorIDs []int64, limit, offset int) ([]models.Tweet, error) {
	if len(authorIDs) == 0 {
		return []models.Tweet{}, nil
	}
	limit, offset = auth.ClampPage(limit, offset)
	tweets, err := s.tweets.ListByAuthors(ctx, authorIDs, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tweets: %w", err)
	}
	return tweets, nil
}

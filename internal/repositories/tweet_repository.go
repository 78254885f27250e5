package repositories

import (
	"context"

	"github.com/tweetbox/backend/internal/models"
)

// TweetRepository exposes data access for tweets, their media bindings and likes.
type TweetRepository interface {
	Create(ctx context.Context, tweet models.Tweet, mediaIDs []int64) (models.Tweet, error)
	DeleteOwned(ctx context.Context, tweetID, ownerID int64) ([]string, error)
	Like(ctx context.Context, userID, tweetID int64) (bool, error)
	Unlike(ctx context.Context, userID, tweetID int64) (bool, error)
	FindByID(ctx context.Context, tweetID int64) (models.Tweet, error)
	ListByAuthors(ctx context.Context, authorIDs []int64, limit, offset int) ([]models.Tweet, error)
	Feed(ctx context.Context, userID int64, limit, offset int) ([]models.Tweet, error)
}

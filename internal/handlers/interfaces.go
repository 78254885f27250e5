package handlers

import (
	"context"
	"io"

	"github.com/tweetbox/backend/internal/auth"
	"github.com/tweetbox/backend/internal/models"
	"github.com/tweetbox/backend/internal/tweets"
)

// CredentialResolver maps the api-key header onto identities and manages registration.
type CredentialResolver interface {
	Resolve(ctx context.Context, credential string, hint models.LoadHint) (models.User, error)
	Register(ctx context.Context, in auth.NewUser) (models.User, error)
	GetUser(ctx context.Context, id int64, hint models.LoadHint) (models.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]models.User, error)
}

// FollowGraph captures the follow operations exposed over HTTP.
type FollowGraph interface {
	Follow(ctx context.Context, followerID, followedID int64) error
	Unfollow(ctx context.Context, followerID, followedID int64) error
}

// MediaUploader runs the upload pipeline for one file.
type MediaUploader interface {
	StageAndUpload(ctx context.Context, ownerID int64, body io.Reader, filename string) (models.Media, error)
}

// TweetService captures the content operations exposed over HTTP.
type TweetService interface {
	Create(ctx context.Context, ownerID int64, in tweets.NewTweet) (models.Tweet, error)
	Delete(ctx context.Context, tweetID, ownerID int64) error
	Like(ctx context.Context, userID, tweetID int64) error
	Unlike(ctx context.Context, userID, tweetID int64) error
	Get(ctx context.Context, tweetID int64) (models.Tweet, error)
	Feed(ctx context.Context, userID int64, limit, offset int) ([]models.Tweet, error)
}

// Package graph maintains follow edges between identities.
package graph

import (
	"context"
	"fmt"

	"github.com/tweetbox/backend/internal/apperr"
	"github.com/tweetbox/backend/internal/logging"
	"github.com/tweetbox/backend/internal/models"
	"github.com/tweetbox/backend/internal/repositories"
)

// Service exposes follow and unfollow plus count-only and listing queries.
type Service struct {
	follows repositories.FollowRepository
}

// NewService constructs a follow graph service.
func NewService(follows repositories.FollowRepository) *Service {
	if follows == nil {
		panic("graph: follow repository must not be nil")
	}
	return &Service{follows: follows}
}

// Follow records followerID -> followedID. Following twice is a no-op;
// following yourself is a validation error.
func (s *Service) Follow(ctx context.Context, followerID, followedID int64) error {
	if followerID == followedID {
		return apperr.Validation("cannot follow yourself")
	}
	created, err := s.follows.Follow(ctx, followerID, followedID)
	if err != nil {
		return fmt.Errorf("follow %d: %w", followedID, err)
	}
	logging.FromContext(ctx).Debug("follow", "follower_id", followerID, "followed_id", followedID, "created", created)
	return nil
}

// Unfollow removes the edge. Removing an absent edge is a no-op.
func (s *Service) Unfollow(ctx context.Context, followerID, followedID int64) error {
	if followerID == followedID {
		return apperr.Validation("cannot unfollow yourself")
	}
	removed, err := s.follows.Unfollow(ctx, followerID, followedID)
	if err != nil {
		return fmt.Errorf("unfollow %d: %w", followedID, err)
	}
	logging.FromContext(ctx).Debug("unfollow", "follower_id", followerID, "followed_id", followedID, "removed", removed)
	return nil
}

// IsFollowing reports whether followerID follows followedID.
func (s *Service) IsFollowing(ctx context.Context, followerID, followedID int64) (bool, error) {
	ok, err := s.follows.Exists(ctx, followerID, followedID)
	if err != nil {
		return false, fmt.Errorf("check follow: %w", err)
	}
	return ok, nil
}

// FollowerCount returns how many identities follow userID.
func (s *Service) FollowerCount(ctx context.Context, userID int64) (int64, error) {
	n, err := s.follows.CountFollowers(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count followers: %w", err)
	}
	return n, nil
}

// FollowingCount returns how many identities userID follows.
func (s *Service) FollowingCount(ctx context.Context, userID int64) (int64, error) {
	n, err := s.follows.CountFollowing(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count following: %w", err)
	}
	return n, nil
}

// Followers lists identities following userID.
func (s *Service) Followers(ctx context.Context, userID int64) ([]models.UserSummary, error) {
	users, err := s.follows.Followers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}
	return users, nil
}

// Following lists identities userID follows.
func (s *Service) Following(ctx context.Context, userID int64) ([]models.UserSummary, error) {
	users, err := s.follows.Following(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list following: %w", err)
	}
	return users, nil
}

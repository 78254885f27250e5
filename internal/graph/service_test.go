package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tweetbox/backend/internal/apperr"
	"github.com/tweetbox/backend/internal/models"
)

type edge struct{ from, to int64 }

type followRepoStub struct {
	edges map[edge]bool
	calls int
	err   error
}

func newFollowRepoStub() *followRepoStub {
	return &followRepoStub{edges: make(map[edge]bool)}
}

func (s *followRepoStub) Follow(ctx context.Context, a, b int64) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	if s.edges[edge{a, b}] {
		return false, nil
	}
	s.edges[edge{a, b}] = true
	return true, nil
}

func (s *followRepoStub) Unfollow(ctx context.Context, a, b int64) (bool, error) {
	s.calls++
	if !s.edges[edge{a, b}] {
		return false, nil
	}
	delete(s.edges, edge{a, b})
	return true, nil
}

func (s *followRepoStub) Exists(ctx context.Context, a, b int64) (bool, error) {
	return s.edges[edge{a, b}], nil
}

func (s *followRepoStub) Followers(ctx context.Context, id int64) ([]models.UserSummary, error) {
	out := []models.UserSummary{}
	for e := range s.edges {
		if e.to == id {
			out = append(out, models.UserSummary{ID: e.from})
		}
	}
	return out, nil
}

func (s *followRepoStub) Following(ctx context.Context, id int64) ([]models.UserSummary, error) {
	out := []models.UserSummary{}
	for e := range s.edges {
		if e.from == id {
			out = append(out, models.UserSummary{ID: e.to})
		}
	}
	return out, nil
}

func (s *followRepoStub) CountFollowers(ctx context.Context, id int64) (int64, error) {
	users, _ := s.Followers(ctx, id)
	return int64(len(users)), nil
}

func (s *followRepoStub) CountFollowing(ctx context.Context, id int64) (int64, error) {
	users, _ := s.Following(ctx, id)
	return int64(len(users)), nil
}

func TestFollowTwiceLeavesOneEdge(t *testing.T) {
	repo := newFollowRepoStub()
	svc := NewService(repo)
	ctx := context.Background()

	require.NoError(t, svc.Follow(ctx, 1, 2))
	require.NoError(t, svc.Follow(ctx, 1, 2))

	n, err := svc.FollowerCount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = svc.FollowingCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ok, err := svc.IsFollowing(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnfollowAbsentEdgeIsNoop(t *testing.T) {
	svc := NewService(newFollowRepoStub())
	ctx := context.Background()

	require.NoError(t, svc.Unfollow(ctx, 1, 2))

	require.NoError(t, svc.Follow(ctx, 1, 2))
	require.NoError(t, svc.Unfollow(ctx, 1, 2))
	require.NoError(t, svc.Unfollow(ctx, 1, 2))

	followers, err := svc.Followers(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, followers)
}

func TestSelfFollowRejectedBeforeRepository(t *testing.T) {
	repo := newFollowRepoStub()
	svc := NewService(repo)

	err := svc.Follow(context.Background(), 7, 7)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Zero(t, repo.calls)

	err = svc.Unfollow(context.Background(), 7, 7)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestFollowPropagatesNotFound(t *testing.T) {
	repo := newFollowRepoStub()
	repo.err = apperr.ErrNotFound
	svc := NewService(repo)

	err := svc.Follow(context.Background(), 1, 99)
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "got %v", err)
}

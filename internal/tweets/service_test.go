package tweets

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tweetbox/backend/internal/apperr"
	"github.com/tweetbox/backend/internal/models"
)

type tweetRepoStub struct {
	createErr  error
	created    []models.Tweet
	mediaIDs   [][]int64
	paths      []string
	deleteErr  error
	deleteArgs [][2]int64
	likes      map[[2]int64]bool
	feedLimit  int
}

func (r *tweetRepoStub) Create(ctx context.Context, tweet models.Tweet, mediaIDs []int64) (models.Tweet, error) {
	r.mediaIDs = append(r.mediaIDs, mediaIDs)
	if r.createErr != nil {
		return models.Tweet{}, r.createErr
	}
	tweet.ID = int64(len(r.created) + 1)
	for _, id := range mediaIDs {
		tweet.Media = append(tweet.Media, models.Media{ID: id})
	}
	r.created = append(r.created, tweet)
	return tweet, nil
}

func (r *tweetRepoStub) DeleteOwned(ctx context.Context, tweetID, ownerID int64) ([]string, error) {
	r.deleteArgs = append(r.deleteArgs, [2]int64{tweetID, ownerID})
	if r.deleteErr != nil {
		return nil, r.deleteErr
	}
	return r.paths, nil
}

func (r *tweetRepoStub) Like(ctx context.Context, userID, tweetID int64) (bool, error) {
	if r.likes == nil {
		r.likes = map[[2]int64]bool{}
	}
	key := [2]int64{userID, tweetID}
	if r.likes[key] {
		return false, nil
	}
	r.likes[key] = true
	return true, nil
}

func (r *tweetRepoStub) Unlike(ctx context.Context, userID, tweetID int64) (bool, error) {
	key := [2]int64{userID, tweetID}
	if !r.likes[key] {
		return false, nil
	}
	delete(r.likes, key)
	return true, nil
}

func (r *tweetRepoStub) FindByID(ctx context.Context, tweetID int64) (models.Tweet, error) {
	return models.Tweet{}, apperr.ErrNotFound
}

func (r *tweetRepoStub) ListByAuthors(ctx context.Context, ids []int64, limit, offset int) ([]models.Tweet, error) {
	return []models.Tweet{}, nil
}

func (r *tweetRepoStub) Feed(ctx context.Context, userID int64, limit, offset int) ([]models.Tweet, error) {
	r.feedLimit = limit
	return []models.Tweet{}, nil
}

type queueStub struct {
	paths []string
	err   error
}

func (q *queueStub) EnqueueDelete(ctx context.Context, path string) error {
	if q.err != nil {
		return q.err
	}
	q.paths = append(q.paths, path)
	return nil
}

func TestCreateRequiresBodyOrMedia(t *testing.T) {
	repo := &tweetRepoStub{}
	svc := NewService(repo, &queueStub{})

	_, err := svc.Create(context.Background(), 1, NewTweet{Body: "   "})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, repo.mediaIDs, "invalid tweets never reach the repository")

	tweet, err := svc.Create(context.Background(), 1, NewTweet{MediaIDs: []int64{5}})
	require.NoError(t, err)
	assert.Len(t, tweet.Media, 1)

	tweet, err = svc.Create(context.Background(), 1, NewTweet{Body: " hello "})
	require.NoError(t, err)
	assert.Equal(t, "hello", tweet.Body)
}

func TestCreateValidatesLengthAndIDs(t *testing.T) {
	svc := NewService(&tweetRepoStub{}, &queueStub{})

	_, err := svc.Create(context.Background(), 1, NewTweet{Body: strings.Repeat("я", MaxBodyLength+1)})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Create(context.Background(), 1, NewTweet{Body: strings.Repeat("я", MaxBodyLength)})
	assert.NoError(t, err)

	_, err = svc.Create(context.Background(), 1, NewTweet{Body: "x", MediaIDs: []int64{1, 0}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreatePropagatesMediaNotFound(t *testing.T) {
	repo := &tweetRepoStub{createErr: apperr.NewMediaNotFound([]int64{999})}
	svc := NewService(repo, &queueStub{})

	_, err := svc.Create(context.Background(), 1, NewTweet{MediaIDs: []int64{999}})
	var missing *apperr.MediaNotFoundError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []int64{999}, missing.IDs)
	assert.ErrorIs(t, err, apperr.ErrMediaNotFound)
}

func TestDeleteEnqueuesOneJobPerAttachment(t *testing.T) {
	repo := &tweetRepoStub{paths: []string{"1/a.png", "1/b.png"}}
	queue := &queueStub{}
	svc := NewService(repo, queue)

	require.NoError(t, svc.Delete(context.Background(), 10, 1))
	assert.Equal(t, [][2]int64{{10, 1}}, repo.deleteArgs)
	assert.Equal(t, []string{"1/a.png", "1/b.png"}, queue.paths)
}

func TestDeleteNotOwnedEnqueuesNothing(t *testing.T) {
	repo := &tweetRepoStub{deleteErr: apperr.ErrNotFound, paths: []string{"x"}}
	queue := &queueStub{}
	svc := NewService(repo, queue)

	err := svc.Delete(context.Background(), 10, 2)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, queue.paths)
}

func TestDeleteSurvivesQueueFailure(t *testing.T) {
	repo := &tweetRepoStub{paths: []string{"1/a.png"}}
	svc := NewService(repo, &queueStub{err: errors.New("redis down")})

	assert.NoError(t, svc.Delete(context.Background(), 10, 1))
}

func TestLikeUnlikeIdempotent(t *testing.T) {
	repo := &tweetRepoStub{}
	svc := NewService(repo, &queueStub{})
	ctx := context.Background()

	require.NoError(t, svc.Like(ctx, 1, 10))
	require.NoError(t, svc.Like(ctx, 1, 10))
	require.NoError(t, svc.Unlike(ctx, 1, 10))
	require.NoError(t, svc.Unlike(ctx, 1, 10))
	assert.Empty(t, repo.likes)
}

func TestFeedClampsLimit(t *testing.T) {
	repo := &tweetRepoStub{}
	svc := NewService(repo, &queueStub{})

	_, err := svc.Feed(context.Background(), 1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 20, repo.feedLimit)

	_, err = svc.Feed(context.Background(), 1, 5000, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, repo.feedLimit)
}

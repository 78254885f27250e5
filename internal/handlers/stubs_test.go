package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tweetbox/backend/internal/apperr"
	"github.com/tweetbox/backend/internal/auth"
	"github.com/tweetbox/backend/internal/models"
	"github.com/tweetbox/backend/internal/tweets"
)

type resolverStub struct {
	byKey       map[string]models.User
	byID        map[int64]models.User
	registerErr error
	registered  []auth.NewUser
	lastHint    models.LoadHint
}

func newResolverStub(users ...models.User) *resolverStub {
	s := &resolverStub{byKey: map[string]models.User{}, byID: map[int64]models.User{}}
	for _, u := range users {
		s.byKey[fmt.Sprintf("key-%d", u.ID)] = u
		s.byID[u.ID] = u
	}
	return s
}

func (s *resolverStub) Resolve(_ context.Context, credential string, hint models.LoadHint) (models.User, error) {
	s.lastHint = hint
	user, ok := s.byKey[credential]
	if !ok {
		return models.User{}, apperr.ErrAuthentication
	}
	return user, nil
}

func (s *resolverStub) Register(_ context.Context, in auth.NewUser) (models.User, error) {
	s.registered = append(s.registered, in)
	if s.registerErr != nil {
		return models.User{}, s.registerErr
	}
	return models.User{ID: int64(len(s.byID) + 1), Username: in.Username, Email: in.Email, Bio: in.Bio}, nil
}

func (s *resolverStub) GetUser(_ context.Context, id int64, _ models.LoadHint) (models.User, error) {
	user, ok := s.byID[id]
	if !ok {
		return models.User{}, fmt.Errorf("get user %d: %w", id, apperr.ErrNotFound)
	}
	return user, nil
}

func (s *resolverStub) ListUsers(_ context.Context, _, _ int) ([]models.User, error) {
	out := make([]models.User, 0, len(s.byID))
	for id := int64(1); id <= int64(len(s.byID)); id++ {
		if u, ok := s.byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type followStub struct {
	calls []string
	err   error
}

func (f *followStub) Follow(_ context.Context, follower, followed int64) error {
	f.calls = append(f.calls, fmt.Sprintf("follow %d->%d", follower, followed))
	return f.err
}

func (f *followStub) Unfollow(_ context.Context, follower, followed int64) error {
	f.calls = append(f.calls, fmt.Sprintf("unfollow %d->%d", follower, followed))
	return f.err
}

type uploaderStub struct {
	err      error
	owner    int64
	filename string
	body     string
}

func (u *uploaderStub) StageAndUpload(_ context.Context, ownerID int64, body io.Reader, filename string) (models.Media, error) {
	data, _ := io.ReadAll(body)
	u.owner, u.filename, u.body = ownerID, filename, string(data)
	if u.err != nil {
		return models.Media{}, u.err
	}
	return models.Media{ID: 42, RemotePath: fmt.Sprintf("%d/%s", ownerID, filename)}, nil
}

type tweetServiceStub struct {
	created  []tweets.NewTweet
	err      error
	deleted  [][2]int64
	liked    [][2]int64
	unliked  [][2]int64
	feed     []models.Tweet
	feedArgs [3]int
}

func (s *tweetServiceStub) Create(_ context.Context, _ int64, in tweets.NewTweet) (models.Tweet, error) {
	s.created = append(s.created, in)
	if s.err != nil {
		return models.Tweet{}, s.err
	}
	return models.Tweet{ID: int64(len(s.created))}, nil
}

func (s *tweetServiceStub) Delete(_ context.Context, tweetID, ownerID int64) error {
	s.deleted = append(s.deleted, [2]int64{tweetID, ownerID})
	return s.err
}

func (s *tweetServiceStub) Like(_ context.Context, userID, tweetID int64) error {
	s.liked = append(s.liked, [2]int64{userID, tweetID})
	return s.err
}

func (s *tweetServiceStub) Unlike(_ context.Context, userID, tweetID int64) error {
	s.unliked = append(s.unliked, [2]int64{userID, tweetID})
	return s.err
}

func (s *tweetServiceStub) Get(_ context.Context, tweetID int64) (models.Tweet, error) {
	for _, t := range s.feed {
		if t.ID == tweetID {
			return t, nil
		}
	}
	return models.Tweet{}, apperr.ErrNotFound
}

func (s *tweetServiceStub) Feed(_ context.Context, userID int64, limit, offset int) ([]models.Tweet, error) {
	s.feedArgs = [3]int{int(userID), limit, offset}
	return s.feed, s.err
}

func sampleTweet(id int64, author models.User) models.Tweet {
	return models.Tweet{
		ID:        id,
		Body:      "hello",
		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		AuthorID:  author.ID,
		Author:    author.Summary(),
		Media:     []models.Media{{ID: 7, DirectURL: "https://cdn.example/a.png"}},
		LikedBy:   []models.UserSummary{},
	}
}

func serve(t *testing.T, deps Dependencies, method, target, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	RegisterRoutes(mux, deps)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if key != "" {
		req.Header.Set(credentialHeader, key)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/tweetbox/backend/internal/models"
	"github.com/tweetbox/backend/internal/tweets"
)

// TweetHandler exposes posting, reading, deleting and liking tweets.
type TweetHandler struct {
	Users  CredentialResolver
	Tweets TweetService
}

type createTweetRequest struct {
	Body     string  `json:"tweet_data"`
	MediaIDs []int64 `json:"tweet_media_ids"`
}

type tweetCreatedEnvelope struct {
	Result  bool  `json:"result"`
	TweetID int64 `json:"tweet_id"`
}

type tweetEnvelope struct {
	Result bool          `json:"result"`
	Tweet  tweetResponse `json:"tweet"`
}

type tweetsEnvelope struct {
	Result bool            `json:"result"`
	Tweets []tweetResponse `json:"tweets"`
}

func (h TweetHandler) ready(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := authenticate(w, r, h.Users, models.LoadNone)
	if !ok {
		return models.User{}, false
	}
	if h.Tweets == nil {
		respondMessage(r.Context(), w, http.StatusInternalServerError, "tweet service unavailable")
		return models.User{}, false
	}
	return user, true
}

// Create handles POST /api/tweets.
func (h TweetHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := h.ready(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	var req createTweetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(ctx, w, http.StatusBadRequest, "invalid request payload")
		return
	}

	tweet, err := h.Tweets.Create(ctx, user.ID, tweets.NewTweet{Body: req.Body, MediaIDs: req.MediaIDs})
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, tweetCreatedEnvelope{Result: true, TweetID: tweet.ID})
}

// Feed handles GET /api/tweets.
func (h TweetHandler) Feed(w http.ResponseWriter, r *http.Request) {
	user, ok := h.ready(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	limit, offset := pageParams(r)
	feed, err := h.Tweets.Feed(ctx, user.ID, limit, offset)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	out := make([]tweetResponse, 0, len(feed))
	for _, t := range feed {
		out = append(out, toTweetResponse(t))
	}
	respondJSON(ctx, w, http.StatusOK, tweetsEnvelope{Result: true, Tweets: out})
}

// Get handles GET /api/tweets/{id}.
func (h TweetHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.ready(w, r); !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	ctx := r.Context()
	tweet, err := h.Tweets.Get(ctx, id)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, tweetEnvelope{Result: true, Tweet: toTweetResponse(tweet)})
}

// Delete handles DELETE /api/tweets/{id}.
func (h TweetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := h.ready(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.Tweets.Delete(ctx, id, user.ID); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, okResponse{Result: true})
}

// Like handles POST /api/tweets/{id}/likes.
func (h TweetHandler) Like(w http.ResponseWriter, r *http.Request) {
	user, ok := h.ready(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.Tweets.Like(ctx, user.ID, id); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, okResponse{Result: true})
}

// Unlike handles DELETE /api/tweets/{id}/likes.
func (h TweetHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	user, ok := h.ready(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.Tweets.Unlike(ctx, user.ID, id); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, okResponse{Result: true})
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/tweetbox/backend/internal/apperr"
	"github.com/tweetbox/backend/internal/logging"
	"github.com/tweetbox/backend/internal/models"
)

// credentialHeader carries the caller's opaque credential.
const credentialHeader = "api-key"

type errorResponse struct {
	Result       bool   `json:"result"`
	ErrorType    int    `json:"error_type"`
	ErrorMessage string `json:"error_message"`
}

type okResponse struct {
	Result bool `json:"result"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func respondMessage(ctx context.Context, w http.ResponseWriter, status int, message string) {
	respondJSON(ctx, w, status, errorResponse{Result: false, ErrorType: status, ErrorMessage: message})
}

// respondError maps the error taxonomy onto HTTP statuses. Unclassified
// errors are logged in full and reported generically.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError || status == http.StatusBadGateway {
		logging.FromContext(ctx).Error("request error", "error", err)
	}
	respondMessage(ctx, w, status, message)
}

func statusFor(err error) (int, string) {
	var missing *apperr.MediaNotFoundError
	switch {
	case errors.As(err, &missing):
		return http.StatusBadRequest, missing.Error()
	case errors.Is(err, apperr.ErrAuthentication):
		return http.StatusForbidden, "invalid api key"
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest, validationMessage(err)
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict, "username, email or api key already in use"
	case errors.Is(err, apperr.ErrRemoteUpload):
		return http.StatusBadGateway, "upload to remote storage failed"
	case errors.Is(err, apperr.ErrLinkPublication):
		return http.StatusBadGateway, "could not publish uploaded file"
	case errors.Is(err, apperr.ErrDirectLink):
		return http.StatusBadGateway, "could not derive a download link"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// validationMessage strips wrapping context so clients see only the reason.
func validationMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, apperr.ErrValidation.Error()+": "); i >= 0 {
		return msg[i+len(apperr.ErrValidation.Error())+2:]
	}
	return msg
}

// authenticate resolves the api-key header. On failure it writes the
// response and returns false.
func authenticate(w http.ResponseWriter, r *http.Request, users CredentialResolver, hint models.LoadHint) (models.User, bool) {
	ctx := r.Context()
	if users == nil {
		respondMessage(ctx, w, http.StatusInternalServerError, "identity service unavailable")
		return models.User{}, false
	}
	user, err := users.Resolve(ctx, r.Header.Get(credentialHeader), hint)
	if err != nil {
		respondError(ctx, w, err)
		return models.User{}, false
	}
	return user, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		respondMessage(r.Context(), w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func pageParams(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit, _ = strconv.Atoi(q.Get("limit"))
	offset, _ = strconv.Atoi(q.Get("offset"))
	return limit, offset
}

type userSummaryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type userResponse struct {
	ID        int64                 `json:"id"`
	Name      string                `json:"name"`
	Email     string                `json:"email,omitempty"`
	Bio       string                `json:"bio,omitempty"`
	Followers []userSummaryResponse `json:"followers"`
	Following []userSummaryResponse `json:"following"`
}

type likeResponse struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

type tweetResponse struct {
	ID          int64               `json:"id"`
	Content     string              `json:"content"`
	CreatedAt   string              `json:"created_at"`
	Attachments []string            `json:"attachments"`
	Author      userSummaryResponse `json:"author"`
	Likes       []likeResponse      `json:"likes"`
}

func summaries(in []models.UserSummary) []userSummaryResponse {
	out := make([]userSummaryResponse, 0, len(in))
	for _, s := range in {
		out = append(out, userSummaryResponse{ID: s.ID, Name: s.Username})
	}
	return out
}

func toUserResponse(u models.User, withEmail bool) userResponse {
	resp := userResponse{
		ID:        u.ID,
		Name:      u.Username,
		Bio:       u.Bio,
		Followers: summaries(u.Followers),
		Following: summaries(u.Following),
	}
	if withEmail {
		resp.Email = u.Email
	}
	return resp
}

func toTweetResponse(t models.Tweet) tweetResponse {
	likes := make([]likeResponse, 0, len(t.LikedBy))
	for _, l := range t.LikedBy {
		likes = append(likes, likeResponse{UserID: l.ID, Name: l.Username})
	}
	return tweetResponse{
		ID:          t.ID,
		Content:     t.Body,
		CreatedAt:   t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Attachments: t.Attachments(),
		Author:      userSummaryResponse{ID: t.Author.ID, Name: t.Author.Username},
		Likes:       likes,
	}
}

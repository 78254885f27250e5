package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/tweetbox/backend/internal/auth"
	"github.com/tweetbox/backend/internal/models"
)

// UserHandler exposes registration, profile lookups and follow edges.
type UserHandler struct {
	Users   CredentialResolver
	Follows FollowGraph
}

type registerRequest struct {
	Username string `json:"name"`
	Email    string `json:"email"`
	Bio      string `json:"bio"`
}

type userEnvelope struct {
	Result bool         `json:"result"`
	User   userResponse `json:"user"`
}

type usersEnvelope struct {
	Result bool           `json:"result"`
	Users  []userResponse `json:"users"`
}

// Register handles POST /api/users. The new identity's credential is the
// api-key header of the request.
func (h UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Users == nil {
		respondMessage(ctx, w, http.StatusInternalServerError, "identity service unavailable")
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(ctx, w, http.StatusBadRequest, "invalid request payload")
		return
	}

	user, err := h.Users.Register(ctx, auth.NewUser{
		Username:   req.Username,
		Email:      req.Email,
		Bio:        req.Bio,
		Credential: r.Header.Get(credentialHeader),
	})
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, userEnvelope{Result: true, User: toUserResponse(user, true)})
}

// Me handles GET /api/users/me.
func (h UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := authenticate(w, r, h.Users, models.LoadAll)
	if !ok {
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, userEnvelope{Result: true, User: toUserResponse(user, true)})
}

// Get handles GET /api/users/{id}.
func (h UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := authenticate(w, r, h.Users, models.LoadNone); !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	ctx := r.Context()
	user, err := h.Users.GetUser(ctx, id, models.LoadAll)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, userEnvelope{Result: true, User: toUserResponse(user, false)})
}

// List handles GET /api/users.
func (h UserHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := authenticate(w, r, h.Users, models.LoadNone); !ok {
		return
	}

	ctx := r.Context()
	limit, offset := pageParams(r)
	users, err := h.Users.ListUsers(ctx, limit, offset)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u, false))
	}
	respondJSON(ctx, w, http.StatusOK, usersEnvelope{Result: true, Users: out})
}

// Follow handles POST /api/users/{id}/follow.
func (h UserHandler) Follow(w http.ResponseWriter, r *http.Request) {
	h.changeFollow(w, r, true)
}

// Unfollow handles DELETE /api/users/{id}/follow.
func (h UserHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	h.changeFollow(w, r, false)
}

func (h UserHandler) changeFollow(w http.ResponseWriter, r *http.Request, follow bool) {
	user, ok := authenticate(w, r, h.Users, models.LoadNone)
	if !ok {
		return
	}
	target, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	ctx := r.Context()
	if h.Follows == nil {
		respondMessage(ctx, w, http.StatusInternalServerError, "follow service unavailable")
		return
	}

	var err error
	if follow {
		err = h.Follows.Follow(ctx, user.ID, target)
	} else {
		err = h.Follows.Unfollow(ctx, user.ID, target)
	}
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, okResponse{Result: true})
}

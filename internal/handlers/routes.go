package handlers

import "net/http"

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Database: deps.Database}
	users := UserHandler{Users: deps.Users, Follows: deps.Follows}
	media := MediaHandler{Users: deps.Users, Uploader: deps.Media, Limiter: deps.UploadLimiter, MaxBytes: deps.MaxUploadBytes}
	tweets := TweetHandler{Users: deps.Users, Tweets: deps.Tweets}

	mux.HandleFunc("GET /healthz", health.Handle)

	mux.HandleFunc("POST /api/users", users.Register)
	mux.HandleFunc("GET /api/users", users.List)
	mux.HandleFunc("GET /api/users/me", users.Me)
	mux.HandleFunc("GET /api/users/{id}", users.Get)
	mux.HandleFunc("POST /api/users/{id}/follow", users.Follow)
	mux.HandleFunc("DELETE /api/users/{id}/follow", users.Unfollow)

	mux.HandleFunc("POST /api/medias", media.Upload)

	mux.HandleFunc("POST /api/tweets", tweets.Create)
	mux.HandleFunc("GET /api/tweets", tweets.Feed)
	mux.HandleFunc("GET /api/tweets/{id}", tweets.Get)
	mux.HandleFunc("DELETE /api/tweets/{id}", tweets.Delete)
	mux.HandleFunc("POST /api/tweets/{id}/likes", tweets.Like)
	mux.HandleFunc("DELETE /api/tweets/{id}/likes", tweets.Unlike)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Database       Pinger
	Users          CredentialResolver
	Follows        FollowGraph
	Media          MediaUploader
	Tweets         TweetService
	UploadLimiter  RateLimiter
	MaxUploadBytes int64
}

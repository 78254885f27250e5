package handlers

import (
	"errors"
	"net/http"

	"github.com/tweetbox/backend/internal/models"
)

// uploadField is the multipart form field carrying the file.
const uploadField = "file"

// multipartAllowance covers boundaries and part headers on top of the file.
const multipartAllowance = 64 << 10

// MediaHandler accepts file uploads and returns the new media id.
type MediaHandler struct {
	Users    CredentialResolver
	Uploader MediaUploader
	Limiter  RateLimiter
	// MaxBytes bounds the uploaded file. The request body may exceed it by
	// multipartAllowance. Zero disables the bound.
	MaxBytes int64
}

type mediaEnvelope struct {
	Result  bool  `json:"result"`
	MediaID int64 `json:"media_id"`
}

// Upload handles POST /api/medias.
func (h MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !allowRequest(h.Limiter, r, "media") {
		respondMessage(ctx, w, http.StatusTooManyRequests, "too many uploads, try again later")
		return
	}

	user, ok := authenticate(w, r, h.Users, models.LoadNone)
	if !ok {
		return
	}
	if h.Uploader == nil {
		respondMessage(ctx, w, http.StatusInternalServerError, "upload service unavailable")
		return
	}

	if h.MaxBytes > 0 {
		bodyLimit := h.MaxBytes + multipartAllowance
		if r.ContentLength > bodyLimit {
			respondMessage(ctx, w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	}
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondMessage(ctx, w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		respondMessage(ctx, w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()
	if h.MaxBytes > 0 && header.Size > h.MaxBytes {
		respondMessage(ctx, w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	media, err := h.Uploader.StageAndUpload(ctx, user.ID, file, header.Filename)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, mediaEnvelope{Result: true, MediaID: media.ID})
}

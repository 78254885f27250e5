package repositories

import (
	"context"

	"github.com/tweetbox/backend/internal/models"
)

// MediaRepository persists uploaded media records.
type MediaRepository interface {
	Create(ctx context.Context, media models.Media) (models.Media, error)
	FindByID(ctx context.Context, id int64) (models.Media, error)
}

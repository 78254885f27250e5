package repositories

import (
	"context"

	"github.com/tweetbox/backend/internal/models"
)

// UserRepository defines the data access contract for identities.
type UserRepository interface {
	Create(ctx context.Context, user models.User, credentialDigest string) (models.User, error)
	TouchByCredential(ctx context.Context, credentialDigest string, hint models.LoadHint) (models.User, error)
	FindByID(ctx context.Context, id int64, hint models.LoadHint) (models.User, error)
	List(ctx context.Context, limit, offset int) ([]models.User, error)
}

package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/blake2b"

	"github.com/tweetbox/backend/internal/apperr"
	"github.com/tweetbox/backend/internal/models"
	"github.com/tweetbox/backend/internal/repositories"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// NewUser carries the fields required to register an identity.
type NewUser struct {
	Username   string `validate:"required,max=64"`
	Email      string `validate:"required,email,max=120"`
	Bio        string `validate:"max=140"`
	Credential string `validate:"required,max=256"`
}

// Resolver maps opaque credentials onto identities and registers new ones.
type Resolver struct {
	users    repositories.UserRepository
	validate *validator.Validate
}

// NewResolver constructs a Resolver backed by the provided repository.
func NewResolver(users repositories.UserRepository) *Resolver {
	if users == nil {
		panic("auth: user repository must not be nil")
	}
	return &Resolver{
		users:    users,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Digest returns the stored form of a credential. Raw credentials never reach the database.
func Digest(credential string) string {
	sum := blake2b.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// Resolve looks up the identity owning credential and bumps its last-seen
// timestamp. The bump commits on its own before the caller's operation runs.
// Unknown or empty credentials yield apperr.ErrAuthentication.
func (r *Resolver) Resolve(ctx context.Context, credential string, hint models.LoadHint) (models.User, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return models.User{}, apperr.ErrAuthentication
	}

	user, err := r.users.TouchByCredential(ctx, Digest(credential), normalizeHint(hint))
	if errors.Is(err, apperr.ErrNotFound) {
		return models.User{}, apperr.ErrAuthentication
	}
	if err != nil {
		return models.User{}, fmt.Errorf("resolve credential: %w", err)
	}
	return user, nil
}

// Register validates and persists a new identity.
func (r *Resolver) Register(ctx context.Context, in NewUser) (models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.Bio = strings.TrimSpace(in.Bio)
	in.Credential = strings.TrimSpace(in.Credential)

	if err := r.validate.Struct(in); err != nil {
		return models.User{}, describeValidation(err)
	}

	user, err := r.users.Create(ctx, models.User{
		Username: in.Username,
		Email:    in.Email,
		Bio:      in.Bio,
	}, Digest(in.Credential))
	if err != nil {
		return models.User{}, fmt.Errorf("register user: %w", err)
	}
	return user, nil
}

// GetUser returns the identity with the relationship collections selected by hint.
func (r *Resolver) GetUser(ctx context.Context, id int64, hint models.LoadHint) (models.User, error) {
	user, err := r.users.FindByID(ctx, id, normalizeHint(hint))
	if err != nil {
		return models.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return user, nil
}

// ListUsers returns a page of identities, newest first.
func (r *Resolver) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	limit, offset = ClampPage(limit, offset)
	users, err := r.users.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// ClampPage applies the default and maximum page size.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func normalizeHint(hint models.LoadHint) models.LoadHint {
	switch hint {
	case models.LoadFollowers, models.LoadFollowing, models.LoadAll:
		return hint
	default:
		return models.LoadNone
	}
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation("%v", err)
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return apperr.Validation("%s is required", field)
	case "max":
		return apperr.Validation("%s must be at most %s characters", field, fe.Param())
	case "email":
		return apperr.Validation("%s must be a valid email address", field)
	default:
		return apperr.Validation("%s is invalid", field)
	}
}

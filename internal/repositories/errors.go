package repositories

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tweetbox/backend/internal/apperr"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = apperr.ErrNotFound
	// ErrConflict indicates the attempted write would violate a uniqueness constraint.
	ErrConflict = apperr.ErrConflict
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// classify maps driver errors onto the shared taxonomy. Errors that are
// already classified pass through untouched; anything else becomes a
// persistence failure tagged with op.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrConflict
		case pgForeignKeyViolation:
			return ErrNotFound
		case pgCheckViolation:
			return apperr.Validation("%s violates %s", op, pgErr.ConstraintName)
		}
	}

	for _, known := range []error{apperr.ErrNotFound, apperr.ErrConflict, apperr.ErrValidation, apperr.ErrMediaNotFound, apperr.ErrPersistence} {
		if errors.Is(err, known) {
			return err
		}
	}

	return apperr.Persistence(op, err)
}

// Package apperr defines the error taxonomy shared by the core components.
// The HTTP boundary maps these to status codes; nothing below it does.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrAuthentication indicates an unknown or missing credential.
	ErrAuthentication = errors.New("invalid credential")
	// ErrValidation indicates malformed input or an input that would break an invariant.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates the referenced entity is absent or not owned by the caller.
	ErrNotFound = errors.New("record not found")
	// ErrMediaNotFound indicates requested media ids are missing or already bound.
	ErrMediaNotFound = errors.New("media not found")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("record conflict")
	// ErrRemoteUpload indicates the object store rejected or failed the upload.
	ErrRemoteUpload = errors.New("remote upload failed")
	// ErrLinkPublication indicates the object could not be published after retries.
	ErrLinkPublication = errors.New("link publication failed")
	// ErrDirectLink indicates a direct link could not be derived.
	ErrDirectLink = errors.New("direct link unavailable")
	// ErrPersistence indicates a datastore failure.
	ErrPersistence = errors.New("persistence failure")
)

// Validation returns an ErrValidation carrying a human readable reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Persistence wraps a datastore error so it classifies as ErrPersistence
// while keeping the cause reachable through errors.Unwrap.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &persistenceError{op: op, err: err}
}

type persistenceError struct {
	op  string
	err error
}

func (e *persistenceError) Error() string { return e.op + ": " + e.err.Error() }

func (e *persistenceError) Unwrap() []error { return []error{ErrPersistence, e.err} }

// MediaNotFoundError lists the media ids that could not be bound.
type MediaNotFoundError struct {
	IDs []int64
}

// NewMediaNotFound returns a MediaNotFoundError with ids sorted ascending.
func NewMediaNotFound(ids []int64) *MediaNotFoundError {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return &MediaNotFoundError{IDs: sorted}
}

func (e *MediaNotFoundError) Error() string {
	parts := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("media not found: {%s}", strings.Join(parts, ", "))
}

// Is reports whether target is ErrMediaNotFound.
func (e *MediaNotFoundError) Is(target error) bool {
	return target == ErrMediaNotFound
}

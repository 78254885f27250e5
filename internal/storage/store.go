// Package storage talks to the remote object store that hosts uploaded media.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrObjectNotFound indicates the remote object does not exist.
	ErrObjectNotFound = errors.New("remote object not found")
	// ErrNoUploadTarget indicates the store did not hand out a usable upload URL.
	ErrNoUploadTarget = errors.New("no upload target returned")
)

// UploadTarget is where the bytes for an object should be sent.
type UploadTarget struct {
	Path   string
	URL    string
	Method string
	Header http.Header
}

// ObjectStore is the remote API consumed by the upload pipeline and the
// deletion worker. Paths are relative to the store's configured root.
type ObjectStore interface {
	RequestUpload(ctx context.Context, path string) (UploadTarget, error)
	Upload(ctx context.Context, target UploadTarget, body io.ReadSeeker, size int64) error
	Publish(ctx context.Context, path string) error
	PublicURL(ctx context.Context, path string) (string, error)
	Delete(ctx context.Context, path string) error
}

// StatusError reports a non-success response from the remote store.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s: remote store returned %d: %s", e.Op, e.StatusCode, msg)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Is lets a 404 match ErrObjectNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrObjectNotFound && e.StatusCode == http.StatusNotFound
}

// IsTransient reports whether a failed remote call is worth retrying:
// throttling, server-side errors, timeouts and network failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, io.ErrUnexpectedEOF)
}

// putToTarget streams body to an upload target over plain HTTP.
func putToTarget(ctx context.Context, client *http.Client, target UploadTarget, body io.ReadSeeker, size int64) error {
	if strings.TrimSpace(target.URL) == "" {
		return ErrNoUploadTarget
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind upload body: %w", err)
	}

	method := target.Method
	if method == "" {
		method = http.MethodPut
	}

	req, err := http.NewRequestWithContext(ctx, method, target.URL, io.NopCloser(body))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.ContentLength = size
	for key, values := range target.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", target.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError("upload "+target.Path, resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func responseError(op string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return &StatusError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
}

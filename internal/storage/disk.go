package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tweetbox/backend/internal/config"
)

// DiskStore implements ObjectStore against a cloud-disk REST API that hands
// out upload hrefs, publishes resources and reports their public_url.
type DiskStore struct {
	baseURL string
	token   string
	root    string
	client  *http.Client
}

// NewDiskStore configures a DiskStore. A nil client uses a client with a
// generous overall timeout; callers bound individual calls with contexts.
func NewDiskStore(cfg config.ObjectStoreConfig, client *http.Client) (*DiskStore, error) {
	if strings.TrimSpace(cfg.DiskAPIURL) == "" {
		return nil, fmt.Errorf("disk storage: api url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &DiskStore{
		baseURL: strings.TrimSuffix(cfg.DiskAPIURL, "/"),
		token:   cfg.DiskToken,
		root:    strings.TrimSuffix(cfg.RemoteRoot, "/"),
		client:  client,
	}, nil
}

func (d *DiskStore) resolve(path string) string {
	path = strings.TrimLeft(path, "/")
	if d.root == "" {
		return path
	}
	return d.root + "/" + path
}

// RequestUpload asks the API for an upload href. An object already stored
// at path is never replaced; the API answers 409 instead.
func (d *DiskStore) RequestUpload(ctx context.Context, path string) (UploadTarget, error) {
	var payload struct {
		Href   string `json:"href"`
		Method string `json:"method"`
	}
	query := url.Values{"path": {d.resolve(path)}, "overwrite": {"false"}}
	if err := d.call(ctx, "request upload "+path, http.MethodGet, "/resources/upload", query, &payload); err != nil {
		return UploadTarget{}, err
	}
	if strings.TrimSpace(payload.Href) == "" {
		return UploadTarget{}, fmt.Errorf("request upload %s: %w", path, ErrNoUploadTarget)
	}
	return UploadTarget{Path: path, URL: payload.Href, Method: strings.ToUpper(payload.Method)}, nil
}

// Upload sends the bytes to the href returned by RequestUpload.
func (d *DiskStore) Upload(ctx context.Context, target UploadTarget, body io.ReadSeeker, size int64) error {
	return putToTarget(ctx, d.client, target, body, size)
}

// Publish makes the resource link-shareable.
func (d *DiskStore) Publish(ctx context.Context, path string) error {
	query := url.Values{"path": {d.resolve(path)}}
	return d.call(ctx, "publish "+path, http.MethodPut, "/resources/publish", query, nil)
}

// PublicURL reads the resource metadata. An empty string means the publish
// has not propagated yet.
func (d *DiskStore) PublicURL(ctx context.Context, path string) (string, error) {
	var meta struct {
		PublicURL string `json:"public_url"`
	}
	query := url.Values{"path": {d.resolve(path)}, "fields": {"public_url"}}
	if err := d.call(ctx, "metadata "+path, http.MethodGet, "/resources", query, &meta); err != nil {
		return "", err
	}
	return meta.PublicURL, nil
}

// Delete removes the resource permanently, bypassing the trash.
func (d *DiskStore) Delete(ctx context.Context, path string) error {
	query := url.Values{"path": {d.resolve(path)}, "permanently": {"true"}}
	return d.call(ctx, "delete "+path, http.MethodDelete, "/resources", query, nil)
}

func (d *DiskStore) call(ctx context.Context, op, method, endpoint string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "OAuth "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(op, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

var _ ObjectStore = (*DiskStore)(nil)

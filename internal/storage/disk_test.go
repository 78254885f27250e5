package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/tweetbox/backend/internal/config"
)

type fakeDisk struct {
	mu        sync.Mutex
	objects   map[string][]byte
	published map[string]bool
	auth      []string
	href      bool
	deleteErr int
}

func newFakeDisk() *fakeDisk {
	return &fakeDisk{objects: map[string][]byte{}, published: map[string]bool{}, href: true}
}

func (f *fakeDisk) handler(baseURL func() string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/disk/resources/upload", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.URL.Query().Get("overwrite") != "false" {
			http.Error(w, "overwrite must be disabled", http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		_, exists := f.objects[r.URL.Query().Get("path")]
		f.mu.Unlock()
		if exists {
			http.Error(w, `{"error":"DiskResourceAlreadyExistsError"}`, http.StatusConflict)
			return
		}
		href := ""
		if f.href {
			href = baseURL() + "/blob?path=" + r.URL.Query().Get("path")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"href": href, "method": "PUT"})
	})

	mux.HandleFunc("PUT /blob", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.objects[r.URL.Query().Get("path")] = data
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("PUT /v1/disk/resources/publish", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		path := r.URL.Query().Get("path")
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.objects[path]; !ok {
			http.Error(w, `{"error":"DiskNotFoundError"}`, http.StatusNotFound)
			return
		}
		f.published[path] = true
		_ = json.NewEncoder(w).Encode(map[string]string{"href": "meta"})
	})

	mux.HandleFunc("GET /v1/disk/resources", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		path := r.URL.Query().Get("path")
		f.mu.Lock()
		defer f.mu.Unlock()
		meta := map[string]string{}
		if f.published[path] {
			meta["public_url"] = "https://disk.example/d/" + strings.ReplaceAll(path, "/", "_")
		}
		_ = json.NewEncoder(w).Encode(meta)
	})

	mux.HandleFunc("DELETE /v1/disk/resources", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.URL.Query().Get("permanently") != "true" {
			http.Error(w, "permanent delete required", http.StatusBadRequest)
			return
		}
		if f.deleteErr != 0 {
			http.Error(w, "nope", f.deleteErr)
			return
		}
		path := r.URL.Query().Get("path")
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.objects[path]; !ok {
			http.Error(w, `{"error":"DiskNotFoundError"}`, http.StatusNotFound)
			return
		}
		delete(f.objects, path)
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func (f *fakeDisk) record(r *http.Request) {
	f.mu.Lock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	f.mu.Unlock()
}

func newDiskFixture(t *testing.T) (*DiskStore, *fakeDisk) {
	t.Helper()
	fake := newFakeDisk()
	var server *httptest.Server
	server = httptest.NewServer(fake.handler(func() string { return server.URL }))
	t.Cleanup(server.Close)

	store, err := NewDiskStore(config.ObjectStoreConfig{
		DiskAPIURL: server.URL + "/v1/disk/",
		DiskToken:  "token-123",
		RemoteRoot: "app:/tweetbox",
	}, server.Client())
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	return store, fake
}

func TestDiskStoreLifecycle(t *testing.T) {
	store, fake := newDiskFixture(t)
	ctx := context.Background()

	target, err := store.RequestUpload(ctx, "7/abc_photo.png")
	if err != nil {
		t.Fatalf("request upload: %v", err)
	}
	if target.Method != http.MethodPut || target.Path != "7/abc_photo.png" {
		t.Fatalf("unexpected target: %+v", target)
	}

	payload := []byte("png-bytes")
	if err := store.Upload(ctx, target, bytes.NewReader(payload), int64(len(payload))); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if got := fake.objects["app:/tweetbox/7/abc_photo.png"]; !bytes.Equal(got, payload) {
		t.Fatalf("expected object under remote root, got %q", got)
	}

	link, err := store.PublicURL(ctx, "7/abc_photo.png")
	if err != nil {
		t.Fatalf("metadata before publish: %v", err)
	}
	if link != "" {
		t.Fatalf("expected no public url before publish, got %q", link)
	}

	if err := store.Publish(ctx, "7/abc_photo.png"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	link, err = store.PublicURL(ctx, "7/abc_photo.png")
	if err != nil || link == "" {
		t.Fatalf("expected public url after publish: %q %v", link, err)
	}

	if err := store.Delete(ctx, "7/abc_photo.png"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	err = store.Delete(ctx, "7/abc_photo.png")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound deleting twice, got %v", err)
	}
	if IsTransient(err) {
		t.Fatalf("not found must not be transient")
	}

	for _, header := range fake.auth {
		if header != "OAuth token-123" {
			t.Fatalf("expected OAuth header on every API call, got %q", header)
		}
	}
}

func TestDiskStoreRefusesToOverwrite(t *testing.T) {
	store, _ := newDiskFixture(t)
	ctx := context.Background()

	target, err := store.RequestUpload(ctx, "3/same.png")
	if err != nil {
		t.Fatalf("request upload: %v", err)
	}
	if err := store.Upload(ctx, target, bytes.NewReader([]byte("first")), 5); err != nil {
		t.Fatalf("upload: %v", err)
	}

	_, err = store.RequestUpload(ctx, "3/same.png")
	if err == nil {
		t.Fatalf("expected an error requesting upload over an existing object")
	}
	if IsTransient(err) {
		t.Fatalf("conflict must not be transient: %v", err)
	}
}

func TestDiskStoreMissingHref(t *testing.T) {
	store, fake := newDiskFixture(t)
	fake.href = false

	_, err := store.RequestUpload(context.Background(), "1/x.png")
	if !errors.Is(err, ErrNoUploadTarget) {
		t.Fatalf("expected ErrNoUploadTarget, got %v", err)
	}
}

func TestDiskStoreDeleteStatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{status: http.StatusTooManyRequests, transient: true},
		{status: http.StatusServiceUnavailable, transient: true},
		{status: http.StatusBadGateway, transient: true},
		{status: http.StatusForbidden, transient: false},
		{status: http.StatusConflict, transient: false},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			store, fake := newDiskFixture(t)
			fake.deleteErr = tc.status

			err := store.Delete(context.Background(), "1/x.png")
			var statusErr *StatusError
			if !errors.As(err, &statusErr) || statusErr.StatusCode != tc.status {
				t.Fatalf("expected StatusError %d, got %v", tc.status, err)
			}
			if IsTransient(err) != tc.transient {
				t.Fatalf("expected transient=%v for %d", tc.transient, tc.status)
			}
		})
	}
}

func TestUploadWithoutTargetURL(t *testing.T) {
	store, _ := newDiskFixture(t)
	err := store.Upload(context.Background(), UploadTarget{Path: "x"}, bytes.NewReader(nil), 0)
	if !errors.Is(err, ErrNoUploadTarget) {
		t.Fatalf("expected ErrNoUploadTarget, got %v", err)
	}
}

func TestIsTransientNetworkAndContext(t *testing.T) {
	if !IsTransient(context.DeadlineExceeded) {
		t.Fatalf("deadline exceeded should be transient")
	}
	if IsTransient(errors.New("boom")) {
		t.Fatalf("plain errors are permanent")
	}
	if IsTransient(nil) {
		t.Fatalf("nil is not transient")
	}

	store, err := NewDiskStore(config.ObjectStoreConfig{DiskAPIURL: "http://127.0.0.1:1"}, nil)
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	if err := store.Delete(context.Background(), "x"); !IsTransient(err) {
		t.Fatalf("connection refused should be transient, got %v", err)
	}
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/tweetbox/backend/internal/config"
)

const (
	s3PartSize      = 5 * 1024 * 1024
	s3PresignExpiry = 15 * time.Minute
)

// S3Store implements ObjectStore backed by an S3-compatible service. Small
// objects go through a presigned PUT; anything larger than one part uses the
// multipart uploader.
type S3Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	uploader  *manager.Uploader
	http      *http.Client
	bucket    string
	root      string
	baseURL   string
}

// NewS3Store configures a client targeting the provided object store.
func NewS3Store(ctx context.Context, cfg config.ObjectStoreConfig) (*S3Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 storage: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if strings.TrimSpace(cfg.Endpoint) != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return newS3Store(client, cfg, nil), nil
}

func newS3Store(client *s3.Client, cfg config.ObjectStoreConfig, httpClient *http.Client) *S3Store {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = s3PartSize
		u.LeavePartsOnError = false
	})

	return &S3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		uploader:  uploader,
		http:      httpClient,
		bucket:    cfg.Bucket,
		root:      strings.Trim(cfg.RemoteRoot, "/"),
		baseURL:   strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}
}

func (s *S3Store) key(path string) string {
	path = strings.TrimLeft(path, "/")
	if s.root == "" {
		return path
	}
	return s.root + "/" + path
}

// RequestUpload presigns a PUT for the object key.
func (s *S3Store) RequestUpload(ctx context.Context, path string) (UploadTarget, error) {
	key := s.key(path)
	if key == "" {
		return UploadTarget{}, fmt.Errorf("s3 storage: empty key: %w", ErrNoUploadTarget)
	}

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s3PresignExpiry))
	if err != nil {
		return UploadTarget{}, classifyS3("presign "+key, err)
	}
	if req.URL == "" {
		return UploadTarget{}, fmt.Errorf("presign %s: %w", key, ErrNoUploadTarget)
	}

	return UploadTarget{Path: path, URL: req.URL, Method: req.Method, Header: req.SignedHeader}, nil
}

// Upload sends body to the presigned target, or through the multipart
// uploader when the object spans more than one part.
func (s *S3Store) Upload(ctx context.Context, target UploadTarget, body io.ReadSeeker, size int64) error {
	if size <= s3PartSize {
		return putToTarget(ctx, s.http, target, body, size)
	}

	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind upload body: %w", err)
	}
	key := s.key(target.Path)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return classifyS3("s3 storage upload "+key, err)
	}
	return nil
}

// Publish grants public read on the object.
func (s *S3Store) Publish(ctx context.Context, path string) error {
	key := s.key(path)
	_, err := s.client.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		ACL:    s3types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return classifyS3("publish "+key, err)
	}
	return nil
}

// PublicURL confirms the object is visible and returns its public location.
func (s *S3Store) PublicURL(ctx context.Context, path string) (string, error) {
	key := s.key(path)
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return "", classifyS3("metadata "+key, err)
	}

	escaped := (&url.URL{Path: key}).EscapedPath()
	if s.baseURL != "" {
		return s.baseURL + "/" + escaped, nil
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, escaped), nil
}

// Delete removes the object.
func (s *S3Store) Delete(ctx context.Context, path string) error {
	key := s.key(path)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classifyS3("delete "+key, err)
	}
	return nil
}

// classifyS3 lifts the HTTP status out of SDK errors so IsTransient and
// ErrObjectNotFound work the same way for every backend.
func classifyS3(op string, err error) error {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return &StatusError{Op: op, StatusCode: respErr.HTTPStatusCode(), Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ ObjectStore = (*S3Store)(nil)

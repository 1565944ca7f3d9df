// Package s3storage keeps artifacts in an S3-compatible bucket and hands out
// presigned GET URLs whose expiry matches the artifact's.
package s3storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/FlatDrop/internal/config"
	"github.com/dharsanguruparan/FlatDrop/internal/storage"
)

// maxPresignExpiry is the longest lifetime S3 accepts for a presigned URL.
const maxPresignExpiry = 7 * 24 * time.Hour

// objectAPI is the slice of *minio.Client used here.
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
}

// Storage wraps MinIO/S3 interactions for generated artifacts.
type Storage struct {
	client objectAPI
	bucket string
	prefix string
	region string
	now    func() time.Time
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return newStorage(client, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region), nil
}

func newStorage(client objectAPI, bucket, prefix, region string) *Storage {
	return &Storage{
		client: client,
		bucket: bucket,
		prefix: strings.TrimPrefix(prefix, "/"),
		region: region,
		now:    time.Now,
	}
}

func (s *Storage) Kind() string { return "remote" }

// Key returns the object key for an artifact id.
func (s *Storage) Key(id string) string {
	return path.Join(s.prefix, id)
}

// EnsureBucket makes sure the artifact bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Put uploads the assembled document.
func (s *Storage) Put(ctx context.Context, id string, data []byte) error {
	if !storage.ValidID(id) {
		return fmt.Errorf("put %q: %w", id, storage.ErrInvalidID)
	}
	opts := minio.PutObjectOptions{
		ContentType:        "application/pdf",
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", id),
	}
	if _, err := s.client.PutObject(ctx, s.bucket, s.Key(id), bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return fmt.Errorf("upload artifact: %w", err)
	}
	return nil
}

// Locator returns a presigned GET URL that stays valid until expiresAt,
// rounded up to the second.
func (s *Storage) Locator(ctx context.Context, id string, expiresAt time.Time) (string, error) {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return "", fmt.Errorf("presign %s: already expired", id)
	}
	ttl = (ttl + time.Second - 1).Truncate(time.Second)
	if ttl > maxPresignExpiry {
		return "", fmt.Errorf("presign %s: lifetime %v exceeds %v", id, ttl, maxPresignExpiry)
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, s.Key(id), ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign artifact: %w", err)
	}
	return u.String(), nil
}

// Delete removes the object. Missing objects are not an error.
func (s *Storage) Delete(ctx context.Context, id string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.Key(id), minio.RemoveObjectOptions{})
	if err == nil {
		return nil
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
		return nil
	}
	return fmt.Errorf("remove artifact: %w", err)
}

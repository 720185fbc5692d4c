// Package objectstore hands out short-lived download links for documents
// kept in S3-compatible object storage.
package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"transplant/internal/platform/config"
)

// MinioPresigner signs GET URLs against one bucket.
type MinioPresigner struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewMinio builds a presigner. A fixed region keeps signing local; without
// one the client looks the bucket location up on first use.
func NewMinio(cfg config.MinIOConfig) (*MinioPresigner, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &MinioPresigner{client: client, bucket: cfg.Bucket, expiry: expiry}, nil
}

func (p *MinioPresigner) PresignGet(ctx context.Context, objectKey string) (string, time.Time, error) {
	u, err := p.client.PresignedGetObject(ctx, p.bucket, objectKey, p.expiry, url.Values{})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign %s: %w", objectKey, err)
	}
	return u.String(), time.Now().Add(p.expiry).UTC(), nil
}

// Ping checks that the configured bucket is reachable.
func (p *MinioPresigner) Ping(ctx context.Context) error {
	ok, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", p.bucket, err)
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", p.bucket)
	}
	return nil
}

// Static builds unsigned links under a base URL. It stands in for MinIO in
// tests and local runs without object storage.
type Static struct {
	BaseURL string
	Expiry  time.Duration
	Clock   func() time.Time
}

func (s Static) PresignGet(_ context.Context, objectKey string) (string, time.Time, error) {
	if objectKey == "" {
		return "", time.Time{}, fmt.Errorf("empty object key")
	}
	now := time.Now
	if s.Clock != nil {
		now = s.Clock
	}
	expiry := s.Expiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return s.BaseURL + "/" + url.PathEscape(objectKey), now().Add(expiry).UTC(), nil
}

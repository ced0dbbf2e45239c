package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/FitScan/internal/config"
)

// Storage wraps MinIO/S3 interactions for captured scan stills.
type Storage struct {
	client *minio.Client
	bucket string
	region string
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
	return &Storage{
		client: client,
		bucket: cfg.ImageBucket,
		region: cfg.S3Region,
	}, nil
}

// EnsureBucket makes sure the image bucket exists before use.
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

// PutScanImage uploads a still and returns its stable s3:// reference. The
// reference is stored on the scan record; viewers get a presigned URL for it.
func (s *Storage) PutScanImage(ctx context.Context, userID, scanID string, data []byte, contentType string) (string, error) {
	key := ObjectKey(userID, scanID)
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return "", fmt.Errorf("upload scan image: %w", err)
	}
	return Ref(s.bucket, key), nil
}

// PresignImage returns a signed GET URL for a reference made by PutScanImage.
func (s *Storage) PresignImage(ctx context.Context, ref string, ttl time.Duration) (string, error) {
	bucket, key, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	u, err := s.client.PresignedGetObject(ctx, bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign scan image: %w", err)
	}
	return u.String(), nil
}

// ObjectKey lays stills out per user.
func ObjectKey(userID, scanID string) string {
	return fmt.Sprintf("scans/%s/%s.raw", url.PathEscape(userID), url.PathEscape(scanID))
}

// Ref formats a stable object reference.
func Ref(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}

// ParseRef splits a reference produced by Ref.
func ParseRef(ref string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(ref, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 reference: %q", ref)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed s3 reference: %q", ref)
	}
	return bucket, key, nil
}

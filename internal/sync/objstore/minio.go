// Package objstore provides S3-compatible object storage for captured
// binaries. Photo bytes go to a bucket; only the object key travels to the
// remote data service.
package objstore

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	apperrors "github.com/fieldsync-io/fieldsync/internal/errors"
)

// Config holds object store connection configuration.
type Config struct {
	Endpoint  string // host:port, no scheme
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// MinioStore uploads files to an S3-compatible bucket via minio-go.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// New creates a MinioStore. The HTTP transport is tuned for mobile-grade
// links: generous dial timeout, keep-alives on.
func New(cfg Config) (*MinioStore, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 10 * time.Second,
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Transport: transport,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrObjectUpload, "failed to create object store client", err)
	}

	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrObjectUpload, "failed to check bucket", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return apperrors.Wrap(apperrors.ErrObjectUpload, "failed to create bucket", err)
	}
	return nil
}

// UploadFile uploads the file at path under key.
func (s *MinioStore) UploadFile(ctx context.Context, key, path, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.FPutObject(ctx, s.bucket, key, path, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrObjectUpload, "failed to upload object", err)
	}
	return nil
}

package impl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/ragdock/config"
	"github.com/ragdock/services"
)

type blobStoreImpl struct {
	client *minio.Client
	bucket string
}

func NewBlobStore(cfg *config.BlobConfig) (services.BlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &blobStoreImpl{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

func (s *blobStoreImpl) Download(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get object %s: %w", path, err)
	}

	// GetObject is lazy; Stat forces the first request so missing
	// objects fail here instead of on first read
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		var minioErr minio.ErrorResponse
		if errors.As(err, &minioErr) && minioErr.Code == "NoSuchKey" {
			return nil, 0, fmt.Errorf("object %s: %w", path, services.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("failed to stat object %s: %w", path, err)
	}

	return obj, info.Size, nil
}

func (s *blobStoreImpl) Delete(ctx context.Context, path string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", path, err)
	}
	return nil
}

func (s *blobStoreImpl) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("blob store unreachable: %w", err)
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}

func (s *blobStoreImpl) PresignedURL(ctx context.Context, path string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, path, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s: %w", path, err)
	}
	return u.String(), nil
}

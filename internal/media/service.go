// Package media stores item images and profile photos in S3-compatible
// object storage.
package media

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"lostfound/api/internal/util"
)

// Config holds object storage settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Service uploads media objects. A nil *Service is a valid disabled
// service; callers check IsConfigured before offering uploads.
type Service struct {
	client *minio.Client
	bucket string
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
		log.Printf("media: created bucket %s", cfg.Bucket)
	}

	return &Service{client: client, bucket: cfg.Bucket}, nil
}

// IsConfigured reports whether uploads are available.
func (s *Service) IsConfigured() bool {
	return s != nil && s.client != nil
}

// StoreItemImage uploads an item image and returns its object key.
func (s *Service) StoreItemImage(ctx context.Context, itemID, filename, contentType string, body io.Reader, size int64) (string, error) {
	return s.store(ctx, path.Join("items", itemID, objectName(filename)), contentType, body, size)
}

// StoreProfilePhoto uploads a user's avatar and returns its object key.
func (s *Service) StoreProfilePhoto(ctx context.Context, userID, filename, contentType string, body io.Reader, size int64) (string, error) {
	return s.store(ctx, path.Join("profiles", userID, objectName(filename)), contentType, body, size)
}

func (s *Service) store(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	if !s.IsConfigured() {
		return "", fmt.Errorf("media storage not configured")
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return key, nil
}

// PresignedURL returns a short-lived GET URL for an object key, or ""
// when the key is empty or storage is disabled.
func (s *Service) PresignedURL(ctx context.Context, key string) string {
	if !s.IsConfigured() || key == "" {
		return ""
	}
	signed, err := s.client.PresignedGetObject(ctx, s.bucket, key, 15*time.Minute, url.Values{})
	if err != nil {
		log.Printf("media: presign %s: %v", key, err)
		return ""
	}
	return signed.String()
}

// Remove deletes an object; missing keys are not an error.
func (s *Service) Remove(ctx context.Context, key string) error {
	if !s.IsConfigured() || key == "" {
		return nil
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// objectName keeps the original extension but randomizes the name so
// uploads never collide or leak client filenames.
func objectName(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return util.NewID("") + ext
}

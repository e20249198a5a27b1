package supabase

import (
	"bytes"
	"context"
	"fmt"

	storage_go "github.com/supabase-community/storage-go"
)

const (
	defaultBucket = "posts"
	cacheMaxAge   = "3600"
)

// Storage implements ports.ObjectStorage for one public bucket.
type Storage struct {
	client *Client
	bucket string
}

// NewStorage creates a Storage adapter for bucket.
func NewStorage(client *Client, bucket string) *Storage {
	if bucket == "" {
		bucket = defaultBucket
	}
	return &Storage{client: client, bucket: bucket}
}

// Upload stores data at path. Existing objects are never overwritten.
func (s *Storage) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	upsert, cache := false, cacheMaxAge
	opts := storage_go.FileOptions{ContentType: &contentType, Upsert: &upsert, CacheControl: &cache}
	_, err := call(ctx, s.client, func() (struct{}, error) {
		_, err := s.client.storageAPI().UploadFile(s.bucket, path, bytes.NewReader(data), opts)
		return struct{}{}, err
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return nil
}

// PublicURL returns the unauthenticated download URL of path.
func (s *Storage) PublicURL(path string) string {
	return s.client.storageAPI().GetPublicUrl(s.bucket, path).SignedURL
}

// Remove deletes the given objects in one request.
func (s *Storage) Remove(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := call(ctx, s.client, func() (struct{}, error) {
		_, err := s.client.storageAPI().RemoveFile(s.bucket, paths)
		return struct{}{}, err
	})
	if err != nil {
		return fmt.Errorf("remove objects: %w", err)
	}
	return nil
}

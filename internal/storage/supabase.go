// Package storage uploads answer videos to Supabase object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"
)

// Config holds the Supabase project coordinates.
type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Supabase uploads blobs and hands back public object URLs.
type Supabase struct {
	client  *supabase.Client
	baseURL string
	bucket  string
}

// New constructs a storage client.
func New(cfg Config) (*Supabase, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, fmt.Errorf("missing Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create Supabase client: %w", err)
	}
	return &Supabase{
		client:  client,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		bucket:  cfg.Bucket,
	}, nil
}

// Upload stores the blob under key and returns its public URL.
func (s *Supabase) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	opts := storage_go.FileOptions{ContentType: &contentType}
	if _, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(data), opts); err != nil {
		return "", fmt.Errorf("upload %s to Supabase: %w", key, err)
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, key), nil
}

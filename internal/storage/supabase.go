package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/apex/log"
	storagego "github.com/supabase-community/storage-go"

	"product-catalog-backend/internal/pipeline"
)

// SupabaseStore keeps product photos in a Supabase Storage bucket and serves
// them from the bucket's public URL.
type SupabaseStore struct {
	baseURL string
	apiKey  string
	bucket  string
}

func NewSupabaseStore(supabaseURL, serviceRoleKey, bucket string) (*SupabaseStore, error) {
	if supabaseURL == "" || serviceRoleKey == "" {
		return nil, errors.New("supabase url and key are required")
	}
	if bucket == "" {
		return nil, errors.New("supabase bucket is required")
	}

	return &SupabaseStore{
		baseURL: strings.TrimSuffix(supabaseURL, "/"),
		apiKey:  serviceRoleKey,
		bucket:  bucket,
	}, nil
}

// client returns a fresh storage-go client. File options are kept in
// client-wide headers, so a shared client cannot serve concurrent uploads.
func (s *SupabaseStore) client() *storagego.Client {
	return storagego.NewClient(s.baseURL+"/storage/v1", s.apiKey, nil)
}

func (s *SupabaseStore) Store(ctx context.Context, key string, data []byte, contentType string) (pipeline.StoredImage, error) {
	if err := checkPayload(key, data); err != nil {
		return pipeline.StoredImage{}, err
	}
	if err := ctx.Err(); err != nil {
		return pipeline.StoredImage{}, &pipeline.StorageError{Reason: pipeline.StorageTransientIO, Err: err}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	upsert := false
	_, err := s.client().UploadFile(s.bucket, key, bytes.NewReader(data), storagego.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		log.WithFields(log.Fields{
			"component": "storage",
			"backend":   "supabase",
			"key":       key,
		}).WithError(err).Warn("upload failed")
		return pipeline.StoredImage{}, &pipeline.StorageError{Reason: classifyUploadError(err), Err: fmt.Errorf("failed to upload file: %w", err)}
	}

	return pipeline.StoredImage{Key: key, URL: s.PublicURL(key)}, nil
}

func (s *SupabaseStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.client().RemoveFile(s.bucket, []string{key}); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *SupabaseStore) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, key)
}

func classifyUploadError(err error) pipeline.StorageReason {
	var se *storagego.StorageError
	if errors.As(err, &se) {
		if se.Status == http.StatusRequestEntityTooLarge || se.Status == http.StatusInsufficientStorage {
			return pipeline.StorageQuotaExceeded
		}
		if se.Status == http.StatusBadRequest || se.Status == http.StatusUnsupportedMediaType {
			return pipeline.StorageInvalidPayload
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "exceeded"), strings.Contains(msg, "quota"), strings.Contains(msg, "too large"):
		return pipeline.StorageQuotaExceeded
	case strings.Contains(msg, "mime type"), strings.Contains(msg, "invalid key"):
		return pipeline.StorageInvalidPayload
	}
	return pipeline.StorageTransientIO
}

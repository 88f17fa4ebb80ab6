package storage

import (
	"errors"
	"path"
	"strings"

	"product-catalog-backend/internal/pipeline"
)

func checkPayload(key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if len(data) == 0 {
		return &pipeline.StorageError{Reason: pipeline.StorageInvalidPayload, Err: errors.New("empty payload")}
	}
	return nil
}

// validateKey rejects keys that would escape the bucket or upload directory.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") || path.Clean(key) != key || strings.HasPrefix(key, "..") {
		return &pipeline.StorageError{Reason: pipeline.StorageInvalidPayload, Err: errors.New("invalid object key: " + key)}
	}
	return nil
}

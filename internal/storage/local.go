package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/apex/log"

	"product-catalog-backend/internal/pipeline"
)

// LocalStore writes photos below a directory that the HTTP server exposes
// under PublicBaseURL.
type LocalStore struct {
	dir           string
	publicBaseURL string
}

func NewLocalStore(dir, publicBaseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &LocalStore{
		dir:           dir,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}, nil
}

func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Store(ctx context.Context, key string, data []byte, contentType string) (pipeline.StoredImage, error) {
	if err := checkPayload(key, data); err != nil {
		return pipeline.StoredImage{}, err
	}
	if err := ctx.Err(); err != nil {
		return pipeline.StoredImage{}, &pipeline.StorageError{Reason: pipeline.StorageTransientIO, Err: err}
	}

	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := writeFileAtomic(path, data); err != nil {
		reason := pipeline.StorageTransientIO
		if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT) {
			reason = pipeline.StorageQuotaExceeded
		}
		log.WithFields(log.Fields{
			"component": "storage",
			"backend":   "local",
			"key":       key,
		}).WithError(err).Warn("write failed")
		return pipeline.StoredImage{}, &pipeline.StorageError{Reason: reason, Err: err}
	}

	return pipeline.StoredImage{Key: key, URL: s.publicBaseURL + "/" + key}, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

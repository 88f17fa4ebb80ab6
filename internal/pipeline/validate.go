package pipeline

import (
	"fmt"
	"mime"
	"strings"

	"product-catalog-backend/internal/models"
)

// DefaultMaxUploadBytes is the per-file size ceiling used when none is configured.
const DefaultMaxUploadBytes int64 = 10 << 20

// Validate checks a batch before any external call. It is the only hard
// precondition of a pipeline run.
func Validate(images []models.UploadedImage, maxBytes int64) error {
	if len(images) == 0 {
		return &ValidationError{Field: "images", Reason: "no images provided"}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}

	for _, img := range images {
		size := img.Size
		if n := int64(len(img.Data)); n > size {
			size = n
		}
		if size > maxBytes {
			return &ValidationError{
				Field:  img.Filename,
				Reason: fmt.Sprintf("file is %d bytes, limit is %d", size, maxBytes),
			}
		}
		if !IsImageContentType(img.ContentType) {
			return &ValidationError{
				Field:  img.Filename,
				Reason: fmt.Sprintf("unsupported media type %q", img.ContentType),
			}
		}
	}

	return nil
}

// IsImageContentType reports whether ct declares an image/* media type.
func IsImageContentType(ct string) bool {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/") && len(mediaType) > len("image/")
}

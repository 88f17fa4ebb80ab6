package pipeline

import (
	"context"
	"time"

	"product-catalog-backend/internal/models"
)

// StoredImage is a durable reference returned by an ImageStore.
type StoredImage struct {
	Key string
	URL string
}

// ImageStore persists raw image bytes. Implementations never retry and
// report failures as *StorageError.
type ImageStore interface {
	Store(ctx context.Context, key string, data []byte, contentType string) (StoredImage, error)
	Delete(ctx context.Context, key string) error
}

// Extractor turns one image into a candidate field set. Failures are
// reported as *ExtractionError.
type Extractor interface {
	Extract(ctx context.Context, image models.UploadedImage) (models.Candidate, error)
}

// PriceSearcher looks up a market price. It never fails; a missing price is
// reported through the placeholder in PriceResult.
type PriceSearcher interface {
	Lookup(ctx context.Context, productName, manufacturer string) models.PriceResult
}

// RecordStore is the subset of the product repository the pipeline writes to.
// CreateProduct must write the product and its images atomically.
type RecordStore interface {
	CreateProduct(ctx context.Context, product *models.Product, images []models.ProductImage) (*models.Product, error)
	AddImages(ctx context.Context, productID int64, images []models.ProductImage) ([]models.ProductImage, error)
}

// ImageNormalizer converts uploads into a storable format, prepares them for
// extraction and reads their capture time.
type ImageNormalizer interface {
	Convert(image models.UploadedImage) models.UploadedImage
	Normalize(image models.UploadedImage) models.UploadedImage
	TakenAt(data []byte) *time.Time
}

type EventPublisher interface {
	PublishProductCreated(ctx context.Context, product *models.Product) error
}

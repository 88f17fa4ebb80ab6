package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"product-catalog-backend/internal/database"
	"product-catalog-backend/internal/models"
	"product-catalog-backend/internal/pipeline"
)

// Pipeline is the upload pipeline as seen by the HTTP layer.
type Pipeline interface {
	Run(ctx context.Context, images []models.UploadedImage) (*models.Product, error)
	Attach(ctx context.Context, productID int64, images []models.UploadedImage) ([]models.ProductImage, []models.UploadErrorInfo, error)
	// MaxRequestBytes caps the size of an upload request body.
	MaxRequestBytes() int64
}

type UploadHandler struct {
	pipeline Pipeline
}

func NewUploadHandler(p Pipeline) *UploadHandler {
	return &UploadHandler{pipeline: p}
}

// Upload godoc
// @Summary     Create a product from photos
// @Description Stores the uploaded package photos, extracts product fields from each,
// @Description merges them, looks up a market price and saves the product.
// @Description The first file is the primary image.
// @Tags        upload
// @Accept      multipart/form-data
// @Produce     json
// @Security    Bearer
// @Param       images formData file true "Product photos (multiple files allowed)"
// @Success     201 {object} models.Product
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     413 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /upload [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	images, dropped, err := readImages(c, h.pipeline.MaxRequestBytes())
	if err != nil {
		writeFormError(c, err)
		return
	}

	logger := log.WithFields(log.Fields{
		"component": "upload",
		"files":     len(images),
	})
	for _, d := range dropped {
		logger.WithField("filename", d.Filename).Warnf("dropping unreadable file: %s", d.Error)
	}

	product, err := h.pipeline.Run(c.Request.Context(), images)
	if err != nil {
		writePipelineError(c, err)
		return
	}

	logger.WithField("product_id", product.ID).Info("product created from upload")
	c.JSON(http.StatusCreated, product)
}

// writePipelineError maps the errors a pipeline run can surface to a response.
// Storage and persistence failures are both reported as a failed upload.
func writePipelineError(c *gin.Context, err error) {
	var verr *pipeline.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid upload",
			Message: verr.Error(),
		})
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "product not found"})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "upload failed",
			Message: err.Error(),
		})
	}
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"product-catalog-backend/internal/database"
	"product-catalog-backend/internal/models"
)

type ImagesHandler struct {
	products *ProductsHandler
	pipeline Pipeline
}

func NewImagesHandler(products ProductStore, objects ObjectRemover, p Pipeline) *ImagesHandler {
	return &ImagesHandler{
		products: NewProductsHandler(products, objects),
		pipeline: p,
	}
}

// ListImages godoc
// @Summary     List product images
// @Description Returns the images of a product, primary first, then by display order.
// @Tags        images
// @Produce     json
// @Param       id path int true "Product ID"
// @Success     200 {array}  models.ProductImage
// @Failure     400 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /products/{id}/images [get]
func (h *ImagesHandler) ListImages(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}

	images, err := h.products.products.ListImages(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to list images",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, images)
}

// AddImages godoc
// @Summary     Add images to a product
// @Description Stores more photos for an existing product. They are appended after
// @Description the current images and no extraction is run.
// @Tags        images
// @Accept      multipart/form-data
// @Produce     json
// @Security    Bearer
// @Param       id     path     int  true "Product ID"
// @Param       images formData file true "Product photos (multiple files allowed)"
// @Success     201 {object} models.AddImagesResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     413 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /products/{id}/images [post]
func (h *ImagesHandler) AddImages(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}

	images, dropped, err := readImages(c, h.pipeline.MaxRequestBytes())
	if err != nil {
		writeFormError(c, err)
		return
	}

	added, storeErrors, err := h.pipeline.Attach(c.Request.Context(), id, images)
	if err != nil {
		writePipelineError(c, err)
		return
	}

	resp := models.AddImagesResponse{
		Added:  make([]models.AddedImage, 0, len(added)),
		Errors: append(dropped, storeErrors...),
	}
	for _, img := range added {
		resp.Added = append(resp.Added, models.AddedImage{ID: img.ID, ImagePath: img.ImagePath})
	}

	c.JSON(http.StatusCreated, resp)
}

// DeleteImage godoc
// @Summary     Delete a product image
// @Description The image must belong to the product. Deleting the primary image
// @Description promotes the next one.
// @Tags        images
// @Produce     json
// @Security    Bearer
// @Param       id       path int true "Product ID"
// @Param       image_id path int true "Image ID"
// @Success     200 {object} models.DeleteResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /products/{id}/images/{image_id} [delete]
func (h *ImagesHandler) DeleteImage(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	imageID, ok := int64Param(c, "image_id", "invalid image id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	img, err := h.products.products.DeleteImage(ctx, id, imageID)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "image not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to delete image",
			Message: err.Error(),
		})
		return
	}
	h.products.removeObjects(ctx, id, img.StorageKey)

	log.WithFields(log.Fields{
		"component":  "images",
		"product_id": id,
		"image_id":   imageID,
		"primary":    img.IsPrimary,
	}).Info("image deleted")

	c.JSON(http.StatusOK, models.DeleteResponse{Status: "deleted", ID: imageID})
}

// ReorderImages godoc
// @Summary     Reorder product images
// @Description Sets the display order from the position of each id. The first id
// @Description becomes the primary image. The ids must be exactly the product's images.
// @Tags        images
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       id      path int                         true "Product ID"
// @Param       request body models.ReorderImagesRequest true "New order"
// @Success     200 {object} models.ReorderResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /products/{id}/images/reorder [put]
func (h *ImagesHandler) ReorderImages(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}

	var req models.ReorderImagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid request body",
			Message: err.Error(),
		})
		return
	}

	images, err := h.products.products.ReorderImages(c.Request.Context(), id, req.ImageIDs)
	switch {
	case errors.Is(err, database.ErrImageSetMismatch):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid image order",
			Message: err.Error(),
		})
		return
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "product not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to reorder images",
			Message: err.Error(),
		})
		return
	}

	order := make([]int64, 0, len(images))
	for _, img := range images {
		order = append(order, img.ID)
	}
	c.JSON(http.StatusOK, models.ReorderResponse{Status: "reordered", Order: order})
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"product-catalog-backend/internal/database"
	"product-catalog-backend/internal/models"
)

// ProductStore is the product repository surface used by the handlers.
type ProductStore interface {
	CreateProduct(ctx context.Context, product *models.Product, images []models.ProductImage) (*models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, filter database.ProductFilter) ([]models.Product, error)
	UpdateProduct(ctx context.Context, product *models.Product) (*models.Product, error)
	DeleteProduct(ctx context.Context, id int64) ([]string, error)
	ListImages(ctx context.Context, productID int64) ([]models.ProductImage, error)
	DeleteImage(ctx context.Context, productID, imageID int64) (*models.ProductImage, error)
	ReorderImages(ctx context.Context, productID int64, imageIDs []int64) ([]models.ProductImage, error)
}

// ObjectRemover deletes stored image objects.
type ObjectRemover interface {
	Delete(ctx context.Context, key string) error
}

type ProductsHandler struct {
	products ProductStore
	objects  ObjectRemover
}

func NewProductsHandler(products ProductStore, objects ObjectRemover) *ProductsHandler {
	return &ProductsHandler{products: products, objects: objects}
}

// ListProducts godoc
// @Summary     List products
// @Description Returns all products, newest first. Filter with ?category=.
// @Tags        products
// @Produce     json
// @Param       category query string false "Category value"
// @Success     200 {array}  models.Product
// @Failure     400 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /products [get]
func (h *ProductsHandler) ListProducts(c *gin.Context) {
	h.list(c, c.Query("category"))
}

// ListByCategory godoc
// @Summary     List products of one category
// @Tags        products
// @Produce     json
// @Param       category path string true "Category value"
// @Success     200 {array}  models.Product
// @Failure     400 {object} models.ErrorResponse
// @Router      /products/category/{category} [get]
func (h *ProductsHandler) ListByCategory(c *gin.Context) {
	h.list(c, c.Param("category"))
}

func (h *ProductsHandler) list(c *gin.Context, rawCategory string) {
	var filter database.ProductFilter
	if rawCategory != "" {
		category, ok := models.ParseCategory(rawCategory)
		if !ok {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid category",
				Message: "unknown category: " + rawCategory,
			})
			return
		}
		filter.Category = &category
	}

	products, err := h.products.ListProducts(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to list products",
			Message: err.Error(),
		})
		return
	}
	if products == nil {
		products = []models.Product{}
	}

	c.JSON(http.StatusOK, products)
}

// GetProduct godoc
// @Summary     Get a product
// @Tags        products
// @Produce     json
// @Param       id path int true "Product ID"
// @Success     200 {object} models.Product
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /products/{id} [get]
func (h *ProductsHandler) GetProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}

	product, err := h.products.GetProduct(c.Request.Context(), id)
	if err != nil {
		writeLookupError(c, err, "failed to get product")
		return
	}

	c.JSON(http.StatusOK, product)
}

// UpdateProduct godoc
// @Summary     Update a product
// @Description Partial update. Only the fields present in the body are changed.
// @Tags        products
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       id      path int                          true "Product ID"
// @Param       request body models.UpdateProductRequest true "Fields to change"
// @Success     200 {object} models.Product
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /products/{id} [put]
func (h *ProductsHandler) UpdateProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}

	var req models.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid request body",
			Message: err.Error(),
		})
		return
	}
	if req.Category != nil {
		category, ok := models.ParseCategory(*req.Category)
		if !ok {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid category",
				Message: "unknown category: " + *req.Category,
			})
			return
		}
		canonical := string(category)
		req.Category = &canonical
	}

	ctx := c.Request.Context()
	product, err := h.products.GetProduct(ctx, id)
	if err != nil {
		writeLookupError(c, err, "failed to get product")
		return
	}

	req.Apply(product)
	updated, err := h.products.UpdateProduct(ctx, product)
	if err != nil {
		writeLookupError(c, err, "failed to update product")
		return
	}

	c.JSON(http.StatusOK, updated)
}

// DeleteProduct godoc
// @Summary     Delete a product
// @Description Deletes the product and its images. Stored objects are removed best-effort.
// @Tags        products
// @Produce     json
// @Security    Bearer
// @Param       id path int true "Product ID"
// @Success     200 {object} models.DeleteResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /products/{id} [delete]
func (h *ProductsHandler) DeleteProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	keys, err := h.products.DeleteProduct(ctx, id)
	if err != nil {
		writeLookupError(c, err, "failed to delete product")
		return
	}
	h.removeObjects(ctx, id, keys...)

	c.JSON(http.StatusOK, models.DeleteResponse{Status: "deleted", ID: id})
}

// ImportProduct godoc
// @Summary     Import a product record
// @Description Inserts a product from JSON without running extraction. Unknown categories become Other.
// @Tags        products
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.ImportProductRequest true "Product record"
// @Success     201 {object} models.ImportResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /products/import [post]
func (h *ProductsHandler) ImportProduct(c *gin.Context) {
	var req models.ImportProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid request body",
			Message: err.Error(),
		})
		return
	}

	saved, err := h.products.CreateProduct(c.Request.Context(), req.Product(), nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to import product",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, models.ImportResponse{Status: "imported", ID: saved.ID})
}

// removeObjects deletes stored objects after their rows are gone. Failures
// only leave orphaned objects behind, so they are logged and ignored.
func (h *ProductsHandler) removeObjects(ctx context.Context, productID int64, keys ...string) {
	if h.objects == nil {
		return
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := h.objects.Delete(ctx, key); err != nil {
			log.WithFields(log.Fields{
				"component":  "products",
				"product_id": productID,
				"key":        key,
			}).WithError(err).Warn("failed to delete stored image")
		}
	}
}

func productID(c *gin.Context) (int64, bool) {
	return int64Param(c, "id", "invalid product id")
}

func int64Param(c *gin.Context, name, message string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: message})
		return 0, false
	}
	return id, true
}

func writeLookupError(c *gin.Context, err error, message string) {
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "product not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   message,
		Message: err.Error(),
	})
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"product-catalog-backend/internal/models"
)

// CategoriesHandler godoc
// @Summary     List categories
// @Description Returns every product category in display order.
// @Tags        products
// @Produce     json
// @Success     200 {array} models.CategoryResponse
// @Router      /categories [get]
func CategoriesHandler(c *gin.Context) {
	categories := make([]models.CategoryResponse, 0, len(models.Categories))
	for _, category := range models.Categories {
		categories = append(categories, models.CategoryResponse{
			Value: string(category),
			Label: string(category),
		})
	}
	c.JSON(http.StatusOK, categories)
}

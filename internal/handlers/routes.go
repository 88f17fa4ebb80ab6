package handlers

import "github.com/gin-gonic/gin"

// Handlers groups the API handlers mounted under /api/v1.
type Handlers struct {
	Upload   *UploadHandler
	Products *ProductsHandler
	Images   *ImagesHandler
}

// RegisterRoutes mounts the catalog API on api. The guard handlers run in
// front of every route that changes data.
func RegisterRoutes(api *gin.RouterGroup, h Handlers, guard ...gin.HandlerFunc) {
	mutating := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		chain := make([]gin.HandlerFunc, 0, len(guard)+1)
		chain = append(chain, guard...)
		return append(chain, handler)
	}

	api.GET("/categories", CategoriesHandler)

	api.POST("/upload", mutating(h.Upload.Upload)...)

	api.GET("/products", h.Products.ListProducts)
	api.GET("/products/export", h.Products.ExportProducts)
	api.GET("/products/category/:category", h.Products.ListByCategory)
	api.POST("/products/import", mutating(h.Products.ImportProduct)...)
	api.GET("/products/:id", h.Products.GetProduct)
	api.PUT("/products/:id", mutating(h.Products.UpdateProduct)...)
	api.DELETE("/products/:id", mutating(h.Products.DeleteProduct)...)

	api.GET("/products/:id/images", h.Images.ListImages)
	api.POST("/products/:id/images", mutating(h.Images.AddImages)...)
	api.PUT("/products/:id/images/reorder", mutating(h.Images.ReorderImages)...)
	api.DELETE("/products/:id/images/:image_id", mutating(h.Images.DeleteImage)...)
}

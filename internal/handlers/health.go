package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"product-catalog-backend/internal/models"
)

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler godoc
// @Summary     Health check
// @Description Returns the health status of the API
// @Tags        health
// @Accept      json
// @Produce     json
// @Success     200 {object} models.HealthResponse
// @Router      /health [get]
func HealthHandler(c *gin.Context) {
	response := models.HealthResponse{
		Status: "ok",
	}
	c.JSON(http.StatusOK, response)
}

// ReadyHandler reports 503 while the database cannot be reached.
func ReadyHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
				Error:   "database unavailable",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, models.HealthResponse{Status: "ready"})
	}
}

package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"product-catalog-backend/internal/database"
	"product-catalog-backend/internal/models"
)

const (
	exportSheet       = "Products"
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportTimeLayout  = "2006-01-02 15:04:05"
	exportListJoinSep = ", "
)

var exportHeader = []interface{}{
	"ID", "Product Name", "Volume", "Manufacturer", "Seller", "Category",
	"Ingredients", "Appeals",
	"Energy", "Protein", "Fat", "Carbs", "Sugar", "Fiber", "Salt",
	"Price", "Price (tax excluded)", "Product URL", "Image", "Created At",
}

// ExportProducts godoc
// @Summary     Export products as a spreadsheet
// @Description Returns an xlsx workbook with one row per product, newest first.
// @Tags        products
// @Produce     application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param       category query string false "Category value"
// @Success     200 {file} file
// @Failure     400 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /products/export [get]
func (h *ProductsHandler) ExportProducts(c *gin.Context) {
	var filter database.ProductFilter
	if raw := c.Query("category"); raw != "" {
		category, ok := models.ParseCategory(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid category",
				Message: "unknown category: " + raw,
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

	data, err := buildWorkbook(products)
	if err != nil {
		log.WithFields(log.Fields{"component": "export"}).WithError(err).Error("failed to build workbook")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "failed to export products",
			Message: err.Error(),
		})
		return
	}

	filename := fmt.Sprintf("products-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

func buildWorkbook(products []models.Product) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, p := range products {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := exportRow(p)
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write product %d: %w", p.ID, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func exportRow(p models.Product) []interface{} {
	row := []interface{}{
		p.ID,
		deref(p.ProductName),
		deref(p.Volume),
		deref(p.Manufacturer),
		deref(p.Seller),
		string(p.Category),
		strings.Join(p.Ingredients, exportListJoinSep),
		strings.Join(p.Appeals, exportListJoinSep),
	}
	for _, key := range models.NutritionKeys {
		row = append(row, p.Nutrition[key])
	}

	image := deref(p.ImagePath)
	if len(p.ImagePaths) > 0 {
		image = p.ImagePaths[0]
	}

	return append(row,
		p.PriceInfo,
		deref(p.PriceTaxExcluded),
		deref(p.ProductURL),
		image,
		p.CreatedAt.UTC().Format(exportTimeLayout),
	)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package models

import (
	"strings"
	"time"
)

// PriceTBD is shown when no market price could be found.
const PriceTBD = "Price TBD"

// UnknownProductName is a display fallback only. It is never persisted.
const UnknownProductName = "Unknown Product"

// NutritionKeys lists the nutrient keys accepted on a product, in display order.
var NutritionKeys = []string{"energy", "protein", "fat", "carbs", "sugar", "fiber", "salt"}

// IsNutritionKey reports whether key is one of NutritionKeys.
func IsNutritionKey(key string) bool {
	for _, k := range NutritionKeys {
		if k == key {
			return true
		}
	}
	return false
}

// UploadedImage is one file of an upload batch. Position 0 is the primary image.
type UploadedImage struct {
	Data        []byte
	ContentType string
	Size        int64
	Filename    string
	Position    int
}

// Candidate holds the fields extracted from a single image. A nil field was
// not detected, which is different from a detected empty value.
type Candidate struct {
	ProductName  *string           `json:"product_name,omitempty"`
	Volume       *string           `json:"volume,omitempty"`
	Manufacturer *string           `json:"manufacturer,omitempty"`
	Seller       *string           `json:"seller,omitempty"`
	Ingredients  []string          `json:"ingredients,omitempty"`
	Appeals      []string          `json:"appeals,omitempty"`
	Category     *Category         `json:"category,omitempty"`
	Nutrition    map[string]string `json:"nutrition,omitempty"`
}

// IsEmpty reports whether no field of the candidate carries a value.
func (c Candidate) IsEmpty() bool {
	return blank(c.ProductName) && blank(c.Volume) && blank(c.Manufacturer) && blank(c.Seller) &&
		len(c.Ingredients) == 0 && len(c.Appeals) == 0 && c.Category == nil && len(c.Nutrition) == 0
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

// PriceResult is the outcome of a price lookup. PriceInfo is always set.
type PriceResult struct {
	PriceInfo        string  `json:"price_info"`
	PriceTaxExcluded *string `json:"price_tax_excluded,omitempty"`
	ProductURL       *string `json:"product_url,omitempty"`
}

// ProductImage is a stored image attached to a product.
type ProductImage struct {
	ID           int64      `json:"id"`
	ProductID    int64      `json:"product_id"`
	ImagePath    string     `json:"image_path"`
	StorageKey   string     `json:"-"`
	IsPrimary    bool       `json:"is_primary"`
	DisplayOrder int        `json:"display_order"`
	TakenAt      *time.Time `json:"taken_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Product is the canonical record for one upload batch.
type Product struct {
	ID               int64             `json:"id"`
	ProductName      *string           `json:"product_name"`
	Volume           *string           `json:"volume"`
	Manufacturer     *string           `json:"manufacturer"`
	Seller           *string           `json:"seller"`
	Ingredients      []string          `json:"ingredients"`
	Appeals          []string          `json:"appeals"`
	Category         Category          `json:"category"`
	Nutrition        map[string]string `json:"nutrition"`
	PriceInfo        string            `json:"price_info"`
	PriceTaxExcluded *string           `json:"price_tax_excluded"`
	ProductURL       *string           `json:"product_url"`
	ImagePath        *string           `json:"image_path"`
	ImagePaths       []string          `json:"image_paths"`
	Images           []ProductImage    `json:"images,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// DisplayName returns the product name, or UnknownProductName when none was extracted.
func (p *Product) DisplayName() string {
	if blank(p.ProductName) {
		return UnknownProductName
	}
	return *p.ProductName
}

// NewProduct builds an unsaved product from merged extraction fields and a price result.
func NewProduct(fields Candidate, price PriceResult) *Product {
	category := CategoryOther
	if fields.Category != nil {
		category = *fields.Category
	}
	if price.PriceInfo == "" {
		price.PriceInfo = PriceTBD
	}

	return &Product{
		ProductName:      fields.ProductName,
		Volume:           fields.Volume,
		Manufacturer:     fields.Manufacturer,
		Seller:           fields.Seller,
		Ingredients:      fields.Ingredients,
		Appeals:          fields.Appeals,
		Category:         category,
		Nutrition:        fields.Nutrition,
		PriceInfo:        price.PriceInfo,
		PriceTaxExcluded: price.PriceTaxExcluded,
		ProductURL:       price.ProductURL,
	}
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

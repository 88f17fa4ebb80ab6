package models

// UpdateProductRequest is a partial update. Only fields present in the JSON body are applied.
type UpdateProductRequest struct {
	ProductName      *string            `json:"product_name,omitempty"`
	Volume           *string            `json:"volume,omitempty"`
	Manufacturer     *string            `json:"manufacturer,omitempty"`
	Seller           *string            `json:"seller,omitempty"`
	Ingredients      *[]string          `json:"ingredients,omitempty"`
	Appeals          *[]string          `json:"appeals,omitempty"`
	PriceInfo        *string            `json:"price_info,omitempty"`
	PriceTaxExcluded *string            `json:"price_tax_excluded,omitempty"`
	ProductURL       *string            `json:"product_url,omitempty"`
	Nutrition        *map[string]string `json:"nutrition,omitempty"`
	Category         *string            `json:"category,omitempty"`
}

// Apply copies the present fields onto p. The category must already be validated.
func (r *UpdateProductRequest) Apply(p *Product) {
	if r.ProductName != nil {
		p.ProductName = r.ProductName
	}
	if r.Volume != nil {
		p.Volume = r.Volume
	}
	if r.Manufacturer != nil {
		p.Manufacturer = r.Manufacturer
	}
	if r.Seller != nil {
		p.Seller = r.Seller
	}
	if r.Ingredients != nil {
		p.Ingredients = *r.Ingredients
	}
	if r.Appeals != nil {
		p.Appeals = *r.Appeals
	}
	if r.PriceInfo != nil {
		p.PriceInfo = *r.PriceInfo
	}
	if r.PriceTaxExcluded != nil {
		p.PriceTaxExcluded = r.PriceTaxExcluded
	}
	if r.ProductURL != nil {
		p.ProductURL = r.ProductURL
	}
	if r.Nutrition != nil {
		nutrition := make(map[string]string)
		for k, v := range *r.Nutrition {
			if IsNutritionKey(k) {
				nutrition[k] = v
			}
		}
		p.Nutrition = nutrition
	}
	if r.Category != nil {
		p.Category = Category(*r.Category)
	}
}

// ImportProductRequest creates a product directly, without running extraction.
type ImportProductRequest struct {
	ProductName      *string           `json:"product_name"`
	Volume           *string           `json:"volume"`
	Manufacturer     *string           `json:"manufacturer"`
	Seller           *string           `json:"seller"`
	Ingredients      []string          `json:"ingredients"`
	Appeals          []string          `json:"appeals"`
	PriceInfo        *string           `json:"price_info"`
	PriceTaxExcluded *string           `json:"price_tax_excluded"`
	ProductURL       *string           `json:"product_url"`
	Nutrition        map[string]string `json:"nutrition"`
	Category         string            `json:"category"`
	ImagePath        *string           `json:"image_path"`
}

// Product converts the import payload. Unknown categories become Other.
func (r *ImportProductRequest) Product() *Product {
	name := ""
	if r.ProductName != nil {
		name = *r.ProductName
	}
	category := NormalizeCategory(r.Category, name)

	nutrition := make(map[string]string)
	for k, v := range r.Nutrition {
		if IsNutritionKey(k) {
			nutrition[k] = v
		}
	}

	p := &Product{
		ProductName:      r.ProductName,
		Volume:           r.Volume,
		Manufacturer:     r.Manufacturer,
		Seller:           r.Seller,
		Ingredients:      r.Ingredients,
		Appeals:          r.Appeals,
		Category:         category,
		Nutrition:        nutrition,
		PriceInfo:        PriceTBD,
		PriceTaxExcluded: r.PriceTaxExcluded,
		ProductURL:       r.ProductURL,
		ImagePath:        r.ImagePath,
	}
	if r.PriceInfo != nil && *r.PriceInfo != "" {
		p.PriceInfo = *r.PriceInfo
	}
	if r.ImagePath != nil && *r.ImagePath != "" {
		p.ImagePaths = []string{*r.ImagePath}
	}
	return p
}

type ReorderImagesRequest struct {
	ImageIDs []int64 `json:"image_ids" binding:"required"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

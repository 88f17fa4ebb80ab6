package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/apex/log"
	"github.com/lib/pq"

	"product-catalog-backend/internal/models"
)

const productColumns = `id, product_name, volume, manufacturer, seller, ingredients, appeals, category,
	nutrition_energy, nutrition_protein, nutrition_fat, nutrition_carbs, nutrition_sugar, nutrition_fiber, nutrition_salt,
	price_info, price_tax_excluded, product_url, image_path, created_at, updated_at`

// ProductFilter narrows ListProducts. A nil Category lists everything.
type ProductFilter struct {
	Category *models.Category
}

// ProductRepository stores products and their images in Postgres.
type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateProduct inserts product and its images in one transaction and
// returns the saved record.
func (r *ProductRepository) CreateProduct(ctx context.Context, product *models.Product, images []models.ProductImage) (*models.Product, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	saved := *product
	nutrition := nutritionArgs(product.Nutrition)
	err = tx.QueryRowContext(ctx, `
		INSERT INTO products (product_name, volume, manufacturer, seller, ingredients, appeals, category,
			nutrition_energy, nutrition_protein, nutrition_fat, nutrition_carbs, nutrition_sugar, nutrition_fiber, nutrition_salt,
			price_info, price_tax_excluded, product_url, image_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, created_at, updated_at
	`,
		product.ProductName, product.Volume, product.Manufacturer, product.Seller,
		pq.Array(nonNil(product.Ingredients)), pq.Array(nonNil(product.Appeals)), string(product.Category),
		nutrition[0], nutrition[1], nutrition[2], nutrition[3], nutrition[4], nutrition[5], nutrition[6],
		product.PriceInfo, product.PriceTaxExcluded, product.ProductURL, product.ImagePath,
	).Scan(&saved.ID, &saved.CreatedAt, &saved.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	savedImages := make([]models.ProductImage, 0, len(images))
	for _, img := range images {
		img.ProductID = saved.ID
		if err := insertImage(ctx, tx, &img); err != nil {
			return nil, err
		}
		savedImages = append(savedImages, img)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit product: %w", err)
	}

	attachImages(&saved, savedImages)

	log.WithFields(log.Fields{
		"component":  "database",
		"product_id": saved.ID,
		"images":     len(savedImages),
	}).Debug("product inserted")

	return &saved, nil
}

func (r *ProductRepository) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	product, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	images, err := r.ListImages(ctx, id)
	if err != nil {
		return nil, err
	}
	attachImages(product, images)

	return product, nil
}

// ListProducts returns products newest first, each with its image paths.
func (r *ProductRepository) ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	var args []any
	if filter.Category != nil {
		query += ` WHERE category = $1`
		args = append(args, string(*filter.Category))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := make([]models.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	if len(products) == 0 {
		return products, nil
	}

	ids := make([]int64, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	byProduct, err := r.imagesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range products {
		attachImages(&products[i], byProduct[products[i].ID])
	}

	return products, nil
}

// UpdateProduct overwrites every editable column of product.
func (r *ProductRepository) UpdateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	nutrition := nutritionArgs(product.Nutrition)
	updated := *product
	err := r.db.QueryRowContext(ctx, `
		UPDATE products SET
			product_name = $1, volume = $2, manufacturer = $3, seller = $4, ingredients = $5, appeals = $6, category = $7,
			nutrition_energy = $8, nutrition_protein = $9, nutrition_fat = $10, nutrition_carbs = $11,
			nutrition_sugar = $12, nutrition_fiber = $13, nutrition_salt = $14,
			price_info = $15, price_tax_excluded = $16, product_url = $17, image_path = $18, updated_at = NOW()
		WHERE id = $19
		RETURNING updated_at
	`,
		product.ProductName, product.Volume, product.Manufacturer, product.Seller,
		pq.Array(nonNil(product.Ingredients)), pq.Array(nonNil(product.Appeals)), string(product.Category),
		nutrition[0], nutrition[1], nutrition[2], nutrition[3], nutrition[4], nutrition[5], nutrition[6],
		product.PriceInfo, product.PriceTaxExcluded, product.ProductURL, product.ImagePath,
		product.ID,
	).Scan(&updated.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	return &updated, nil
}

// DeleteProduct removes a product and its image rows. It returns the storage
// keys of the removed images so the caller can delete the objects.
func (r *ProductRepository) DeleteProduct(ctx context.Context, id int64) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT storage_key FROM product_images WHERE product_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list product images: %w", err)
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan storage key: %w", err)
		}
		if key != "" {
			keys = append(keys, key)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list product images: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit delete: %w", err)
	}

	return keys, nil
}

func scanProduct(row scanner) (*models.Product, error) {
	var (
		p         models.Product
		category  string
		nutrition [7]sql.NullString
	)

	err := row.Scan(
		&p.ID, &p.ProductName, &p.Volume, &p.Manufacturer, &p.Seller,
		pq.Array(&p.Ingredients), pq.Array(&p.Appeals), &category,
		&nutrition[0], &nutrition[1], &nutrition[2], &nutrition[3], &nutrition[4], &nutrition[5], &nutrition[6],
		&p.PriceInfo, &p.PriceTaxExcluded, &p.ProductURL, &p.ImagePath, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Category = models.Category(category)
	for i, key := range models.NutritionKeys {
		if !nutrition[i].Valid || nutrition[i].String == "" {
			continue
		}
		if p.Nutrition == nil {
			p.Nutrition = make(map[string]string)
		}
		p.Nutrition[key] = nutrition[i].String
	}

	return &p, nil
}

// nutritionArgs lays the nutrition map out in models.NutritionKeys column order.
func nutritionArgs(nutrition map[string]string) [7]*string {
	var out [7]*string
	for i, key := range models.NutritionKeys {
		if v, ok := nutrition[key]; ok && v != "" {
			out[i] = &v
		}
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// attachImages sets Images and ImagePaths on p. Products imported without
// image rows fall back to their stored image_path.
func attachImages(p *models.Product, images []models.ProductImage) {
	p.Images = images
	p.ImagePaths = make([]string, 0, len(images))
	for _, img := range images {
		p.ImagePaths = append(p.ImagePaths, img.ImagePath)
	}
	if len(p.ImagePaths) == 0 && p.ImagePath != nil && *p.ImagePath != "" {
		p.ImagePaths = append(p.ImagePaths, *p.ImagePath)
	}
}

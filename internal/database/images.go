package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"product-catalog-backend/internal/models"
)

const imageColumns = `id, product_id, image_path, storage_key, is_primary, display_order, taken_at, created_at`

const imageOrder = `is_primary DESC, display_order ASC, id ASC`

type execQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertImage(ctx context.Context, q execQuerier, img *models.ProductImage) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO product_images (product_id, image_path, storage_key, is_primary, display_order, taken_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, img.ProductID, img.ImagePath, img.StorageKey, img.IsPrimary, img.DisplayOrder, img.TakenAt,
	).Scan(&img.ID, &img.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert product image: %w", err)
	}
	return nil
}

func scanImage(row scanner) (models.ProductImage, error) {
	var img models.ProductImage
	err := row.Scan(&img.ID, &img.ProductID, &img.ImagePath, &img.StorageKey, &img.IsPrimary, &img.DisplayOrder, &img.TakenAt, &img.CreatedAt)
	return img, err
}

// ListImages returns a product's images, primary first.
func (r *ProductRepository) ListImages(ctx context.Context, productID int64) ([]models.ProductImage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+imageColumns+` FROM product_images WHERE product_id = $1 ORDER BY `+imageOrder, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	defer rows.Close()

	images := make([]models.ProductImage, 0)
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	return images, nil
}

func (r *ProductRepository) imagesFor(ctx context.Context, productIDs []int64) (map[int64][]models.ProductImage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+imageColumns+` FROM product_images WHERE product_id = ANY($1) ORDER BY product_id, `+imageOrder,
		pq.Array(productIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	defer rows.Close()

	byProduct := make(map[int64][]models.ProductImage, len(productIDs))
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		byProduct[img.ProductID] = append(byProduct[img.ProductID], img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	return byProduct, nil
}

// AddImages appends images after the product's existing ones. The first image
// of a product without images becomes its primary image.
func (r *ProductRepository) AddImages(ctx context.Context, productID int64, images []models.ProductImage) ([]models.ProductImage, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check product: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM product_images WHERE product_id = $1`, productID).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to count images: %w", err)
	}

	added := make([]models.ProductImage, 0, len(images))
	for i, img := range images {
		img.ProductID = productID
		img.DisplayOrder = count + i
		img.IsPrimary = count == 0 && i == 0
		if err := insertImage(ctx, tx, &img); err != nil {
			return nil, err
		}
		added = append(added, img)
	}

	if count == 0 && len(added) > 0 {
		if err := setImagePath(ctx, tx, productID, &added[0].ImagePath); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit images: %w", err)
	}
	return added, nil
}

// DeleteImage removes one image of a product and returns it. When the primary
// image is removed the next image in display order is promoted.
func (r *ProductRepository) DeleteImage(ctx context.Context, productID, imageID int64) (*models.ProductImage, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	img, err := scanImage(tx.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM product_images WHERE id = $1 AND product_id = $2`, imageID, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM product_images WHERE id = $1`, imageID); err != nil {
		return nil, fmt.Errorf("failed to delete image: %w", err)
	}

	if img.IsPrimary {
		var (
			nextID   int64
			nextPath string
		)
		err := tx.QueryRowContext(ctx, `
			SELECT id, image_path FROM product_images
			WHERE product_id = $1
			ORDER BY display_order ASC, id ASC
			LIMIT 1
		`, productID).Scan(&nextID, &nextPath)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if err := setImagePath(ctx, tx, productID, nil); err != nil {
				return nil, err
			}
		case err != nil:
			return nil, fmt.Errorf("failed to find next image: %w", err)
		default:
			if _, err := tx.ExecContext(ctx, `UPDATE product_images SET is_primary = TRUE WHERE id = $1`, nextID); err != nil {
				return nil, fmt.Errorf("failed to promote image: %w", err)
			}
			if err := setImagePath(ctx, tx, productID, &nextPath); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit image delete: %w", err)
	}
	return &img, nil
}

// ReorderImages sets display order from the position of each id in imageIDs.
// The first id becomes the primary image. imageIDs must list exactly the
// product's images.
func (r *ProductRepository) ReorderImages(ctx context.Context, productID int64, imageIDs []int64) ([]models.ProductImage, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM product_images WHERE product_id = $1`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	existing := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan image id: %w", err)
		}
		existing[id] = false
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	if len(existing) == 0 {
		return nil, ErrNotFound
	}
	if len(imageIDs) != len(existing) {
		return nil, ErrImageSetMismatch
	}
	for _, id := range imageIDs {
		seen, ok := existing[id]
		if !ok || seen {
			return nil, ErrImageSetMismatch
		}
		existing[id] = true
	}

	for i, id := range imageIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE product_images SET display_order = $1, is_primary = $2 WHERE id = $3`,
			i, i == 0, id,
		); err != nil {
			return nil, fmt.Errorf("failed to reorder image %d: %w", id, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET image_path = (SELECT image_path FROM product_images WHERE id = $1), updated_at = NOW()
		WHERE id = $2
	`, imageIDs[0], productID); err != nil {
		return nil, fmt.Errorf("failed to update primary image: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reorder: %w", err)
	}

	return r.ListImages(ctx, productID)
}

func setImagePath(ctx context.Context, tx *sql.Tx, productID int64, path *string) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE products SET image_path = $1, updated_at = NOW() WHERE id = $2`, path, productID,
	); err != nil {
		return fmt.Errorf("failed to update primary image: %w", err)
	}
	return nil
}

package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/maltedev/metro-catalog-scraper/internal/models"
)

// Execer is the part of pgx.Tx the repository writes through.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// ProductRepository stores finished runs and their products.
type ProductRepository struct {
	db *DB
}

func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Save writes the run and its products in one transaction. Saving the same
// run again replaces its products.
func (r *ProductRepository) Save(ctx context.Context, run *models.Run) error {
	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		return SaveRunWithTx(ctx, tx, run)
	})
}

func SaveRunWithTx(ctx context.Context, tx Execer, run *models.Run) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO scrape_runs (id, locality, started_at, finished_at, product_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			product_count = EXCLUDED.product_count`,
		run.ID, run.Locality.Name, run.StartedAt, run.FinishedAt, len(run.Products))
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM catalog_products WHERE run_id = $1`, run.ID); err != nil {
		return fmt.Errorf("failed to clear products of run %s: %w", run.ID, err)
	}

	for i, p := range run.Products {
		_, err := tx.Exec(ctx, `
			INSERT INTO catalog_products
				(run_id, position, product_id, name, link, regular_price, promo_price, brand_name)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			run.ID, i, p.ID, p.Name, p.Link, p.RegularPrice, p.PromoPrice, p.BrandName)
		if err != nil {
			return fmt.Errorf("failed to insert product %s: %w", p.ID, err)
		}
	}

	return nil
}

// LatestProducts returns the products of the most recent run for locality.
func (r *ProductRepository) LatestProducts(ctx context.Context, locality string) ([]models.ProductDetail, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.product_id, p.name, p.link, p.regular_price, p.promo_price, p.brand_name
		FROM catalog_products p
		WHERE p.run_id = (
			SELECT id FROM scrape_runs WHERE locality = $1
			ORDER BY started_at DESC LIMIT 1
		)
		ORDER BY p.position`, locality)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []models.ProductDetail
	for rows.Next() {
		var p models.ProductDetail
		if err := rows.Scan(&p.ID, &p.Name, &p.Link, &p.RegularPrice, &p.PromoPrice, &p.BrandName); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

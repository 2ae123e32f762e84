package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"campus-market/internal/domain"
	"campus-market/internal/observability"
)

const (
	getProductByIDQuery = `
		SELECT id, seller_id, name, COALESCE(image_url, ''), is_sold, sold_at, created_at
		FROM products
		WHERE id = $1
	`

	markProductSoldQuery = `
		UPDATE products
		SET is_sold = TRUE, sold_at = COALESCE(sold_at, NOW())
		WHERE id = $1
	`

	deleteProductIfSoldQuery = `
		DELETE FROM products
		WHERE id = $1 AND is_sold
		RETURNING id, seller_id, name, COALESCE(image_url, ''), is_sold, sold_at, created_at
	`

	deleteSoldBeforeQuery = `
		DELETE FROM products
		WHERE is_sold AND COALESCE(sold_at, created_at) < $1
		RETURNING id, seller_id, name, COALESCE(image_url, ''), is_sold, sold_at, created_at
	`

	listImageURLsQuery = `
		SELECT image_url
		FROM products
		WHERE image_url IS NOT NULL AND image_url <> ''
	`

	countListingsQuery = `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_sold)
		FROM products
	`
)

// ProductRepository covers the listing operations needed by mark-sold and
// the cleanup worker. Listing CRUD lives elsewhere.
type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	defer observability.ObserveQuery("select", "products")()

	product, err := scanProduct(r.db.QueryRowContext(ctx, getProductByIDQuery, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

// MarkSold flags the listing as sold. Marking twice keeps the first sold_at.
func (r *ProductRepository) MarkSold(ctx context.Context, id int64) error {
	defer observability.ObserveQuery("update", "products")()

	result, err := r.db.ExecContext(ctx, markProductSoldQuery, id)
	if err != nil {
		return fmt.Errorf("failed to mark product sold: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *ProductRepository) DeleteIfSold(ctx context.Context, id int64) (*domain.Product, error) {
	defer observability.ObserveQuery("delete", "products")()

	product, err := scanProduct(r.db.QueryRowContext(ctx, deleteProductIfSoldQuery, id))
	if errors.Is(err, sql.ErrNoRows) {
		// already removed, or relisted before the delay elapsed
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete sold product: %w", err)
	}
	return product, nil
}

func (r *ProductRepository) DeleteSoldBefore(ctx context.Context, cutoff time.Time) ([]*domain.Product, error) {
	defer observability.ObserveQuery("delete", "products")()

	rows, err := r.db.QueryContext(ctx, deleteSoldBeforeQuery, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to delete sold products: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	return products, nil
}

// ListImageURLs returns the image path of every listing that has one.
func (r *ProductRepository) ListImageURLs(ctx context.Context) ([]string, error) {
	defer observability.ObserveQuery("select", "products")()

	rows, err := r.db.QueryContext(ctx, listImageURLsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list image urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("failed to scan image url: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating image urls: %w", err)
	}
	return urls, nil
}

func (r *ProductRepository) CountListings(ctx context.Context) (domain.ListingCounts, error) {
	defer observability.ObserveQuery("select", "products")()

	var counts domain.ListingCounts
	if err := r.db.QueryRowContext(ctx, countListingsQuery).Scan(&counts.Total, &counts.Sold); err != nil {
		return domain.ListingCounts{}, fmt.Errorf("failed to count listings: %w", err)
	}
	return counts, nil
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	product := &domain.Product{}
	var soldAt sql.NullTime
	err := row.Scan(
		&product.ID,
		&product.SellerID,
		&product.Name,
		&product.ImageURL,
		&product.IsSold,
		&soldAt,
		&product.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if soldAt.Valid {
		t := soldAt.Time
		product.SoldAt = &t
	}
	return product, nil
}

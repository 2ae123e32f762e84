package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrNotSeller       = errors.New("user is not the seller of this product")
)

// Product is the subset of a listing the chat and cleanup paths need.
type Product struct {
	ID        int64      `json:"id"`
	SellerID  int64      `json:"seller_id"`
	Name      string     `json:"name"`
	ImageURL  string     `json:"image_url"`
	IsSold    bool       `json:"is_sold"`
	SoldAt    *time.Time `json:"sold_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ListingCounts summarises the listings table for storage reporting.
type ListingCounts struct {
	Total int64
	Sold  int64
}

// ProductRepository defines the listing operations used by mark-sold and cleanup.
type ProductRepository interface {
	GetByID(ctx context.Context, id int64) (*Product, error)
	MarkSold(ctx context.Context, id int64) error
	// DeleteIfSold removes the product only while it is still marked sold.
	// It returns the removed product, or nil when nothing was deleted.
	DeleteIfSold(ctx context.Context, id int64) (*Product, error)
	// DeleteSoldBefore removes every listing sold before cutoff and returns them.
	DeleteSoldBefore(ctx context.Context, cutoff time.Time) ([]*Product, error)
	ListImageURLs(ctx context.Context) ([]string, error)
	CountListings(ctx context.Context) (ListingCounts, error)
}

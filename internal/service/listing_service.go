package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"campus-market/internal/domain"
	"campus-market/internal/observability"
)

// ImageURLPrefix is the public path under which listing images are served.
const ImageURLPrefix = "/static/images/products/"

// Cleanup triggers, used as metric labels.
const (
	TriggerDelayed = "delayed"
	TriggerSweep   = "sweep"
)

// CleanupScheduler arranges for a sold listing to be removed later.
type CleanupScheduler interface {
	ScheduleCleanup(ctx context.Context, productID int64) error
}

// ListingService owns the sold-listing lifecycle: mark sold, delayed
// removal, and the periodic sweeps that back it up.
type ListingService struct {
	products  domain.ProductRepository
	scheduler CleanupScheduler
	imagesDir string
	retention time.Duration
	now       func() time.Time
}

func NewListingService(products domain.ProductRepository, scheduler CleanupScheduler, imagesDir string, retention time.Duration) *ListingService {
	return &ListingService{
		products:  products,
		scheduler: scheduler,
		imagesDir: imagesDir,
		retention: retention,
		now:       time.Now,
	}
}

// MarkSold marks productID sold on behalf of userID and schedules its
// removal. Only the seller may do this.
func (s *ListingService) MarkSold(ctx context.Context, productID, userID int64) error {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if product.SellerID != userID {
		return domain.ErrNotSeller
	}

	if err := s.products.MarkSold(ctx, productID); err != nil {
		return err
	}

	if s.scheduler == nil {
		return nil
	}
	if err := s.scheduler.ScheduleCleanup(ctx, productID); err != nil {
		// the retention sweep still removes the listing
		slog.Warn("Failed to schedule listing cleanup",
			slog.Int64("product_id", productID),
			slog.String("error", err.Error()))
	}
	return nil
}

// RemoveSoldProduct deletes productID if it is still sold and removes its
// image. It reports whether a listing was removed.
func (s *ListingService) RemoveSoldProduct(ctx context.Context, productID int64) (bool, error) {
	product, err := s.products.DeleteIfSold(ctx, productID)
	if err != nil {
		return false, err
	}
	if product == nil {
		return false, nil
	}

	s.removeImage(product.ImageURL)
	observability.ListingsCleanedTotal.WithLabelValues(TriggerDelayed).Inc()
	slog.Info("Removed sold listing",
		slog.Int64("product_id", product.ID),
		slog.String("trigger", TriggerDelayed))
	return true, nil
}

// SweepSoldProducts deletes listings sold longer ago than the retention
// period, with their images.
func (s *ListingService) SweepSoldProducts(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.retention)
	removed, err := s.products.DeleteSoldBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	for _, product := range removed {
		s.removeImage(product.ImageURL)
	}
	observability.ListingsCleanedTotal.WithLabelValues(TriggerSweep).Add(float64(len(removed)))
	return len(removed), nil
}

// RemoveOrphanedImages deletes files in the images directory that no
// listing references.
func (s *ListingService) RemoveOrphanedImages(ctx context.Context) (int, error) {
	urls, err := s.products.ListImageURLs(ctx)
	if err != nil {
		return 0, err
	}

	used := make(map[string]struct{}, len(urls))
	for _, url := range urls {
		if name, ok := imageFileName(url); ok {
			used[name] = struct{}{}
		}
	}

	entries, err := os.ReadDir(s.imagesDir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read images directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if _, ok := used[entry.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.imagesDir, entry.Name())); err != nil {
			slog.Warn("Failed to remove orphaned image",
				slog.String("file", entry.Name()),
				slog.String("error", err.Error()))
			continue
		}
		removed++
	}

	observability.OrphanedImagesRemovedTotal.Add(float64(removed))
	return removed, nil
}

// CleanupReport is the outcome of a manually triggered cleanup.
type CleanupReport struct {
	ListingsRemoved int `json:"cleaned_products"`
	ImagesRemoved   int `json:"orphaned_images"`
}

// RunCleanup runs the retention sweep and the orphaned-image sweep. Both
// always run; the returned error joins whichever failed.
func (s *ListingService) RunCleanup(ctx context.Context) (CleanupReport, error) {
	var report CleanupReport

	listings, sweepErr := s.SweepSoldProducts(ctx)
	report.ListingsRemoved = listings

	images, imagesErr := s.RemoveOrphanedImages(ctx)
	report.ImagesRemoved = images

	return report, errors.Join(sweepErr, imagesErr)
}

// StorageStats describes listing counts and the images directory on disk.
type StorageStats struct {
	TotalProducts  int64 `json:"total_products"`
	SoldProducts   int64 `json:"sold_products"`
	ActiveProducts int64 `json:"active_products"`
	TotalImages    int   `json:"total_images"`
	StorageBytes   int64 `json:"storage_bytes"`
}

func (s *ListingService) StorageStats(ctx context.Context) (StorageStats, error) {
	counts, err := s.products.CountListings(ctx)
	if err != nil {
		return StorageStats{}, err
	}

	stats := StorageStats{
		TotalProducts:  counts.Total,
		SoldProducts:   counts.Sold,
		ActiveProducts: counts.Total - counts.Sold,
	}

	entries, err := os.ReadDir(s.imagesDir)
	if errors.Is(err, fs.ErrNotExist) {
		return stats, nil
	}
	if err != nil {
		return StorageStats{}, fmt.Errorf("failed to read images directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		stats.TotalImages++
		stats.StorageBytes += info.Size()
	}
	return stats, nil
}

func (s *ListingService) removeImage(url string) {
	name, ok := imageFileName(url)
	if !ok {
		return
	}
	err := os.Remove(filepath.Join(s.imagesDir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to remove listing image",
			slog.String("file", name),
			slog.String("error", err.Error()))
	}
}

// imageFileName extracts the file name from a listing image URL. URLs
// outside ImageURLPrefix or pointing into subdirectories are rejected.
func imageFileName(url string) (string, bool) {
	if !strings.HasPrefix(url, ImageURLPrefix) {
		return "", false
	}
	name := strings.TrimPrefix(url, ImageURLPrefix)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", false
	}
	return name, true
}

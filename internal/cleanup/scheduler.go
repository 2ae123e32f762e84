// Package cleanup runs the periodic sold-listing and orphaned-image sweeps.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

const sweepTimeout = 5 * time.Minute

// Sweeper removes expired listings and image files with no listing.
type Sweeper interface {
	SweepSoldProducts(ctx context.Context) (int, error)
	RemoveOrphanedImages(ctx context.Context) (int, error)
}

// Scheduler runs both sweeps on a fixed interval. Runs never overlap.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
}

func NewScheduler(sweeper Sweeper, interval time.Duration) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
	}
}

// Run starts the sweeps immediately and then every interval, blocking
// until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("cleanup interval must be positive, got %s", s.interval)
	}

	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()

	if _, err := scheduler.Every(s.interval).Do(func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule cleanup sweep: %w", err)
	}

	slog.Info("cleanup sweeps scheduled", slog.Duration("interval", s.interval))
	scheduler.StartAsync()

	<-ctx.Done()

	scheduler.Stop()
	slog.Info("cleanup sweeps stopped")
	return nil
}

// RunOnce performs one sweep of each kind. A failing sweep is logged and
// does not prevent the other.
func (s *Scheduler) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	start := time.Now()

	listings, err := s.sweeper.SweepSoldProducts(ctx)
	if err != nil {
		slog.Error("sold listing sweep failed", slog.String("error", err.Error()))
	}

	images, err := s.sweeper.RemoveOrphanedImages(ctx)
	if err != nil {
		slog.Error("orphaned image sweep failed", slog.String("error", err.Error()))
	}

	slog.Info("cleanup sweep finished",
		slog.Int("listings_removed", listings),
		slog.Int("images_removed", images),
		slog.Duration("elapsed", time.Since(start)))
}

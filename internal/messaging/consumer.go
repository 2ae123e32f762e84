package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	consumerPrefetch = 10
	jobTimeout       = 30 * time.Second
)

// ProductRemover deletes a sold listing and its image. It reports whether
// anything was removed.
type ProductRemover interface {
	RemoveSoldProduct(ctx context.Context, productID int64) (bool, error)
}

// CleanupConsumer runs due cleanup jobs. A job that fails is dropped: the
// periodic retention sweep removes the listing later.
type CleanupConsumer struct {
	rmq     *RabbitMQ
	remover ProductRemover
	wg      sync.WaitGroup
}

func NewCleanupConsumer(rmq *RabbitMQ, remover ProductRemover) *CleanupConsumer {
	return &CleanupConsumer{
		rmq:     rmq,
		remover: remover,
	}
}

// Start begins consuming in the background until ctx is done or the
// delivery channel closes. Wait blocks until the loop has exited.
func (c *CleanupConsumer) Start(ctx context.Context) error {
	msgs, ch, err := c.rmq.ConsumeCleanupJobs(consumerPrefetch)
	if err != nil {
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-ctx.Done():
				slog.Info("stopping cleanup consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Warn("cleanup consumer channel closed")
					return
				}
				c.handleDelivery(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *CleanupConsumer) Wait() {
	c.wg.Wait()
}

func (c *CleanupConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	if err := c.process(jobCtx, msg.Body); err != nil {
		slog.Error("cleanup job failed",
			slog.String("error", err.Error()),
			slog.Int("body_size", len(msg.Body)))
		if nackErr := msg.Nack(false, false); nackErr != nil {
			slog.Warn("failed to nack cleanup job", slog.String("error", nackErr.Error()))
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		slog.Warn("failed to ack cleanup job", slog.String("error", err.Error()))
	}
}

func (c *CleanupConsumer) process(ctx context.Context, body []byte) error {
	var job ProductCleanupJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("failed to unmarshal cleanup job: %w", err)
	}
	if job.ProductID <= 0 {
		return fmt.Errorf("invalid product id %d in cleanup job", job.ProductID)
	}

	removed, err := c.remover.RemoveSoldProduct(ctx, job.ProductID)
	if err != nil {
		return fmt.Errorf("failed to remove product %d: %w", job.ProductID, err)
	}

	slog.Info("processed cleanup job",
		slog.Int64("product_id", job.ProductID),
		slog.Bool("removed", removed),
		slog.Duration("age", time.Since(job.RequestedAt)))
	return nil
}

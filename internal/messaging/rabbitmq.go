package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Sold listings are published to DelayQueue with a per-message TTL. When
// the TTL lapses the broker dead-letters them through CleanupExchange into
// CleanupQueue, which the cleanup worker consumes.
const (
	CleanupExchange   = "listing.cleanup"
	DelayQueue        = "listing.cleanup.delay"
	CleanupQueue      = "listing.cleanup"
	CleanupRoutingKey = "cleanup.due"
)

var ErrNotConfirmed = errors.New("broker did not confirm publish")

// ProductCleanupJob asks the worker to remove a listing if it is still sold.
type ProductCleanupJob struct {
	ProductID   int64     `json:"product_id"`
	RequestedAt time.Time `json:"requested_at"`
}

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	delay   time.Duration

	// amqp channels are not safe for concurrent publishing
	publishMu sync.Mutex
}

// NewRabbitMQ connects, declares the cleanup topology and puts the
// publishing channel in confirm mode. delay is how long a job waits before
// it becomes due.
func NewRabbitMQ(url string, delay time.Duration) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
		delay:   delay,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		rmq.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	return rmq, nil
}

// NewRabbitMQWithRetry retries NewRabbitMQ with exponential backoff until it
// succeeds or ctx is done. The broker often starts after the services that
// depend on it.
func NewRabbitMQWithRetry(ctx context.Context, url string, delay time.Duration) (*RabbitMQ, error) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for attempt := 1; ; attempt++ {
		rmq, err := NewRabbitMQ(url, delay)
		if err == nil {
			return rmq, nil
		}

		slog.Warn("rabbitmq not available, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gave up connecting to RabbitMQ after %d attempts: %w", attempt, err)
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Setup declares the exchange and both queues. It is idempotent.
func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		CleanupExchange, // name
		"direct",        // type
		true,            // durable
		false,           // auto-deleted
		false,           // internal
		false,           // no-wait
		nil,             // arguments
	); err != nil {
		return fmt.Errorf("failed to declare cleanup exchange: %w", err)
	}

	if _, err := r.channel.QueueDeclare(
		DelayQueue, // name
		true,       // durable
		false,      // delete when unused
		false,      // exclusive
		false,      // no-wait
		amqp.Table{
			"x-dead-letter-exchange":    CleanupExchange,
			"x-dead-letter-routing-key": CleanupRoutingKey,
		},
	); err != nil {
		return fmt.Errorf("failed to declare %s queue: %w", DelayQueue, err)
	}

	if _, err := r.channel.QueueDeclare(
		CleanupQueue, // name
		true,         // durable
		false,        // delete when unused
		false,        // exclusive
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		return fmt.Errorf("failed to declare %s queue: %w", CleanupQueue, err)
	}

	if err := r.channel.QueueBind(
		CleanupQueue,      // queue name
		CleanupRoutingKey, // routing key
		CleanupExchange,   // exchange
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind %s queue: %w", CleanupQueue, err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

// ScheduleCleanup publishes a persistent cleanup job for productID that
// becomes due after the configured delay. It returns once the broker has
// confirmed the message.
func (r *RabbitMQ) ScheduleCleanup(ctx context.Context, productID int64) error {
	body, err := json.Marshal(ProductCleanupJob{
		ProductID:   productID,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cleanup job: %w", err)
	}

	r.publishMu.Lock()
	confirmation, err := r.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		"",         // default exchange routes by queue name
		DelayQueue, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Expiration:   expiration(r.delay),
		},
	)
	r.publishMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to publish cleanup job: %w", err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed waiting for publish confirm: %w", err)
	}
	if !acked {
		return ErrNotConfirmed
	}

	slog.Info("scheduled listing cleanup",
		slog.Int64("product_id", productID),
		slog.Duration("delay", r.delay))
	return nil
}

// ConsumeCleanupJobs opens a dedicated channel and returns due jobs for
// manual acknowledgement.
func (r *RabbitMQ) ConsumeCleanupJobs(prefetch int) (<-chan amqp.Delivery, *amqp.Channel, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open consumer channel: %w", err)
	}

	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	msgs, err := ch.Consume(
		CleanupQueue,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming cleanup jobs", slog.String("queue", CleanupQueue))
	return msgs, ch, nil
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// expiration formats d as the per-message TTL in milliseconds. RabbitMQ
// treats "0" as expire immediately.
func expiration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return strconv.FormatInt(d.Milliseconds(), 10)
}

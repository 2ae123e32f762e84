package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campus-market/internal/cleanup"
	"campus-market/internal/config"
	"campus-market/internal/messaging"
	"campus-market/internal/observability"
	"campus-market/internal/repository/postgres"
	"campus-market/internal/service"
	"campus-market/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting cleanup worker")

	connCtx, connCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer connCancel()

	db, err := config.NewPostgresConnection(cfg.DatabaseURL, cfg.DBMaxOpenConns)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.PingContext(connCtx); err != nil {
		slog.Error("database ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := migrations.Apply(connCtx, db); err != nil {
		slog.Error("failed to apply migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rmqCtx, rmqCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer rmqCancel()

	rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL, cfg.SoldCleanupDelay)
	if err != nil {
		slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rmq.Close()

	slog.Info("connected to rabbitmq")

	// The worker only removes listings; it never schedules new jobs.
	listings := service.NewListingService(postgres.NewProductRepository(db), nil, cfg.ImagesDir, cfg.SoldRetention)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := messaging.NewCleanupConsumer(rmq, listings)
	if err := consumer.Start(ctx); err != nil {
		slog.Error("failed to start cleanup consumer", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("cleanup consumer started")

	sweeps := cleanup.NewScheduler(listings, cfg.CleanupSweepInterval)
	sweepDone := make(chan error, 1)
	go func() {
		sweepDone <- sweeps.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		slog.Info("shutting down cleanup worker")
	case err := <-sweepDone:
		if err != nil {
			slog.Error("cleanup sweeps failed", slog.String("error", err.Error()))
		}
	}

	cancel()
	consumer.Wait()
	slog.Info("cleanup worker stopped")
}

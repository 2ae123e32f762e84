package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campus-market/internal/config"
	"campus-market/internal/handler"
	"campus-market/internal/messaging"
	"campus-market/internal/middleware"
	"campus-market/internal/observability"
	"campus-market/internal/repository/postgres"
	"campus-market/internal/security"
	"campus-market/internal/service"
	"campus-market/internal/websocket"
	"campus-market/migrations"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting market server", slog.String("environment", cfg.Environment))

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
	slog.Info("connected to postgresql")

	rmqCtx, rmqCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer rmqCancel()

	rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL, cfg.SoldCleanupDelay)
	if err != nil {
		slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rmq.Close()

	userRepo, err := postgres.NewUserRepository(db)
	if err != nil {
		slog.Error("failed to initialise user repository", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer userRepo.Close()

	messageRepo, err := postgres.NewMessageRepository(db)
	if err != nil {
		slog.Error("failed to initialise message repository", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer messageRepo.Close()

	productRepo := postgres.NewProductRepository(db)

	tokens := security.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)

	authService := service.NewAuthService(userRepo, tokens)
	chatService := service.NewChatService(messageRepo)
	listingService := service.NewListingService(productRepo, rmq, cfg.ImagesDir, cfg.SoldRetention)

	registry := websocket.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go recordDBStats(ctx, db.Stats)

	if cfg.AdminToken == "" {
		slog.Info("admin endpoints disabled, ADMIN_TOKEN is not set")
	}

	if cfg.TrustHandshakeIdentity {
		slog.Warn("websocket handshakes are not authenticated, the path user id is trusted")
	}

	allowedOrigins := middleware.ParseOrigins(cfg.AllowedOrigins)

	authHandler := handler.NewAuthHandler(authService, tokens.TTL(), cfg.IsProduction())
	messageHandler := handler.NewMessageHandler(chatService, registry)
	listingHandler := handler.NewListingHandler(listingService)
	adminHandler := handler.NewAdminHandler(listingService)
	wsHandler := handler.NewWebSocketHandler(ctx, registry, chatService, tokens, allowedOrigins, cfg.TrustHandshakeIdentity)

	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CORS(allowedOrigins))
	r.Use(middleware.Metrics())
	r.Use(middleware.OpenAPIValidator(middleware.DefaultOpenAPIValidatorConfig()))
	r.Use(middleware.CSRF())

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(db, rmq))
	r.Handle("/metrics", promhttp.Handler())

	images := http.StripPrefix(service.ImageURLPrefix, http.FileServer(http.Dir(cfg.ImagesDir)))
	r.Handle(service.ImageURLPrefix+"*", images)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	r.Route("/api/v1", func(r chi.Router) {
		authLimiter := middleware.NewRateLimiter(ctx, 5, 10)
		apiLimiter := middleware.NewRateLimiter(ctx, 20, 50)

		r.Group(func(r chi.Router) {
			r.Use(authLimiter.Middleware())
			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(tokens))
			r.Use(apiLimiter.Middleware())

			r.Get("/auth/me", authHandler.Me)
			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/conversations", messageHandler.Conversations)
			r.Get("/messages/{other_user_id}", messageHandler.History)
			r.Get("/users/{user_id}/online", messageHandler.Presence)
			r.Post("/products/{product_id}/mark-sold", listingHandler.MarkSold)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminToken(cfg.AdminToken))
			r.Use(apiLimiter.Middleware())

			r.Post("/cleanup", adminHandler.Cleanup)
			r.Get("/storage", adminHandler.Storage)
		})
	})

	// Auth handled internally to support query param tokens
	r.Get("/ws/{user_id}", wsHandler.HandleConnection)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("market server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	registry.Shutdown()
	cancel()

	slog.Info("server stopped gracefully")
}

// recordDBStats publishes connection pool gauges until ctx is cancelled.
func recordDBStats(ctx context.Context, stats func() sql.DBStats) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.RecordDBStats(stats())
		}
	}
}

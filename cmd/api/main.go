/**
 * @description
 * Entry point of the RAVITO API: HTTP routes, the notification websocket hub and the
 * RabbitMQ consumer that delivers notifications to websockets and browser push.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/jackc/pgx/v5: Postgres pool.
 * - github.com/redis/go-redis/v9: session/settings cache and rate limiting (optional).
 */
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/ravito/ravito-backend/internal/api"
	"github.com/ravito/ravito-backend/internal/app"
	"github.com/ravito/ravito-backend/internal/cache"
	"github.com/ravito/ravito-backend/internal/config"
	"github.com/ravito/ravito-backend/internal/domain"
	"github.com/ravito/ravito-backend/internal/realtime"
	"github.com/ravito/ravito-backend/internal/store"
	"github.com/ravito/ravito-backend/pkg/rabbitmq"
	"github.com/ravito/ravito-backend/pkg/webpush"
)

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	pgConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	pgConfig.MaxConns = 50
	pgConfig.MinConns = 5
	pgConfig.MaxConnLifetime = 30 * time.Minute
	pgConfig.MaxConnIdleTime = 5 * time.Minute
	pgConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	repository := store.NewRepository(dbpool)

	var (
		sessionCache  app.SessionCache
		settingsCache app.SettingsCache
		limiter       app.RateLimiter = app.NewMemoryRateLimiter()
	)
	if redisClient := connectRedis(cfg.RedisURL, logger); redisClient != nil {
		defer redisClient.Close()
		redisCache := cache.New(redisClient, cfg.RedisKeyPrefix, cfg.SessionCacheTTL())
		sessionCache = redisCache
		settingsCache = redisCache
		limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisKeyPrefix)
	}

	hub := realtime.NewHub(logger, cfg.Origins())
	hubDone := make(chan struct{})
	go hub.Run(hubDone)

	var pushSender app.PushSender
	if sender, err := webpush.NewSender(webpush.Config{
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		Subject:    cfg.VAPIDSubject,
	}); err == nil {
		pushSender = sender
	} else {
		logger.Warn("web push disabled", "error", err)
	}

	dispatcher := app.NewDispatcher(hub, pushSender, repository, logger)

	var publisher app.EventPublisher = app.NewInProcessPublisher(dispatcher, logger)
	if cfg.RabbitMQURL != "" {
		if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err == nil {
			publisher = producer
			defer producer.Close()
		} else {
			logger.Warn("failed to connect to RabbitMQ, dispatching notifications in-process", "error", err)
		}
	}

	if _, inProcess := publisher.(*app.InProcessPublisher); !inProcess {
		consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
		if err != nil {
			logger.Error("failed to create notification consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()
		err = consumer.ConsumeWithBindings(cfg.EventsExchange, cfg.NotificationQueue, map[string]func([]byte) bool{
			domain.EventNotificationCreated: dispatcher.HandleNotificationCreated,
		})
		if err != nil {
			logger.Error("failed to start notification consumer", "error", err)
			os.Exit(1)
		}
		logger.Info("notification consumer started", "queue", cfg.NotificationQueue)
	}

	notifications := app.NewNotificationService(repository, publisher, cfg.EventsExchange)
	credit := app.NewCreditService(repository, notifications, publisher, cfg.EventsExchange, cfg.BusinessTimezone)

	handlers := api.NewHandlers(api.Services{
		Identity:      app.NewIdentityService(repository, sessionCache),
		Registration:  app.NewRegistrationService(repository, notifications, publisher, cfg.EventsExchange),
		Sheets:        app.NewSheetService(repository, credit, notifications, publisher, cfg.EventsExchange, cfg.BusinessTimezone),
		Credit:        credit,
		Commissions:   app.NewCommissionService(repository, settingsCache, notifications, publisher, cfg.EventsExchange, cfg.BusinessTimezone),
		Notifications: notifications,
		Hub:           hub,
	}, cfg.BusinessTimezone)

	router := api.NewRouter(handlers, api.RouterConfig{
		JWTSecret:          cfg.JWTSecret,
		JWTAudience:        cfg.JWTAudience,
		InternalAPIKey:     cfg.InternalAPIKey,
		AllowedOrigins:     cfg.Origins(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, limiter)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	close(hubDone)

	logger.Info("server stopped")
}

// connectRedis returns a connected client, or nil when Redis is not configured or
// cannot be reached.
func connectRedis(redisURL string, logger *slog.Logger) *redis.Client {
	if redisURL == "" {
		logger.Warn("redis url missing; session cache disabled and rate limiting kept in memory")
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("redis url parse failed; session cache disabled", "error", err)
		return nil
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; session cache disabled", "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected")
	return client
}

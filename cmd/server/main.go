package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/example/newport/internal/config"
	"github.com/example/newport/internal/database"
	"github.com/example/newport/internal/metrics"
	"github.com/example/newport/internal/routes"
	"github.com/example/newport/internal/services"
)

func main() {
	if err := run(); err != nil {
		log.WithError(err).Error("Server stopped")
		os.Exit(1)
	}
}

// run serves until shutdown. Deferred closes run before main exits.
func run() error {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	db := database.Connect(cfg.DatabaseURL)

	var cache services.IdempotencyCache = services.NoopIdempotencyCache{}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("Redis unavailable, idempotency cache disabled")
		} else {
			cache = services.NewRedisIdempotencyCache(client)
			defer client.Close()
		}
		cancel()
	}

	events := services.Publishers{services.NewNotificationStore(db)}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := services.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaPaymentTopic)
		if err != nil {
			log.WithError(err).Warn("Kafka unavailable, payment events will not be streamed")
		} else {
			events = append(events, kafka)
			defer kafka.Close()
		}
	}
	telegram := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	defer telegram.Close()
	events = append(events, telegram)

	app := fiber.New(fiber.Config{
		AppName: "Newport Backend",
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(metrics.Middleware())

	routes.Register(app, db, cfg, events, cache)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("Shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.WithError(err).Error("Graceful shutdown failed")
		}
	}()

	log.Infof("Starting server on :%s", cfg.AppPort)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		return fmt.Errorf("fiber.Listen: %w", err)
	}
	return nil
}

func setupLogging(level string) {
	log.SetFormatter(&log.JSONFormatter{})
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("Unknown log level, using info")
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}

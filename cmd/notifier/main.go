package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/example/grocery-orders/internal/config"
	"github.com/example/grocery-orders/internal/email"
	"github.com/example/grocery-orders/internal/infrastructure/kafka"
	"github.com/example/grocery-orders/internal/infrastructure/store"
	"github.com/example/grocery-orders/internal/logging"
	"github.com/example/grocery-orders/internal/notification"
)

const defaultGroup = "email-notifier"

func main() {
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger, err := logging.NewWithLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("notifier stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if err := cfg.ValidateConsumer(); err != nil {
		return err
	}
	group := cfg.KafkaGroupID
	if group == "" {
		group = defaultGroup
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	if err := store.EnsureSchema(ctx, db); err != nil {
		return err
	}

	mailer := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	notifier := notification.NewHandler(mailer, store.NewPostgresReadStore(db), logger)
	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, group, logger.Named("kafka"))
	defer consumer.Close()

	logger.Info("consuming",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopic),
		zap.String("group", group),
		zap.String("smtp", cfg.SMTPHost+":"+cfg.SMTPPort),
	)
	if err := consumer.Consume(ctx, notifier.HandleEvent); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("shutting down")
	return nil
}

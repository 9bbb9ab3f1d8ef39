package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/example/grocery-orders/internal/config"
	"github.com/example/grocery-orders/internal/email"
	"github.com/example/grocery-orders/internal/infrastructure/kinesis"
	"github.com/example/grocery-orders/internal/infrastructure/store"
	"github.com/example/grocery-orders/internal/logging"
	"github.com/example/grocery-orders/internal/notification"
)

var (
	notifier *notification.Handler
	logger   *zap.Logger
)

func init() {
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger, err = logging.NewWithLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	mailer := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	notifier = notification.NewHandler(mailer, store.NewPostgresReadStore(db), logger)
	logger.Info("lambda notifier initialized", zap.String("smtp", cfg.SMTPHost+":"+cfg.SMTPPort))
}

func handler(ctx context.Context, kinesisEvent events.KinesisEvent) (events.KinesisEventResponse, error) {
	resp := kinesis.Dispatch(ctx, kinesisEvent, notifier.HandleEvent, logger)
	logger.Info("batch notified",
		zap.Int("records", len(kinesisEvent.Records)),
		zap.Int("failures", len(resp.BatchItemFailures)),
	)
	return resp, nil
}

func main() {
	lambda.Start(handler)
}

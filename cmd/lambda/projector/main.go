package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/example/grocery-orders/internal/config"
	"github.com/example/grocery-orders/internal/infrastructure/kinesis"
	"github.com/example/grocery-orders/internal/infrastructure/store"
	"github.com/example/grocery-orders/internal/logging"
	"github.com/example/grocery-orders/internal/projection"
)

var (
	projector *projection.Projector
	logger    *zap.Logger
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
	projector = projection.NewProjector(store.NewPostgresReadStore(db), logger)
	logger.Info("lambda projector initialized")
}

func handler(ctx context.Context, kinesisEvent events.KinesisEvent) (events.KinesisEventResponse, error) {
	resp := kinesis.Dispatch(ctx, kinesisEvent, projector.HandleEvent, logger)
	logger.Info("batch projected",
		zap.Int("records", len(kinesisEvent.Records)),
		zap.Int("failures", len(resp.BatchItemFailures)),
	)
	return resp, nil
}

func main() {
	lambda.Start(handler)
}

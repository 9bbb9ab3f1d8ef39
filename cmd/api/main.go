package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"github.com/example/grocery-orders/internal/api"
	"github.com/example/grocery-orders/internal/auth"
	"github.com/example/grocery-orders/internal/command"
	"github.com/example/grocery-orders/internal/config"
	"github.com/example/grocery-orders/internal/domain/order"
	"github.com/example/grocery-orders/internal/geo"
	"github.com/example/grocery-orders/internal/infrastructure/kafka"
	"github.com/example/grocery-orders/internal/infrastructure/lock"
	"github.com/example/grocery-orders/internal/infrastructure/store"
	"github.com/example/grocery-orders/internal/logging"
	"github.com/example/grocery-orders/internal/payment"
	"github.com/example/grocery-orders/internal/pricing"
	"github.com/example/grocery-orders/internal/projection"
	"github.com/example/grocery-orders/internal/query"
)

const (
	shutdownTimeout = 10 * time.Second
	apiConsumerName = "api-projector"
)

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
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if err := cfg.ValidateAPI(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()
		if err := store.EnsureSchema(ctx, db); err != nil {
			return err
		}
		logger.Info("connected to postgres")
	}

	var readStore store.ReadStoreInterface = store.NewReadStore()
	if db != nil {
		readStore = store.NewPostgresReadStore(db)
	}
	projector := projection.NewProjector(readStore, logger.Named("projector"))

	// Without a bus the API projects its own writes.
	var publisher store.Publisher = projection.NewInlinePublisher(projector)
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		publisher = producer
	}

	eventStore, err := openEventStore(ctx, cfg, db, publisher, logger)
	if err != nil {
		return err
	}

	n, err := projector.Replay(ctx, eventStore)
	if err != nil {
		return fmt.Errorf("replay events: %w", err)
	}
	logger.Info("read models rebuilt", zap.Int("events", n))

	var wg sync.WaitGroup
	// A shared Postgres read store is kept current by the projector service.
	if len(cfg.KafkaBrokers) > 0 && db == nil {
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, apiConsumerName, logger.Named("kafka"))
		defer consumer.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Consume(ctx, projector.HandleEvent); err != nil && ctx.Err() == nil {
				logger.Error("projection consumer stopped", zap.Error(err))
			}
		}()
	}

	locker, err := openLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	orderSvc := order.NewService(eventStore,
		order.WithLocker(locker),
		order.WithLogger(logger.Named("order")),
	)

	settings, err := pricing.NewSettingsStoreFromFile(cfg.DeliverySettingsFile)
	if err != nil {
		return fmt.Errorf("delivery settings: %w", err)
	}
	resolver := geo.NewResolver(geo.NewOSRMClient(cfg.RoutingURL), cfg.RoutingTimeout, logger.Named("geo"))

	gateway, err := openGateway(cfg)
	if err != nil {
		return err
	}
	coordinator := payment.NewCoordinator(orderSvc, gateway, cfg.PaymentCurrency, logger.Named("payment"))

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL)
	if cfg.AdminPasswordHash != "" {
		if err := auth.ValidateHash(cfg.AdminPasswordHash); err != nil {
			return fmt.Errorf("ADMIN_PASSWORD_HASH: %w", err)
		}
	}
	cmdHandler := command.NewHandler(orderSvc, coordinator, resolver, settings, logger.Named("command"))
	queryHandler := query.NewHandler(readStore, logger.Named("query"))

	router := api.NewRouter(api.RouterConfig{
		Handlers:         api.NewHandlers(cmdHandler, queryHandler, geo.NewGeocodingClient(cfg.GeocodingURL)),
		AuthHandlers:     api.NewAuthHandlers(auth.NewAdminLogin(cfg.AdminEmail, cfg.AdminPasswordHash, jwtService)),
		SettingsHandlers: api.NewSettingsHandlers(settings),
		JWTService:       jwtService,
		Logger:           logger,
		AllowedOrigins:   cfg.AllowedOrigins,
	})

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.RunAddress),
			zap.String("event_store", cfg.EventStore),
			zap.String("payment_provider", gateway.Name()),
			zap.Bool("kafka", len(cfg.KafkaBrokers) > 0),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	wg.Wait()
	return nil
}

func openEventStore(ctx context.Context, cfg *config.Config, db *sql.DB, publisher store.Publisher, logger *zap.Logger) (store.EventStoreInterface, error) {
	switch cfg.EventStore {
	case config.EventStorePostgres:
		return store.NewPostgresEventStore(db, publisher, logger.Named("events")), nil
	case config.EventStoreDynamo:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		es := store.NewDynamoEventStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoEventsTable, cfg.DynamoSnapshotsTable)
		// With a Postgres read store the stream-driven lambdas do the projecting.
		if db != nil && len(cfg.KafkaBrokers) == 0 {
			return es, nil
		}
		return store.NewPublishingEventStore(es, publisher, logger.Named("events")), nil
	default:
		return store.NewEventStore(publisher).WithLogger(logger.Named("events")), nil
	}
}

func openLocker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (lock.Locker, error) {
	if cfg.RedisAddr == "" {
		return lock.NewMemoryLocker(), nil
	}
	client, err := lock.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	return lock.NewRedisLocker(client, "grocery-orders", logger.Named("lock")), nil
}

func openGateway(cfg *config.Config) (payment.Gateway, error) {
	if cfg.PaymentProvider == config.PaymentStripe {
		return payment.NewStripeGateway(payment.StripeGatewayConfig{
			APIKey:     cfg.StripeAPIKey,
			SuccessURL: cfg.PaymentSuccessURL,
			CancelURL:  cfg.PaymentCancelURL,
		})
	}
	return payment.NewRazorpayGateway(cfg.RazorpayURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
}

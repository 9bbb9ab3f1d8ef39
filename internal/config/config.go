package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	EventStoreMemory   = "memory"
	EventStorePostgres = "postgres"
	EventStoreDynamo   = "dynamodb"

	PaymentRazorpay = "razorpay"
	PaymentStripe   = "stripe"

	minJWTSecretLen = 32
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	RunAddress     string
	DatabaseURL    string
	AllowedOrigins []string
	LogLevel       string

	EventStore           string
	DynamoEventsTable    string
	DynamoSnapshotsTable string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	RedisAddr string

	JWTSecret         string
	AccessTokenTTL    time.Duration
	AdminEmail        string
	AdminPasswordHash string

	RoutingURL     string
	GeocodingURL   string
	RoutingTimeout time.Duration

	PaymentProvider   string
	PaymentCurrency   string
	RazorpayURL       string
	RazorpayKeyID     string
	RazorpayKeySecret string
	StripeAPIKey      string
	PaymentSuccessURL string
	PaymentCancelURL  string

	DeliverySettingsFile string

	SMTPHost string
	SMTPPort string
	SMTPFrom string
}

// New parses command-line flags and applies environment overrides.
func New() (*Config, error) {
	return Parse(os.Args[1:], os.LookupEnv)
}

// Parse builds the configuration from args, then lets lookupEnv override any
// flag value. Environment wins over flags.
func Parse(args []string, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	var brokers, origins string

	fs := flag.NewFlagSet("grocery-orders", flag.ContinueOnError)
	fs.StringVar(&cfg.RunAddress, "a", ":8080", "server address and port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "postgres connection string")
	fs.StringVar(&origins, "cors-origins", "http://localhost:3000", "comma separated allowed CORS origins")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug|info|warn|error")
	fs.StringVar(&cfg.EventStore, "event-store", EventStoreMemory, "event store backend: memory|postgres|dynamodb")
	fs.StringVar(&cfg.DynamoEventsTable, "dynamo-events-table", "events", "DynamoDB events table")
	fs.StringVar(&cfg.DynamoSnapshotsTable, "dynamo-snapshots-table", "snapshots", "DynamoDB snapshots table")
	fs.StringVar(&brokers, "kafka-brokers", "", "comma separated kafka brokers")
	fs.StringVar(&cfg.KafkaTopic, "kafka-topic", "order-events", "kafka topic for order events")
	fs.StringVar(&cfg.KafkaGroupID, "kafka-group", "", "kafka consumer group id")
	fs.StringVar(&cfg.RedisAddr, "redis", "", "redis address for per-order locks")
	fs.StringVar(&cfg.JWTSecret, "s", "", "jwt signing key")
	fs.DurationVar(&cfg.AccessTokenTTL, "token-ttl", 12*time.Hour, "admin access token lifetime")
	fs.StringVar(&cfg.AdminEmail, "admin-email", "", "admin console login email")
	fs.StringVar(&cfg.AdminPasswordHash, "admin-password-hash", "", "bcrypt hash of the admin console password")
	fs.StringVar(&cfg.RoutingURL, "routing-url", "https://router.project-osrm.org", "routing provider base url")
	fs.StringVar(&cfg.GeocodingURL, "geocoding-url", "https://nominatim.openstreetmap.org", "geocoding provider base url")
	fs.DurationVar(&cfg.RoutingTimeout, "routing-timeout", 8*time.Second, "routing request timeout")
	fs.StringVar(&cfg.PaymentProvider, "payment-provider", PaymentRazorpay, "payment gateway: razorpay|stripe")
	fs.StringVar(&cfg.PaymentCurrency, "currency", "INR", "payment currency")
	fs.StringVar(&cfg.RazorpayURL, "razorpay-url", "https://api.razorpay.com", "razorpay api base url")
	fs.StringVar(&cfg.PaymentSuccessURL, "payment-success-url", "http://localhost:3000/payment/success", "checkout success redirect")
	fs.StringVar(&cfg.PaymentCancelURL, "payment-cancel-url", "http://localhost:3000/payment/cancel", "checkout cancel redirect")
	fs.StringVar(&cfg.DeliverySettingsFile, "delivery-settings", "delivery.yaml", "delivery settings yaml file")
	fs.StringVar(&cfg.SMTPHost, "smtp-host", "localhost", "smtp host")
	fs.StringVar(&cfg.SMTPPort, "smtp-port", "1025", "smtp port")
	fs.StringVar(&cfg.SMTPFrom, "smtp-from", "orders@grocery.local", "notification sender")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	env := func(key string, target *string) {
		if v, ok := lookupEnv(key); ok {
			*target = v
		}
	}
	env("RUN_ADDRESS", &cfg.RunAddress)
	env("DATABASE_URL", &cfg.DatabaseURL)
	env("CORS_ALLOWED_ORIGINS", &origins)
	env("LOG_LEVEL", &cfg.LogLevel)
	env("EVENT_STORE", &cfg.EventStore)
	env("DYNAMO_EVENTS_TABLE", &cfg.DynamoEventsTable)
	env("DYNAMO_SNAPSHOTS_TABLE", &cfg.DynamoSnapshotsTable)
	env("KAFKA_BROKERS", &brokers)
	env("KAFKA_TOPIC", &cfg.KafkaTopic)
	env("KAFKA_GROUP_ID", &cfg.KafkaGroupID)
	env("REDIS_ADDR", &cfg.RedisAddr)
	env("JWT_SECRET", &cfg.JWTSecret)
	env("ADMIN_EMAIL", &cfg.AdminEmail)
	env("ADMIN_PASSWORD_HASH", &cfg.AdminPasswordHash)
	env("ROUTING_URL", &cfg.RoutingURL)
	env("GEOCODING_URL", &cfg.GeocodingURL)
	env("PAYMENT_PROVIDER", &cfg.PaymentProvider)
	env("PAYMENT_CURRENCY", &cfg.PaymentCurrency)
	env("RAZORPAY_URL", &cfg.RazorpayURL)
	env("RAZORPAY_KEY_ID", &cfg.RazorpayKeyID)
	env("RAZORPAY_KEY_SECRET", &cfg.RazorpayKeySecret)
	env("STRIPE_API_KEY", &cfg.StripeAPIKey)
	env("PAYMENT_SUCCESS_URL", &cfg.PaymentSuccessURL)
	env("PAYMENT_CANCEL_URL", &cfg.PaymentCancelURL)
	env("DELIVERY_SETTINGS_FILE", &cfg.DeliverySettingsFile)
	env("SMTP_HOST", &cfg.SMTPHost)
	env("SMTP_PORT", &cfg.SMTPPort)
	env("SMTP_FROM", &cfg.SMTPFrom)

	for key, target := range map[string]*time.Duration{
		"ROUTING_TIMEOUT":  &cfg.RoutingTimeout,
		"ACCESS_TOKEN_TTL": &cfg.AccessTokenTTL,
	} {
		v, ok := lookupEnv(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
		}
		*target = d
	}

	cfg.KafkaBrokers = splitList(brokers)
	cfg.AllowedOrigins = splitList(origins)
	cfg.EventStore = strings.ToLower(cfg.EventStore)
	cfg.PaymentProvider = strings.ToLower(cfg.PaymentProvider)

	return cfg, nil
}

// ValidateAPI checks the settings the API binary cannot start without.
func (c *Config) ValidateAPI() error {
	if len(c.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("%w: JWT_SECRET must be at least %d characters", ErrInvalidConfig, minJWTSecretLen)
	}
	switch c.EventStore {
	case EventStoreMemory, EventStoreDynamo:
	case EventStorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required for the postgres event store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown event store %q", ErrInvalidConfig, c.EventStore)
	}
	switch c.PaymentProvider {
	case PaymentRazorpay:
		if c.RazorpayKeyID == "" || c.RazorpayKeySecret == "" {
			return fmt.Errorf("%w: RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required", ErrInvalidConfig)
		}
	case PaymentStripe:
		if c.StripeAPIKey == "" {
			return fmt.Errorf("%w: STRIPE_API_KEY is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown payment provider %q", ErrInvalidConfig, c.PaymentProvider)
	}
	if (c.AdminEmail == "") != (c.AdminPasswordHash == "") {
		return fmt.Errorf("%w: ADMIN_EMAIL and ADMIN_PASSWORD_HASH must be set together", ErrInvalidConfig)
	}
	if c.RoutingTimeout <= 0 {
		return fmt.Errorf("%w: routing timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// ValidateConsumer checks the settings shared by the Kafka-driven workers.
func (c *Config) ValidateConsumer() error {
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("%w: KAFKA_BROKERS is required", ErrInvalidConfig)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: DATABASE_URL is required for the read store", ErrInvalidConfig)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

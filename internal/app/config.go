package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// Драйверы хранилища заказов.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
	StorageDriverMongo    = "mongo"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr        string
	MetricsAddr     string
	GRPCAddr        string
	ShutdownTimeout time.Duration

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	PostgresMaxConns    int
	PostgresConnMaxAge  time.Duration
	PostgresOpTimeout   time.Duration
	MongoURI            string
	MongoDatabase       string

	// RedisAddr включает Redis для ключей идемпотентности и корзин.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CartTTL       time.Duration

	// KafkaBrokers — список брокеров через запятую. Пустое значение отключает Kafka.
	KafkaBrokers          string
	KafkaClientID         string
	KafkaOrderTopic       string
	KafkaCallbackTopic    string
	KafkaConsumerGroup    string
	KafkaConsumeCallbacks bool

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	Currency   string
	FeeRateBps int64

	// CatalogURL — адрес Catalog Service. Пустое значение включает встроенный каталог.
	CatalogURL     string
	CatalogTimeout time.Duration

	JWTSecret string
	JWTIssuer string

	CardGatewayURL       string
	CardKeyID            string
	CardKeySecret        string
	CardWebhookSecret    string
	CardTimeout          time.Duration
	ProviderMaxAttempts  int
	ProviderRetryDelay   time.Duration
	ProviderBreakerLimit int
	ProviderBreakerReset time.Duration

	UPIVPA           string
	UPIMerchantName  string
	UPIWebhookSecret string

	CODEnabled      bool
	CODInstructions string
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:        ":8080",
		MetricsAddr:     ":9090",
		GRPCAddr:        ":50051",
		ShutdownTimeout: 5 * time.Second,

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		PostgresMaxConns:    20,
		PostgresConnMaxAge:  30 * time.Minute,
		PostgresOpTimeout:   5 * time.Second,
		MongoDatabase:       "storefront",

		CartTTL: 30 * 24 * time.Hour,

		KafkaClientID:      "storefront",
		KafkaOrderTopic:    kafka.TopicOrderEvents,
		KafkaCallbackTopic: kafka.TopicPaymentCallbacks,
		KafkaConsumerGroup: "storefront-payment-callbacks",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,

		Currency:       domain.DefaultCurrency,
		CatalogTimeout: 3 * time.Second,

		CardGatewayURL:       "https://api.razorpay.com",
		CardTimeout:          10 * time.Second,
		ProviderMaxAttempts:  3,
		ProviderRetryDelay:   100 * time.Millisecond,
		ProviderBreakerLimit: 5,
		ProviderBreakerReset: 30 * time.Second,

		UPIMerchantName: "Storefront",
		CODEnabled:      true,
	}
}

// Brokers разбирает KafkaBrokers.
func (c Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Validate проверяет согласованность настроек до открытия подключений.
func (c Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres storage requires a DSN"))
		}
	case StorageDriverMongo:
		if strings.TrimSpace(c.MongoURI) == "" {
			errs = append(errs, errors.New("mongo storage requires a URI"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if c.FeeRateBps < 0 || c.FeeRateBps > 10000 {
		errs = append(errs, errors.New("fee rate must be within 0..10000 bps"))
	}
	if c.KafkaConsumeCallbacks && len(c.Brokers()) == 0 {
		errs = append(errs, errors.New("callback consumer requires kafka brokers"))
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http address is required"))
	}
	return errors.Join(errs...)
}

package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/app"
)

const (
	envLogFormat = "STOREFRONT_LOG_FORMAT"
	envLogLevel  = "STOREFRONT_LOG_LEVEL"

	envHTTPAddr        = "STOREFRONT_HTTP_ADDR"
	envMetricsAddr     = "STOREFRONT_METRICS_ADDR"
	envGRPCAddr        = "STOREFRONT_GRPC_ADDR"
	envShutdownTimeout = "STOREFRONT_SHUTDOWN_TIMEOUT"

	envStorageDriver       = "STOREFRONT_STORAGE_DRIVER"
	envPostgresDSN         = "STOREFRONT_POSTGRES_DSN"
	envPostgresAutoMigrate = "STOREFRONT_POSTGRES_AUTO_MIGRATE"
	envPostgresMaxConns    = "STOREFRONT_POSTGRES_MAX_CONNS"
	envPostgresConnMaxAge  = "STOREFRONT_POSTGRES_CONN_MAX_AGE"
	envPostgresOpTimeout   = "STOREFRONT_POSTGRES_OP_TIMEOUT"
	envMongoURI            = "STOREFRONT_MONGO_URI"
	envMongoDatabase       = "STOREFRONT_MONGO_DATABASE"

	envRedisAddr     = "STOREFRONT_REDIS_ADDR"
	envRedisPassword = "STOREFRONT_REDIS_PASSWORD"
	envRedisDB       = "STOREFRONT_REDIS_DB"
	envCartTTL       = "STOREFRONT_CART_TTL"

	envKafkaBrokers          = "STOREFRONT_KAFKA_BROKERS"
	envKafkaClientID         = "STOREFRONT_KAFKA_CLIENT_ID"
	envKafkaOrderTopic       = "STOREFRONT_KAFKA_ORDER_TOPIC"
	envKafkaCallbackTopic    = "STOREFRONT_KAFKA_CALLBACK_TOPIC"
	envKafkaConsumerGroup    = "STOREFRONT_KAFKA_CONSUMER_GROUP"
	envKafkaConsumeCallbacks = "STOREFRONT_KAFKA_CONSUME_CALLBACKS"

	envOutboxPollInterval = "STOREFRONT_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize    = "STOREFRONT_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts  = "STOREFRONT_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay   = "STOREFRONT_OUTBOX_RETRY_DELAY"

	envIdempotencyTTL              = "STOREFRONT_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "STOREFRONT_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "STOREFRONT_IDEMPOTENCY_CLEANUP_BATCH_SIZE"

	envCurrency       = "STOREFRONT_CURRENCY"
	envFeeRateBps     = "STOREFRONT_FEE_RATE_BPS"
	envCatalogURL     = "STOREFRONT_CATALOG_URL"
	envCatalogTimeout = "STOREFRONT_CATALOG_TIMEOUT"
	envJWTSecret      = "STOREFRONT_JWT_SECRET"
	envJWTIssuer      = "STOREFRONT_JWT_ISSUER"

	envCardGatewayURL       = "STOREFRONT_CARD_GATEWAY_URL"
	envCardKeyID            = "STOREFRONT_CARD_KEY_ID"
	envCardKeySecret        = "STOREFRONT_CARD_KEY_SECRET"
	envCardWebhookSecret    = "STOREFRONT_CARD_WEBHOOK_SECRET"
	envCardTimeout          = "STOREFRONT_CARD_TIMEOUT"
	envProviderMaxAttempts  = "STOREFRONT_PROVIDER_MAX_ATTEMPTS"
	envProviderRetryDelay   = "STOREFRONT_PROVIDER_RETRY_DELAY"
	envProviderBreakerLimit = "STOREFRONT_PROVIDER_BREAKER_FAILURES"
	envProviderBreakerReset = "STOREFRONT_PROVIDER_BREAKER_RESET"

	envUPIVPA           = "STOREFRONT_UPI_VPA"
	envUPIMerchantName  = "STOREFRONT_UPI_MERCHANT_NAME"
	envUPIWebhookSecret = "STOREFRONT_UPI_WEBHOOK_SECRET"

	envCODEnabled      = "STOREFRONT_COD_ENABLED"
	envCODInstructions = "STOREFRONT_COD_INSTRUCTIONS"
)

type envLookup func(string) (string, bool)

// readConfigFromEnv применяет переменные окружения поверх DefaultConfig.
// Некорректное значение оставляет значение по умолчанию и добавляет предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	r := envReader{lookup: lookup}

	r.str(envHTTPAddr, &cfg.HTTPAddr)
	r.str(envMetricsAddr, &cfg.MetricsAddr)
	r.str(envGRPCAddr, &cfg.GRPCAddr)
	r.duration(envShutdownTimeout, &cfg.ShutdownTimeout, positiveDuration, "must be > 0")

	if v, ok := r.value(envStorageDriver); ok {
		cfg.StorageDriver = normalize(v)
	}
	r.str(envPostgresDSN, &cfg.PostgresDSN)
	r.boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	r.integer(envPostgresMaxConns, &cfg.PostgresMaxConns, positiveInt, "must be > 0")
	r.duration(envPostgresConnMaxAge, &cfg.PostgresConnMaxAge, positiveDuration, "must be > 0")
	r.duration(envPostgresOpTimeout, &cfg.PostgresOpTimeout, positiveDuration, "must be > 0")
	r.str(envMongoURI, &cfg.MongoURI)
	r.str(envMongoDatabase, &cfg.MongoDatabase)

	r.str(envRedisAddr, &cfg.RedisAddr)
	r.str(envRedisPassword, &cfg.RedisPassword)
	r.integer(envRedisDB, &cfg.RedisDB, nonNegativeInt, "must be >= 0")
	r.duration(envCartTTL, &cfg.CartTTL, positiveDuration, "must be > 0")

	r.str(envKafkaBrokers, &cfg.KafkaBrokers)
	r.str(envKafkaClientID, &cfg.KafkaClientID)
	r.str(envKafkaOrderTopic, &cfg.KafkaOrderTopic)
	r.str(envKafkaCallbackTopic, &cfg.KafkaCallbackTopic)
	r.str(envKafkaConsumerGroup, &cfg.KafkaConsumerGroup)
	r.boolean(envKafkaConsumeCallbacks, &cfg.KafkaConsumeCallbacks)

	r.duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	r.integer(envOutboxBatchSize, &cfg.OutboxBatchSize, positiveInt, "must be > 0")
	r.integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positiveInt, "must be > 0")
	r.duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")

	r.duration(envIdempotencyTTL, &cfg.IdempotencyTTL, positiveDuration, "must be > 0")
	r.duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	r.integer(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positiveInt, "must be > 0")

	if v, ok := r.value(envCurrency); ok {
		cfg.Currency = strings.ToUpper(v)
	}
	var fee int
	if r.integer(envFeeRateBps, &fee, func(v int) bool { return v >= 0 && v <= 10000 }, "must be within 0..10000") {
		cfg.FeeRateBps = int64(fee)
	}
	r.str(envCatalogURL, &cfg.CatalogURL)
	r.duration(envCatalogTimeout, &cfg.CatalogTimeout, positiveDuration, "must be > 0")
	r.str(envJWTSecret, &cfg.JWTSecret)
	r.str(envJWTIssuer, &cfg.JWTIssuer)

	r.str(envCardGatewayURL, &cfg.CardGatewayURL)
	r.str(envCardKeyID, &cfg.CardKeyID)
	r.str(envCardKeySecret, &cfg.CardKeySecret)
	r.str(envCardWebhookSecret, &cfg.CardWebhookSecret)
	r.duration(envCardTimeout, &cfg.CardTimeout, positiveDuration, "must be > 0")
	r.integer(envProviderMaxAttempts, &cfg.ProviderMaxAttempts, positiveInt, "must be > 0")
	r.duration(envProviderRetryDelay, &cfg.ProviderRetryDelay, nonNegativeDuration, "must be >= 0")
	r.integer(envProviderBreakerLimit, &cfg.ProviderBreakerLimit, positiveInt, "must be > 0")
	r.duration(envProviderBreakerReset, &cfg.ProviderBreakerReset, positiveDuration, "must be > 0")

	r.str(envUPIVPA, &cfg.UPIVPA)
	r.str(envUPIMerchantName, &cfg.UPIMerchantName)
	r.str(envUPIWebhookSecret, &cfg.UPIWebhookSecret)

	r.boolean(envCODEnabled, &cfg.CODEnabled)
	r.str(envCODInstructions, &cfg.CODInstructions)

	return cfg, r.warnings
}

// envReader собирает предупреждения о некорректных значениях.
type envReader struct {
	lookup   envLookup
	warnings []string
}

// value возвращает непустое значение без пробелов по краям.
func (r *envReader) value(key string) (string, bool) {
	raw, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.value(key); ok {
		*dst = v
	}
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	parsed, err := parseBool(v)
	if err != nil {
		r.warn(key, v, err)
		return
	}
	*dst = parsed
}

func (r *envReader) integer(key string, dst *int, validate func(int) bool, msg string) bool {
	v, ok := r.value(key)
	if !ok {
		return false
	}
	parsed, err := parseInt(v, validate, msg)
	if err != nil {
		r.warn(key, v, err)
		return false
	}
	*dst = parsed
	return true
}

func (r *envReader) duration(key string, dst *time.Duration, validate func(time.Duration) bool, msg string) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	parsed, err := parseDuration(v, validate, msg)
	if err != nil {
		r.warn(key, v, err)
		return
	}
	*dst = parsed
}

func (r *envReader) warn(key, value string, err error) {
	r.warnings = append(r.warnings, fmt.Sprintf("ignoring %s=%q: %v", key, value, err))
}

func parseBool(raw string) (bool, error) {
	switch normalize(raw) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", raw)
	}
}

func parseInt(raw string, validate func(int) bool, msg string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	if validate != nil && !validate(value) {
		return 0, fmt.Errorf("value %d %s", value, msg)
	}
	return value, nil
}

func parseDuration(raw string, validate func(time.Duration) bool, msg string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if validate != nil && !validate(value) {
		return 0, fmt.Errorf("value %s %s", value, msg)
	}
	return value, nil
}

func normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func positiveInt(v int) bool                   { return v > 0 }
func nonNegativeInt(v int) bool                { return v >= 0 }
func positiveDuration(v time.Duration) bool    { return v > 0 }
func nonNegativeDuration(v time.Duration) bool { return v >= 0 }

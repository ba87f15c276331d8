package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected HTTPAddr :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.GRPCAddr != ":50051" {
		t.Errorf("expected GRPCAddr :50051, got %s", cfg.GRPCAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected MetricsAddr :9090, got %s", cfg.MetricsAddr)
	}
	if cfg.StorageDriver != StorageDriverMemory {
		t.Errorf("expected StorageDriver %s, got %s", StorageDriverMemory, cfg.StorageDriver)
	}
	if !cfg.PostgresAutoMigrate {
		t.Error("expected PostgresAutoMigrate to be true")
	}
	if cfg.OutboxPollInterval <= 0 || cfg.OutboxBatchSize <= 0 || cfg.OutboxMaxAttempts <= 0 {
		t.Error("expected positive outbox settings")
	}
	if cfg.IdempotencyTTL <= 0 || cfg.IdempotencyCleanupInterval <= 0 || cfg.IdempotencyCleanupBatchSize <= 0 {
		t.Error("expected positive idempotency settings")
	}
	if !cfg.CODEnabled {
		t.Error("expected cash on delivery to be enabled by default")
	}
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"postgres without dsn", func(c *Config) { c.StorageDriver = StorageDriverPostgres }, "requires a DSN"},
		{"mongo without uri", func(c *Config) { c.StorageDriver = StorageDriverMongo }, "requires a URI"},
		{"unknown driver", func(c *Config) { c.StorageDriver = "sqlite" }, "unsupported storage driver"},
		{"fee out of range", func(c *Config) { c.FeeRateBps = 10001 }, "fee rate"},
		{"consumer without brokers", func(c *Config) { c.KafkaConsumeCallbacks = true }, "kafka brokers"},
		{"empty http addr", func(c *Config) { c.HTTPAddr = " " }, "http address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tt.wantErr), "error %q should mention %q", err, tt.wantErr)
		})
	}
}

func TestConfig_Brokers(t *testing.T) {
	cfg := Config{KafkaBrokers: " broker1:9092, ,broker2:9092 "}
	require.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.Brokers())
	require.Empty(t, Config{}.Brokers())
}

package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/searchsync/pkg/config"
)

// Config holds all configuration for the gateway.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"GATEWAY_HTTP_PORT" envDefault:"8010"`

	// Index store connection
	StoreBackend     string        `env:"STORE_BACKEND" envDefault:"elasticsearch"`
	StoreHostname    string        `env:"STORE_HOSTNAME" envDefault:"http://localhost"`
	StorePort        int           `env:"STORE_PORT" envDefault:"9200"`
	StoreAuthEnabled bool          `env:"STORE_AUTH_ENABLED" envDefault:"false"`
	StoreUsername    string        `env:"STORE_USERNAME"`
	StorePassword    string        `env:"STORE_PASSWORD"`
	StoreTimeout     time.Duration `env:"STORE_TIMEOUT" envDefault:"30s"`

	// Index to sync; the probe watches this index when set.
	IndexName  string `env:"INDEX_NAME" envDefault:"catalog_products"`
	EntityType string `env:"ENTITY_TYPE" envDefault:"product"`

	// Sync behavior
	MaxBatchSize      int           `env:"SYNC_MAX_BATCH_SIZE" envDefault:"500"`
	RetryMaxAttempts  int           `env:"SYNC_RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryBackoff      string        `env:"SYNC_RETRY_BACKOFF" envDefault:"exponential"`
	RetryBaseInterval time.Duration `env:"SYNC_RETRY_BASE_INTERVAL" envDefault:"100ms"`
	RetryMaxInterval  time.Duration `env:"SYNC_RETRY_MAX_INTERVAL" envDefault:"5s"`

	// Probe
	ProbeInterval time.Duration `env:"PROBE_INTERVAL" envDefault:"15s"`

	// Catalog service used for reindexing; empty disables reindex.
	CatalogURL      string `env:"CATALOG_URL"`
	CatalogPageSize int    `env:"CATALOG_PAGE_SIZE" envDefault:"500"`

	// Kafka; empty broker list disables event consumption.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"searchsync-gateway"`

	// Idempotency store for event handlers (memory or redis).
	IdempotencyBackend string        `env:"IDEMPOTENCY_BACKEND" envDefault:"memory"`
	IdempotencyTTL     time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	RedisAddr          string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	// Tracing
	TracingEnabled    bool    `env:"TRACING_ENABLED" envDefault:"false"`
	TracingEndpoint   string  `env:"TRACING_ENDPOINT" envDefault:"localhost:4318"`
	TracingSampleRate float64 `env:"TRACING_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load gateway config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants. Store connection details are
// validated separately by the connection builder.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.StoreBackend != "elasticsearch" && c.StoreBackend != "memory" {
		return fmt.Errorf("invalid store backend: %q", c.StoreBackend)
	}
	if c.IdempotencyBackend != "memory" && c.IdempotencyBackend != "redis" {
		return fmt.Errorf("invalid idempotency backend: %q", c.IdempotencyBackend)
	}
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("invalid max batch size: %d", c.MaxBatchSize)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("invalid retry max attempts: %d", c.RetryMaxAttempts)
	}
	return nil
}

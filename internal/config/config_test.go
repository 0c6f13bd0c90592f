package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8010, cfg.HTTPPort)
	assert.Equal(t, "elasticsearch", cfg.StoreBackend)
	assert.Equal(t, "http://localhost", cfg.StoreHostname)
	assert.Equal(t, 9200, cfg.StorePort)
	assert.Equal(t, 30*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 500, cfg.MaxBatchSize)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, "memory", cfg.IdempotencyBackend)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("GATEWAY_HTTP_PORT", "9999")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("SYNC_RETRY_BACKOFF", "fixed")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 9999, cfg.HTTPPort)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "fixed", cfg.RetryBackoff)
}

func TestLoad_InvalidBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "solr")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store backend")
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("GATEWAY_HTTP_PORT", "0")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_InvalidIdempotencyBackend(t *testing.T) {
	t.Setenv("IDEMPOTENCY_BACKEND", "dynamo")
	_, err := Load()
	require.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// ============================================
// Load Tests
// ============================================

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 10, cfg.Snapshot.Threshold)
	assert.Equal(t, 1.0, cfg.Cache.Beta)
	assert.Equal(t, time.Hour, cfg.Cache.TTL.FetchOne)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL.FindOneBy)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL.FindBy)
	assert.Equal(t, 3, cfg.Bus.RetryAttempts)
	assert.True(t, cfg.Projection.InProcess)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
store:
  backend: postgres
  postgres:
    dsn: postgres://u:p@db:5432/articles
cache:
  backend: badger
  path: /var/lib/articles/cache
  ttl:
    find_by: 1m
snapshot:
  threshold: 25
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, "postgres://u:p@db:5432/articles", cfg.Store.Postgres.DSN)
	assert.Equal(t, BackendBadger, cfg.Cache.Backend)
	assert.Equal(t, time.Minute, cfg.Cache.TTL.FindBy)
	assert.Equal(t, time.Hour, cfg.Cache.TTL.FetchOne)
	assert.Equal(t, 25, cfg.Snapshot.Threshold)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "snapshot:\n  threshold: 25\n")
	t.Setenv("ARTICLES_SNAPSHOT__THRESHOLD", "5")
	t.Setenv("ARTICLES_CACHE__TTL__FETCH_ONE", "90s")
	t.Setenv("ARTICLES_KAFKA__ENABLED", "true")
	t.Setenv("ARTICLES_KAFKA__BROKERS", "k1:9092,k2:9092")
	t.Setenv("ARTICLES_LOG__LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Snapshot.Threshold)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL.FetchOne)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_BrokerListFromEnv(t *testing.T) {
	t.Setenv("ARTICLES_KAFKA__BROKERS", " k1:9092 , k2:9092,, k3:9092 ")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092", "k3:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_BrokerListFromFile(t *testing.T) {
	path := writeConfigFile(t, "kafka:\n  brokers:\n    - a:9092\n    - b:9092\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

// ============================================
// Validate Tests
// ============================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown store backend", func(c *Config) { c.Store.Backend = "mongo" }},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "redis" }},
		{"non-positive beta", func(c *Config) { c.Cache.Beta = 0 }},
		{"zero retry attempts", func(c *Config) { c.Bus.RetryAttempts = 0 }},
		{"negative snapshot threshold", func(c *Config) { c.Snapshot.Threshold = -1 }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"postgres without dsn", func(c *Config) {
			c.Store.Backend = BackendPostgres
			c.Store.Postgres.DSN = ""
		}},
		{"dynamodb without tables", func(c *Config) {
			c.Store.Backend = BackendDynamoDB
			c.Store.DynamoDB.EventsTable = ""
		}},
		{"badger without path", func(c *Config) {
			c.Cache.Backend = BackendBadger
			c.Cache.Path = ""
		}},
		{"kafka without brokers", func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestValidate_DefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "cache.ttl.fetch_one", envKey("ARTICLES_CACHE__TTL__FETCH_ONE"))
	assert.Equal(t, "store.backend", envKey("ARTICLES_STORE__BACKEND"))
}

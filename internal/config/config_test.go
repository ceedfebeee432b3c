package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(lookup(nil))
	require.NoError(t, err)
	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, time.Minute, cfg.SLA.SweepInterval())
	assert.Equal(t, 8, cfg.SLA.SweepConcurrency)
	assert.Equal(t, 500, cfg.SLA.SweepBatchSize)
	assert.Equal(t, 5*time.Second, cfg.SLA.RecordTimeout())
	assert.Equal(t, 3, cfg.SLA.MaxConflictRetries)
	assert.Equal(t, 5*time.Minute, cfg.SLA.CacheTTL())
	assert.Equal(t, 55*time.Second, cfg.SLA.SweepLockTTL())
	assert.Equal(t, "sla:cache:invalidate", cfg.SLA.CacheInvalidateChannel)
	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenTTL())
	assert.Equal(t, 5*time.Second, cfg.Notification.WebhookTimeout())
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(lookup(map[string]string{
		"STORE_DRIVER":          "SQLite",
		"SQLITE_PATH":           "/tmp/sla.db",
		"SLA_SWEEP_CONCURRENCY": "2",
		"SLA_SWEEP_ENABLED":     "false",
		"NOTIFY_WEBHOOK_URL":    " https://hooks.example.com/sla ",
		"REDIS_DB":              "3",
	}))
	require.NoError(t, err)
	assert.Equal(t, StoreDriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/sla.db", cfg.SQLite.Path)
	assert.Equal(t, 2, cfg.SLA.SweepConcurrency)
	assert.False(t, cfg.SLA.SweepEnabled)
	assert.Equal(t, "https://hooks.example.com/sla", cfg.Notification.WebhookURL)
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestLoadFrom_ReportsEveryMalformedValue(t *testing.T) {
	_, err := LoadFrom(lookup(map[string]string{
		"REDIS_DB":           "x",
		"NOTIFY_WEBHOOK_RPS": "fast",
		"REDIS_ENABLED":      "maybe",
	}))
	require.Error(t, err)
	assert.ErrorContains(t, err, "REDIS_DB")
	assert.ErrorContains(t, err, "NOTIFY_WEBHOOK_RPS")
	assert.ErrorContains(t, err, "REDIS_ENABLED")
}

func TestLoadFrom_RejectsUnknownDriver(t *testing.T) {
	_, err := LoadFrom(lookup(map[string]string{"STORE_DRIVER": "mongo"}))
	assert.ErrorContains(t, err, "STORE_DRIVER")
}

func TestLoadFrom_ProductionNeedsRealSecret(t *testing.T) {
	_, err := LoadFrom(lookup(map[string]string{"APP_ENV": "production"}))
	assert.ErrorContains(t, err, "AUTH_JWT_SECRET")

	cfg, err := LoadFrom(lookup(map[string]string{
		"APP_ENV":         "production",
		"AUTH_JWT_SECRET": "0123456789abcdef0123456789abcdef",
	}))
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.App.Env)
}

func TestValidate_SweepLimits(t *testing.T) {
	cfg, err := LoadFrom(lookup(nil))
	require.NoError(t, err)

	cfg.SLA.SweepBatchSize = 0
	assert.ErrorContains(t, cfg.Validate(), "SLA_SWEEP_BATCH_SIZE")
}

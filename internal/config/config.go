package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// devJWTSecret is only accepted outside production.
const devJWTSecret = "dev-secret"

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Store        StoreConfig
	Postgres     PostgresConfig
	SQLite       SQLiteConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	SLA          SLAConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// SQLiteConfig holds the embedded database location.
type SQLiteConfig struct {
	Path string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string
	Format string
	Output string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// SLAConfig tunes the engine, sweep and caches.
type SLAConfig struct {
	SweepIntervalSeconds   int
	SweepConcurrency       int
	SweepBatchSize         int
	RecordTimeoutMillis    int
	MaxConflictRetries     int
	CacheTTLSeconds        int
	SweepLockTTLSeconds    int
	SweepEnabled           bool
	CacheInvalidateChannel string
	SweepLockKey           string
}

// NotificationConfig configures the escalation notifiers.
type NotificationConfig struct {
	WebhookURL        string
	WebhookRPS        int
	WebhookTimeoutSec int
	RedisStream       string
	QueueSize         int
}

// Load reads the process environment, after an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFrom(os.LookupEnv)
}

// LoadFrom builds the configuration from lookup. Malformed values are
// errors rather than silent fallbacks to defaults.
func LoadFrom(lookup func(string) (string, bool)) (*Config, error) {
	env := &envReader{lookup: lookup}

	cfg := &Config{
		App: AppConfig{
			Name:                  env.str("APP_NAME", "sla-service"),
			Env:                   env.str("APP_ENV", "development"),
			Host:                  env.str("APP_HOST", "0.0.0.0"),
			Port:                  env.str("APP_PORT", "8080"),
			Version:               env.str("APP_VERSION", "dev"),
			RequestTimeoutSeconds: env.num("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(env.str("STORE_DRIVER", StoreDriverPostgres)),
		},
		Postgres: PostgresConfig{
			DSN:            env.str("POSTGRES_DSN", ""),
			MaxConns:       int32(env.num("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(env.num("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  env.flag("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(env.num("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(env.num("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		SQLite: SQLiteConfig{
			Path: env.str("SQLITE_PATH", "sla.db"),
		},
		Redis: RedisConfig{
			Addr:     env.str("REDIS_ADDR", "127.0.0.1:6379"),
			Password: env.str("REDIS_PASSWORD", ""),
			DB:       env.num("REDIS_DB", 0),
			Enabled:  env.flag("REDIS_ENABLED", true),
		},
		Logger: LoggerConfig{
			Level:  env.str("LOG_LEVEL", "info"),
			Format: env.str("LOG_FORMAT", "json"),
			Output: env.str("LOG_OUTPUT", "stdout"),
		},
		Auth: AuthConfig{
			JWTSecret:             env.str("AUTH_JWT_SECRET", devJWTSecret),
			AccessTokenTTLMinutes: env.num("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            env.num("AUTH_BCRYPT_COST", 12),
		},
		SLA: SLAConfig{
			SweepIntervalSeconds:   env.num("SLA_SWEEP_INTERVAL_SECONDS", 60),
			SweepConcurrency:       env.num("SLA_SWEEP_CONCURRENCY", 8),
			SweepBatchSize:         env.num("SLA_SWEEP_BATCH_SIZE", 500),
			RecordTimeoutMillis:    env.num("SLA_RECORD_TIMEOUT_MS", 5000),
			MaxConflictRetries:     env.num("SLA_MAX_CONFLICT_RETRIES", 3),
			CacheTTLSeconds:        env.num("SLA_CACHE_TTL_SECONDS", 300),
			SweepLockTTLSeconds:    env.num("SLA_SWEEP_LOCK_TTL_SECONDS", 55),
			SweepEnabled:           env.flag("SLA_SWEEP_ENABLED", true),
			CacheInvalidateChannel: env.str("SLA_CACHE_INVALIDATE_CHANNEL", "sla:cache:invalidate"),
			SweepLockKey:           env.str("SLA_SWEEP_LOCK_KEY", "sla:sweep:lock"),
		},
		Notification: NotificationConfig{
			WebhookURL:        env.str("NOTIFY_WEBHOOK_URL", ""),
			WebhookRPS:        env.num("NOTIFY_WEBHOOK_RPS", 5),
			WebhookTimeoutSec: env.num("NOTIFY_WEBHOOK_TIMEOUT_SECONDS", 5),
			RedisStream:       env.str("NOTIFY_REDIS_STREAM", ""),
			QueueSize:         env.num("NOTIFY_QUEUE_SIZE", 1024),
		},
	}
	if err := errors.Join(env.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverSQLite, StoreDriverMemory:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q", c.Store.Driver)
	}
	if c.SLA.SweepConcurrency <= 0 {
		return fmt.Errorf("SLA_SWEEP_CONCURRENCY must be positive")
	}
	if c.SLA.SweepBatchSize <= 0 {
		return fmt.Errorf("SLA_SWEEP_BATCH_SIZE must be positive")
	}
	if c.SLA.MaxConflictRetries < 0 {
		return fmt.Errorf("SLA_MAX_CONFLICT_RETRIES must not be negative")
	}
	if c.App.Env == "production" && (c.Auth.JWTSecret == devJWTSecret || len(c.Auth.JWTSecret) < 32) {
		return fmt.Errorf("AUTH_JWT_SECRET must be set to at least 32 characters in production")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SweepInterval returns the sweep period.
func (s SLAConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// RecordTimeout bounds one record's evaluation inside a sweep.
func (s SLAConfig) RecordTimeout() time.Duration {
	return time.Duration(s.RecordTimeoutMillis) * time.Millisecond
}

// CacheTTL returns how long tenant cache entries live.
func (s SLAConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLSeconds) * time.Second
}

// SweepLockTTL returns the sweep lease lifetime.
func (s SLAConfig) SweepLockTTL() time.Duration {
	return time.Duration(s.SweepLockTTLSeconds) * time.Second
}

// AccessTokenTTL returns the issued token lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// WebhookTimeout bounds one webhook delivery.
func (n NotificationConfig) WebhookTimeout() time.Duration {
	return time.Duration(n.WebhookTimeoutSec) * time.Second
}

// envReader reads typed values and collects malformed ones.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *envReader) str(key, fallback string) string {
	if val, ok := r.lookup(key); ok && strings.TrimSpace(val) != "" {
		return strings.TrimSpace(val)
	}
	return fallback
}

func (r *envReader) num(key string, fallback int) int {
	raw := r.str(key, "")
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not an integer", key, raw))
		return fallback
	}
	return val
}

func (r *envReader) flag(key string, fallback bool) bool {
	raw := r.str(key, "")
	if raw == "" {
		return fallback
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a boolean", key, raw))
		return fallback
	}
	return val
}

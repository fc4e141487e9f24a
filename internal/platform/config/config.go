// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DevJWTSigningKey is used when JWT_SIGNING_KEY is unset. Never use it in production.
const DevJWTSigningKey = "dev-secret-key-change-in-production"

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"GATEKEEPER_ADDR" envDefault:":8080" validate:"required"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s" validate:"gt=0"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s" validate:"gt=0"`
	// TrustedProxies are CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

// Database is optional; an empty URL selects the in-memory stores.
type Database struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25" validate:"gte=1"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5" validate:"gte=0"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	MigrateOnStart  bool          `env:"DB_MIGRATE_ON_START" envDefault:"true"`
}

// Redis is optional; an empty URL keeps alert windows in process.
type Redis struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10" validate:"gte=1"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2" validate:"gte=0"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// Kafka is optional; without brokers notifications go to the log and ingest is off.
type Kafka struct {
	Brokers          string        `env:"KAFKA_BROKERS"`
	Acks             string        `env:"KAFKA_ACKS" envDefault:"all" validate:"oneof=0 1 all"`
	Retries          int           `env:"KAFKA_RETRIES" envDefault:"3" validate:"gte=0"`
	DeliveryTimeout  time.Duration `env:"KAFKA_DELIVERY_TIMEOUT" envDefault:"30s"`
	NotifyTopic      string        `env:"NOTIFY_TOPIC" envDefault:"gatekeeper.notifications" validate:"required"`
	AlertTopic       string        `env:"ALERT_TOPIC" envDefault:"gatekeeper.security-alerts" validate:"required"`
	AuditIngestTopic string        `env:"AUDIT_INGEST_TOPIC" envDefault:"gatekeeper.audit-ingest" validate:"required"`
	AuditIngestGroup string        `env:"AUDIT_INGEST_GROUP" envDefault:"gatekeeper-audit" validate:"required"`
}

// Auth configures bearer token validation.
type Auth struct {
	SigningKey string        `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production" validate:"min=16"`
	Issuer     string        `env:"JWT_ISSUER" envDefault:"gatekeeper" validate:"required"`
	TokenTTL   time.Duration `env:"JWT_TOKEN_TTL" envDefault:"1h" validate:"gt=0"`
}

// Workflow configures the approval engine and its sweeps.
type Workflow struct {
	DefaultExpiration       time.Duration `env:"DEFAULT_EXPIRATION" envDefault:"24h" validate:"gt=0"`
	MaxExpiration           time.Duration `env:"MAX_EXPIRATION" envDefault:"720h" validate:"gtefield=DefaultExpiration"`
	MaxApprovers            int           `env:"MAX_APPROVERS" envDefault:"10" validate:"gte=1"`
	RequireAllApprovers     bool          `env:"REQUIRE_ALL_APPROVERS" envDefault:"false"`
	ReminderInterval        time.Duration `env:"REMINDER_INTERVAL" envDefault:"24h" validate:"gt=0"`
	ExpirationSweepInterval time.Duration `env:"EXPIRATION_SWEEP_INTERVAL" envDefault:"30m" validate:"gt=0"`
	ReminderSweepInterval   time.Duration `env:"REMINDER_SWEEP_INTERVAL" envDefault:"60m" validate:"gt=0"`
	SweepBatchSize          int           `env:"SWEEP_BATCH_SIZE" envDefault:"500" validate:"gte=1"`
	TxTimeout               time.Duration `env:"TX_TIMEOUT" envDefault:"5s" validate:"gt=0"`
}

// Notify configures outbound notification delivery.
type Notify struct {
	Timeout          time.Duration `env:"TIMEOUT" envDefault:"5s" validate:"gt=0"`
	BufferSize       int           `env:"BUFFER_SIZE" envDefault:"0" validate:"gte=0"`
	BreakerThreshold int           `env:"BREAKER_THRESHOLD" envDefault:"5" validate:"gte=1"`
	BreakerCooldown  time.Duration `env:"BREAKER_COOLDOWN" envDefault:"30s" validate:"gt=0"`
}

// Audit configures retention, alerting and reporting.
type Audit struct {
	ArchiveAfter              time.Duration `env:"ARCHIVE_AFTER" envDefault:"2160h" validate:"gt=0"`
	Retention                 time.Duration `env:"RETENTION" envDefault:"8760h" validate:"gtfield=ArchiveAfter"`
	ArchiveInterval           time.Duration `env:"ARCHIVE_INTERVAL" envDefault:"24h" validate:"gt=0"`
	FailedLoginThreshold      int           `env:"FAILED_LOGIN_THRESHOLD" envDefault:"5" validate:"gte=1"`
	FailedLoginWindow         time.Duration `env:"FAILED_LOGIN_WINDOW" envDefault:"5m" validate:"gt=0"`
	PermissionDeniedThreshold int           `env:"PERMISSION_DENIED_THRESHOLD" envDefault:"3" validate:"gte=1"`
	PermissionDeniedWindow    time.Duration `env:"PERMISSION_DENIED_WINDOW" envDefault:"10m" validate:"gt=0"`
	ReportTopN                int           `env:"REPORT_TOP_N" envDefault:"10" validate:"gte=1"`
	QueryMaxLimit             int           `env:"QUERY_MAX_LIMIT" envDefault:"1000" validate:"gte=1"`
	ReportMaxRange            time.Duration `env:"REPORT_MAX_RANGE" envDefault:"8784h" validate:"gt=0"`
}

// Config is the complete service configuration.
type Config struct {
	Server   Server
	Database Database
	Redis    Redis
	Kafka    Kafka
	Auth     Auth
	Workflow Workflow `envPrefix:"WORKFLOW_"`
	Notify   Notify   `envPrefix:"NOTIFY_"`
	Audit    Audit    `envPrefix:"AUDIT_"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads an optional .env file, then the process environment, and validates the result.
// A missing .env file is not an error.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	return Parse(env.Options{})
}

// Parse builds a Config from the environment described by opts.
// Tests pass Environment to avoid touching the process environment.
func Parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints, including that retention outlives archival.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// InMemory reports whether the service runs without Postgres.
func (c *Config) InMemory() bool { return c.Database.URL == "" }

// KafkaEnabled reports whether brokers are configured.
func (c *Config) KafkaEnabled() bool { return c.Kafka.Brokers != "" }

// DevSigningKey reports whether the built-in development key is in use.
func (c *Config) DevSigningKey() bool { return c.Auth.SigningKey == DevJWTSigningKey }

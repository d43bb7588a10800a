package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"arena/pkg/errors"
)

type Config struct {
	App           AppConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Adjudicator   AdjudicatorConfig
	MarkFeed      MarkFeedConfig
	Settlement    SettlementConfig
	ErrorTracking ErrorTrackingConfig
	Workers       WorkerConfig
	API           APIConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"arena"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type ClickHouseConfig struct {
	Host     string `envconfig:"CLICKHOUSE_HOST"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"arena"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" required:"true"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS" required:"true"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"arena"`
}

// AdjudicatorConfig points at the anti-cheat verdict service.
// An empty BaseURL disables remote adjudication entirely; every
// settlement then falls back to a plain FINISHED verdict.
type AdjudicatorConfig struct {
	BaseURL        string        `envconfig:"ADJUDICATOR_BASE_URL"`
	RequestTimeout time.Duration `envconfig:"ADJUDICATOR_REQUEST_TIMEOUT" default:"10s"`
	RatePerSecond  float64       `envconfig:"ADJUDICATOR_RATE_PER_SECOND" default:"5"`
	RateBurst      int           `envconfig:"ADJUDICATOR_RATE_BURST" default:"10"`
}

type MarkFeedConfig struct {
	Enabled  bool          `envconfig:"MARKFEED_ENABLED" default:"false"`
	URL      string        `envconfig:"MARKFEED_URL"`
	PriceTTL time.Duration `envconfig:"MARKFEED_PRICE_TTL" default:"30s"`
}

// SettlementConfig tunes the coordinator.
// LockTimeout is how long a settlement lease stays valid before another
// process may steal it. SettleBuffer absorbs clock skew between the
// scheduler and the fight deadline.
type SettlementConfig struct {
	LockTimeout  time.Duration `envconfig:"SETTLEMENT_LOCK_TIMEOUT" default:"5m"`
	SettleBuffer time.Duration `envconfig:"SETTLEMENT_BUFFER" default:"60s"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// WorkerConfig contains intervals for all background workers
type WorkerConfig struct {
	// Reconciliation sweep (backstop for missed real-time settlements)
	SettlementSweepInterval time.Duration `envconfig:"WORKER_SETTLEMENT_SWEEP_INTERVAL" default:"2m"`
	SettlementSweepEnabled  bool          `envconfig:"WORKER_SETTLEMENT_SWEEP_ENABLED" default:"true"`

	// Mark price cache warmer interval when the websocket feed is disabled
	MarkRefreshInterval time.Duration `envconfig:"WORKER_MARK_REFRESH_INTERVAL" default:"15s"`
}

type APIConfig struct {
	Port int `envconfig:"API_PORT" default:"8080"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}

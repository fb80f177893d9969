package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App          AppConfig
	HTTP         ServerConfig
	MySQL        MySQLConfig
	Redis        RedisConfig
	Log          LogConfig
	Idempotency  IdempotencyConfig
	Transactions TransactionsConfig
	Webhooks     WebhooksConfig
	Jobs         JobsConfig
}

type AppConfig struct {
	ServiceName string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr      string
	DB        int
	PoolSize  int
	KeyPrefix string
}

type LogConfig struct {
	Level string
}

type IdempotencyConfig struct {
	RetentionTTL   time.Duration
	LockTTL        time.Duration
	StorageRetries int
	PurgeBatchSize int32
}

type TransactionsConfig struct {
	DefaultProvider string
}

type WebhooksConfig struct {
	MaxAttempts  int32
	HTTPTimeout  time.Duration
	JobBatchSize int32
}

type JobsConfig struct {
	DispatchInterval time.Duration
	PurgeInterval    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "transactions-service"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			DB:        getIntEnv("REDIS_DB", 0),
			PoolSize:  getIntEnv("REDIS_POOL_SIZE", 10),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "transactions:"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Idempotency: IdempotencyConfig{
			RetentionTTL:   getHoursEnv("IDEMPOTENCY_RETENTION_HOURS", 24*time.Hour),
			LockTTL:        getSecondsEnv("IDEMPOTENCY_LOCK_TTL_SECONDS", 30*time.Second),
			StorageRetries: getIntEnv("IDEMPOTENCY_STORAGE_RETRIES", 2),
			PurgeBatchSize: int32(getIntEnv("IDEMPOTENCY_PURGE_BATCH_SIZE", 500)),
		},
		Transactions: TransactionsConfig{
			DefaultProvider: getEnv("TRANSACTIONS_DEFAULT_PROVIDER", "sandbox"),
		},
		Webhooks: WebhooksConfig{
			MaxAttempts:  int32(getIntEnv("WEBHOOKS_MAX_ATTEMPTS", 8)),
			HTTPTimeout:  getSecondsEnv("WEBHOOKS_HTTP_TIMEOUT_SECONDS", 10*time.Second),
			JobBatchSize: int32(getIntEnv("WEBHOOKS_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			DispatchInterval: getSecondsEnv("WEBHOOKS_DISPATCH_INTERVAL_SECONDS", time.Minute),
			PurgeInterval:    getMinutesEnv("IDEMPOTENCY_PURGE_INTERVAL_MINUTES", time.Hour),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getHoursEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if hours, err := strconv.Atoi(value); err == nil {
			return time.Duration(hours) * time.Hour
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

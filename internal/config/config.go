package config

import (
	"fmt"
	"time"
)

const (
	StoreFile     = "file"
	StorePostgres = "postgres"

	DispatchMemory = "memory"
	DispatchRedis  = "redis"
)

// Config holds all application configuration settings.
type Config struct {
	Environment string `envconfig:"ENV" default:"development"`

	HTTPPort    int           `envconfig:"HTTP_PORT" default:"8080"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"file"`
	StateFile   string `envconfig:"STATE_FILE" default:"./data/tasks.json"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	DispatchDriver string `envconfig:"DISPATCH_DRIVER" default:"memory"`
	QueueSize      int    `envconfig:"QUEUE_SIZE" default:"16"`
	RedisAddr      string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD"`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0"`
	RedisStream    string `envconfig:"REDIS_STREAM" default:"impex:commands"`
	RedisMaxLen    int64  `envconfig:"REDIS_STREAM_MAXLEN" default:"1000"`
	WorkerGroup    string `envconfig:"WORKER_GROUP"`

	RemoteTimeout time.Duration `envconfig:"REMOTE_TIMEOUT" default:"10s"`
	RemoteRetries uint          `envconfig:"REMOTE_RETRIES" default:"2"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Validate checks the configuration for invalid or missing values.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.StoreDriver {
	case StoreFile:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database url is required for the %s store", StorePostgres)
		}
	default:
		return fmt.Errorf("unknown store driver: %q", c.StoreDriver)
	}

	switch c.DispatchDriver {
	case DispatchMemory:
		if c.QueueSize <= 0 {
			return fmt.Errorf("queue size must be positive: %d", c.QueueSize)
		}
	case DispatchRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
		if c.RedisStream == "" {
			return fmt.Errorf("redis stream cannot be empty")
		}
	default:
		return fmt.Errorf("unknown dispatch driver: %q", c.DispatchDriver)
	}

	if c.RemoteTimeout <= 0 {
		return fmt.Errorf("remote timeout must be positive: %s", c.RemoteTimeout)
	}

	return nil
}

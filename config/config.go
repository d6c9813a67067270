// Package config loads the jadwal engine settings from .env and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/songzhibin97/jadwal-engine/storage"
)

// Storage and outbox drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverBus    = "bus"
)

type Config struct {
	// Storage
	StorageDriver string

	// Redis
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisPoolSize     int
	RedisMinIdleConns int
	RedisIdleTimeout  time.Duration
	RedisNamespace    string

	// Notifications
	OutboxDriver        string
	OutboxKey           string
	OutboxDrainSchedule string
	PublishOnApprove    bool

	// Logging
	LogLevel  string
	LogFormat string

	// Snowflake node
	NodeID int
}

// RedisOptions maps the Redis settings onto storage.RedisOptions.
func (c *Config) RedisOptions() storage.RedisOptions {
	return storage.RedisOptions{
		Addr:         c.RedisAddr,
		Password:     c.RedisPassword,
		DB:           c.RedisDB,
		PoolSize:     c.RedisPoolSize,
		MinIdleConns: c.RedisMinIdleConns,
		IdleTimeout:  c.RedisIdleTimeout,
		Namespace:    c.RedisNamespace,
	}
}

// Load reads .env when present, then the process environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		logrus.Debug(".env file not found, using environment variables")
	}

	var errs []string
	atoi := func(key, def string) int {
		v, err := strconv.Atoi(getEnv(key, def))
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return v
	}

	idle, err := time.ParseDuration(getEnv("REDIS_IDLE_TIMEOUT", "5m"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid REDIS_IDLE_TIMEOUT: %v", err))
	}

	cfg := &Config{
		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", DriverMemory)),

		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           atoi("REDIS_DB", "0"),
		RedisPoolSize:     atoi("REDIS_POOL_SIZE", "10"),
		RedisMinIdleConns: atoi("REDIS_MIN_IDLE_CONNS", "2"),
		RedisIdleTimeout:  idle,
		RedisNamespace:    getEnv("REDIS_NAMESPACE", "jadwal:"),

		OutboxDriver:        strings.ToLower(getEnv("OUTBOX_DRIVER", DriverBus)),
		OutboxKey:           getEnv("OUTBOX_KEY", "jadwal:notifications:queue"),
		OutboxDrainSchedule: getEnv("OUTBOX_DRAIN_SCHEDULE", "@every 10s"),
		PublishOnApprove:    strings.ToLower(getEnv("PUBLISH_ON_APPROVE", "true")) == "true",

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		NodeID: atoi("NODE_ID", "1"),
	}

	switch cfg.StorageDriver {
	case DriverMemory, DriverRedis:
	default:
		errs = append(errs, fmt.Sprintf("unknown STORAGE_DRIVER %q", cfg.StorageDriver))
	}
	switch cfg.OutboxDriver {
	case DriverBus, DriverRedis:
	default:
		errs = append(errs, fmt.Sprintf("unknown OUTBOX_DRIVER %q", cfg.OutboxDriver))
	}
	if cfg.OutboxDriver == DriverRedis && cfg.StorageDriver != DriverRedis {
		errs = append(errs, "OUTBOX_DRIVER=redis requires STORAGE_DRIVER=redis")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// SetupLogger applies the level and format to the standard logrus logger.
func SetupLogger(cfg *Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	logrus.SetLevel(level)
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

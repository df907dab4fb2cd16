package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Tracklight server and consumer.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	ClickHouse ClickHouseConfig
	RateLimit  RateLimitConfig
	Alerts     AlertsConfig
	Worker     WorkerConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type KafkaConfig struct {
	Brokers       []string
	EventsTopic   string
	SessionsTopic string
	GroupID       string
}

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

type RateLimitConfig struct {
	EventsPerMinute int
}

type AlertsConfig struct {
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	From     string
}

type WorkerConfig struct {
	Async bool
	Size  int
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("TRACKLIGHT_PORT", 8080),
			Env:  envString("TRACKLIGHT_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Kafka: KafkaConfig{
			Brokers:       envList("KAFKA_BROKERS"),
			EventsTopic:   envString("KAFKA_EVENTS_TOPIC", "tracklight-events"),
			SessionsTopic: envString("KAFKA_SESSIONS_TOPIC", "tracklight-sessions"),
			GroupID:       envString("KAFKA_GROUP_ID", "tracklight-analytics"),
		},
		ClickHouse: ClickHouseConfig{
			Addr:     os.Getenv("CLICKHOUSE_ADDR"),
			Database: envString("CLICKHOUSE_DATABASE", "tracklight"),
			Username: envString("CLICKHOUSE_USERNAME", "default"),
			Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		},
		RateLimit: RateLimitConfig{
			EventsPerMinute: envInt("RATE_LIMIT_EVENTS_PER_MINUTE", 120),
		},
		Alerts: AlertsConfig{
			SMTPHost: os.Getenv("SMTP_HOST"),
			SMTPPort: envInt("SMTP_PORT", 587),
			SMTPUser: os.Getenv("SMTP_USER"),
			SMTPPass: os.Getenv("SMTP_PASS"),
			From:     envString("ALERTS_FROM", "alerts@tracklight.local"),
		},
		Worker: WorkerConfig{
			Async: envBool("WORKER_ASYNC", true),
			Size:  envInt("WORKER_SIZE", 8),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}

	if c.RateLimit.EventsPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_EVENTS_PER_MINUTE must be positive, got %d", c.RateLimit.EventsPerMinute)
	}

	if c.Worker.Async && c.Worker.Size <= 0 {
		return fmt.Errorf("WORKER_SIZE must be positive when WORKER_ASYNC is enabled, got %d", c.Worker.Size)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

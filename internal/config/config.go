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

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are loaded from the environment (after an optional .env file)
// with defaults that let the binary run locally against in-memory storage.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PoolCacheTTL  time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	LogLevel      string
	RunMigrations bool

	NewRelic NewRelicConfig
}

// ConsumerConfig configures the profile event consumer.
type ConsumerConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MetricsAddr     string
	ShutdownTimeout time.Duration
	RetryAttempts   int
	RetryDelay      time.Duration

	LogLevel string
}

type NewRelicConfig struct {
	Enabled    bool
	AppName    string
	LicenseKey string
}

const DefaultProfileTopic = "commuter-profiles"

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		PoolCacheTTL:    30 * time.Second,
		KafkaTopic:      DefaultProfileTopic,
		LogLevel:        "info",
		NewRelic:        NewRelicConfig{AppName: "carpool-match"},
	}
}

func defaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		KafkaTopic:      DefaultProfileTopic,
		KafkaGroup:      "carpool-pool-cache",
		MetricsAddr:     ":9102",
		ShutdownTimeout: 10 * time.Second,
		RetryAttempts:   3,
		RetryDelay:      200 * time.Millisecond,
		LogLevel:        "info",
	}
}

// loadDotEnv reads .env when present. Variables already in the environment
// win.
func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load .env: %w", err)
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error
	if err := loadDotEnv(); err != nil {
		errs = append(errs, err)
	}

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setIntFromEnv(&cfg.RedisDB, "REDIS_DB", &errs)
	setDurationFromEnv(&cfg.PoolCacheTTL, "POOL_CACHE_TTL", &errs)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	setBoolFromEnv(&cfg.NewRelic.Enabled, "NEW_RELIC_ENABLED", &errs)
	setStringFromEnv(&cfg.NewRelic.AppName, "NEW_RELIC_APP_NAME")
	cfg.NewRelic.LicenseKey = strings.TrimSpace(os.Getenv("NEW_RELIC_LICENSE_KEY"))

	if cfg.PoolCacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("POOL_CACHE_TTL must be > 0"))
	}
	if cfg.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("REDIS_DB must be >= 0"))
	}
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey == "" {
		errs = append(errs, fmt.Errorf("NEW_RELIC_LICENSE_KEY is required when NEW_RELIC_ENABLED=true"))
	}

	return cfg, errors.Join(errs...)
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := defaultConsumerConfig()
	var errs []error
	if err := loadDotEnv(); err != nil {
		errs = append(errs, err)
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setIntFromEnv(&cfg.RedisDB, "REDIS_DB", &errs)

	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	setDurationFromEnv(&cfg.ShutdownTimeout, "SHUTDOWN_TIMEOUT", &errs)
	setIntFromEnv(&cfg.RetryAttempts, "INVALIDATE_RETRY_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.RetryDelay, "INVALIDATE_RETRY_DELAY", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS is required"))
	}
	if cfg.RedisAddr == "" {
		errs = append(errs, fmt.Errorf("REDIS_ADDR is required"))
	}
	if cfg.RetryAttempts <= 0 {
		errs = append(errs, fmt.Errorf("INVALIDATE_RETRY_ATTEMPTS must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setBoolFromEnv(target *bool, key string, errs *[]error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = b
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

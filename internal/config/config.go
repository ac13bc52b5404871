package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const maxCatalogCacheTTL = 30 * time.Second

type Config struct {
	HTTPHost          string
	HTTPPort          string
	ReadHeaderTimeout time.Duration
	LivenessEndpoint  string
	LogLevel          string

	Storage     string
	DatabaseURL string
	Seed        bool

	Locker    string
	RedisAddr string
	LockTTL   time.Duration

	ExternalCatalogURL     string
	ExternalCatalogTimeout time.Duration
	CatalogCacheTTL        time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	JaegerEndpoint string
}

// Load reads an optional .env file and then the process environment.
func Load(files ...string) (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(files...)

	var err error

	conf := Config{
		HTTPHost:           Get("HTTP_HOST", "localhost"),
		HTTPPort:           Get("HTTP_PORT", "8092"),
		LivenessEndpoint:   Get("LIVENESS_ENDPOINT", "/liveness"),
		LogLevel:           Get("LOG_LEVEL", "info"),
		Storage:            Get("STORAGE", "memory"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		Locker:             Get("LOCKER", "local"),
		RedisAddr:          Get("REDIS_ADDR", "localhost:6379"),
		ExternalCatalogURL: os.Getenv("EXTERNAL_CATALOG_URL"),
		KafkaTopic:         Get("KAFKA_TOPIC", "booking-events"),
		JaegerEndpoint:     os.Getenv("JAEGER_ENDPOINT"),
	}

	if brokers := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				conf.KafkaBrokers = append(conf.KafkaBrokers, b)
			}
		}
	}

	if conf.Seed, err = getBool("SEED", true); err != nil {
		return Config{}, err
	}

	if conf.ReadHeaderTimeout, err = getDuration("READ_HEADER_TIMEOUT", 20*time.Second); err != nil {
		return Config{}, err
	}

	if conf.LockTTL, err = getDuration("LOCK_TTL", 10*time.Second); err != nil {
		return Config{}, err
	}

	if conf.ExternalCatalogTimeout, err = getDuration("EXTERNAL_CATALOG_TIMEOUT", 3*time.Second); err != nil {
		return Config{}, err
	}

	if conf.CatalogCacheTTL, err = getDuration("CATALOG_CACHE_TTL", 5*time.Second); err != nil {
		return Config{}, err
	}

	if conf.CatalogCacheTTL > maxCatalogCacheTTL {
		conf.CatalogCacheTTL = maxCatalogCacheTTL
	}

	if err := conf.validate(); err != nil {
		return Config{}, err
	}

	return conf, nil
}

func (c Config) validate() error {
	switch c.Storage {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for postgres storage: %w", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("unknown STORAGE %q: %w", c.Storage, ErrInvalidConfig)
	}

	switch c.Locker {
	case "local":
	case "redis":
		// The lease is not renewed, so it has to outlive the catalog fetch made while it is held.
		if c.LockTTL <= c.ExternalCatalogTimeout {
			return fmt.Errorf("LOCK_TTL %s must exceed EXTERNAL_CATALOG_TIMEOUT %s: %w",
				c.LockTTL, c.ExternalCatalogTimeout, ErrInvalidConfig)
		}
	case "postgres":
		if c.Storage != "postgres" {
			return fmt.Errorf("postgres locker requires postgres storage: %w", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("unknown LOCKER %q: %w", c.Locker, ErrInvalidConfig)
	}

	return nil
}

// Get returns the environment value for key or fallback when unset.
func Get(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}

	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, raw, ErrInvalidConfig)
	}

	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}

	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse %s=%q: %w", key, raw, ErrInvalidConfig)
	}

	return b, nil
}

// Package config loads settings from an optional YAML file named by
// CONFIG_PATH and then from the environment, which wins.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"db_dsn"`
	StoreDriver string `yaml:"store_driver"`
	Timezone    string `yaml:"timezone"`

	JWTSecret           string `yaml:"jwt_secret"`
	JWTExpiresInSeconds int    `yaml:"jwt_expires_in_seconds"`

	RateLimitPerMinute     int `yaml:"rate_limit_per_min"`
	RateLimitBurst         int `yaml:"rate_limit_burst"`
	SiteRateLimitPerMinute int `yaml:"site_rate_limit_per_min"`
	SiteRateLimitBurst     int `yaml:"site_rate_limit_burst"`

	CatalogCacheSeconds int `yaml:"catalog_cache_seconds"`

	RedisURL           string   `yaml:"redis_url"`
	RedisChannelPrefix string   `yaml:"redis_channel_prefix"`
	KafkaBrokers       []string `yaml:"kafka_brokers"`
	KafkaTopic         string   `yaml:"kafka_topic"`

	FanoutTimeoutSeconds int `yaml:"fanout_timeout_seconds"`

	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`

	Location *time.Location `yaml:"-"`
}

func defaults() Config {
	return Config{
		Port:                   "4000",
		StoreDriver:            DriverPostgres,
		Timezone:               "Local",
		JWTExpiresInSeconds:    24 * 60 * 60,
		RateLimitPerMinute:     120,
		RateLimitBurst:         30,
		SiteRateLimitPerMinute: 600,
		SiteRateLimitBurst:     120,
		CatalogCacheSeconds:    30,
		RedisChannelPrefix:     "digiturno:",
		KafkaTopic:             "digiturno.ticket-events",
		FanoutTimeoutSeconds:   2,
	}
}

func Load() (Config, error) {
	cfg := defaults()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Port = readString("PORT", cfg.Port)
	cfg.DatabaseURL = readString("DB_DSN", cfg.DatabaseURL)
	cfg.StoreDriver = strings.ToLower(readString("STORE_DRIVER", cfg.StoreDriver))
	cfg.Timezone = readString("TIMEZONE", cfg.Timezone)
	cfg.JWTSecret = readString("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTExpiresInSeconds = readInt("JWT_EXPIRES_IN_SECONDS", cfg.JWTExpiresInSeconds)
	cfg.RateLimitPerMinute = readInt("RATE_LIMIT_PER_MIN", cfg.RateLimitPerMinute)
	cfg.RateLimitBurst = readInt("RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.SiteRateLimitPerMinute = readInt("SITE_RATE_LIMIT_PER_MIN", cfg.SiteRateLimitPerMinute)
	cfg.SiteRateLimitBurst = readInt("SITE_RATE_LIMIT_BURST", cfg.SiteRateLimitBurst)
	cfg.CatalogCacheSeconds = readInt("CATALOG_CACHE_SECONDS", cfg.CatalogCacheSeconds)
	cfg.RedisURL = readString("REDIS_URL", cfg.RedisURL)
	cfg.RedisChannelPrefix = readString("REDIS_CHANNEL_PREFIX", cfg.RedisChannelPrefix)
	cfg.KafkaBrokers = readList("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = readString("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.FanoutTimeoutSeconds = readInt("FANOUT_TIMEOUT_SECONDS", cfg.FanoutTimeoutSeconds)
	cfg.OTLPEndpoint = readString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	cfg.OTLPInsecure = readBool("OTEL_EXPORTER_OTLP_INSECURE", cfg.OTLPInsecure)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DB_DSN is required for the postgres store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("load TIMEZONE %q: %w", c.Timezone, err)
	}
	c.Location = loc
	return nil
}

func (c Config) JWTTTL() time.Duration {
	return seconds(c.JWTExpiresInSeconds)
}

func (c Config) CatalogCacheTTL() time.Duration {
	return seconds(c.CatalogCacheSeconds)
}

func (c Config) FanoutTimeout() time.Duration {
	return seconds(c.FanoutTimeoutSeconds)
}

func seconds(value int) time.Duration {
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readString(key, fallback string) string {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		return raw
	}
	return fallback
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

// Package config reads the storefront configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string
	LogLevel string

	DBDriver    string
	DatabaseURL string
	SQLitePath  string

	BrokerDriver string
	KafkaBrokers []string

	RedisAddr       string
	ProfileURL      string
	TenantURL       string
	ProfileTimeout  time.Duration
	ProfileCacheTTL time.Duration

	PaymentURL     string
	PaymentTimeout time.Duration

	BrevoURL            string
	BrevoAPIKey         string
	CancelTemplateID    int64
	StorefrontURL       string
	StorefrontMobileURL string

	ReportTimezone *time.Location

	OTLPEndpoint string
	Environment  string
	SeedDemo     bool
}

// Load reads the configuration, applying defaults suited to a local run.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DBDriver:            strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		SQLitePath:          getEnv("SQLITE_PATH", "storefront.db"),
		BrokerDriver:        strings.ToLower(getEnv("BROKER_DRIVER", "kafka")),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		ProfileURL:          getEnv("PROFILE_URL", "http://localhost:8081"),
		TenantURL:           getEnv("TENANT_PROFILE_URL", "http://localhost:8082"),
		PaymentURL:          getEnv("PAYMENT_URL", "http://localhost:8083"),
		BrevoURL:            getEnv("BREVO_URL", "https://api.brevo.com/v3/smtp/email"),
		BrevoAPIKey:         os.Getenv("BREVO_API_KEY"),
		StorefrontURL:       getEnv("STOREFRONT_URL", "http://localhost:3000"),
		StorefrontMobileURL: getEnv("STOREFRONT_MOBILE_URL", "storefront://"),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Environment:         getEnv("ENVIRONMENT", "development"),
	}

	var err error
	if cfg.PaymentTimeout, err = getDuration("PAYMENT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ProfileTimeout, err = getDuration("PROFILE_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.ProfileCacheTTL, err = getDuration("PROFILE_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CancelTemplateID, err = getInt("CANCEL_TEMPLATE_ID", 4); err != nil {
		return nil, err
	}
	if cfg.SeedDemo, err = getBool("SEED_DEMO", false); err != nil {
		return nil, err
	}

	tz := getEnv("REPORT_TIMEZONE", "UTC")
	if cfg.ReportTimezone, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid REPORT_TIMEZONE %q: %w", tz, err)
	}

	switch cfg.DBDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required")
		}
	case "sqlite":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	switch cfg.BrokerDriver {
	case "kafka", "watermill":
		cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
		if len(cfg.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("KAFKA_BROKERS environment variable is required")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unsupported BROKER_DRIVER %q", cfg.BrokerDriver)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return d, nil
}

func getInt(key string, fallback int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

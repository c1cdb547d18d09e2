package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/intellitest/server/internal/mail"
)

// Defaults for the token and hashing knobs
const (
	DefaultAccessTTL  = 900 * time.Second
	DefaultRefreshTTL = 1209600 * time.Second // 14 days
	DefaultBcryptCost = 10
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	Port        string

	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	BcryptCost int

	SMTP mail.SMTPConfig

	// RedisURL switches the refresh token store to Redis when set
	RedisURL string

	DevMode bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:       "8080",
		AccessTTL:  DefaultAccessTTL,
		RefreshTTL: DefaultRefreshTTL,
		BcryptCost: DefaultBcryptCost,
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	cfg.AccessSecret = os.Getenv("JWT_ACCESS_SECRET")
	if cfg.AccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET environment variable is required")
	}
	cfg.RefreshSecret = os.Getenv("JWT_REFRESH_SECRET")
	if cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("JWT_REFRESH_SECRET environment variable is required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	var err error
	if cfg.AccessTTL, err = secondsEnv("ACCESS_TTL", DefaultAccessTTL); err != nil {
		return nil, err
	}
	if cfg.RefreshTTL, err = secondsEnv("REFRESH_TTL", DefaultRefreshTTL); err != nil {
		return nil, err
	}

	if v := os.Getenv("SALT_ROUNDS"); v != "" {
		cost, err := strconv.Atoi(v)
		if err != nil || cost < 4 {
			return nil, fmt.Errorf("invalid SALT_ROUNDS %q", v)
		}
		cfg.BcryptCost = cost
	}

	cfg.SMTP = mail.SMTPConfig{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     envOrDefault("SMTP_PORT", "465"),
		Username: os.Getenv("SMTP_USER"),
		Password: os.Getenv("SMTP_PASS"),
		From:     envOrDefault("SMTP_FROM", "intelliTest <no-reply@intellitest.app>"),
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.DevMode = os.Getenv("DEV_MODE") == "true"

	return cfg, nil
}

func secondsEnv(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return time.Duration(seconds) * time.Second, nil
}

func envOrDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used across the application.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration values loaded from the environment.
type Config struct {
	// Server settings
	Host string `env:"APP_HOST, default=0.0.0.0"`
	Port string `env:"APP_PORT, default=8080"`
	Env  string `env:"APP_ENV, default=development"` // "development", "production", "testing"

	// PostgreSQL connection
	DBHost     string `env:"POSTGRES_HOST, default=localhost"`
	DBPort     string `env:"POSTGRES_PORT, default=5432"`
	DBUser     string `env:"POSTGRES_USER, default=novelpress"`
	DBPassword string `env:"POSTGRES_PASSWORD, default=changeme"`
	DBName     string `env:"POSTGRES_DB, default=novelpress"`

	// Valkey (Redis-compatible cache + session store)
	ValkeyHost     string `env:"VALKEY_HOST, default=localhost"`
	ValkeyPort     string `env:"VALKEY_PORT, default=6379"`
	ValkeyPassword string `env:"VALKEY_PASSWORD"`

	// S3-compatible object storage. Uploads are disabled when unset.
	S3Endpoint      string `env:"S3_ENDPOINT"`
	S3Region        string `env:"S3_REGION, default=fsn1"`
	S3AccessKey     string `env:"S3_ACCESS_KEY"`
	S3SecretKey     string `env:"S3_SECRET_KEY"`
	S3BucketPublic  string `env:"S3_BUCKET_PUBLIC, default=novelpress-public"`
	S3BucketPrivate string `env:"S3_BUCKET_PRIVATE, default=novelpress-private"`
	S3PublicURL     string `env:"S3_PUBLIC_URL"`

	// Profile mirror sizing.
	ProfileCacheSize int           `env:"PROFILE_CACHE_SIZE, default=10000"`
	ProfileCacheTTL  time.Duration `env:"PROFILE_CACHE_TTL, default=15m"`

	// Per-client limits on sign-in, registration and redemption.
	AuthRateLimit float64 `env:"AUTH_RATE_LIMIT, default=0.5"` // requests per second
	AuthRateBurst int     `env:"AUTH_RATE_BURST, default=10"`

	// Lifetime of signed manuscript download links.
	DownloadURLTTL time.Duration `env:"DOWNLOAD_URL_TTL, default=15m"`
}

// Load reads configuration from environment variables, applying defaults
// for development where appropriate. Returns an error if critical values
// are missing in production mode.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith is Load with an explicit variable source.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}

	if cfg.Env == "production" {
		if cfg.DBPassword == "changeme" {
			return nil, fmt.Errorf("POSTGRES_PASSWORD must be set in production")
		}
	}
	if cfg.ProfileCacheSize < 1 {
		return nil, fmt.Errorf("PROFILE_CACHE_SIZE must be positive")
	}
	if cfg.AuthRateLimit <= 0 || cfg.AuthRateBurst < 1 {
		return nil, fmt.Errorf("AUTH_RATE_LIMIT and AUTH_RATE_BURST must be positive")
	}

	return cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// StorageEnabled reports whether S3 credentials are present.
func (c *Config) StorageEnabled() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

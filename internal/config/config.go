// Package config loads venueboard settings from defaults, an optional YAML
// file and VENUEBOARD_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Feed drivers accepted by FeedDriver.
const (
	FeedMemory   = "memory"
	FeedRedis    = "redis"
	FeedPostgres = "postgres"
)

// Scope names the settings a command depends on.
type Scope int

const (
	// ScopeServe checks everything the HTTP API needs.
	ScopeServe Scope = iota
	// ScopeDatabase checks the store settings, for migrations.
	ScopeDatabase
	// ScopeCatalog checks the catalog client settings only.
	ScopeCatalog
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all application configuration
type Config struct {
	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DatabaseURL is the Postgres DSN for the document store.
	DatabaseURL   string `koanf:"database_url"`
	RunMigrations bool   `koanf:"run_migrations"`

	// FeedDriver selects the change feed: memory, redis or postgres.
	FeedDriver    string `koanf:"feed_driver"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// Catalog credentials. Quotes and surrounding whitespace are stripped on load.
	SpotifyClientID     string  `koanf:"spotify_client_id"`
	SpotifyClientSecret string  `koanf:"spotify_client_secret"`
	CatalogAPIURL       string  `koanf:"catalog_api_url"`
	CatalogTokenURL     string  `koanf:"catalog_token_url"`
	CatalogRateLimit    float64 `koanf:"catalog_rate_limit"`
	CatalogBurst        int     `koanf:"catalog_burst"`
	CatalogTimeoutSec   int     `koanf:"catalog_timeout_seconds"`

	// Staff sessions.
	JWTSecret           string `koanf:"jwt_secret"`
	StaffTokenTTLMinute int    `koanf:"staff_token_ttl_minutes"`

	CORSAllowedOrigins string `koanf:"cors_allowed_origins"`

	LogLevel  string `koanf:"log_level"`  // debug, info, warn, error
	LogFormat string `koanf:"log_format"` // json, text
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Addr:                ":8080",
		RunMigrations:       true,
		FeedDriver:          FeedMemory,
		RedisAddr:           "127.0.0.1:6379",
		CatalogAPIURL:       "https://api.spotify.com/v1",
		CatalogTokenURL:     "https://accounts.spotify.com/api/token",
		CatalogRateLimit:    10,
		CatalogBurst:        5,
		CatalogTimeoutSec:   30,
		StaffTokenTTLMinute: 12 * 60,
		CORSAllowedOrigins:  "http://localhost:5173",
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

// CatalogTimeout returns the HTTP timeout for catalog calls.
func (c *Config) CatalogTimeout() time.Duration {
	return time.Duration(c.CatalogTimeoutSec) * time.Second
}

// StaffTokenTTL returns the lifetime of staff session tokens.
func (c *Config) StaffTokenTTL() time.Duration {
	return time.Duration(c.StaffTokenTTLMinute) * time.Minute
}

// CatalogEnabled reports whether both catalog credentials are present.
func (c *Config) CatalogEnabled() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}

// AllowedOrigins splits the comma separated CORS origin list.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, part := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// Validate checks the settings needed to serve the API.
func (c *Config) Validate() error {
	return c.ValidateFor(ScopeServe)
}

// ValidateFor checks the settings scope depends on. Logging is checked for
// every scope.
func (c *Config) ValidateFor(scope Scope) error {
	var problems []string

	if scope == ScopeServe || scope == ScopeDatabase {
		if c.DatabaseURL == "" {
			problems = append(problems, "database_url is required")
		}
	}

	if scope == ScopeServe {
		if c.Addr == "" {
			problems = append(problems, "addr must not be empty")
		}

		switch c.FeedDriver {
		case FeedMemory, FeedPostgres:
		case FeedRedis:
			if c.RedisAddr == "" {
				problems = append(problems, "redis_addr is required for the redis feed")
			}
		default:
			problems = append(problems, "feed_driver must be one of: memory, redis, postgres")
		}

		if len(c.JWTSecret) < 16 {
			problems = append(problems, "jwt_secret must be at least 16 characters")
		}
		if c.StaffTokenTTLMinute <= 0 {
			problems = append(problems, "staff_token_ttl_minutes must be positive")
		}
	}

	if scope == ScopeServe || scope == ScopeCatalog {
		if c.CatalogRateLimit <= 0 || c.CatalogBurst <= 0 {
			problems = append(problems, "catalog_rate_limit and catalog_burst must be positive")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		problems = append(problems, "log_level must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.LogFormat] {
		problems = append(problems, "log_format must be one of: json, text")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(problems, "\n  - "))
	}
	return nil
}

// cleanCredential removes every quote character and surrounding whitespace,
// so values pasted as "abc" or 'abc' in env files still work.
func cleanCredential(raw string) string {
	return strings.TrimSpace(strings.NewReplacer(`"`, "", `'`, "").Replace(raw))
}

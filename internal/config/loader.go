package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "VENUEBOARD_"
	envFileKey = "VENUEBOARD_CONFIG"
	localEnv   = "config/local.env"
)

// Load builds a Config validated for serving the API. See LoadFor.
func Load() (*Config, error) {
	return LoadFor(ScopeServe)
}

// LoadFor builds a Config by layering, low to high precedence:
//  1. defaults (New())
//  2. config/local.env, copied into the process environment when present
//  3. YAML file named by VENUEBOARD_CONFIG
//  4. VENUEBOARD_* environment variables
//
// and validates the settings scope depends on.
func LoadFor(scope Scope) (*Config, error) {
	_ = godotenv.Load(localEnv)

	k := koanf.New(".")

	if path := os.Getenv(envFileKey); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// VENUEBOARD_DATABASE_URL -> database_url
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.SpotifyClientID = cleanCredential(cfg.SpotifyClientID)
	cfg.SpotifyClientSecret = cleanCredential(cfg.SpotifyClientSecret)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.FeedDriver = strings.ToLower(strings.TrimSpace(cfg.FeedDriver))

	if err := cfg.ValidateFor(scope); err != nil {
		return nil, err
	}
	return &cfg, nil
}

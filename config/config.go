// Package config loads runtime configuration for the unistore binaries.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	AppName  string
	LogLevel zapcore.Level

	// DatabaseURL selects the postgres ledger. Empty keeps the ledger in
	// memory.
	DatabaseURL string

	ValidationCacheTTL time.Duration
	SandboxAsync       bool

	NewRelicLicense string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load reads configuration from the environment, after loading any .env
// files given (or ".env" if none are and it exists).
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return Config{}, errors.Wrap(err, "failed to load env files")
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Config{}, errors.Wrap(err, "failed to load .env")
		}
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(getenv("UNISTORE_LOG_LEVEL", "info"))); err != nil {
		return Config{}, errors.Wrap(err, "invalid UNISTORE_LOG_LEVEL")
	}

	ttl, err := time.ParseDuration(getenv("UNISTORE_VALIDATION_CACHE_TTL", "0s"))
	if err != nil {
		return Config{}, errors.Wrap(err, "invalid UNISTORE_VALIDATION_CACHE_TTL")
	}

	async, err := strconv.ParseBool(getenv("UNISTORE_SANDBOX_ASYNC", "false"))
	if err != nil {
		return Config{}, errors.Wrap(err, "invalid UNISTORE_SANDBOX_ASYNC")
	}

	return Config{
		AppName:            getenv("UNISTORE_APP_NAME", "unistore"),
		LogLevel:           level,
		DatabaseURL:        os.Getenv("UNISTORE_DATABASE_URL"),
		ValidationCacheTTL: ttl,
		SandboxAsync:       async,
		NewRelicLicense:    os.Getenv("UNISTORE_NEW_RELIC_LICENSE"),
	}, nil
}

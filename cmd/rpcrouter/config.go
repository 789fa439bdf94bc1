package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is loaded from the environment, after variables from a .env file in
// the working directory are merged in. Flags override individual fields.
type Config struct {
	// LogLevel is one of debug, info, warn or error. ENV: RPCROUTER_LOG_LEVEL
	LogLevel string `env:"RPCROUTER_LOG_LEVEL,default=info"`
	// LogFormat is text or json. ENV: RPCROUTER_LOG_FORMAT
	LogFormat string `env:"RPCROUTER_LOG_FORMAT,default=text"`

	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// CatalogPrefix for all catalog keys. ENV: RPCROUTER_CATALOG_PREFIX
	CatalogPrefix string `env:"RPCROUTER_CATALOG_PREFIX,default=rpcrouter:catalog:"`
	// CatalogName is the document name used by publish. ENV: RPCROUTER_CATALOG_NAME
	CatalogName string `env:"RPCROUTER_CATALOG_NAME,default=calculator"`
	// CatalogTTL of a published document; zero means no expiry. ENV: RPCROUTER_CATALOG_TTL
	CatalogTTL time.Duration `env:"RPCROUTER_CATALOG_TTL,default=0s"`
}

func loadConfig() (Config, error) {
	// Variables already set in the environment win over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. Records go to w.
func newLogger(cfg Config, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.LogFormat) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.LogFormat)
	}
}

// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds process-level settings for the publisher.
type Config struct {
	ServerRoot          string // directory project paths are resolved against (default ".")
	PublisherConfigPath string // YAML file listing projects (default "<ServerRoot>/publisher.config.yaml")
	CredentialDir       string // directory credential files are written to (default "<tmp>/publisher-credentials")
	LogLevel            string // log level: debug, info, warn, error (default "info")
	Env                 string // environment: "development" (default) or "production"

	// DefaultRowLimit bounds query results when neither the request nor the query sets a limit.
	DefaultRowLimit int

	// ModelLoadConcurrency bounds how many models of one package compile at once.
	ModelLoadConcurrency int

	// DescribeConcurrency bounds concurrent file describes against one connection.
	DescribeConcurrency int

	// FrozenConfig rejects project additions and deletions at runtime.
	FrozenConfig bool

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the publisher is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		ServerRoot:          os.Getenv("SERVER_ROOT"),
		PublisherConfigPath: os.Getenv("PUBLISHER_CONFIG"),
		CredentialDir:       os.Getenv("CREDENTIAL_DIR"),
		LogLevel:            os.Getenv("LOG_LEVEL"),
		Env:                 os.Getenv("ENV"),
		FrozenConfig:        parseBoolEnvDefault("FROZEN_CONFIG", false),
	}

	var err error
	if cfg.DefaultRowLimit, err = parseIntEnv("DEFAULT_ROW_LIMIT", 1000); err != nil {
		return nil, err
	}
	if cfg.ModelLoadConcurrency, err = parseIntEnv("MODEL_LOAD_CONCURRENCY", 8); err != nil {
		return nil, err
	}
	if cfg.DescribeConcurrency, err = parseIntEnv("DESCRIBE_CONCURRENCY", 8); err != nil {
		return nil, err
	}

	// Defaults
	if cfg.ServerRoot == "" {
		cfg.ServerRoot = "."
	}
	if cfg.PublisherConfigPath == "" {
		cfg.PublisherConfigPath = filepath.Join(cfg.ServerRoot, PublisherConfigFile)
	}
	if cfg.CredentialDir == "" {
		cfg.CredentialDir = filepath.Join(os.TempDir(), "publisher-credentials")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DefaultRowLimit <= 0 {
		cfg.Warnings = append(cfg.Warnings, "DEFAULT_ROW_LIMIT must be positive, using 1000")
		cfg.DefaultRowLimit = 1000
	}
	if cfg.ModelLoadConcurrency <= 0 {
		cfg.ModelLoadConcurrency = 8
	}
	if cfg.DescribeConcurrency <= 0 {
		cfg.DescribeConcurrency = 8
	}

	if cfg.IsProduction() && !cfg.FrozenConfig {
		cfg.Warnings = append(cfg.Warnings, "FROZEN_CONFIG is off in production; projects can be added and removed at runtime")
	}

	return cfg, nil
}

func parseIntEnv(key string, defaultVal int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

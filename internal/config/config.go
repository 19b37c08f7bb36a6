// Package config loads formulary.yml, the project configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the configuration file looked up in the working directory.
const DefaultFileName = "formulary.yml"

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// MaxPrecision bounds the number of decimals results may be rounded to.
const MaxPrecision = 10

// Config represents the top-level formulary.yml configuration.
type Config struct {
	Version   string          `yaml:"version"`
	Precision int             `yaml:"precision"`
	Recompute RecomputeConfig `yaml:"recompute"`
	Registry  RegistryConfig  `yaml:"registry"`
	Store     StoreConfig     `yaml:"store"`
}

// RecomputeConfig tunes bulk recomputation.
type RecomputeConfig struct {
	Concurrency  int           `yaml:"concurrency"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RegistryConfig tunes the formula registry.
type RegistryConfig struct {
	DuplicateCheck bool `yaml:"duplicate_check"` // Reject a second active formula for one field
}

// StoreConfig selects where records live. Formulas are always kept in the
// SQLite database at Path.
type StoreConfig struct {
	Backend string      `yaml:"backend"` // "sqlite" or "redis"
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig locates the Redis record store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Version:   "1",
		Precision: 2,
		Recompute: RecomputeConfig{
			Concurrency:  4,
			WriteTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Backend: BackendSQLite,
			Path:    "formulary.db",
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				Namespace: "catalog",
			},
		},
	}
}

// Load reads and validates a configuration file.
// Keys missing from the file keep their Default values; unknown keys are
// rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration YAML.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when given. With an empty path it loads
// DefaultFileName if that file exists, and otherwise returns Default().
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if _, err := os.Stat(DefaultFileName); err == nil {
		return Load(DefaultFileName)
	}
	return Default(), nil
}

// Validate performs strict validation on the configuration
func (c *Config) Validate() error {
	if c.Version != "1" {
		return fmt.Errorf("unsupported version: %s (expected: 1)", c.Version)
	}

	if c.Precision < 0 || c.Precision > MaxPrecision {
		return fmt.Errorf("precision must be between 0 and %d, got %d", MaxPrecision, c.Precision)
	}

	if c.Recompute.Concurrency < 1 {
		return fmt.Errorf("recompute.concurrency must be >= 1, got %d", c.Recompute.Concurrency)
	}
	if c.Recompute.WriteTimeout <= 0 {
		return fmt.Errorf("recompute.write_timeout must be positive, got %s", c.Recompute.WriteTimeout)
	}

	switch c.Store.Backend {
	case BackendSQLite:
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis backend")
		}
		if c.Store.Redis.Namespace == "" || strings.Contains(c.Store.Redis.Namespace, ":") {
			return fmt.Errorf("store.redis.namespace must be non-empty and must not contain ':', got %q", c.Store.Redis.Namespace)
		}
	default:
		return fmt.Errorf("invalid store.backend: %s (must be 'sqlite' or 'redis')", c.Store.Backend)
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}

	return nil
}

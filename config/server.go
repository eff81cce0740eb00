// Package config provides configuration structures for the search pipeline service.
// It defines the server settings and the options of each request processor.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/gcbaptista/go-search-pipeline/internal/errors"
)

// EnvPrefix prefixes every environment variable read by LoadServerConfig.
const EnvPrefix = "SEARCH_PIPELINE_"

// Storage drivers.
const (
	StorageGob    = "gob"
	StorageBadger = "badger"
	StorageMemory = "memory"
)

// Log formats.
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// ServerSettings configures the HTTP listener.
type ServerSettings struct {
	Port            int   `yaml:"port" env:"PORT"`
	MaxRequestBytes int64 `yaml:"max_request_bytes" env:"MAX_REQUEST_BYTES"`
	ShutdownSeconds int   `yaml:"shutdown_seconds" env:"SHUTDOWN_SECONDS"`
}

// StorageSettings selects where pipeline definitions are persisted.
type StorageSettings struct {
	Driver  string `yaml:"driver" env:"DRIVER"`     // gob, badger or memory
	DataDir string `yaml:"data_dir" env:"DATA_DIR"` // unused by the memory driver
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"` // json or console
}

// BatchSettings configures multi-request processing.
type BatchSettings struct {
	Workers     int `yaml:"workers" env:"WORKERS"`
	MaxRequests int `yaml:"max_requests" env:"MAX_REQUESTS"`
}

// BootstrapSettings points at pipelines created on startup.
type BootstrapSettings struct {
	PipelinesFile string `yaml:"pipelines_file" env:"PIPELINES_FILE"`
}

// ServerConfig is the full service configuration.
type ServerConfig struct {
	Server    ServerSettings    `yaml:"server" envPrefix:"SERVER_"`
	Storage   StorageSettings   `yaml:"storage" envPrefix:"STORAGE_"`
	Log       LogConfig         `yaml:"log" envPrefix:"LOG_"`
	Batch     BatchSettings     `yaml:"batch" envPrefix:"BATCH_"`
	Bootstrap BootstrapSettings `yaml:"bootstrap" envPrefix:"BOOTSTRAP_"`
}

// DefaultServerConfig returns the configuration used when nothing is set.
func DefaultServerConfig() *ServerConfig {
	cfg := &ServerConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every zero value with its default.
func (c *ServerConfig) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.MaxRequestBytes == 0 {
		c.Server.MaxRequestBytes = 10 << 20
	}
	if c.Server.ShutdownSeconds == 0 {
		c.Server.ShutdownSeconds = 10
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageGob
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "./data"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = LogFormatJSON
	}
	if c.Batch.Workers == 0 {
		c.Batch.Workers = 8
	}
	if c.Batch.MaxRequests == 0 {
		c.Batch.MaxRequests = 1000
	}
}

// Validate returns every problem found in the configuration, or nil.
func (c *ServerConfig) Validate() []string {
	var problems []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MaxRequestBytes < 1 {
		problems = append(problems, "server.max_request_bytes must be positive")
	}
	if c.Server.ShutdownSeconds < 0 {
		problems = append(problems, "server.shutdown_seconds cannot be negative")
	}

	switch c.Storage.Driver {
	case StorageGob, StorageBadger:
		if strings.TrimSpace(c.Storage.DataDir) == "" {
			problems = append(problems, "storage.data_dir is required for driver '"+c.Storage.Driver+"'")
		}
	case StorageMemory:
	default:
		problems = append(problems, "Invalid storage.driver '"+c.Storage.Driver+"' (must be 'gob', 'badger' or 'memory')")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, "Invalid log.level '"+c.Log.Level+"' (must be 'debug', 'info', 'warn' or 'error')")
	}
	if c.Log.Format != LogFormatJSON && c.Log.Format != LogFormatConsole {
		problems = append(problems, "Invalid log.format '"+c.Log.Format+"' (must be 'json' or 'console')")
	}

	if c.Batch.Workers < 1 {
		problems = append(problems, "batch.workers must be at least 1")
	}
	if c.Batch.MaxRequests < 1 {
		problems = append(problems, "batch.max_requests must be at least 1")
	}

	return problems
}

// LoadServerConfig builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then SEARCH_PIPELINE_* environment variables. A .env file
// in the working directory is loaded first when present.
func LoadServerConfig(path string) (*ServerConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ServerConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.ApplyDefaults()
	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, apperrors.NewConfigurationError("", "", strings.Join(problems, "; "))
	}
	return cfg, nil
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/gcbaptista/go-search-pipeline/internal/errors"
)

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name           string
		modify         func(*ServerConfig)
		expectedErrors int
		contains       string
	}{
		{
			name:           "defaults are valid",
			modify:         func(*ServerConfig) {},
			expectedErrors: 0,
		},
		{
			name:           "memory driver needs no data dir",
			modify:         func(c *ServerConfig) { c.Storage.Driver = StorageMemory; c.Storage.DataDir = " " },
			expectedErrors: 0,
		},
		{
			name:           "port out of range",
			modify:         func(c *ServerConfig) { c.Server.Port = 70000 },
			expectedErrors: 1,
			contains:       "server.port",
		},
		{
			name:           "unknown storage driver",
			modify:         func(c *ServerConfig) { c.Storage.Driver = "postgres" },
			expectedErrors: 1,
			contains:       "storage.driver",
		},
		{
			name:           "badger without data dir",
			modify:         func(c *ServerConfig) { c.Storage.Driver = StorageBadger; c.Storage.DataDir = "" },
			expectedErrors: 1,
			contains:       "storage.data_dir",
		},
		{
			name: "several problems are all reported",
			modify: func(c *ServerConfig) {
				c.Log.Level = "verbose"
				c.Log.Format = "xml"
				c.Batch.Workers = -1
			},
			expectedErrors: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			tt.modify(cfg)
			problems := cfg.Validate()

			if len(problems) != tt.expectedErrors {
				t.Errorf("Expected %d errors, got %d: %v", tt.expectedErrors, len(problems), problems)
			}
			if tt.contains != "" && (len(problems) == 0 || !strings.Contains(problems[0], tt.contains)) {
				t.Errorf("Expected error mentioning '%s', got %v", tt.contains, problems)
			}
		})
	}
}

func TestLoadServerConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9200
storage:
  driver: badger
  data_dir: /var/lib/pipelines
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("SEARCH_PIPELINE_LOG_FORMAT", "console")
	t.Setenv("SEARCH_PIPELINE_BATCH_WORKERS", "3")

	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Server.Port != 9200 {
		t.Errorf("Expected port 9200 from file, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Driver != StorageBadger || cfg.Storage.DataDir != "/var/lib/pipelines" {
		t.Errorf("Unexpected storage settings: %+v", cfg.Storage)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level from file, got '%s'", cfg.Log.Level)
	}
	if cfg.Log.Format != LogFormatConsole {
		t.Errorf("Expected log format from environment, got '%s'", cfg.Log.Format)
	}
	if cfg.Batch.Workers != 3 {
		t.Errorf("Expected 3 workers from environment, got %d", cfg.Batch.Workers)
	}
	if cfg.Server.MaxRequestBytes != 10<<20 {
		t.Errorf("Expected default max request bytes, got %d", cfg.Server.MaxRequestBytes)
	}
}

func TestLoadServerConfig_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9200\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("SEARCH_PIPELINE_SERVER_PORT", "9300")

	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Server.Port != 9300 {
		t.Errorf("Expected port 9300 from environment, got %d", cfg.Server.Port)
	}
}

func TestLoadServerConfig_Errors(t *testing.T) {
	if _, err := LoadServerConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  driver: sqlite\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	_, err := LoadServerConfig(path)
	if !errors.Is(err, apperrors.ErrInvalidConfiguration) {
		t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
	}
}

package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/gcbaptista/go-search-pipeline/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name        string
		expected    zapcore.Level
		expectError bool
	}{
		{name: "debug", expected: zapcore.DebugLevel},
		{name: "INFO", expected: zapcore.InfoLevel},
		{name: "", expected: zapcore.InfoLevel},
		{name: "warn", expected: zapcore.WarnLevel},
		{name: "error", expected: zapcore.ErrorLevel},
		{name: "trace", expected: zapcore.InfoLevel, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, err := ParseLevel(tt.name)
			if (err != nil) != tt.expectError {
				t.Fatalf("Unexpected error state: %v", err)
			}
			if level != tt.expected {
				t.Errorf("Expected level %s, got %s", tt.expected, level)
			}
		})
	}
}

func TestNew(t *testing.T) {
	for _, format := range []string{config.LogFormatJSON, config.LogFormatConsole} {
		logger, err := New(config.LogConfig{Level: "warn", Format: format})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", format, err)
		}
		if logger.Core().Enabled(zapcore.InfoLevel) {
			t.Errorf("%s: info should be disabled at warn level", format)
		}
		if !logger.Core().Enabled(zapcore.ErrorLevel) {
			t.Errorf("%s: error should be enabled at warn level", format)
		}
	}

	if _, err := New(config.LogConfig{Level: "loud"}); err == nil {
		t.Error("Expected error for unknown level")
	}
}

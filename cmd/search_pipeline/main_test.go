package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gcbaptista/go-search-pipeline/config"
	apperrors "github.com/gcbaptista/go-search-pipeline/internal/errors"
	"github.com/gcbaptista/go-search-pipeline/model"
)

const testPipelines = `
pipelines:
  - name: sparse
    request_processors:
      - neural_sparse_two_phase_processor:
          two_phase_parameter:
            expansion_rate: 3
  - name: broken
    request_processors:
      - neural_sparse_two_phase_processor:
          two_phase_parameter:
            max_window_size: 10
`

const testRequest = `{"query":{"neural_sparse":{"passage_embedding":{"query_tokens":{"hello":1.0,"world":0.6,"greeting":0.3}}}},"size":4}`

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func runApp(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.Reader = strings.NewReader(stdin)
	err := app.Run(append([]string{"search-pipeline"}, args...))
	return out.String(), err
}

func TestTransformCommand(t *testing.T) {
	pipelines := writeTestFile(t, "pipelines.yaml", testPipelines)

	output, err := runApp(t, testRequest, "transform", "--pipeline", pipelines, "--name", "sparse")
	if err != nil {
		t.Fatalf("transform failed: %v", err)
	}

	var req model.SearchRequest
	if err := json.Unmarshal([]byte(output), &req); err != nil {
		t.Fatalf("Failed to decode output %q: %v", output, err)
	}
	if req.Query == nil || req.Query.Kind != model.KindNeuralSparse {
		t.Fatalf("Expected a neural_sparse query, got %+v", req.Query)
	}
	if got := req.Query.Sparse.QueryTokens; len(got) != 2 || got["hello"] != 1.0 || got["world"] != 0.6 {
		t.Errorf("Expected high tokens {hello, world}, got %v", got)
	}
	if len(req.Rescores) != 1 || req.Rescores[0].WindowSize == nil || *req.Rescores[0].WindowSize != 12 {
		t.Fatalf("Expected one rescore with window 12, got %+v", req.Rescores)
	}
}

func TestTransformCommand_RequestFile(t *testing.T) {
	pipelines := writeTestFile(t, "pipeline.json",
		`{"request_processors":[{"neural_sparse_two_phase_processor":{}}]}`)
	request := writeTestFile(t, "request.json", testRequest)

	output, err := runApp(t, "", "transform", "-p", pipelines, "-r", request)
	if err != nil {
		t.Fatalf("transform failed: %v", err)
	}
	if !strings.Contains(output, `"window_size": 20`) {
		t.Errorf("Expected a rescore window of 20, got:\n%s", output)
	}
}

func TestTransformCommand_Errors(t *testing.T) {
	pipelines := writeTestFile(t, "pipelines.yaml", testPipelines)

	tests := []struct {
		name      string
		stdin     string
		args      []string
		wantError string
		invalid   bool
	}{
		{
			name:      "several pipelines without name",
			stdin:     testRequest,
			args:      []string{"transform", "--pipeline", pipelines},
			wantError: "pick one with --name",
		},
		{
			name:      "unknown pipeline name",
			stdin:     testRequest,
			args:      []string{"transform", "--pipeline", pipelines, "--name", "missing"},
			wantError: "is not defined",
		},
		{
			name:      "invalid pipeline",
			stdin:     testRequest,
			args:      []string{"transform", "--pipeline", pipelines, "--name", "broken"},
			wantError: "max_window_size",
		},
		{
			name:      "invalid request",
			stdin:     `{"query":`,
			args:      []string{"transform", "--pipeline", pipelines, "--name", "sparse"},
			wantError: "failed to parse search request",
			invalid:   true,
		},
		{
			name:      "invalid query",
			stdin:     `{"query":{"neural_sparse":{"f":{"query_tokens":{"a":-1}}}}}`,
			args:      []string{"transform", "--pipeline", pipelines, "--name", "sparse"},
			wantError: "negative weight",
			invalid:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runApp(t, tt.stdin, tt.args...)
			if err == nil {
				t.Fatalf("Expected error containing '%s', got nil", tt.wantError)
			}
			if !strings.Contains(err.Error(), tt.wantError) {
				t.Errorf("Expected error containing '%s', got '%v'", tt.wantError, err)
			}
			if tt.invalid && !errors.Is(err, apperrors.ErrInvalidRequest) {
				t.Errorf("Expected error to match ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestValidateCommand(t *testing.T) {
	pipelines := writeTestFile(t, "pipelines.yaml", testPipelines)

	output, err := runApp(t, "", "validate", "--pipeline", pipelines)
	if err == nil {
		t.Fatal("Expected validate to fail for the broken pipeline")
	}
	if !strings.Contains(err.Error(), "1 of 2 pipelines") {
		t.Errorf("Expected '1 of 2 pipelines' in error, got '%v'", err)
	}
	if !strings.Contains(output, "pipeline sparse: ok (1 processors)") {
		t.Errorf("Expected sparse to validate, got:\n%s", output)
	}
	if !strings.Contains(output, "pipeline broken:") {
		t.Errorf("Expected broken to be reported, got:\n%s", output)
	}

	valid := writeTestFile(t, "valid.yaml", `
name: only
request_processors:
  - neural_sparse_two_phase_processor: {}
`)
	if _, err := runApp(t, "", "validate", "--pipeline", valid); err != nil {
		t.Errorf("Expected valid file to pass, got %v", err)
	}
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	for _, driver := range []string{config.StorageMemory, config.StorageGob, config.StorageBadger} {
		t.Run(driver, func(t *testing.T) {
			store, err := openStore(config.StorageSettings{Driver: driver, DataDir: filepath.Join(dir, driver)}, nil)
			if err != nil {
				t.Fatalf("openStore(%s) failed: %v", driver, err)
			}
			if err := store.Close(); err != nil {
				t.Errorf("Close failed: %v", err)
			}
		})
	}

	if _, err := openStore(config.StorageSettings{Driver: "sqlite"}, nil); err == nil {
		t.Error("Expected unknown driver to fail")
	}
}

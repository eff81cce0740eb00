package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/gcbaptista/go-search-pipeline/internal/errors"
)

const pipelinesYAML = `
pipelines:
  - name: sparse
    description: default two-phase rewrite
    request_processors:
      - neural_sparse_two_phase_processor:
          tag: tp
          two_phase_parameter:
            prune_ratio: 0.5
            expansion_rate: 2
  - name: disabled
    request_processors:
      - neural_sparse_two_phase_processor:
          enabled: false
`

const singleJSON = `{
  "description": "single",
  "request_processors": [
    {"neural_sparse_two_phase_processor": {"two_phase_parameter": {"max_window_size": 100}}}
  ]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefinitionsFile(t *testing.T) {
	defs, err := LoadDefinitionsFile(writeFile(t, "pipelines.yaml", pipelinesYAML))
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "sparse", defs[0].Name)
	assert.Equal(t, "default two-phase rewrite", defs[0].Description)
	require.Len(t, defs[0].RequestProcessors, 1)
	assert.Equal(t, "neural_sparse_two_phase_processor", defs[0].RequestProcessors[0].Type)
	assert.Equal(t, "tp", defs[0].RequestProcessors[0].Config["tag"])
	assert.Equal(t, "disabled", defs[1].Name)

	defs, err = LoadDefinitionsFile(writeFile(t, "single.json", singleJSON))
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Empty(t, defs[0].Name)
	assert.Equal(t, "single", defs[0].Description)
	require.Len(t, defs[0].RequestProcessors, 1)

	_, err = LoadDefinitionsFile(writeFile(t, "broken.json", `{"request_processors": [`))
	assert.Error(t, err)

	_, err = LoadDefinitionsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBootstrap(t *testing.T) {
	r := newTestRegistry(t, NewMemoryStore(), Options{})
	ctx := context.Background()

	require.NoError(t, Bootstrap(ctx, r, writeFile(t, "pipelines.yaml", pipelinesYAML), zap.NewNop()))
	assert.Equal(t, []string{"disabled", "sparse"}, r.List())

	out, err := r.Process(ctx, "sparse", sparseRequest(10))
	require.NoError(t, err)
	require.Len(t, out.Rescores, 1)
	assert.Equal(t, 20, *out.Rescores[0].WindowSize)

	out, err = r.Process(ctx, "disabled", sparseRequest(10))
	require.NoError(t, err)
	assert.Empty(t, out.Rescores)
}

func TestBootstrap_Errors(t *testing.T) {
	r := newTestRegistry(t, NewMemoryStore(), Options{})
	ctx := context.Background()

	err := Bootstrap(ctx, r, writeFile(t, "single.json", singleJSON), nil)
	assert.ErrorContains(t, err, "has no name")

	invalid := `
pipelines:
  - name: bad
    request_processors:
      - neural_sparse_two_phase_processor:
          two_phase_parameter:
            prune_ratio: 2
`
	err = Bootstrap(ctx, r, writeFile(t, "invalid.yaml", invalid), nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)
	assert.Empty(t, r.List())
}

// Package testing provides utilities and helpers for testing search pipelines.
package testing

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gcbaptista/go-search-pipeline/config"
	"github.com/gcbaptista/go-search-pipeline/internal/pipeline"
	"github.com/gcbaptista/go-search-pipeline/model"
)

// SampleTokens is the token map used by sample requests. At the default prune ratio of 0.4,
// "hello" and "world" stay in the query and "greeting" and "planet" move to the rescore.
var SampleTokens = map[string]float64{
	"hello":    1.0,
	"world":    0.6,
	"greeting": 0.3,
	"planet":   0.1,
}

// SampleField is the sparse field targeted by sample requests.
const SampleField = "passage_embedding"

// CreateTestRegistry creates a registry on an in-memory store, closed when the test ends.
func CreateTestRegistry(t *testing.T) *pipeline.Registry {
	t.Helper()
	r, err := pipeline.NewRegistry(pipeline.NewMemoryStore(), pipeline.Options{
		Dependencies: pipeline.Dependencies{Logger: zap.NewNop()},
		Workers:      4,
	})
	require.NoError(t, err, "Failed to create test registry")
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// TwoPhaseDefinition returns a pipeline with a single two-phase processor.
// params become its two_phase_parameter block when not nil.
func TwoPhaseDefinition(params map[string]any) model.PipelineDefinition {
	cfg := map[string]any{config.KeyTag: "two-phase"}
	if params != nil {
		cfg[config.KeyTwoPhaseParams] = params
	}
	return model.PipelineDefinition{
		Description: "neural sparse two-phase",
		RequestProcessors: []model.ProcessorDefinition{
			{Type: config.TwoPhaseProcessorType, Config: cfg},
		},
	}
}

// CreateTestPipeline stores a two-phase pipeline under name.
func CreateTestPipeline(t *testing.T, r *pipeline.Registry, name string, params map[string]any) model.PipelineDefinition {
	t.Helper()
	def, err := r.Put(context.Background(), name, TwoPhaseDefinition(params))
	require.NoError(t, err, "Failed to create test pipeline")
	return def
}

// SampleSearchRequest returns a request with one neural_sparse clause under a bool should.
func SampleSearchRequest(size int) *model.SearchRequest {
	tokens := make(map[string]float64, len(SampleTokens))
	for token, weight := range SampleTokens {
		tokens[token] = weight
	}
	req := model.NewSearchRequest(model.ShouldOf(model.NewSparse(&model.SparseQuery{
		Field:       SampleField,
		QueryTokens: tokens,
		Boost:       model.DefaultBoost,
	})))
	req.Size = size
	return req
}

// SampleSearchRequestJSON is SampleSearchRequest encoded as a request body.
func SampleSearchRequestJSON(t *testing.T, size int) []byte {
	t.Helper()
	data, err := json.Marshal(SampleSearchRequest(size))
	require.NoError(t, err, "Failed to encode sample request")
	return data
}

// AssertSampleRewritten checks that a sample request was rewritten at the default prune ratio
// with the given rescore window.
func AssertSampleRewritten(t *testing.T, req *model.SearchRequest, windowSize int) {
	t.Helper()
	require.NotNil(t, req.Query, "rewritten request has no query")
	require.Equal(t, model.KindBool, req.Query.Kind)

	clause := req.Query.Bool.Should[0].Sparse
	assert.Equal(t, map[string]float64{"hello": 1.0, "world": 0.6}, clause.QueryTokens)

	require.Len(t, req.Rescores, 1, "expected a single two-phase rescore")
	rescore := req.Rescores[0]
	require.NotNil(t, rescore.WindowSize)
	assert.Equal(t, windowSize, *rescore.WindowSize)

	should := rescore.Query.RescoreQuery.Bool.Should
	require.Len(t, should, 1)
	assert.Equal(t, SampleField, should[0].Sparse.Field)
	assert.Equal(t, map[string]float64{"greeting": 0.3, "planet": 0.1}, should[0].Sparse.QueryTokens)
}

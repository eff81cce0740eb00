package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/gcbaptista/go-search-pipeline/internal/twophase"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector(reg, zap.NewNop()), reg
}

func TestCollector_TwoPhase(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ObserveTwoPhase("tp", twophase.Stats{
		Outcome:        twophase.OutcomeRewritten,
		Clauses:        2,
		RescoreClauses: 1,
		HighTokens:     4,
		LowTokens:      2,
		WindowSize:     50,
	})
	c.ObserveTwoPhase("tp", twophase.Stats{Outcome: twophase.OutcomeNoClauses})
	c.ObserveTwoPhase("tp", twophase.Stats{Outcome: twophase.OutcomeNoClauses})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.twoPhaseRequests.WithLabelValues("tp", twophase.OutcomeRewritten)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.twoPhaseRequests.WithLabelValues("tp", twophase.OutcomeNoClauses)))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.twoPhaseTokens.WithLabelValues("tp", "high")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.twoPhaseTokens.WithLabelValues("tp", "low")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.twoPhaseWindowSize))
}

func TestCollector_Pipeline(t *testing.T) {
	c, reg := newTestCollector(t)

	c.RecordPipelineRun("sparse", nil, time.Millisecond)
	c.RecordPipelineRun("sparse", errors.New("boom"), time.Millisecond)
	c.RecordProcessorFailure("neural_sparse_two_phase_processor", true)
	c.RecordHTTPRequest("POST", "/_search/pipeline/:name/_process", 200, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.pipelineRequestsTotal.WithLabelValues("sparse", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.pipelineRequestsTotal.WithLabelValues("sparse", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.processorFailures.WithLabelValues("neural_sparse_two_phase_processor", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/_search/pipeline/:name/_process", "200")))

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		newTestCollector(t)
		newTestCollector(t)
	})
}

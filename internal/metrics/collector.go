// Package metrics exposes prometheus metrics for pipelines, processors and the HTTP API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/gcbaptista/go-search-pipeline/internal/twophase"
)

// Namespace prefixes every metric name.
const Namespace = "search_pipeline"

// Collector records pipeline, two-phase and HTTP metrics.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	pipelineRequestsTotal *prometheus.CounterVec
	pipelineDuration      *prometheus.HistogramVec
	processorFailures     *prometheus.CounterVec

	twoPhaseRequests   *prometheus.CounterVec
	twoPhaseTokens     *prometheus.CounterVec
	twoPhaseClauses    prometheus.Histogram
	twoPhaseWindowSize prometheus.Histogram

	logger *zap.Logger
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer, logger *zap.Logger) *Collector {
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.pipelineRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pipeline_requests_total",
			Help:      "Search requests run through a pipeline, by result",
		},
		[]string{"pipeline", "result"},
	)

	c.pipelineDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Time spent running a search request through a pipeline",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		},
		[]string{"pipeline"},
	)

	c.processorFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "processor_failures_total",
			Help:      "Request processor failures, by processor type and whether the failure was ignored",
		},
		[]string{"type", "ignored"},
	)

	c.twoPhaseRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "two_phase_requests_total",
			Help:      "Requests seen by neural sparse two-phase processors, by outcome",
		},
		[]string{"tag", "outcome"},
	)

	c.twoPhaseTokens = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "two_phase_tokens_total",
			Help:      "Query tokens kept in the first phase (high) or moved to the rescore (low)",
		},
		[]string{"tag", "phase"},
	)

	c.twoPhaseClauses = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "two_phase_rescore_clauses",
			Help:      "Distinct neural_sparse clauses in each two-phase rescore query",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		},
	)

	c.twoPhaseWindowSize = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "two_phase_window_size",
			Help:      "Rescore window size of two-phase rewrites",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 11),
		},
	)

	return c
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordPipelineRun records one request processed by a pipeline.
func (c *Collector) RecordPipelineRun(pipeline string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.pipelineRequestsTotal.WithLabelValues(pipeline, result).Inc()
	c.pipelineDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
}

// RecordProcessorFailure records a failing request processor.
func (c *Collector) RecordProcessorFailure(processorType string, ignored bool) {
	c.processorFailures.WithLabelValues(processorType, strconv.FormatBool(ignored)).Inc()
}

// ObserveTwoPhase implements twophase.Observer.
func (c *Collector) ObserveTwoPhase(tag string, stats twophase.Stats) {
	c.twoPhaseRequests.WithLabelValues(tag, stats.Outcome).Inc()
	if stats.Outcome != twophase.OutcomeRewritten {
		return
	}
	c.twoPhaseTokens.WithLabelValues(tag, "high").Add(float64(stats.HighTokens))
	c.twoPhaseTokens.WithLabelValues(tag, "low").Add(float64(stats.LowTokens))
	c.twoPhaseClauses.Observe(float64(stats.RescoreClauses))
	c.twoPhaseWindowSize.Observe(float64(stats.WindowSize))
}

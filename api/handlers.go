package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gcbaptista/go-search-pipeline/model"
	"github.com/gcbaptista/go-search-pipeline/services"
)

// DefaultMaxBatchRequests bounds a multi-process body when Options.MaxBatchRequests is unset.
const DefaultMaxBatchRequests = 1000

// Options configures the router beyond the pipeline service.
type Options struct {
	Logger           *zap.Logger
	Metrics          HTTPRecorder        // request metrics; skipped when nil
	Gatherer         prometheus.Gatherer // served on /metrics when set
	MaxRequestBytes  int64               // body size limit; no limit when zero
	MaxBatchRequests int
}

// API holds dependencies for API handlers, primarily the pipeline service.
type API struct {
	pipelines        services.PipelineService
	logger           *zap.Logger
	maxBatchRequests int
}

// NewAPI creates a new API handler structure.
func NewAPI(pipelines services.PipelineService, opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBatch := opts.MaxBatchRequests
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatchRequests
	}
	return &API{
		pipelines:        pipelines,
		logger:           logger,
		maxBatchRequests: maxBatch,
	}
}

// SetupRoutes installs the middleware chain and defines all the API routes of the pipeline service.
func SetupRoutes(router *gin.Engine, pipelines services.PipelineService, opts Options) {
	apiHandler := NewAPI(pipelines, opts)

	router.Use(RequestIDMiddleware(), LoggerMiddleware(apiHandler.logger), CORSMiddleware())
	if opts.Metrics != nil {
		router.Use(MetricsMiddleware(opts.Metrics))
	}
	if opts.MaxRequestBytes > 0 {
		router.Use(RequestSizeLimitMiddleware(opts.MaxRequestBytes))
	}

	// Health check route
	router.GET("/health", apiHandler.HealthCheckHandler)

	// Prometheus exposition
	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	// Search pipeline routes
	pipelineRoutes := router.Group("/_search/pipeline")
	{
		pipelineRoutes.GET("", apiHandler.ListPipelinesHandler)                 // List pipeline names
		pipelineRoutes.POST("/_simulate", apiHandler.SimulateHandler)           // Run a request through an unsaved pipeline
		pipelineRoutes.PUT("/:name", apiHandler.PutPipelineHandler)             // Create or replace a pipeline
		pipelineRoutes.GET("/:name", apiHandler.GetPipelineHandler)             // Get a pipeline definition
		pipelineRoutes.DELETE("/:name", apiHandler.DeletePipelineHandler)       // Delete a pipeline
		pipelineRoutes.POST("/:name/_process", apiHandler.ProcessHandler)       // Rewrite one search request
		pipelineRoutes.POST("/:name/_mprocess", apiHandler.MultiProcessHandler) // Rewrite a batch of search requests
	}
}

// HealthCheckHandler provides a simple health check endpoint
func (api *API) HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "go-search-pipeline",
		"pipelines": len(api.pipelines.List()),
		"timestamp": fmt.Sprintf("%d", time.Now().Unix()),
	})
}

// ListPipelinesHandler returns the names of all stored pipelines.
func (api *API) ListPipelinesHandler(c *gin.Context) {
	names := api.pipelines.List()
	c.JSON(http.StatusOK, gin.H{
		"pipelines": names,
		"total":     len(names),
	})
}

// PutPipelineHandler creates or replaces a pipeline.
// Request Body: model.PipelineDefinition
func (api *API) PutPipelineHandler(c *gin.Context) {
	name := c.Param("name")
	if result := ValidatePipelineName(name); result.HasErrors() {
		SendStructuredValidationError(c, result)
		return
	}

	var def model.PipelineDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		sendBindError(c, err)
		return
	}

	if result := ValidatePipelineDefinition(&def); result.HasErrors() {
		SendStructuredValidationError(c, result)
		return
	}

	stored, err := api.pipelines.Put(c.Request.Context(), name, def)
	if err != nil {
		SendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"acknowledged": true,
		"name":         stored.Name,
		"version":      stored.Version,
	})
}

// GetPipelineHandler returns a pipeline definition.
func (api *API) GetPipelineHandler(c *gin.Context) {
	name := c.Param("name")
	def, err := api.pipelines.Get(name)
	if err != nil {
		SendServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

// DeletePipelineHandler deletes a pipeline.
func (api *API) DeletePipelineHandler(c *gin.Context) {
	name := c.Param("name")
	if err := api.pipelines.Delete(name); err != nil {
		SendServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

// ProcessHandler runs one search request through a stored pipeline and returns the rewritten request.
// Request Body: search request
func (api *API) ProcessHandler(c *gin.Context) {
	name := c.Param("name")

	raw, err := c.GetRawData()
	if err != nil {
		SendBodyReadError(c, err)
		return
	}

	req, ok := bindSearchRequest(c, raw)
	if !ok {
		return
	}

	out, err := api.pipelines.Process(c.Request.Context(), name, req)
	if err != nil {
		SendServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// MultiProcessRequest is the body of a multi-process call.
type MultiProcessRequest struct {
	Requests []json.RawMessage `json:"requests"`
}

// MultiProcessItem is the result of one request of a multi-process call.
type MultiProcessItem struct {
	ID      string               `json:"id"`
	Status  int                  `json:"status"`
	Request *model.SearchRequest `json:"request,omitempty"`
	Error   *ItemError           `json:"error,omitempty"`
}

// ItemError describes why one request of a batch failed.
type ItemError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// MultiProcessHandler runs a batch of search requests through a stored pipeline.
// Requests that cannot be parsed fail individually; the rest of the batch still runs.
// Request Body: MultiProcessRequest
func (api *API) MultiProcessHandler(c *gin.Context) {
	name := c.Param("name")
	start := time.Now()

	if _, err := api.pipelines.Get(name); err != nil {
		SendServiceError(c, err)
		return
	}

	var body MultiProcessRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		sendBindError(c, err)
		return
	}

	if result := ValidateBatchSize(len(body.Requests), api.maxBatchRequests); result.HasErrors() {
		SendStructuredValidationError(c, result)
		return
	}

	items := make([]MultiProcessItem, len(body.Requests))
	reqs := make([]*model.SearchRequest, 0, len(body.Requests))
	positions := make([]int, 0, len(body.Requests))
	for i, raw := range body.Requests {
		req, code, err := parseSearchRequest(raw)
		if err != nil {
			items[i] = MultiProcessItem{
				ID:     uuid.NewString(),
				Status: http.StatusBadRequest,
				Error:  &ItemError{Code: code, Message: err.Error()},
			}
			continue
		}
		reqs = append(reqs, req)
		positions = append(positions, i)
	}

	if len(reqs) > 0 {
		results, err := api.pipelines.ProcessBatch(c.Request.Context(), name, reqs)
		if err != nil {
			SendServiceError(c, err)
			return
		}
		for j, result := range results {
			item := MultiProcessItem{ID: result.ID, Status: http.StatusOK, Request: result.Request}
			if result.Err != nil {
				status, code := ClassifyError(result.Err)
				item = MultiProcessItem{
					ID:     result.ID,
					Status: status,
					Error:  &ItemError{Code: code, Message: result.Err.Error()},
				}
			}
			items[positions[j]] = item
		}
	}

	failed := 0
	for _, item := range items {
		if item.Error != nil {
			failed++
		}
	}
	api.logger.Debug("Processed search request batch",
		zap.String("pipeline", name),
		zap.Int("requests", len(items)),
		zap.Int("failed", failed))

	c.JSON(http.StatusOK, gin.H{
		"took":   time.Since(start).Milliseconds(),
		"errors": failed > 0,
		"failed": failed,
		"items":  items,
	})
}

// SimulateRequest is the body of a simulate call.
type SimulateRequest struct {
	Pipeline model.PipelineDefinition `json:"pipeline"`
	Request  json.RawMessage          `json:"request"`
}

// SimulateHandler runs a search request through a pipeline definition without storing it.
// Request Body: SimulateRequest
func (api *API) SimulateHandler(c *gin.Context) {
	var body SimulateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		sendBindError(c, err)
		return
	}

	if result := ValidatePipelineDefinition(&body.Pipeline); result.HasErrors() {
		SendStructuredValidationError(c, result)
		return
	}

	req, ok := bindSearchRequest(c, body.Request)
	if !ok {
		return
	}

	out, err := api.pipelines.Simulate(c.Request.Context(), body.Pipeline, req)
	if err != nil {
		SendServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// parseSearchRequest decodes a search request body. An empty body is an empty request.
func parseSearchRequest(raw []byte) (*model.SearchRequest, ErrorCode, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return model.NewSearchRequest(nil), "", nil
	}
	if !json.Valid(raw) {
		return nil, ErrorCodeInvalidJSON, errors.New("search request is not valid JSON")
	}

	var req model.SearchRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, ErrorCodeInvalidQuery, err
	}

	if result := ValidateSearchRequest(&req); result.HasErrors() {
		first := result.Errors[0]
		return nil, ErrorCodeValidationFailed, fmt.Errorf("%s: %s", first.Field, first.Message)
	}
	return &req, "", nil
}

// bindSearchRequest parses raw and sends the matching error response when it cannot.
func bindSearchRequest(c *gin.Context, raw []byte) (*model.SearchRequest, bool) {
	req, code, err := parseSearchRequest(raw)
	if err == nil {
		return req, true
	}
	switch code {
	case ErrorCodeInvalidJSON:
		SendInvalidJSONError(c, err)
	case ErrorCodeInvalidQuery:
		SendInvalidQueryError(c, err)
	default:
		SendError(c, http.StatusBadRequest, code, err.Error())
	}
	return nil, false
}

func sendBindError(c *gin.Context, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		SendBodyReadError(c, err)
		return
	}
	SendInvalidJSONError(c, err)
}

// Package api provides the HTTP API of the search pipeline service.
package api

import (
	"fmt"
	"strings"

	"github.com/gcbaptista/go-search-pipeline/internal/pipeline"
	"github.com/gcbaptista/go-search-pipeline/model"
)

// ValidationError represents a validation error with field context
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of validation operations
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// AddError adds a validation error to the result
func (vr *ValidationResult) AddError(field, message string) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// ValidatePipelineName validates a pipeline name path parameter
func ValidatePipelineName(name string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if name == "" {
		result.AddError("name", "Pipeline name is required")
		return result
	}

	if strings.TrimSpace(name) != name {
		result.AddError("name", "Pipeline name cannot have leading or trailing whitespace")
		return result
	}

	if err := pipeline.ValidateName(name); err != nil {
		result.AddError("name", err.Error())
	}

	return result
}

// ValidatePipelineDefinition checks the shape of a definition. Processor options are
// checked by the processors themselves when the pipeline is built.
func ValidatePipelineDefinition(def *model.PipelineDefinition) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if def == nil {
		result.AddError("pipeline", "Pipeline definition is required")
		return result
	}

	for i, processor := range def.RequestProcessors {
		field := fmt.Sprintf("request_processors[%d]", i)
		if strings.TrimSpace(processor.Type) == "" {
			result.AddError(field, "Processor type is required")
		}
		if processor.Config == nil {
			result.AddError(field, "Processor configuration must be an object")
		}
	}

	return result
}

// ValidateSearchRequest checks a decoded search request before processing
func ValidateSearchRequest(req *model.SearchRequest) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if req == nil {
		result.AddError("request", "Search request is required")
		return result
	}

	if req.Size < model.SizeUnset {
		result.AddError("size", fmt.Sprintf("size must be non-negative, got %d", req.Size))
	}

	if err := req.Validate(); err != nil {
		result.AddError("query", err.Error())
	}

	return result
}

// ValidateBatchSize checks the number of requests in a multi-process body
func ValidateBatchSize(count, maxRequests int) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if count == 0 {
		result.AddError("requests", "At least one search request is required")
	} else if maxRequests > 0 && count > maxRequests {
		result.AddError("requests", fmt.Sprintf("At most %d search requests are allowed, got %d", maxRequests, count))
	}

	return result
}

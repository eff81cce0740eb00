package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/gcbaptista/go-search-pipeline/internal/errors"
)

// ErrorCode represents standardized error codes for the API
type ErrorCode string

const (
	// Client Error Codes (4xx)
	ErrorCodeValidationFailed       ErrorCode = "VALIDATION_FAILED"
	ErrorCodePipelineNotFound       ErrorCode = "PIPELINE_NOT_FOUND"
	ErrorCodeInvalidJSON            ErrorCode = "INVALID_JSON"
	ErrorCodeInvalidQuery           ErrorCode = "INVALID_QUERY"
	ErrorCodeInvalidProcessorConfig ErrorCode = "INVALID_PROCESSOR_CONFIG"
	ErrorCodeUnknownProcessor       ErrorCode = "UNKNOWN_PROCESSOR"
	ErrorCodeWindowSizeOutOfRange   ErrorCode = "WINDOW_SIZE_OUT_OF_RANGE"
	ErrorCodeRequestCanceled        ErrorCode = "REQUEST_CANCELED"
	ErrorCodeRequestTooLarge        ErrorCode = "REQUEST_TOO_LARGE"

	// Server Error Codes (5xx)
	ErrorCodeInternalError    ErrorCode = "INTERNAL_ERROR"
	ErrorCodeProcessingFailed ErrorCode = "PROCESSING_FAILED"
)

// ErrorDetail provides additional context for an error
type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// APIError represents a standardized API error response
type APIError struct {
	Error     string        `json:"error"`
	Code      ErrorCode     `json:"code"`
	Message   string        `json:"message"`
	Details   []ErrorDetail `json:"details,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIErrorResponse creates a standardized error response
func APIErrorResponse(code ErrorCode, message string, details ...ErrorDetail) *APIError {
	return &APIError{
		Error:     "Request failed",
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	}
}

// SendError sends a standardized error response
func SendError(c *gin.Context, statusCode int, code ErrorCode, message string, details ...ErrorDetail) {
	errorResponse := APIErrorResponse(code, message, details...)

	if requestID, exists := c.Get(requestIDKey); exists {
		if id, ok := requestID.(string); ok {
			errorResponse.RequestID = id
		}
	}

	c.JSON(statusCode, errorResponse)
}

// SendStructuredValidationError sends a validation error with structured details
func SendStructuredValidationError(c *gin.Context, result *ValidationResult) {
	details := make([]ErrorDetail, len(result.Errors))
	for i, err := range result.Errors {
		details[i] = ErrorDetail{
			Field:   err.Field,
			Message: err.Message,
			Code:    "VALIDATION_ERROR",
		}
	}

	SendError(c, http.StatusBadRequest, ErrorCodeValidationFailed, "Request validation failed", details...)
}

// SendPipelineNotFoundError sends a standardized pipeline not found error
func SendPipelineNotFoundError(c *gin.Context, name string) {
	SendError(c, http.StatusNotFound, ErrorCodePipelineNotFound,
		"Search pipeline '"+name+"' not found")
}

// SendInvalidJSONError sends a standardized invalid JSON error
func SendInvalidJSONError(c *gin.Context, err error) {
	SendError(c, http.StatusBadRequest, ErrorCodeInvalidJSON,
		"Invalid JSON in request body: "+err.Error())
}

// SendInvalidQueryError sends a standardized error for a search request that cannot be parsed
func SendInvalidQueryError(c *gin.Context, err error) {
	SendError(c, http.StatusBadRequest, ErrorCodeInvalidQuery, err.Error())
}

// SendBodyReadError sends the error for a request body that could not be read
func SendBodyReadError(c *gin.Context, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		SendError(c, http.StatusRequestEntityTooLarge, ErrorCodeRequestTooLarge,
			fmt.Sprintf("Request body exceeds %d bytes", maxBytesErr.Limit))
		return
	}
	SendError(c, http.StatusBadRequest, ErrorCodeInvalidJSON, "Failed to read request body: "+err.Error())
}

// SendInternalError sends a standardized internal server error
func SendInternalError(c *gin.Context, operation string, err error) {
	SendError(c, http.StatusInternalServerError, ErrorCodeInternalError,
		"Internal error during "+operation+": "+err.Error())
}

// ClassifyError maps a service error to its HTTP status and error code.
func ClassifyError(err error) (int, ErrorCode) {
	switch {
	case errors.Is(err, apperrors.ErrPipelineNotFound):
		return http.StatusNotFound, ErrorCodePipelineNotFound
	case errors.Is(err, apperrors.ErrInvalidConfiguration):
		return http.StatusBadRequest, ErrorCodeInvalidProcessorConfig
	case errors.Is(err, apperrors.ErrUnknownProcessor):
		return http.StatusBadRequest, ErrorCodeUnknownProcessor
	case errors.Is(err, apperrors.ErrWindowSize):
		return http.StatusBadRequest, ErrorCodeWindowSizeOutOfRange
	case errors.Is(err, apperrors.ErrInvalidRequest):
		return http.StatusBadRequest, ErrorCodeInvalidQuery
	case errors.Is(err, apperrors.ErrInvalidArgument):
		return http.StatusBadRequest, ErrorCodeValidationFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, ErrorCodeRequestCanceled
	default:
		return http.StatusInternalServerError, ErrorCodeProcessingFailed
	}
}

// SendServiceError sends the error returned by the pipeline service with its mapped status.
func SendServiceError(c *gin.Context, err error) {
	status, code := ClassifyError(err)
	SendError(c, status, code, err.Error())
}

package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// ErrInvalidConfiguration is returned when a processor or server configuration is rejected
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidArgument is returned when an internal operation is called with an argument it cannot accept
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrWindowSize is returned when a rescore window size falls outside its allowed range
	ErrWindowSize = errors.New("window size out of range")

	// ErrPipelineNotFound is returned when a pipeline is not found
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrUnknownProcessor is returned when a pipeline references an unregistered processor type
	ErrUnknownProcessor = errors.New("unknown processor type")

	// ErrInvalidRequest is returned when a search request cannot be parsed or validated
	ErrInvalidRequest = errors.New("invalid search request")
)

// ConfigurationError represents a rejected configuration value with context
type ConfigurationError struct {
	Processor string
	Field     string
	Message   string
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Processor != "" && e.Field != "":
		return fmt.Sprintf("[%s] configuration error for '%s': %s", e.Processor, e.Field, e.Message)
	case e.Field != "":
		return fmt.Sprintf("configuration error for '%s': %s", e.Field, e.Message)
	default:
		return fmt.Sprintf("configuration error: %s", e.Message)
	}
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(processor, field, message string) *ConfigurationError {
	return &ConfigurationError{Processor: processor, Field: field, Message: message}
}

// InvalidArgumentError represents a contract violation by a caller
type InvalidArgumentError struct {
	Argument string
	Message  string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument '%s': %s", e.Argument, e.Message)
}

func (e *InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// NewInvalidArgumentError creates a new InvalidArgumentError
func NewInvalidArgumentError(argument, message string) *InvalidArgumentError {
	return &InvalidArgumentError{Argument: argument, Message: message}
}

// WindowSizeError represents a rescore window that cannot be applied to a request
type WindowSizeError struct {
	WindowSize int64
	Max        int
}

func (e *WindowSizeError) Error() string {
	return fmt.Sprintf("the two-phase window size of neural_sparse_two_phase_processor should be [0,%d], but got %d", e.Max, e.WindowSize)
}

func (e *WindowSizeError) Is(target error) bool {
	return target == ErrWindowSize
}

// NewWindowSizeError creates a new WindowSizeError
func NewWindowSizeError(windowSize int64, max int) *WindowSizeError {
	return &WindowSizeError{WindowSize: windowSize, Max: max}
}

// PipelineNotFoundError represents a pipeline not found error with context
type PipelineNotFoundError struct {
	Name string
}

func (e *PipelineNotFoundError) Error() string {
	return fmt.Sprintf("search pipeline named '%s' not found", e.Name)
}

func (e *PipelineNotFoundError) Is(target error) bool {
	return target == ErrPipelineNotFound
}

// NewPipelineNotFoundError creates a new PipelineNotFoundError
func NewPipelineNotFoundError(name string) *PipelineNotFoundError {
	return &PipelineNotFoundError{Name: name}
}

// UnknownProcessorError represents a processor type with no registered factory
type UnknownProcessorError struct {
	Type string
}

func (e *UnknownProcessorError) Error() string {
	return fmt.Sprintf("no request processor of type '%s' is registered", e.Type)
}

func (e *UnknownProcessorError) Is(target error) bool {
	return target == ErrUnknownProcessor
}

// NewUnknownProcessorError creates a new UnknownProcessorError
func NewUnknownProcessorError(processorType string) *UnknownProcessorError {
	return &UnknownProcessorError{Type: processorType}
}

// InvalidRequestError wraps a parse or validation failure of a search request
type InvalidRequestError struct {
	Err error
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid search request: %v", e.Err)
}

func (e *InvalidRequestError) Unwrap() error {
	return e.Err
}

func (e *InvalidRequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// NewInvalidRequestError creates a new InvalidRequestError
func NewInvalidRequestError(err error) *InvalidRequestError {
	return &InvalidRequestError{Err: err}
}

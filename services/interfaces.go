package services

import (
	"context"

	"github.com/gcbaptista/go-search-pipeline/model"
)

// BatchItem is the outcome of one request of a batch.
type BatchItem struct {
	ID      string               // unique id of the item within the batch
	Request *model.SearchRequest // rewritten request, nil when Err is set
	Err     error
}

// PipelineManager manages the lifecycle of search pipelines
type PipelineManager interface {
	// Put creates or replaces a pipeline and returns the stored definition.
	Put(ctx context.Context, name string, def model.PipelineDefinition) (model.PipelineDefinition, error)
	Get(name string) (model.PipelineDefinition, error)
	Delete(name string) error
	List() []string
}

// RequestRewriter runs search requests through pipelines
type RequestRewriter interface {
	Process(ctx context.Context, name string, req *model.SearchRequest) (*model.SearchRequest, error)
	// ProcessBatch fails as a whole only when the pipeline does not exist; per-request
	// failures are reported in the items.
	ProcessBatch(ctx context.Context, name string, reqs []*model.SearchRequest) ([]BatchItem, error)
	// Simulate builds a pipeline from def and runs req through it without storing anything.
	Simulate(ctx context.Context, def model.PipelineDefinition, req *model.SearchRequest) (*model.SearchRequest, error)
}

// PipelineService combines pipeline management and request rewriting
type PipelineService interface {
	PipelineManager
	RequestRewriter
}

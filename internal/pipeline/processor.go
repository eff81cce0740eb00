// Package pipeline hosts named search pipelines: ordered request processors built from
// stored definitions, persisted through a Store and run concurrently on search requests.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gcbaptista/go-search-pipeline/config"
	apperrors "github.com/gcbaptista/go-search-pipeline/internal/errors"
	"github.com/gcbaptista/go-search-pipeline/internal/twophase"
	"github.com/gcbaptista/go-search-pipeline/model"
)

// RequestProcessor rewrites a search request before it is executed.
// Implementations must be safe for concurrent use.
type RequestProcessor interface {
	Type() string
	Tag() string
	Description() string
	IgnoreFailure() bool
	ProcessRequest(ctx context.Context, req *model.SearchRequest) (*model.SearchRequest, error)
}

// Recorder receives pipeline metrics.
type Recorder interface {
	RecordPipelineRun(pipeline string, err error, duration time.Duration)
	RecordProcessorFailure(processorType string, ignored bool)
}

// Dependencies are handed to every processor factory.
type Dependencies struct {
	Logger   *zap.Logger
	Observer twophase.Observer
	Recorder Recorder
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}
	return d
}

type nopRecorder struct{}

func (nopRecorder) RecordPipelineRun(string, error, time.Duration) {}
func (nopRecorder) RecordProcessorFailure(string, bool)            {}

// Factory creates a processor from its configuration map. Configuration errors are
// reported here, never at request time.
type Factory func(cfg map[string]any, deps Dependencies) (RequestProcessor, error)

// Factories maps processor types to their factory.
type Factories map[string]Factory

// NewFactories returns the factories of every built-in processor type.
func NewFactories() Factories {
	return Factories{
		config.TwoPhaseProcessorType: newTwoPhaseProcessor,
	}
}

// Build creates the processor described by def.
func (f Factories) Build(def model.ProcessorDefinition, deps Dependencies) (RequestProcessor, error) {
	factory, ok := f[def.Type]
	if !ok {
		return nil, apperrors.NewUnknownProcessorError(def.Type)
	}
	return factory(def.Config, deps)
}

func newTwoPhaseProcessor(cfg map[string]any, deps Dependencies) (RequestProcessor, error) {
	opts := []twophase.Option{twophase.WithLogger(deps.Logger)}
	if deps.Observer != nil {
		opts = append(opts, twophase.WithObserver(deps.Observer))
	}
	p, err := twophase.NewProcessorFromMap(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return p, nil
}

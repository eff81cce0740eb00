package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/gcbaptista/go-search-pipeline/internal/errors"
	"github.com/gcbaptista/go-search-pipeline/model"
)

// Pipeline is an ordered list of request processors. It is immutable once built and safe
// for concurrent use.
type Pipeline struct {
	name        string
	description string
	processors  []RequestProcessor
	logger      *zap.Logger
	recorder    Recorder
}

// Build creates every processor of def. The first configuration error aborts the build.
func Build(name string, def model.PipelineDefinition, factories Factories, deps Dependencies) (*Pipeline, error) {
	deps = deps.withDefaults()
	logger := deps.Logger.With(zap.String("pipeline", name))
	deps.Logger = logger

	processors := make([]RequestProcessor, 0, len(def.RequestProcessors))
	for i, procDef := range def.RequestProcessors {
		processor, err := factories.Build(procDef, deps)
		if err != nil {
			return nil, fmt.Errorf("request_processors[%d] [%s]: %w", i, procDef.Type, err)
		}
		processors = append(processors, processor)
	}

	return &Pipeline{
		name:        name,
		description: def.Description,
		processors:  processors,
		logger:      logger,
		recorder:    deps.Recorder,
	}, nil
}

func (p *Pipeline) Name() string                   { return p.name }
func (p *Pipeline) Description() string            { return p.description }
func (p *Pipeline) Processors() []RequestProcessor { return p.processors }

// Process validates req and runs it through every processor in order. A processor failure aborts the run
// unless the processor ignores failures, in which case the run continues with the request
// as it was before that processor.
func (p *Pipeline) Process(ctx context.Context, req *model.SearchRequest) (out *model.SearchRequest, err error) {
	if req == nil {
		return nil, apperrors.NewInvalidArgumentError("request", "search request cannot be null")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		p.recorder.RecordPipelineRun(p.name, err, time.Since(start))
	}()

	for _, processor := range p.processors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var snapshot *model.SearchRequest
		if processor.IgnoreFailure() {
			snapshot, err = req.Clone()
			if err != nil {
				return nil, err
			}
		}

		next, procErr := processor.ProcessRequest(ctx, req)
		if procErr == nil {
			req = next
			continue
		}

		p.recorder.RecordProcessorFailure(processor.Type(), processor.IgnoreFailure())
		if !processor.IgnoreFailure() {
			return nil, fmt.Errorf("processor [%s] failed: %w", processorLabel(processor), procErr)
		}
		p.logger.Warn("Ignoring request processor failure",
			zap.String("processor", processor.Type()),
			zap.String("tag", processor.Tag()),
			zap.Error(procErr))
		req = snapshot
	}
	return req, nil
}

func processorLabel(processor RequestProcessor) string {
	if processor.Tag() == "" {
		return processor.Type()
	}
	return processor.Type() + ":" + processor.Tag()
}

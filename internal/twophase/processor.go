// Package twophase implements the neural sparse two-phase search request processor.
//
// For every neural_sparse clause reachable through should clauses of bool queries, the
// processor keeps only the high-weight tokens (weight >= max weight * prune_ratio) in the
// clause itself and moves the low-weight tokens into a rescore stage applied to the top
// size * expansion_rate hits. Clauses with equal field and low-token content are merged in
// the rescore query and their effective boosts summed.
package twophase

import (
	"context"

	"go.uber.org/zap"

	"github.com/gcbaptista/go-search-pipeline/config"
	apperrors "github.com/gcbaptista/go-search-pipeline/internal/errors"
	"github.com/gcbaptista/go-search-pipeline/model"
)

// Outcomes reported to an Observer.
const (
	OutcomeDisabled    = "disabled"
	OutcomeNoClauses   = "no_clauses"
	OutcomeRewritten   = "rewritten"
	OutcomeWindowError = "window_error"
	OutcomeFailed      = "failed"
)

// Stats describes what the processor did with one request.
type Stats struct {
	Outcome        string
	Clauses        int // neural_sparse clauses split
	SkippedClauses int // neural_sparse clauses without query_tokens
	RescoreClauses int // distinct clauses in the rescore query
	HighTokens     int
	LowTokens      int
	WindowSize     int
}

// Observer receives Stats for every processed request.
type Observer interface {
	ObserveTwoPhase(tag string, stats Stats)
}

// Processor rewrites search requests into two-phase form. It holds no per-request
// state and is safe for concurrent use.
type Processor struct {
	tag           string
	description   string
	ignoreFailure bool
	cfg           Config
	logger        *zap.Logger
	observer      Observer
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the processor logger. Default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithObserver sets an observer for per-request stats.
func WithObserver(observer Observer) Option {
	return func(p *Processor) {
		p.observer = observer
	}
}

// NewProcessor creates a processor from an already validated Config.
func NewProcessor(common config.ProcessorCommon, cfg Config, opts ...Option) *Processor {
	p := &Processor{
		tag:           common.Tag,
		description:   common.Description,
		ignoreFailure: common.IgnoreFailure,
		cfg:           cfg,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("processor", config.TwoPhaseProcessorType), zap.String("tag", p.tag))
	return p
}

// NewProcessorFromMap decodes and validates a processor configuration map, as found in
// a pipeline definition, and creates the processor. Any configuration error is returned
// here; a processor that was created never fails on its configuration later.
func NewProcessorFromMap(raw map[string]any, opts ...Option) (*Processor, error) {
	settings, err := config.DecodeTwoPhaseSettings(raw)
	if err != nil {
		return nil, err
	}
	cfg, err := ConfigFromSettings(settings)
	if err != nil {
		return nil, err
	}
	return NewProcessor(settings.ProcessorCommon, cfg, opts...), nil
}

func (p *Processor) Type() string        { return config.TwoPhaseProcessorType }
func (p *Processor) Tag() string         { return p.tag }
func (p *Processor) Description() string { return p.description }
func (p *Processor) IgnoreFailure() bool { return p.ignoreFailure }
func (p *Processor) Config() Config      { return p.cfg }

// ProcessRequest rewrites req in place and returns it. When the processor is disabled,
// prune_ratio is 0, or the query holds no splittable neural_sparse clause, req is returned
// untouched. On error req is left untouched as well.
func (p *Processor) ProcessRequest(_ context.Context, req *model.SearchRequest) (*model.SearchRequest, error) {
	if req == nil {
		return nil, apperrors.NewInvalidArgumentError("request", "search request cannot be null")
	}
	if !p.cfg.active() {
		p.observe(Stats{Outcome: OutcomeDisabled})
		return req, nil
	}

	c := newCollector(p.cfg.ratio, p.logger)
	if err := c.collect(req.Query, 1.0); err != nil {
		p.observe(Stats{Outcome: OutcomeFailed})
		return nil, err
	}
	if len(c.clauses) == 0 {
		p.observe(Stats{Outcome: OutcomeNoClauses, SkippedClauses: c.skipped})
		return req, nil
	}

	agg := newAggregator()
	stats := Stats{Clauses: len(c.clauses), SkippedClauses: c.skipped}
	for _, clause := range c.clauses {
		agg.add(clause.variant, clause.boost)
		stats.HighTokens += len(clause.high)
		stats.LowTokens += len(clause.variant.QueryTokens)
	}
	stats.RescoreClauses = agg.len()

	windowSize, err := WindowSize(req.Size, p.cfg.windowExpansion, p.cfg.maxWindowSize)
	if err != nil {
		stats.Outcome = OutcomeWindowError
		p.observe(stats)
		return nil, err
	}
	stats.WindowSize = windowSize

	rescoreQuery := agg.build(originQueryWeightAfterRescore(req))
	for _, clause := range c.clauses {
		clause.origin.QueryTokens = clause.high
	}
	req.AddRescore(model.NewQueryRescore(rescoreQuery, windowSize))

	stats.Outcome = OutcomeRewritten
	p.observe(stats)
	p.logger.Debug("Added two-phase rescore",
		zap.Int("clauses", stats.Clauses),
		zap.Int("rescore_clauses", stats.RescoreClauses),
		zap.Int("high_tokens", stats.HighTokens),
		zap.Int("low_tokens", stats.LowTokens),
		zap.Int("window_size", windowSize))
	return req, nil
}

func (p *Processor) observe(stats Stats) {
	if p.observer != nil {
		p.observer.ObserveTwoPhase(p.tag, stats)
	}
}

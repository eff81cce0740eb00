package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	apperrors "github.com/gcbaptista/go-search-pipeline/internal/errors"
	"github.com/gcbaptista/go-search-pipeline/model"
	"github.com/gcbaptista/go-search-pipeline/services"
)

// DefaultWorkers is the batch worker pool size used when Options.Workers is not set.
const DefaultWorkers = 8

// Options configures a Registry.
type Options struct {
	Factories    Factories // defaults to NewFactories()
	Dependencies Dependencies
	Workers      int // size of the batch worker pool
}

type entry struct {
	def      model.PipelineDefinition
	pipeline *Pipeline
}

// Registry holds named pipelines and runs requests through them.
// It implements services.PipelineService.
type Registry struct {
	mu        sync.RWMutex
	pipelines map[string]*entry
	store     Store
	factories Factories
	deps      Dependencies
	pool      *ants.Pool
	logger    *zap.Logger
	now       func() time.Time
}

var _ services.PipelineService = (*Registry)(nil)

// NewRegistry creates a registry backed by store and loads every stored pipeline.
// Stored pipelines that no longer build are logged and skipped.
func NewRegistry(store Store, opts Options) (*Registry, error) {
	if opts.Factories == nil {
		opts.Factories = NewFactories()
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	deps := opts.Dependencies.withDefaults()

	pool, err := ants.NewPool(opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	r := &Registry{
		pipelines: make(map[string]*entry),
		store:     store,
		factories: opts.Factories,
		deps:      deps,
		pool:      pool,
		logger:    deps.Logger.With(zap.String("component", "registry")),
		now:       time.Now,
	}
	if err := r.load(); err != nil {
		pool.Release()
		return nil, err
	}
	return r, nil
}

func (r *Registry) load() error {
	defs, err := r.store.LoadAll()
	if err != nil {
		return fmt.Errorf("failed to load pipelines: %w", err)
	}

	for _, def := range defs {
		if err := ValidateName(def.Name); err != nil {
			r.logger.Warn("Skipping stored pipeline with invalid name", zap.String("name", def.Name), zap.Error(err))
			continue
		}
		p, err := Build(def.Name, def, r.factories, r.deps)
		if err != nil {
			r.logger.Warn("Skipping stored pipeline that failed to build", zap.String("name", def.Name), zap.Error(err))
			continue
		}
		r.pipelines[def.Name] = &entry{def: def, pipeline: p}
		r.logger.Info("Loaded pipeline", zap.String("name", def.Name), zap.Int("version", def.Version))
	}
	return nil
}

// Put builds and stores a pipeline, replacing any pipeline with the same name. Nothing
// changes when the definition does not build or cannot be persisted.
func (r *Registry) Put(_ context.Context, name string, def model.PipelineDefinition) (model.PipelineDefinition, error) {
	if err := ValidateName(name); err != nil {
		return model.PipelineDefinition{}, err
	}
	if def.Name != "" && def.Name != name {
		return model.PipelineDefinition{}, apperrors.NewInvalidArgumentError("name",
			fmt.Sprintf("definition name '%s' does not match pipeline name '%s'", def.Name, name))
	}
	def.Name = name

	p, err := Build(name, def, r.factories, r.deps)
	if err != nil {
		return model.PipelineDefinition{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	def.Version = 1
	if existing, ok := r.pipelines[name]; ok {
		def.Version = existing.def.Version + 1
	}
	def.UpdatedAt = r.now().UTC()

	if err := r.store.Save(def); err != nil {
		return model.PipelineDefinition{}, fmt.Errorf("failed to persist pipeline '%s': %w", name, err)
	}
	r.pipelines[name] = &entry{def: def, pipeline: p}
	r.logger.Info("Stored pipeline", zap.String("name", name), zap.Int("version", def.Version),
		zap.Int("processors", len(def.RequestProcessors)))
	return def, nil
}

// Get returns the definition of a pipeline.
func (r *Registry) Get(name string) (model.PipelineDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.pipelines[name]
	if !ok {
		return model.PipelineDefinition{}, apperrors.NewPipelineNotFoundError(name)
	}
	return e.def, nil
}

// Delete removes a pipeline from memory and from the store.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pipelines[name]; !ok {
		return apperrors.NewPipelineNotFoundError(name)
	}
	if err := r.store.Delete(name); err != nil {
		return fmt.Errorf("failed to delete pipeline '%s': %w", name, err)
	}
	delete(r.pipelines, name)
	r.logger.Info("Deleted pipeline", zap.String("name", name))
	return nil
}

// List returns the sorted names of every pipeline.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.pipelines))
	for name := range r.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) pipeline(name string) (*Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.pipelines[name]
	if !ok {
		return nil, apperrors.NewPipelineNotFoundError(name)
	}
	return e.pipeline, nil
}

// Process runs req through the named pipeline.
func (r *Registry) Process(ctx context.Context, name string, req *model.SearchRequest) (*model.SearchRequest, error) {
	p, err := r.pipeline(name)
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, req)
}

// ProcessBatch runs every request through the named pipeline on the worker pool. Results
// keep the order of reqs.
func (r *Registry) ProcessBatch(ctx context.Context, name string, reqs []*model.SearchRequest) ([]services.BatchItem, error) {
	p, err := r.pipeline(name)
	if err != nil {
		return nil, err
	}

	items := make([]services.BatchItem, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		items[i].ID = uuid.NewString()
		wg.Add(1)
		submitErr := r.pool.Submit(func() {
			defer wg.Done()
			out, err := p.Process(ctx, req)
			items[i].Request = out
			items[i].Err = err
		})
		if submitErr != nil {
			wg.Done()
			items[i].Err = fmt.Errorf("failed to schedule request: %w", submitErr)
		}
	}
	wg.Wait()
	return items, nil
}

// Simulate builds a pipeline from def and runs req through it without storing anything.
func (r *Registry) Simulate(ctx context.Context, def model.PipelineDefinition, req *model.SearchRequest) (*model.SearchRequest, error) {
	name := def.Name
	if name == "" {
		name = "_simulate"
	}
	p, err := Build(name, def, r.factories, r.deps)
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, req)
}

// Close releases the worker pool and closes the store.
func (r *Registry) Close() error {
	r.pool.Release()
	return r.store.Close()
}

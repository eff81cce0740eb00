package pipeline

import (
	"regexp"
	"sort"
	"sync"

	apperrors "github.com/gcbaptista/go-search-pipeline/internal/errors"
	"github.com/gcbaptista/go-search-pipeline/model"
)

// Store persists pipeline definitions. Definitions carry their name.
type Store interface {
	Save(def model.PipelineDefinition) error
	Delete(name string) error
	LoadAll() ([]model.PipelineDefinition, error)
	Close() error
}

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,254}$`)

// ValidateName checks that name can be used as a pipeline name and a storage key.
func ValidateName(name string) error {
	if name == "" {
		return apperrors.NewInvalidArgumentError("name", "pipeline name cannot be empty")
	}
	if !validName.MatchString(name) {
		return apperrors.NewInvalidArgumentError("name",
			"pipeline name must start with a letter or digit and contain only letters, digits, '.', '_' and '-'")
	}
	return nil
}

// MemoryStore keeps definitions in memory only.
type MemoryStore struct {
	mu   sync.RWMutex
	defs map[string]model.PipelineDefinition
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{defs: make(map[string]model.PipelineDefinition)}
}

func (s *MemoryStore) Save(def model.PipelineDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.Name] = def
	return nil
}

func (s *MemoryStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.defs, name)
	return nil
}

func (s *MemoryStore) LoadAll() ([]model.PipelineDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	defs := make([]model.PipelineDefinition, 0, len(s.defs))
	for _, def := range s.defs {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

func (s *MemoryStore) Close() error { return nil }

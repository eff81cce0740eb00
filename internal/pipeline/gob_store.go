package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gcbaptista/go-search-pipeline/internal/persistence"
	"github.com/gcbaptista/go-search-pipeline/model"
)

const (
	dataDirPerm   = 0755
	pipelineExt   = ".pipeline.gob"
	recordVersion = 1
)

// storedPipeline is the on-disk record of a GobStore. Processor configurations are free-form
// maps, so the definition itself is kept as JSON inside the gob record.
type storedPipeline struct {
	RecordVersion int
	Name          string
	Version       int
	UpdatedAt     time.Time
	Definition    []byte
}

// GobStore keeps one gob file per pipeline under a data directory.
type GobStore struct {
	dataDir string
	logger  *zap.Logger
}

// NewGobStore creates the data directory if needed.
func NewGobStore(dataDir string, logger *zap.Logger) (*GobStore, error) {
	if err := os.MkdirAll(dataDir, dataDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GobStore{dataDir: dataDir, logger: logger.With(zap.String("component", "gob_store"))}, nil
}

func (s *GobStore) path(name string) string {
	return filepath.Join(s.dataDir, name+pipelineExt)
}

func (s *GobStore) Save(def model.PipelineDefinition) error {
	if err := ValidateName(def.Name); err != nil {
		return err
	}
	body, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to encode pipeline %s: %w", def.Name, err)
	}
	record := storedPipeline{
		RecordVersion: recordVersion,
		Name:          def.Name,
		Version:       def.Version,
		UpdatedAt:     def.UpdatedAt,
		Definition:    body,
	}
	if err := persistence.SaveGob(s.path(def.Name), record); err != nil {
		return fmt.Errorf("failed to save pipeline %s: %w", def.Name, err)
	}
	return nil
}

func (s *GobStore) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return persistence.RemoveFile(s.path(name))
}

// LoadAll reads every pipeline file. Unreadable files are logged and skipped.
func (s *GobStore) LoadAll() ([]model.PipelineDefinition, error) {
	items, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory %s: %w", s.dataDir, err)
	}

	var defs []model.PipelineDefinition
	for _, item := range items {
		if item.IsDir() || !strings.HasSuffix(item.Name(), pipelineExt) {
			continue
		}
		path := filepath.Join(s.dataDir, item.Name())

		var record storedPipeline
		if err := persistence.LoadGob(path, &record); err != nil {
			s.logger.Warn("Skipping unreadable pipeline file", zap.String("path", path), zap.Error(err))
			continue
		}
		if record.RecordVersion != recordVersion {
			s.logger.Warn("Skipping pipeline file with unknown record version",
				zap.String("path", path), zap.Int("record_version", record.RecordVersion))
			continue
		}

		var def model.PipelineDefinition
		if err := json.Unmarshal(record.Definition, &def); err != nil {
			s.logger.Warn("Skipping pipeline file with invalid definition", zap.String("path", path), zap.Error(err))
			continue
		}
		if expected := strings.TrimSuffix(item.Name(), pipelineExt); record.Name != expected {
			s.logger.Warn("Skipping pipeline file whose name does not match its record",
				zap.String("path", path), zap.String("record_name", record.Name))
			continue
		}
		def.Name = record.Name
		def.Version = record.Version
		def.UpdatedAt = record.UpdatedAt
		defs = append(defs, def)
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

func (s *GobStore) Close() error { return nil }

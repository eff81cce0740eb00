package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/gcbaptista/go-search-pipeline/model"
	"github.com/gcbaptista/go-search-pipeline/services"
)

// definitionsFile is the layout of a pipelines file: either a "pipelines" list or a
// single definition at the top level.
type definitionsFile struct {
	Pipelines                []model.PipelineDefinition `json:"pipelines" yaml:"pipelines"`
	model.PipelineDefinition `yaml:",inline"`
}

// LoadDefinitionsFile reads pipeline definitions from a JSON file (.json) or a YAML file
// (anything else).
func LoadDefinitionsFile(path string) ([]model.PipelineDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipelines file: %w", err)
	}

	var file definitionsFile
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &file)
	} else {
		err = yaml.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse pipelines file %s: %w", path, err)
	}

	if len(file.Pipelines) > 0 {
		return file.Pipelines, nil
	}
	return []model.PipelineDefinition{file.PipelineDefinition}, nil
}

// Bootstrap stores every pipeline of the file at path. Each definition must be named.
// Pipelines stored before a failing definition are kept.
func Bootstrap(ctx context.Context, manager services.PipelineManager, path string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	defs, err := LoadDefinitionsFile(path)
	if err != nil {
		return err
	}

	for i, def := range defs {
		if def.Name == "" {
			return fmt.Errorf("pipelines file %s: pipeline %d has no name", path, i)
		}
		stored, err := manager.Put(ctx, def.Name, def)
		if err != nil {
			return fmt.Errorf("pipelines file %s: pipeline '%s': %w", path, def.Name, err)
		}
		logger.Info("Bootstrapped pipeline",
			zap.String("name", stored.Name),
			zap.Int("version", stored.Version),
			zap.String("file", path))
	}
	return nil
}

package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// PipelineDefinition is the stored form of a search pipeline.
type PipelineDefinition struct {
	Name              string                `json:"name,omitempty" yaml:"name,omitempty"`
	Description       string                `json:"description,omitempty" yaml:"description,omitempty"`
	Version           int                   `json:"version,omitempty" yaml:"version,omitempty"`
	RequestProcessors []ProcessorDefinition `json:"request_processors" yaml:"request_processors"`
	UpdatedAt         time.Time             `json:"updated_at,omitempty" yaml:"-"`
}

// ProcessorDefinition is one entry of request_processors: a processor type and its
// configuration, written as {"<type>": {...}}.
type ProcessorDefinition struct {
	Type   string
	Config map[string]any
}

// MarshalJSON writes the single-key object form.
func (p ProcessorDefinition) MarshalJSON() ([]byte, error) {
	cfg := p.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	return json.Marshal(map[string]map[string]any{p.Type: cfg})
}

// UnmarshalJSON reads the single-key object form.
func (p *ProcessorDefinition) UnmarshalJSON(data []byte) error {
	var obj map[string]map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("processor definition must be an object of the form {\"<type>\": {...}}: %w", err)
	}
	return p.fromMap(obj)
}

// MarshalYAML writes the single-key object form.
func (p ProcessorDefinition) MarshalYAML() (any, error) {
	cfg := p.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	return map[string]map[string]any{p.Type: cfg}, nil
}

// UnmarshalYAML reads the single-key object form.
func (p *ProcessorDefinition) UnmarshalYAML(unmarshal func(any) error) error {
	var obj map[string]map[string]any
	if err := unmarshal(&obj); err != nil {
		return fmt.Errorf("processor definition must be a mapping of the form {<type>: {...}}: %w", err)
	}
	return p.fromMap(obj)
}

func (p *ProcessorDefinition) fromMap(obj map[string]map[string]any) error {
	if len(obj) != 1 {
		return fmt.Errorf("processor definition must have exactly one processor type, got %d", len(obj))
	}
	for processorType, cfg := range obj {
		p.Type = processorType
		p.Config = cfg
		if p.Config == nil {
			p.Config = map[string]any{}
		}
	}
	return nil
}

package config

import (
	"fmt"
	"math"
	"sort"

	apperrors "github.com/gcbaptista/go-search-pipeline/internal/errors"
)

// TwoPhaseProcessorType is the request_processors key of the neural sparse two-phase processor.
const TwoPhaseProcessorType = "neural_sparse_two_phase_processor"

// Option keys of the two-phase processor.
const (
	KeyTag            = "tag"
	KeyDescription    = "description"
	KeyIgnoreFailure  = "ignore_failure"
	KeyEnabled        = "enabled"
	KeyTwoPhaseParams = "two_phase_parameter"
	KeyPruneRatio     = "prune_ratio"
	KeyExpansionRate  = "expansion_rate"
	KeyMaxWindowSize  = "max_window_size"
)

// Defaults and bounds of the two-phase processor.
const (
	DefaultEnabled          = true
	DefaultPruneRatio       = 0.4
	DefaultExpansionRate    = 5.0
	DefaultMaxWindowSize    = 10000
	DefaultBaseQuerySize    = 10
	MinPruneRatio           = 0.0
	MaxPruneRatio           = 1.0
	MinExpansionRate        = 1.0
	MaxWindowSizeLowerBound = 50
)

// ProcessorCommon holds the options every request processor accepts.
type ProcessorCommon struct {
	Tag           string `json:"tag,omitempty" yaml:"tag,omitempty"`
	Description   string `json:"description,omitempty" yaml:"description,omitempty"`
	IgnoreFailure bool   `json:"ignore_failure,omitempty" yaml:"ignore_failure,omitempty"`
}

// TwoPhaseSettings is the decoded configuration of a neural_sparse_two_phase_processor.
// Nil fields take their defaults in ApplyDefaults.
type TwoPhaseSettings struct {
	ProcessorCommon
	Enabled       *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	PruneRatio    *float64 `json:"prune_ratio,omitempty" yaml:"prune_ratio,omitempty"`
	ExpansionRate *float64 `json:"expansion_rate,omitempty" yaml:"expansion_rate,omitempty"`
	MaxWindowSize *int     `json:"max_window_size,omitempty" yaml:"max_window_size,omitempty"`
}

// ApplyDefaults fills every unset option with its default value.
func (s *TwoPhaseSettings) ApplyDefaults() {
	if s.Enabled == nil {
		v := DefaultEnabled
		s.Enabled = &v
	}
	if s.PruneRatio == nil {
		v := DefaultPruneRatio
		s.PruneRatio = &v
	}
	if s.ExpansionRate == nil {
		v := DefaultExpansionRate
		s.ExpansionRate = &v
	}
	if s.MaxWindowSize == nil {
		v := DefaultMaxWindowSize
		s.MaxWindowSize = &v
	}
}

// Validate checks the option ranges. Call ApplyDefaults first.
func (s *TwoPhaseSettings) Validate() error {
	if s.PruneRatio == nil || s.ExpansionRate == nil || s.MaxWindowSize == nil {
		return apperrors.NewConfigurationError(TwoPhaseProcessorType, KeyTwoPhaseParams, "settings have not been defaulted")
	}
	ratio := *s.PruneRatio
	if math.IsNaN(ratio) || ratio < MinPruneRatio || ratio > MaxPruneRatio {
		return apperrors.NewConfigurationError(TwoPhaseProcessorType, KeyTwoPhaseParams+"."+KeyPruneRatio,
			fmt.Sprintf("must be within [0, 1]. Received: %f", ratio))
	}
	expansion := *s.ExpansionRate
	if math.IsNaN(expansion) || math.IsInf(expansion, 0) || expansion < MinExpansionRate {
		return apperrors.NewConfigurationError(TwoPhaseProcessorType, KeyTwoPhaseParams+"."+KeyExpansionRate,
			fmt.Sprintf("must >= 1.0. Received: %f", expansion))
	}
	if *s.MaxWindowSize < MaxWindowSizeLowerBound {
		return apperrors.NewConfigurationError(TwoPhaseProcessorType, KeyTwoPhaseParams+"."+KeyMaxWindowSize,
			fmt.Sprintf("must >= %d. Received: %d", MaxWindowSizeLowerBound, *s.MaxWindowSize))
	}
	return nil
}

// DecodeTwoPhaseSettings reads a processor configuration map as found in a pipeline
// definition. Values are type-checked and unknown keys are rejected; defaults are not applied.
func DecodeTwoPhaseSettings(raw map[string]any) (TwoPhaseSettings, error) {
	var s TwoPhaseSettings
	r := &mapReader{processor: TwoPhaseProcessorType}

	s.Tag = r.optionalString(raw, KeyTag, "")
	s.Description = r.optionalString(raw, KeyDescription, "")
	if v, ok := r.optionalBool(raw, KeyIgnoreFailure, ""); ok {
		s.IgnoreFailure = v
	}
	if v, ok := r.optionalBool(raw, KeyEnabled, ""); ok {
		s.Enabled = &v
	}

	if params, ok := r.optionalMap(raw, KeyTwoPhaseParams); ok {
		prefix := KeyTwoPhaseParams + "."
		if v, ok := r.optionalFloat(params, KeyPruneRatio, prefix); ok {
			s.PruneRatio = &v
		}
		if v, ok := r.optionalFloat(params, KeyExpansionRate, prefix); ok {
			s.ExpansionRate = &v
		}
		if v, ok := r.optionalInt(params, KeyMaxWindowSize, prefix); ok {
			s.MaxWindowSize = &v
		}
		r.rejectUnknown(params, prefix, KeyPruneRatio, KeyExpansionRate, KeyMaxWindowSize)
	}
	r.rejectUnknown(raw, "", KeyTag, KeyDescription, KeyIgnoreFailure, KeyEnabled, KeyTwoPhaseParams)

	if r.err != nil {
		return TwoPhaseSettings{}, r.err
	}
	return s, nil
}

// ToMap renders the settings back into the map form accepted by DecodeTwoPhaseSettings.
func (s TwoPhaseSettings) ToMap() map[string]any {
	out := map[string]any{}
	if s.Tag != "" {
		out[KeyTag] = s.Tag
	}
	if s.Description != "" {
		out[KeyDescription] = s.Description
	}
	if s.IgnoreFailure {
		out[KeyIgnoreFailure] = true
	}
	if s.Enabled != nil {
		out[KeyEnabled] = *s.Enabled
	}
	params := map[string]any{}
	if s.PruneRatio != nil {
		params[KeyPruneRatio] = *s.PruneRatio
	}
	if s.ExpansionRate != nil {
		params[KeyExpansionRate] = *s.ExpansionRate
	}
	if s.MaxWindowSize != nil {
		params[KeyMaxWindowSize] = *s.MaxWindowSize
	}
	if len(params) > 0 {
		out[KeyTwoPhaseParams] = params
	}
	return out
}

// mapReader reads typed values out of decoded JSON/YAML maps, keeping the first error.
type mapReader struct {
	processor string
	err       error
}

func (r *mapReader) fail(field, message string) {
	if r.err == nil {
		r.err = apperrors.NewConfigurationError(r.processor, field, message)
	}
}

func (r *mapReader) optionalString(m map[string]any, key, prefix string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	s, isString := v.(string)
	if !isString {
		r.fail(prefix+key, fmt.Sprintf("property isn't a string, but of type [%T]", v))
	}
	return s
}

func (r *mapReader) optionalBool(m map[string]any, key, prefix string) (bool, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch b {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	r.fail(prefix+key, fmt.Sprintf("property isn't a boolean, but of type [%T]", v))
	return false, false
}

func (r *mapReader) optionalMap(m map[string]any, key string) (map[string]any, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, false
	}
	switch nested := v.(type) {
	case map[string]any:
		return nested, true
	case map[any]any:
		converted := make(map[string]any, len(nested))
		for k, val := range nested {
			converted[fmt.Sprint(k)] = val
		}
		return converted, true
	}
	r.fail(key, fmt.Sprintf("property isn't a map, but of type [%T]", v))
	return nil, false
}

func (r *mapReader) optionalFloat(m map[string]any, key, prefix string) (float64, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false
	}
	f, isNumber := toFloat(v)
	if !isNumber {
		r.fail(prefix+key, fmt.Sprintf("property isn't a number, but of type [%T]", v))
		return 0, false
	}
	return f, true
}

func (r *mapReader) optionalInt(m map[string]any, key, prefix string) (int, bool) {
	f, ok := r.optionalFloat(m, key, prefix)
	if !ok {
		return 0, false
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		r.fail(prefix+key, fmt.Sprintf("property is out of integer range: %v", f))
		return 0, false
	}
	return int(f), true
}

func (r *mapReader) rejectUnknown(m map[string]any, prefix string, known ...string) {
	allowed := make(map[string]bool, len(known))
	for _, k := range known {
		allowed[k] = true
	}
	var unknown []string
	for k := range m {
		if !allowed[k] {
			unknown = append(unknown, prefix+k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		r.fail(unknown[0], fmt.Sprintf("unrecognized parameter(s): %v", unknown))
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

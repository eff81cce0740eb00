package twophase

import (
	"github.com/gcbaptista/go-search-pipeline/config"
)

// Config is the validated, immutable configuration of a two-phase processor.
// The zero value is not valid; use NewConfig or ConfigFromSettings.
type Config struct {
	enabled         bool
	ratio           float64
	windowExpansion float64
	maxWindowSize   int
}

// NewConfig validates the options and returns a Config, or a configuration error.
func NewConfig(enabled bool, ratio, windowExpansion float64, maxWindowSize int) (Config, error) {
	return ConfigFromSettings(config.TwoPhaseSettings{
		Enabled:       &enabled,
		PruneRatio:    &ratio,
		ExpansionRate: &windowExpansion,
		MaxWindowSize: &maxWindowSize,
	})
}

// DefaultConfig returns the configuration used when a processor sets no options.
func DefaultConfig() Config {
	return Config{
		enabled:         config.DefaultEnabled,
		ratio:           config.DefaultPruneRatio,
		windowExpansion: config.DefaultExpansionRate,
		maxWindowSize:   config.DefaultMaxWindowSize,
	}
}

// ConfigFromSettings applies defaults to the decoded settings and validates them.
func ConfigFromSettings(settings config.TwoPhaseSettings) (Config, error) {
	settings.ApplyDefaults()
	if err := settings.Validate(); err != nil {
		return Config{}, err
	}
	return Config{
		enabled:         *settings.Enabled,
		ratio:           *settings.PruneRatio,
		windowExpansion: *settings.ExpansionRate,
		maxWindowSize:   *settings.MaxWindowSize,
	}, nil
}

func (c Config) Enabled() bool            { return c.enabled }
func (c Config) Ratio() float64           { return c.ratio }
func (c Config) WindowExpansion() float64 { return c.windowExpansion }
func (c Config) MaxWindowSize() int       { return c.maxWindowSize }

// active reports whether requests can be changed at all under this configuration.
func (c Config) active() bool {
	return c.enabled && c.ratio != 0
}

package twophase

import (
	"math"

	"github.com/gcbaptista/go-search-pipeline/config"
	apperrors "github.com/gcbaptista/go-search-pipeline/internal/errors"
	"github.com/gcbaptista/go-search-pipeline/model"
)

// WindowSize computes the rescore window for a request of the given size:
// floor(size * expansion), where an unset size counts as 10. A result outside
// [0, maxWindowSize] is an error, never clamped.
func WindowSize(requestedSize int, expansion float64, maxWindowSize int) (int, error) {
	baseSize := requestedSize
	if requestedSize == model.SizeUnset {
		baseSize = config.DefaultBaseQuerySize
	}

	windowSize := math.Floor(float64(baseSize) * expansion)
	if math.IsNaN(windowSize) || windowSize < 0 || windowSize > float64(maxWindowSize) {
		return 0, apperrors.NewWindowSizeError(saturatingInt64(windowSize), maxWindowSize)
	}
	return int(windowSize), nil
}

func saturatingInt64(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	default:
		return int64(f)
	}
}

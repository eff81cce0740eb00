package twophase

import (
	apperrors "github.com/gcbaptista/go-search-pipeline/internal/errors"
)

// SplitTokensByRatio splits a token-weight map around max(weight) * ratio.
// Tokens whose weight is at or above the threshold go to high, the rest to low.
// Every token lands in exactly one of the two maps and tokens is left untouched.
func SplitTokensByRatio(tokens map[string]float64, ratio float64) (high, low map[string]float64, err error) {
	if tokens == nil {
		return nil, nil, apperrors.NewInvalidArgumentError("tokens", "query tokens cannot be null")
	}

	maxWeight := 0.0
	for _, weight := range tokens {
		if weight > maxWeight {
			maxWeight = weight
		}
	}
	threshold := maxWeight * ratio

	high = make(map[string]float64, len(tokens))
	low = make(map[string]float64)
	for token, weight := range tokens {
		if weight >= threshold {
			high[token] = weight
		} else {
			low[token] = weight
		}
	}
	return high, low, nil
}

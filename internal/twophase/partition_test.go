package twophase

import (
	"errors"
	"reflect"
	"testing"

	apperrors "github.com/gcbaptista/go-search-pipeline/internal/errors"
)

func TestSplitTokensByRatio(t *testing.T) {
	tests := []struct {
		name         string
		tokens       map[string]float64
		ratio        float64
		expectedHigh map[string]float64
		expectedLow  map[string]float64
	}{
		{
			name:         "default ratio",
			tokens:       map[string]float64{"a": 1.0, "b": 0.5, "c": 0.2},
			ratio:        0.4,
			expectedHigh: map[string]float64{"a": 1.0, "b": 0.5},
			expectedLow:  map[string]float64{"c": 0.2},
		},
		{
			name:         "token at threshold is high",
			tokens:       map[string]float64{"a": 2.0, "b": 1.0, "c": 0.5},
			ratio:        0.5,
			expectedHigh: map[string]float64{"a": 2.0, "b": 1.0},
			expectedLow:  map[string]float64{"c": 0.5},
		},
		{
			name:         "threshold computed in float64",
			tokens:       map[string]float64{"a": 3.0, "b": 0.3},
			ratio:        0.1,
			expectedHigh: map[string]float64{"a": 3.0},
			expectedLow:  map[string]float64{"b": 0.3},
		},
		{
			name:         "ratio one keeps only the maximum",
			tokens:       map[string]float64{"a": 3.0, "b": 2.9, "c": 3.0},
			ratio:        1.0,
			expectedHigh: map[string]float64{"a": 3.0, "c": 3.0},
			expectedLow:  map[string]float64{"b": 2.9},
		},
		{
			name:         "ratio zero keeps everything",
			tokens:       map[string]float64{"a": 1.0, "b": 0.0},
			ratio:        0.0,
			expectedHigh: map[string]float64{"a": 1.0, "b": 0.0},
			expectedLow:  map[string]float64{},
		},
		{
			name:         "empty tokens",
			tokens:       map[string]float64{},
			ratio:        0.4,
			expectedHigh: map[string]float64{},
			expectedLow:  map[string]float64{},
		},
		{
			name:         "all zero weights",
			tokens:       map[string]float64{"a": 0, "b": 0},
			ratio:        0.7,
			expectedHigh: map[string]float64{"a": 0, "b": 0},
			expectedLow:  map[string]float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			high, low, err := SplitTokensByRatio(tt.tokens, tt.ratio)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !reflect.DeepEqual(high, tt.expectedHigh) {
				t.Errorf("Expected high %v, got %v", tt.expectedHigh, high)
			}
			if !reflect.DeepEqual(low, tt.expectedLow) {
				t.Errorf("Expected low %v, got %v", tt.expectedLow, low)
			}
		})
	}
}

func TestSplitTokensByRatio_DoesNotModifyInput(t *testing.T) {
	tokens := map[string]float64{"a": 1.0, "b": 0.1}
	if _, _, err := SplitTokensByRatio(tokens, 0.4); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !reflect.DeepEqual(tokens, map[string]float64{"a": 1.0, "b": 0.1}) {
		t.Errorf("Input tokens were modified: %v", tokens)
	}
}

func TestSplitTokensByRatio_NilTokens(t *testing.T) {
	_, _, err := SplitTokensByRatio(nil, 0.4)
	if err == nil {
		t.Fatal("Expected error for nil tokens")
	}
	if !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

package model

import (
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/gcbaptista/go-search-pipeline/internal/errors"
)

// SizeUnset marks a request that did not set "size".
const SizeUnset = -1

// DefaultQueryWeight is the weight of the original query in a rescore stage that does not
// declare one.
const DefaultQueryWeight = 1.0

// SearchRequest is a search request body as it flows through a pipeline.
// Keys the pipeline does not model are kept in Extra and written back unchanged.
type SearchRequest struct {
	Query    *Node
	Size     int
	Rescores []*Rescore
	Extra    map[string]json.RawMessage
}

// Rescore is one rescore stage of a request.
type Rescore struct {
	WindowSize *int
	Query      *RescoreQuery              // nil for rescorers other than "query"
	Extra      map[string]json.RawMessage // other rescorer types and unknown keys
}

// RescoreQuery is the body of a query rescorer.
type RescoreQuery struct {
	RescoreQuery       *Node
	QueryWeight        float64
	RescoreQueryWeight float64
	ScoreMode          string
}

// NewSearchRequest returns a request with the given query and no size.
func NewSearchRequest(query *Node) *SearchRequest {
	return &SearchRequest{Query: query, Size: SizeUnset}
}

// QueryWeight is the weight the rescore stage leaves on the original query.
func (r *Rescore) QueryWeight() float64 {
	if r == nil || r.Query == nil {
		return DefaultQueryWeight
	}
	return r.Query.QueryWeight
}

// NewQueryRescore builds a query rescore stage with default weights.
func NewQueryRescore(query *Node, windowSize int) *Rescore {
	return &Rescore{
		WindowSize: &windowSize,
		Query: &RescoreQuery{
			RescoreQuery:       query,
			QueryWeight:        DefaultQueryWeight,
			RescoreQueryWeight: DefaultQueryWeight,
		},
	}
}

// AddRescore appends a rescore stage.
func (r *SearchRequest) AddRescore(rescore *Rescore) {
	r.Rescores = append(r.Rescores, rescore)
}

// Clone returns a deep copy of the request, made by re-encoding it.
func (r *SearchRequest) Clone() (*SearchRequest, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}
	var clone SearchRequest
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("failed to decode search request: %w", err)
	}
	return &clone, nil
}

// Validate checks the query tree and every rescore query.
func (r *SearchRequest) Validate() error {
	if err := r.validate(); err != nil {
		return apperrors.NewInvalidRequestError(err)
	}
	return nil
}

func (r *SearchRequest) validate() error {
	if err := r.Query.Validate(); err != nil {
		return fmt.Errorf("invalid query: %w", err)
	}
	for i, rescore := range r.Rescores {
		if rescore == nil {
			return fmt.Errorf("rescore[%d] is null", i)
		}
		if rescore.Query == nil {
			continue
		}
		if rescore.Query.RescoreQuery == nil {
			return fmt.Errorf("rescore[%d] is missing rescore_query", i)
		}
		if err := rescore.Query.RescoreQuery.Validate(); err != nil {
			return fmt.Errorf("invalid rescore[%d] query: %w", i, err)
		}
	}
	return nil
}

// ParseSearchRequest decodes and validates a search request body. Every failure,
// malformed JSON included, matches apperrors.ErrInvalidRequest.
func ParseSearchRequest(data []byte) (*SearchRequest, error) {
	var req SearchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		if errors.Is(err, apperrors.ErrInvalidRequest) {
			return nil, err
		}
		return nil, apperrors.NewInvalidRequestError(err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	apperrors "github.com/gcbaptista/go-search-pipeline/internal/errors"
)

const (
	queryTypeBool         = "bool"
	queryTypeNeuralSparse = "neural_sparse"
)

// ParseQuery decodes a single query object such as {"bool": {...}}.
func ParseQuery(data []byte) (*Node, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("query must be an object: %w", err)
	}
	if len(obj) != 1 {
		return nil, fmt.Errorf("query object must have exactly one key, got %d", len(obj))
	}
	for queryType, body := range obj {
		switch queryType {
		case queryTypeBool:
			return parseBool(body)
		case queryTypeNeuralSparse:
			return parseSparse(body)
		default:
			return NewOpaque(queryType, body), nil
		}
	}
	return nil, nil // unreachable
}

func parseBool(data []byte) (*Node, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("[bool] query must be an object: %w", err)
	}

	q := &BoolQuery{Boost: DefaultBoost}
	for key, value := range obj {
		var err error
		switch key {
		case "should":
			q.Should, err = parseClauses(key, value)
		case "must":
			q.Must, err = parseClauses(key, value)
		case "filter":
			q.Filter, err = parseClauses(key, value)
		case "must_not":
			q.MustNot, err = parseClauses(key, value)
		case "boost":
			err = json.Unmarshal(value, &q.Boost)
		default:
			if q.Extra == nil {
				q.Extra = make(map[string]json.RawMessage)
			}
			q.Extra[key] = value
		}
		if err != nil {
			return nil, fmt.Errorf("[bool] failed to parse [%s]: %w", key, err)
		}
	}
	return NewBool(q), nil
}

// parseClauses accepts either a single query object or an array of them.
func parseClauses(role string, data []byte) ([]*Node, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		node, err := ParseQuery(trimmed)
		if err != nil {
			return nil, err
		}
		return []*Node{node}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%s must be a query or an array of queries: %w", role, err)
	}
	nodes := make([]*Node, 0, len(raw))
	for i, item := range raw {
		node, err := ParseQuery(item)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", role, i, err)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func parseSparse(data []byte) (*Node, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("[neural_sparse] query must be an object: %w", err)
	}
	if len(obj) != 1 {
		return nil, fmt.Errorf("[neural_sparse] query must target exactly one field, got %d", len(obj))
	}

	for field, body := range obj {
		var params map[string]json.RawMessage
		if err := json.Unmarshal(body, &params); err != nil {
			return nil, fmt.Errorf("[neural_sparse] field '%s' must be an object: %w", field, err)
		}

		q := &SparseQuery{Field: field, Boost: DefaultBoost}
		for key, value := range params {
			var err error
			switch key {
			case "query_tokens":
				err = json.Unmarshal(value, &q.QueryTokens)
				if err == nil && q.QueryTokens == nil {
					q.QueryTokens = map[string]float64{}
				}
			case "query_text":
				err = json.Unmarshal(value, &q.QueryText)
			case "model_id":
				err = json.Unmarshal(value, &q.ModelID)
			case "max_token_score":
				var v float64
				err = json.Unmarshal(value, &v)
				q.MaxTokenScore = &v
			case "boost":
				err = json.Unmarshal(value, &q.Boost)
			case "_name":
				err = json.Unmarshal(value, &q.Name)
			default:
				err = fmt.Errorf("unknown parameter")
			}
			if err != nil {
				return nil, fmt.Errorf("[neural_sparse] failed to parse [%s]: %w", key, err)
			}
		}
		if q.QueryTokens == nil && q.QueryText == "" {
			return nil, fmt.Errorf("[neural_sparse] either query_text or query_tokens must be provided for field '%s'", field)
		}
		return NewSparse(q), nil
	}
	return nil, nil // unreachable
}

// MarshalJSON encodes the node back into query DSL.
func (n *Node) MarshalJSON() ([]byte, error) {
	switch n.Kind {
	case KindBool:
		return marshalBool(n.Bool)
	case KindNeuralSparse:
		return marshalSparse(n.Sparse)
	case KindOpaque:
		if n.Opaque == nil {
			return nil, fmt.Errorf("opaque node has no body")
		}
		return json.Marshal(map[string]json.RawMessage{n.Opaque.Type: n.Opaque.Body})
	default:
		return nil, fmt.Errorf("unknown node kind %d", n.Kind)
	}
}

// UnmarshalJSON decodes query DSL into the node.
func (n *Node) UnmarshalJSON(data []byte) error {
	parsed, err := ParseQuery(data)
	if err != nil {
		return err
	}
	*n = *parsed
	return nil
}

func marshalBool(q *BoolQuery) ([]byte, error) {
	body := make(map[string]any, len(q.Extra)+5)
	for key, value := range q.Extra {
		body[key] = value
	}
	if len(q.Should) > 0 {
		body["should"] = q.Should
	}
	if len(q.Must) > 0 {
		body["must"] = q.Must
	}
	if len(q.Filter) > 0 {
		body["filter"] = q.Filter
	}
	if len(q.MustNot) > 0 {
		body["must_not"] = q.MustNot
	}
	body["boost"] = q.Boost
	return json.Marshal(map[string]any{queryTypeBool: body})
}

func marshalSparse(q *SparseQuery) ([]byte, error) {
	params := map[string]any{"boost": q.Boost}
	if q.QueryTokens != nil {
		params["query_tokens"] = q.QueryTokens
	}
	if q.QueryText != "" {
		params["query_text"] = q.QueryText
	}
	if q.ModelID != "" {
		params["model_id"] = q.ModelID
	}
	if q.MaxTokenScore != nil {
		params["max_token_score"] = *q.MaxTokenScore
	}
	if q.Name != "" {
		params["_name"] = q.Name
	}
	return json.Marshal(map[string]any{
		queryTypeNeuralSparse: map[string]any{q.Field: params},
	})
}

// UnmarshalJSON decodes a search request body. Failures are InvalidRequestErrors.
func (r *SearchRequest) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return apperrors.NewInvalidRequestError(fmt.Errorf("search request must be an object: %w", err))
	}

	*r = SearchRequest{Size: SizeUnset}
	for key, value := range obj {
		switch key {
		case "query":
			node, err := ParseQuery(value)
			if err != nil {
				return apperrors.NewInvalidRequestError(fmt.Errorf("failed to parse [query]: %w", err))
			}
			r.Query = node
		case "size":
			if err := json.Unmarshal(value, &r.Size); err != nil {
				return apperrors.NewInvalidRequestError(fmt.Errorf("failed to parse [size]: %w", err))
			}
		case "rescore":
			rescores, err := parseRescores(value)
			if err != nil {
				return apperrors.NewInvalidRequestError(fmt.Errorf("failed to parse [rescore]: %w", err))
			}
			r.Rescores = rescores
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]json.RawMessage)
			}
			r.Extra[key] = value
		}
	}
	return nil
}

// MarshalJSON encodes the request, including every key it was decoded with.
func (r *SearchRequest) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(r.Extra)+3)
	for key, value := range r.Extra {
		body[key] = value
	}
	if r.Query != nil {
		body["query"] = r.Query
	}
	if r.Size != SizeUnset {
		body["size"] = r.Size
	}
	if len(r.Rescores) > 0 {
		body["rescore"] = r.Rescores
	}
	return json.Marshal(body)
}

func parseRescores(data []byte) ([]*Rescore, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		rescore := &Rescore{}
		if err := json.Unmarshal(trimmed, rescore); err != nil {
			return nil, err
		}
		return []*Rescore{rescore}, nil
	}

	var rescores []*Rescore
	if err := json.Unmarshal(trimmed, &rescores); err != nil {
		return nil, err
	}
	return rescores, nil
}

// UnmarshalJSON decodes one rescore stage.
func (r *Rescore) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("rescore must be an object: %w", err)
	}

	*r = Rescore{}
	for key, value := range obj {
		switch key {
		case "window_size":
			var size int
			if err := json.Unmarshal(value, &size); err != nil {
				return fmt.Errorf("failed to parse [window_size]: %w", err)
			}
			r.WindowSize = &size
		case "query":
			q, err := parseRescoreQuery(value)
			if err != nil {
				return err
			}
			r.Query = q
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]json.RawMessage)
			}
			r.Extra[key] = value
		}
	}
	return nil
}

// MarshalJSON encodes one rescore stage.
func (r *Rescore) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(r.Extra)+2)
	for key, value := range r.Extra {
		body[key] = value
	}
	if r.WindowSize != nil {
		body["window_size"] = *r.WindowSize
	}
	if r.Query != nil {
		q := map[string]any{
			"query_weight":         r.Query.QueryWeight,
			"rescore_query_weight": r.Query.RescoreQueryWeight,
		}
		if r.Query.RescoreQuery != nil {
			q["rescore_query"] = r.Query.RescoreQuery
		}
		if r.Query.ScoreMode != "" {
			q["score_mode"] = r.Query.ScoreMode
		}
		body["query"] = q
	}
	return json.Marshal(body)
}

func parseRescoreQuery(data []byte) (*RescoreQuery, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("rescore [query] must be an object: %w", err)
	}

	q := &RescoreQuery{QueryWeight: DefaultQueryWeight, RescoreQueryWeight: DefaultQueryWeight}
	for key, value := range obj {
		var err error
		switch key {
		case "rescore_query":
			q.RescoreQuery, err = ParseQuery(value)
		case "query_weight":
			err = json.Unmarshal(value, &q.QueryWeight)
		case "rescore_query_weight":
			err = json.Unmarshal(value, &q.RescoreQueryWeight)
		case "score_mode":
			err = json.Unmarshal(value, &q.ScoreMode)
		default:
			err = fmt.Errorf("unknown parameter")
		}
		if err != nil {
			return nil, fmt.Errorf("rescore [query] failed to parse [%s]: %w", key, err)
		}
	}
	return q, nil
}

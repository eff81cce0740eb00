// Package model defines the search request and query tree handled by search pipelines.
// It mirrors the subset of the OpenSearch query DSL that request processors rewrite and
// keeps everything else as opaque JSON so it round-trips untouched.
package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultBoost is the boost of a query that does not declare one.
const DefaultBoost = 1.0

// NodeKind tags the variant held by a Node.
type NodeKind int

const (
	// KindOpaque is any query type the pipeline does not understand.
	KindOpaque NodeKind = iota
	// KindBool is a boolean composition.
	KindBool
	// KindNeuralSparse is a sparse token-weight clause.
	KindNeuralSparse
)

func (k NodeKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNeuralSparse:
		return "neural_sparse"
	default:
		return "opaque"
	}
}

// Node is one node of a query tree. Exactly one of Bool, Sparse or Opaque is set,
// matching Kind.
type Node struct {
	Kind   NodeKind
	Bool   *BoolQuery
	Sparse *SparseQuery
	Opaque *OpaqueQuery
}

// BoolQuery is a boolean composition. Only Should clauses take part in boost
// composition; the other roles are carried along verbatim.
type BoolQuery struct {
	Should  []*Node
	Must    []*Node
	Filter  []*Node
	MustNot []*Node
	Boost   float64
	Extra   map[string]json.RawMessage // minimum_should_match, _name, ...
}

// SparseQuery is a neural_sparse clause on a single field.
type SparseQuery struct {
	Field         string
	QueryTokens   map[string]float64 // nil when the clause only carries query_text
	QueryText     string
	ModelID       string
	MaxTokenScore *float64
	Name          string
	Boost         float64
}

// OpaqueQuery is any query the pipeline passes through without inspecting.
type OpaqueQuery struct {
	Type string
	Body json.RawMessage
}

// NewBool wraps a BoolQuery in a Node.
func NewBool(q *BoolQuery) *Node {
	return &Node{Kind: KindBool, Bool: q}
}

// NewSparse wraps a SparseQuery in a Node.
func NewSparse(q *SparseQuery) *Node {
	return &Node{Kind: KindNeuralSparse, Sparse: q}
}

// NewOpaque wraps an arbitrary query body in a Node.
func NewOpaque(queryType string, body json.RawMessage) *Node {
	return &Node{Kind: KindOpaque, Opaque: &OpaqueQuery{Type: queryType, Body: body}}
}

// ShouldOf builds a bool node with the given should clauses and default boost.
func ShouldOf(clauses ...*Node) *Node {
	return NewBool(&BoolQuery{Should: clauses, Boost: DefaultBoost})
}

// HasTokens reports whether the clause carries an explicit token map.
func (q *SparseQuery) HasTokens() bool {
	return q.QueryTokens != nil
}

// CopyWithTokens returns a deep copy of the clause carrying tokens instead of its own.
func (q *SparseQuery) CopyWithTokens(tokens map[string]float64) *SparseQuery {
	cp := *q
	cp.QueryTokens = make(map[string]float64, len(tokens))
	for token, weight := range tokens {
		cp.QueryTokens[token] = weight
	}
	if q.MaxTokenScore != nil {
		v := *q.MaxTokenScore
		cp.MaxTokenScore = &v
	}
	return &cp
}

// Key identifies a clause by everything except its boost. Two clauses with the same key
// score identically up to their boost.
func (q *SparseQuery) Key() string {
	tokens := make([]string, 0, len(q.QueryTokens))
	for token := range q.QueryTokens {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	var b strings.Builder
	b.WriteString(strconv.Quote(q.Field))
	b.WriteString(";model=")
	b.WriteString(strconv.Quote(q.ModelID))
	b.WriteString(";text=")
	b.WriteString(strconv.Quote(q.QueryText))
	b.WriteString(";name=")
	b.WriteString(strconv.Quote(q.Name))
	b.WriteString(";max=")
	if q.MaxTokenScore != nil {
		b.WriteString(strconv.FormatFloat(*q.MaxTokenScore, 'g', -1, 64))
	} else {
		b.WriteByte('-')
	}
	for _, token := range tokens {
		b.WriteByte('|')
		b.WriteString(strconv.Quote(token))
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(q.QueryTokens[token], 'g', -1, 64))
	}
	return b.String()
}

// Walk visits n and every node reachable from it, depth first. Opaque nodes are visited
// but never entered.
func (n *Node) Walk(fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	if n.Kind != KindBool || n.Bool == nil {
		return
	}
	for _, group := range [][]*Node{n.Bool.Should, n.Bool.Must, n.Bool.Filter, n.Bool.MustNot} {
		for _, child := range group {
			child.Walk(fn)
		}
	}
}

// Validate checks that the node's Kind matches the variant it holds.
func (n *Node) Validate() error {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindBool:
		if n.Bool == nil {
			return fmt.Errorf("bool node has no bool query")
		}
		for _, group := range [][]*Node{n.Bool.Should, n.Bool.Must, n.Bool.Filter, n.Bool.MustNot} {
			for _, child := range group {
				if child == nil {
					return fmt.Errorf("bool query contains a null clause")
				}
				if err := child.Validate(); err != nil {
					return err
				}
			}
		}
	case KindNeuralSparse:
		if n.Sparse == nil {
			return fmt.Errorf("neural_sparse node has no sparse query")
		}
		if n.Sparse.Field == "" {
			return fmt.Errorf("neural_sparse query requires a field name")
		}
		for token, weight := range n.Sparse.QueryTokens {
			if weight < 0 {
				return fmt.Errorf("neural_sparse token '%s' on field '%s' has negative weight %g", token, n.Sparse.Field, weight)
			}
		}
	case KindOpaque:
		if n.Opaque == nil || n.Opaque.Type == "" {
			return fmt.Errorf("opaque node has no query type")
		}
	default:
		return fmt.Errorf("unknown node kind %d", n.Kind)
	}
	return nil
}

package twophase

import (
	"go.uber.org/zap"

	"github.com/gcbaptista/go-search-pipeline/model"
)

// collectedClause is one neural_sparse clause found in the query tree.
type collectedClause struct {
	origin  *model.SparseQuery // clause in the request; gets the high tokens on attach
	high    map[string]float64
	variant *model.SparseQuery // copy carrying the low tokens, used by the rescore
	boost   float64            // product of boosts from the root down to the clause
}

// collector walks a query tree and gathers the two-phase split of every reachable
// neural_sparse clause. Only should clauses of bool queries are descended.
type collector struct {
	ratio   float64
	logger  *zap.Logger
	clauses []collectedClause
	skipped int
}

func newCollector(ratio float64, logger *zap.Logger) *collector {
	return &collector{ratio: ratio, logger: logger}
}

func (c *collector) collect(node *model.Node, baseBoost float64) error {
	if node == nil {
		return nil
	}

	switch node.Kind {
	case model.KindBool:
		if node.Bool == nil {
			return nil
		}
		updatedBoost := baseBoost * node.Bool.Boost
		for _, child := range node.Bool.Should {
			if err := c.collect(child, updatedBoost); err != nil {
				return err
			}
		}
	case model.KindNeuralSparse:
		clause := node.Sparse
		if clause == nil {
			return nil
		}
		if !clause.HasTokens() {
			// query_text clauses are expanded by the engine's model, after this rewrite.
			c.skipped++
			c.logger.Debug("Skipping neural_sparse clause without query_tokens",
				zap.String("field", clause.Field), zap.String("model_id", clause.ModelID))
			return nil
		}
		high, variant, err := splitClause(clause, c.ratio)
		if err != nil {
			return err
		}
		c.clauses = append(c.clauses, collectedClause{
			origin:  clause,
			high:    high,
			variant: variant,
			boost:   baseBoost * clause.Boost,
		})
	}
	// Other compound query types are not descended into.
	return nil
}

// splitClause partitions the clause's tokens and returns the high tokens to keep on the
// clause plus a copy of the clause that holds the low tokens.
func splitClause(clause *model.SparseQuery, ratio float64) (map[string]float64, *model.SparseQuery, error) {
	high, low, err := SplitTokensByRatio(clause.QueryTokens, ratio)
	if err != nil {
		return nil, nil, err
	}
	return high, clause.CopyWithTokens(low), nil
}

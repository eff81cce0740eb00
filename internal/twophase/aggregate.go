package twophase

import (
	"github.com/gcbaptista/go-search-pipeline/model"
)

// aggregator merges rescore variants that differ only in boost, summing their
// boosts as they arrive. Insertion order is kept so the composite query is deterministic.
type aggregator struct {
	order   []string
	entries map[string]*model.SparseQuery
	boosts  map[string]float64
}

func newAggregator() *aggregator {
	return &aggregator{
		entries: make(map[string]*model.SparseQuery),
		boosts:  make(map[string]float64),
	}
}

func (a *aggregator) add(variant *model.SparseQuery, boost float64) {
	key := variant.Key()
	if _, exists := a.entries[key]; !exists {
		a.order = append(a.order, key)
		a.entries[key] = variant
	}
	a.boosts[key] += boost
}

func (a *aggregator) len() int {
	return len(a.order)
}

// build returns a should-only bool query over every variant, each boosted by its summed
// boost, with the bool itself boosted by originWeight.
func (a *aggregator) build(originWeight float64) *model.Node {
	should := make([]*model.Node, 0, len(a.order))
	for _, key := range a.order {
		variant := a.entries[key]
		variant.Boost = a.boosts[key]
		should = append(should, model.NewSparse(variant))
	}
	return model.NewBool(&model.BoolQuery{Should: should, Boost: originWeight})
}

// originQueryWeightAfterRescore is the product of the query weights of every rescore
// stage already on the request, 1.0 when there are none.
func originQueryWeightAfterRescore(req *model.SearchRequest) float64 {
	weight := 1.0
	for _, rescore := range req.Rescores {
		weight *= rescore.QueryWeight()
	}
	return weight
}

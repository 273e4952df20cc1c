package engine

import (
	"context"

	"github.com/piwi3910/BarCut/internal/model"
)

// ComparisonResult holds the result and summary figures of one algorithm run.
type ComparisonResult struct {
	Algorithm     model.AlgorithmType      `json:"algorithm"`
	Result        model.OptimizationResult `json:"result"`
	StockCount    int                      `json:"stock_count"`
	WastePercent  float64                  `json:"waste_percent"`
	TotalCost     float64                  `json:"total_cost"`
	UnplacedCount int                      `json:"unplaced_count"`
	Err           error                    `json:"-"`
}

// Comparison lists the runs of several algorithms on one context next to the
// material lower bound of the demand.
type Comparison struct {
	Results  []ComparisonResult `json:"results"`
	Estimate model.BarEstimate  `json:"estimate"`
}

// CompareAlgorithms runs each algorithm on the same context, in the order
// given. A failing algorithm is reported in its entry and does not stop the others.
func CompareAlgorithms(ctx context.Context, o *Optimizer, oc *OptimizationContext, types []model.AlgorithmType) Comparison {
	if len(types) == 0 {
		types = model.AlgorithmTypes()
	}

	cmp := Comparison{Results: make([]ComparisonResult, 0, len(types))}
	for _, t := range types {
		result, err := o.Run(ctx, t, oc)
		cr := ComparisonResult{Algorithm: t, Result: result, Err: err}
		if err == nil {
			unplaced := 0
			for _, u := range result.Unplaced {
				unplaced += u.Quantity
			}
			cr.StockCount = result.StockCount
			cr.WastePercent = result.WastePercentage
			cr.TotalCost = result.TotalCost
			cr.UnplacedCount = unplaced
		}
		cmp.Results = append(cmp.Results, cr)
	}

	if lengths := model.Lengths(oc.catalog.Options); len(lengths) > 0 {
		cmp.Estimate = model.CalculateBarEstimate(oc.Items(), lengths[len(lengths)-1], oc.Constraints(), 0, 0)
	}
	return cmp
}

// Best returns the successful run that places the most pieces with the fewest
// bars and the least waste, or false if every run failed.
func (c Comparison) Best() (ComparisonResult, bool) {
	var best ComparisonResult
	found := false
	for _, r := range c.Results {
		if r.Err != nil {
			continue
		}
		switch {
		case !found:
		case r.UnplacedCount < best.UnplacedCount:
		case r.UnplacedCount > best.UnplacedCount:
			continue
		case r.StockCount < best.StockCount:
		case r.StockCount > best.StockCount:
			continue
		case r.WastePercent < best.WastePercent:
		default:
			continue
		}
		best = r
		found = true
	}
	return best, found
}

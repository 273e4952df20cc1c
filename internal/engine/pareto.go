package engine

import (
	"sort"
	"strconv"
)

// dominates reports whether a is at least as good as b on both pieces and
// waste and strictly better on one of them.
func dominates(a, b Pattern) bool {
	ap, bp := a.Pieces(), b.Pieces()
	if ap > bp && a.Waste <= b.Waste {
		return true
	}
	return ap == bp && a.Waste < b.Waste
}

// ParetoFilterByStock removes dominated patterns among patterns of the same stock ID.
func ParetoFilterByStock(patterns []Pattern) []Pattern {
	return paretoFilter(patterns, func(p Pattern) string { return p.StockID })
}

// ParetoFilterByLength removes dominated patterns among patterns of the same
// stock length, for callers that cannot tell stock instances apart.
func ParetoFilterByLength(patterns []Pattern) []Pattern {
	return paretoFilter(patterns, func(p Pattern) string {
		return strconv.FormatFloat(p.StockLength, 'f', -1, 64)
	})
}

func paretoFilter(patterns []Pattern, identity func(Pattern) string) []Pattern {
	var order []string
	groups := make(map[string][]Pattern)
	for _, p := range patterns {
		id := identity(p)
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], p)
	}

	var out []Pattern
	for _, id := range order {
		group := groups[id]
		// Best first: more pieces, then less waste
		sort.SliceStable(group, func(i, j int) bool {
			pi, pj := group[i].Pieces(), group[j].Pieces()
			if pi != pj {
				return pi > pj
			}
			return group[i].Waste < group[j].Waste
		})

		seen := make(map[string]bool)
		var kept []Pattern
		for _, cand := range group {
			key := cand.composition()
			if seen[key] {
				continue
			}
			seen[key] = true

			dominated := false
			for _, k := range kept {
				if dominates(k, cand) {
					dominated = true
					break
				}
			}
			if !dominated {
				kept = append(kept, cand)
			}
		}
		out = append(out, kept...)
	}
	return out
}

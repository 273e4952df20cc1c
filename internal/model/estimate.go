package model

import "math"

// BarEstimate holds the results of a bar purchasing calculation.
type BarEstimate struct {
	TotalPieceLength float64 `json:"total_piece_length"` // Demand including one kerf per piece (mm)
	TotalMeters      float64 `json:"total_meters"`       // Same in metres
	EffectiveLength  float64 `json:"effective_length"`   // Usable length of one bar (mm)
	BarsNeededExact  float64 `json:"bars_needed_exact"`  // Exact fractional number of bars
	BarsNeededMin    int     `json:"bars_needed_min"`    // Minimum bars (ceiling of exact)
	BarsWithWaste    int     `json:"bars_with_waste"`    // Recommended bars including waste factor
	WastePercent     float64 `json:"waste_percent"`      // Waste factor applied (e.g., 10 for 10%)
	EstimatedCost    float64 `json:"estimated_cost"`     // Total cost if pricing available
	PricePerBar      float64 `json:"price_per_bar"`
	KerfWidth        float64 `json:"kerf_width"`
}

// CalculateBarEstimate computes how many bars of one length to buy for a cutting list.
// It accounts for kerf, the bar safeties and an additional waste percentage factor.
func CalculateBarEstimate(items []OptimizationItem, stockLength float64, c EnhancedConstraints, wastePercent, pricePerBar float64) BarEstimate {
	var total float64
	for _, it := range items {
		total += (it.Length + c.KerfWidth) * float64(it.Quantity)
	}

	// n pieces need only n-1 kerfs, so the bar gets one kerf of credit
	effective := c.EffectiveLength(stockLength) + c.KerfWidth
	if effective <= 0 {
		return BarEstimate{
			TotalPieceLength: total,
			TotalMeters:      total / 1000.0,
			WastePercent:     wastePercent,
			KerfWidth:        c.KerfWidth,
		}
	}

	exact := total / effective
	minBars := int(math.Ceil(exact))

	wasteFactor := 1.0 + (wastePercent / 100.0)
	withWaste := int(math.Ceil(exact * wasteFactor))
	if withWaste < minBars {
		withWaste = minBars
	}

	return BarEstimate{
		TotalPieceLength: total,
		TotalMeters:      total / 1000.0,
		EffectiveLength:  effective,
		BarsNeededExact:  exact,
		BarsNeededMin:    minBars,
		BarsWithWaste:    withWaste,
		WastePercent:     wastePercent,
		EstimatedCost:    float64(withWaste) * pricePerBar,
		PricePerBar:      pricePerBar,
		KerfWidth:        c.KerfWidth,
	}
}

package model

import "fmt"

// Remnant is a reusable piece of bar left over after cutting.
type Remnant struct {
	ID          string  `json:"id"`
	CutID       string  `json:"cut_id"`    // Which bar it came from
	CutIndex    int     `json:"cut_index"` // Index of the source cut in the result
	ProfileType string  `json:"profile_type"`
	Length      float64 `json:"length"` // Usable length (mm)
	Price       float64 `json:"price"`  // Inherited price proportional to length (0 if not set)
}

// ToStockOption converts a remnant into a single-bar catalog entry for reuse.
func (r Remnant) ToStockOption() MaterialStockOption {
	opt := NewStockOption(r.ProfileType, r.Length, 1)
	opt.CostPerStock = r.Price
	opt.MaterialGrade = fmt.Sprintf("remnant of %s", r.CutID)
	return opt
}

// DetectRemnants lists the cuts that leave an offcut of at least
// c.MinScrapLength. Cutting the offcut free of the last piece costs one more
// kerf, so the usable length is the remaining length less c.KerfWidth on a bar
// that holds pieces. Shorter leftovers are scrap.
func DetectRemnants(result OptimizationResult, c EnhancedConstraints) []Remnant {
	var remnants []Remnant
	for i, cut := range result.Cuts {
		length := cut.RemainingLength
		if len(cut.Pieces) > 0 {
			length -= c.KerfWidth
		}
		if length < c.MinScrapLength || length <= 0 {
			continue
		}
		var price float64
		if cut.StockLength > 0 {
			price = cut.Price * length / cut.StockLength
		}
		remnants = append(remnants, Remnant{
			ID:          newID(),
			CutID:       cut.ID,
			CutIndex:    i,
			ProfileType: cut.ProfileType,
			Length:      length,
			Price:       price,
		})
	}
	return remnants
}

// RemnantLength returns the total length of the given remnants.
func RemnantLength(remnants []Remnant) float64 {
	var total float64
	for _, r := range remnants {
		total += r.Length
	}
	return total
}

package engine

import (
	"github.com/shopspring/decimal"

	"github.com/piwi3910/BarCut/internal/model"
)

// CostBreakdown itemises the price of a set of cuts. Amounts are rounded to cents.
type CostBreakdown struct {
	Material decimal.Decimal `json:"material"`
	Cutting  decimal.Decimal `json:"cutting"`
	Setup    decimal.Decimal `json:"setup"`
	Waste    decimal.Decimal `json:"waste"`
	Time     decimal.Decimal `json:"time"`
	Energy   decimal.Decimal `json:"energy"`
	Total    decimal.Decimal `json:"total"`
}

// CalculateCost prices the cuts with the given rates. Every piece is one saw
// cut, every distinct bar layout is one setup and waste is charged per metre.
func CalculateCost(cuts []model.Cut, c model.EnhancedConstraints, rates model.CostModel) CostBreakdown {
	var barPrices, wasteMm decimal.Decimal
	sawCuts := 0
	patterns := make(map[string]bool)

	for _, cut := range cuts {
		barPrices = barPrices.Add(decimal.NewFromFloat(cut.Price))
		wasteMm = wasteMm.Add(decimal.NewFromFloat(cut.Waste()))
		sawCuts += len(cut.Pieces)
		patterns[cut.PatternKey()] = true
	}
	bars := decimal.NewFromInt(int64(len(cuts)))

	b := CostBreakdown{
		Material: decimal.NewFromFloat(rates.MaterialCost).Mul(barPrices),
		Cutting:  decimal.NewFromFloat(rates.CuttingCost).Mul(decimal.NewFromInt(int64(sawCuts))),
		Setup:    decimal.NewFromFloat(rates.SetupCost).Mul(decimal.NewFromInt(int64(len(patterns)))),
		Waste:    decimal.NewFromFloat(rates.WasteCost).Mul(wasteMm.Div(decimal.NewFromInt(1000))),
		Time:     decimal.NewFromFloat(rates.TimeCost).Mul(bars),
		Energy:   decimal.Zero,
	}
	if c.EnergyPerStock != nil {
		b.Energy = decimal.NewFromFloat(rates.EnergyCost).Mul(decimal.NewFromFloat(*c.EnergyPerStock)).Mul(bars)
	}

	b.Material = b.Material.Round(2)
	b.Cutting = b.Cutting.Round(2)
	b.Setup = b.Setup.Round(2)
	b.Waste = b.Waste.Round(2)
	b.Time = b.Time.Round(2)
	b.Energy = b.Energy.Round(2)
	b.Total = b.Material.Add(b.Cutting).Add(b.Setup).Add(b.Waste).Add(b.Time).Add(b.Energy)
	return b
}

package model

import "sort"

// MaterialStockOption is one purchasable or on-hand bar in the stock catalog.
type MaterialStockOption struct {
	ID            string  `json:"id"`
	ProfileType   string  `json:"profile_type"`                              // Empty means usable for any profile
	StockLength   float64 `json:"stock_length" validate:"gt=0"`              // mm
	Availability  int     `json:"availability" validate:"gte=0"`             // Bars on hand, 0 = unlimited
	CostPerMm     float64 `json:"cost_per_mm,omitempty" validate:"gte=0"`    // Price per mm of bar
	CostPerStock  float64 `json:"cost_per_stock,omitempty" validate:"gte=0"` // Price per bar, overrides CostPerMm
	MaterialGrade string  `json:"material_grade,omitempty"`
	Weight        float64 `json:"weight,omitempty" validate:"gte=0"` // kg per metre
}

// NewStockOption creates a new MaterialStockOption with a generated ID.
func NewStockOption(profileType string, stockLength float64, availability int) MaterialStockOption {
	return MaterialStockOption{
		ID:           newID(),
		ProfileType:  profileType,
		StockLength:  stockLength,
		Availability: availability,
	}
}

// Price returns the cost of one bar of this option.
func (o MaterialStockOption) Price() float64 {
	if o.CostPerStock > 0 {
		return o.CostPerStock
	}
	return o.CostPerMm * o.StockLength
}

// Universal reports whether the option serves every profile type.
func (o MaterialStockOption) Universal() bool {
	return o.ProfileType == ""
}

// Unlimited reports whether the option has no availability cap.
func (o MaterialStockOption) Unlimited() bool {
	return o.Availability == 0
}

// BarWeight returns the weight of one bar in kg.
func (o MaterialStockOption) BarWeight() float64 {
	return o.Weight * o.StockLength / 1000.0
}

// StockCatalog holds the stock bars the optimizer may cut from.
type StockCatalog struct {
	Options []MaterialStockOption `json:"options" validate:"dive"`
}

// DefaultCatalog returns a catalog of common universal bar lengths.
func DefaultCatalog() StockCatalog {
	return StockCatalog{
		Options: []MaterialStockOption{
			NewStockOption("", 3000, 0),
			NewStockOption("", 6000, 0),
			NewStockOption("", 9000, 0),
		},
	}
}

// ForProfile returns the options usable for a profile: its own options plus
// the universal ones, shortest first.
func (c StockCatalog) ForProfile(profileType string) []MaterialStockOption {
	var opts []MaterialStockOption
	for _, o := range c.Options {
		if o.ProfileType == profileType || o.Universal() {
			opts = append(opts, o)
		}
	}
	sort.SliceStable(opts, func(i, j int) bool {
		return opts[i].StockLength < opts[j].StockLength
	})
	return opts
}

// Lengths returns the distinct stock lengths of the given options, ascending.
func Lengths(opts []MaterialStockOption) []float64 {
	seen := make(map[float64]bool)
	var lengths []float64
	for _, o := range opts {
		if !seen[o.StockLength] {
			seen[o.StockLength] = true
			lengths = append(lengths, o.StockLength)
		}
	}
	sort.Float64s(lengths)
	return lengths
}

// Lengths returns the distinct stock lengths usable for a profile, ascending.
func (c StockCatalog) Lengths(profileType string) []float64 {
	return Lengths(c.ForProfile(profileType))
}

// FindByID returns a pointer to the option with the given ID, or nil.
func (c *StockCatalog) FindByID(id string) *MaterialStockOption {
	for i := range c.Options {
		if c.Options[i].ID == id {
			return &c.Options[i]
		}
	}
	return nil
}

// ProfileTypes returns the profile types with dedicated options, sorted.
func (c StockCatalog) ProfileTypes() []string {
	seen := make(map[string]bool)
	var types []string
	for _, o := range c.Options {
		if o.ProfileType != "" && !seen[o.ProfileType] {
			seen[o.ProfileType] = true
			types = append(types, o.ProfileType)
		}
	}
	sort.Strings(types)
	return types
}

// Clone returns a deep copy of the catalog.
func (c StockCatalog) Clone() StockCatalog {
	opts := make([]MaterialStockOption, len(c.Options))
	copy(opts, c.Options)
	return StockCatalog{Options: opts}
}

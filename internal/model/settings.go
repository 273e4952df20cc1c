package model

// EnhancedConstraints holds the saw and bar-handling limits. All distances are in mm.
type EnhancedConstraints struct {
	KerfWidth      float64  `json:"kerf_width" mapstructure:"kerf_width" validate:"gte=0"`             // Material lost per cut (blade width)
	StartSafety    float64  `json:"start_safety" mapstructure:"start_safety" validate:"gte=0"`         // Reserved at the bar start
	EndSafety      float64  `json:"end_safety" mapstructure:"end_safety" validate:"gte=0"`             // Reserved at the bar end
	MinScrapLength float64  `json:"min_scrap_length" mapstructure:"min_scrap_length" validate:"gte=0"` // Shortest leftover worth keeping
	EnergyPerStock *float64 `json:"energy_per_stock,omitempty" mapstructure:"energy_per_stock"`        // kWh per bar processed, optional
}

// DefaultConstraints returns the constraints used when a request sets none.
func DefaultConstraints() EnhancedConstraints {
	return EnhancedConstraints{
		KerfWidth:      3.5,
		StartSafety:    2.0,
		EndSafety:      2.0,
		MinScrapLength: 500.0,
	}
}

// EffectiveLength returns the part of a bar that pieces and kerf may occupy.
func (c EnhancedConstraints) EffectiveLength(stockLength float64) float64 {
	return stockLength - c.StartSafety - c.EndSafety
}

// UsedLength returns the used length of a bar holding n pieces with the given total length.
func (c EnhancedConstraints) UsedLength(pieceLength float64, n int) float64 {
	if n == 0 {
		return c.StartSafety
	}
	return c.StartSafety + pieceLength + float64(n-1)*c.KerfWidth
}

// ObjectiveType names what an optimization run should favour.
type ObjectiveType string

const (
	ObjectiveMinimizeWaste      ObjectiveType = "minimize-waste"
	ObjectiveMinimizeCost       ObjectiveType = "minimize-cost"
	ObjectiveMinimizeStock      ObjectiveType = "minimize-stock"
	ObjectiveMaximizeEfficiency ObjectiveType = "maximize-efficiency"
)

// Objective is one weighted goal of a run.
type Objective struct {
	Type     ObjectiveType `json:"type" mapstructure:"type" validate:"oneof=minimize-waste minimize-cost minimize-stock maximize-efficiency"`
	Weight   float64       `json:"weight" mapstructure:"weight" validate:"gte=0"`
	Priority int           `json:"priority" mapstructure:"priority"`
}

// DefaultObjectives favours low waste, then fewer bars.
func DefaultObjectives() []Objective {
	return []Objective{
		{Type: ObjectiveMinimizeWaste, Weight: 0.6, Priority: 1},
		{Type: ObjectiveMinimizeStock, Weight: 0.3, Priority: 2},
		{Type: ObjectiveMinimizeCost, Weight: 0.1, Priority: 3},
	}
}

// PerformanceSettings bounds the work an iterative algorithm may do.
type PerformanceSettings struct {
	MaxIterations        int     `json:"max_iterations" mapstructure:"max_iterations" validate:"gte=0"`
	ConvergenceThreshold float64 `json:"convergence_threshold" mapstructure:"convergence_threshold" validate:"gte=0"`
	ParallelProcessing   bool    `json:"parallel_processing" mapstructure:"parallel_processing"`
	CacheResults         bool    `json:"cache_results" mapstructure:"cache_results"`
	Seed                 int64   `json:"seed" mapstructure:"seed"`
}

func DefaultPerformanceSettings() PerformanceSettings {
	return PerformanceSettings{
		MaxIterations:        100,
		ConvergenceThreshold: 1e-4,
		ParallelProcessing:   false,
		CacheResults:         true,
		Seed:                 42,
	}
}

// CostModel holds the rates used to price a solution.
type CostModel struct {
	MaterialCost float64 `json:"material_cost" mapstructure:"material_cost" validate:"gte=0"` // Multiplier on catalog bar prices
	CuttingCost  float64 `json:"cutting_cost" mapstructure:"cutting_cost" validate:"gte=0"`   // Per saw cut
	SetupCost    float64 `json:"setup_cost" mapstructure:"setup_cost" validate:"gte=0"`       // Per distinct bar layout
	WasteCost    float64 `json:"waste_cost" mapstructure:"waste_cost" validate:"gte=0"`       // Per metre of waste
	TimeCost     float64 `json:"time_cost" mapstructure:"time_cost" validate:"gte=0"`         // Per bar handled
	EnergyCost   float64 `json:"energy_cost" mapstructure:"energy_cost" validate:"gte=0"`     // Per kWh
}

func DefaultCostModel() CostModel {
	return CostModel{
		MaterialCost: 1.0,
		CuttingCost:  0.05,
		SetupCost:    0.5,
		WasteCost:    0.0,
		TimeCost:     0.1,
		EnergyCost:   0.0,
	}
}

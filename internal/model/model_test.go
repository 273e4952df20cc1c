package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOptimizationItemTotalLength(t *testing.T) {
	it := NewOptimizationItem("P-40", 1250, 4, "WO-1")
	if it.TotalLength != 5000 {
		t.Errorf("expected total length 5000, got %.1f", it.TotalLength)
	}
	if len(it.ID) != 8 {
		t.Errorf("expected 8 char id, got %q", it.ID)
	}
}

func TestBuildPatternLongestFirst(t *testing.T) {
	pieces := []PlacedPiece{{Length: 500}, {Length: 1200}, {Length: 500}, {Length: 800}}
	pattern := BuildPattern(pieces)

	require.Len(t, pattern, 3)
	assert.Equal(t, PatternEntry{Length: 1200, Count: 1}, pattern[0])
	assert.Equal(t, PatternEntry{Length: 800, Count: 1}, pattern[1])
	assert.Equal(t, PatternEntry{Length: 500, Count: 2}, pattern[2])
	assert.Equal(t, "6000:1200x1,800x1,500x2", PatternKey(6000, pattern))
}

func TestCutMetrics(t *testing.T) {
	c := Cut{
		StockLength: 6000,
		Pieces:      []PlacedPiece{{Length: 2000}, {Length: 1000}},
	}
	assert.Equal(t, 3000.0, c.PieceLength())
	assert.Equal(t, 3000.0, c.Waste())
	assert.InDelta(t, 50.0, c.Efficiency(), 1e-9)

	assert.Equal(t, 0.0, Cut{}.Efficiency())
}

func TestResultQuantities(t *testing.T) {
	r := OptimizationResult{
		Cuts: []Cut{
			{Pieces: []PlacedPiece{{Length: 1000}, {Length: 1000}, {Length: 500}}},
			{Pieces: []PlacedPiece{{Length: 500}}},
		},
		Unplaced: []UnplacedItem{{Length: 7000, Quantity: 2, Reason: ReasonOversized}},
	}
	assert.Equal(t, 4, r.TotalPieces())
	assert.Equal(t, map[float64]int{1000: 2, 500: 2}, r.PlacedQuantities())
	assert.Equal(t, map[float64]int{7000: 2}, r.UnplacedQuantities())
	assert.True(t, r.HasUnplaced())
}

func TestParseAlgorithmType(t *testing.T) {
	tests := []struct {
		in         string
		want       AlgorithmType
		deprecated bool
	}{
		{"ffd", AlgorithmFFD, false},
		{"BFD", AlgorithmBFD, false},
		{" genetic ", AlgorithmGenetic, false},
		{"pooling", AlgorithmPooling, false},
		{"nfd", AlgorithmFFD, true},
		{"wfd", AlgorithmBFD, true},
		{"simulated-annealing", AlgorithmGenetic, true},
		{"simulated_annealing", AlgorithmGenetic, true},
		{"branch-and-bound", AlgorithmBFD, true},
	}
	for _, tt := range tests {
		got, dep, err := ParseAlgorithmType(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.deprecated, dep, tt.in)
	}

	_, _, err := ParseAlgorithmType("tabu")
	assert.Error(t, err)
}

func TestAlgorithmTypeUnmarshalRejectsUnknown(t *testing.T) {
	var r OptimizationResult
	err := json.Unmarshal([]byte(`{"algorithm":"wfd"}`), &r)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"algorithm":"bfd"}`), &r)
	require.NoError(t, err)
	assert.Equal(t, AlgorithmBFD, r.Algorithm)
}

func TestConstraintsLengths(t *testing.T) {
	c := DefaultConstraints()
	assert.Equal(t, 5996.0, c.EffectiveLength(6000))
	assert.Equal(t, 2.0, c.UsedLength(0, 0))
	// 2 + 3000 + 2*3.5
	assert.Equal(t, 3009.0, c.UsedLength(3000, 3))
}

func TestStockOptionPrice(t *testing.T) {
	o := NewStockOption("P-40", 6000, 0)
	o.CostPerMm = 0.01
	assert.InDelta(t, 60.0, o.Price(), 1e-9)

	o.CostPerStock = 45
	assert.Equal(t, 45.0, o.Price())
	assert.True(t, o.Unlimited())

	o.Weight = 1.5
	assert.InDelta(t, 9.0, o.BarWeight(), 1e-9)
}

func TestCatalogForProfile(t *testing.T) {
	own := NewStockOption("P-40", 6500, 10)
	other := NewStockOption("P-60", 7000, 0)
	universal := NewStockOption("", 3000, 0)
	cat := StockCatalog{Options: []MaterialStockOption{own, other, universal}}

	opts := cat.ForProfile("P-40")
	require.Len(t, opts, 2)
	assert.Equal(t, 3000.0, opts[0].StockLength)
	assert.Equal(t, 6500.0, opts[1].StockLength)

	assert.Equal(t, []float64{3000, 7000}, cat.Lengths("P-60"))
	assert.Equal(t, []string{"P-40", "P-60"}, cat.ProfileTypes())

	found := cat.FindByID(own.ID)
	require.NotNil(t, found)
	assert.Equal(t, 6500.0, found.StockLength)
	assert.Nil(t, cat.FindByID("missing"))

	clone := cat.Clone()
	clone.Options[0].StockLength = 1
	assert.Equal(t, 6500.0, cat.Options[0].StockLength)
}

func TestDetectRemnants(t *testing.T) {
	piece := []PlacedPiece{{Length: 4000, Position: 2}}
	r := OptimizationResult{
		Cuts: []Cut{
			{ID: "a", ProfileType: "P-40", StockLength: 6000, RemainingLength: 1203, Price: 60, Pieces: piece},
			{ID: "b", ProfileType: "P-40", StockLength: 6000, RemainingLength: 300, Price: 60, Pieces: piece},
			{ID: "c", ProfileType: "P-40", StockLength: 6000, RemainingLength: 502, Price: 60, Pieces: piece},
		},
	}
	c := EnhancedConstraints{KerfWidth: 3, MinScrapLength: 500}
	remnants := DetectRemnants(r, c)
	require.Len(t, remnants, 1, "c is under the minimum once the separating kerf is taken")
	assert.Equal(t, "a", remnants[0].CutID)
	assert.Equal(t, 1200.0, remnants[0].Length)
	assert.InDelta(t, 12.0, remnants[0].Price, 1e-9)
	assert.Equal(t, 1200.0, RemnantLength(remnants))

	opt := remnants[0].ToStockOption()
	assert.Equal(t, "P-40", opt.ProfileType)
	assert.Equal(t, 1200.0, opt.StockLength)
	assert.Equal(t, 1, opt.Availability)
	assert.InDelta(t, 12.0, opt.Price(), 1e-9)
}

func TestDetectRemnantsEmptyBarNeedsNoKerf(t *testing.T) {
	r := OptimizationResult{Cuts: []Cut{{ID: "a", StockLength: 3000, RemainingLength: 2996}}}
	remnants := DetectRemnants(r, EnhancedConstraints{KerfWidth: 3, MinScrapLength: 500})
	require.Len(t, remnants, 1)
	assert.Equal(t, 2996.0, remnants[0].Length)
}

func TestCalculateBarEstimate(t *testing.T) {
	items := []OptimizationItem{NewOptimizationItem("P-40", 1000, 10, "")}
	est := CalculateBarEstimate(items, 6000, DefaultConstraints(), 10, 50)

	// (1000+3.5)*10 over 5996+3.5
	expected := 10035.0 / 5999.5
	if math.Abs(est.BarsNeededExact-expected) > 1e-9 {
		t.Errorf("expected %.4f bars, got %.4f", expected, est.BarsNeededExact)
	}
	assert.Equal(t, 2, est.BarsNeededMin)
	assert.Equal(t, 2, est.BarsWithWaste)
	assert.Equal(t, 100.0, est.EstimatedCost)
	assert.InDelta(t, 10.035, est.TotalMeters, 1e-9)
}

func TestCalculateBarEstimateShortBar(t *testing.T) {
	items := []OptimizationItem{NewOptimizationItem("P-40", 100, 1, "")}
	c := EnhancedConstraints{StartSafety: 10, EndSafety: 10}
	est := CalculateBarEstimate(items, 10, c, 0, 5)
	assert.Equal(t, 0, est.BarsNeededMin)
	assert.Equal(t, 0.0, est.EstimatedCost)
}

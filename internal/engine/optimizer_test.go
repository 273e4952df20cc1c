package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/piwi3910/BarCut/internal/apperrors"
	"github.com/piwi3910/BarCut/internal/model"
)

func testContext(t *testing.T, items []model.OptimizationItem, catalog model.StockCatalog, opts ...ContextOption) *OptimizationContext {
	t.Helper()
	oc, err := NewOptimizationContext(items, catalog, model.DefaultConstraints(), opts...)
	require.NoError(t, err)
	return oc
}

func universalCatalog(lengths ...float64) model.StockCatalog {
	var cat model.StockCatalog
	for _, l := range lengths {
		opt := model.NewStockOption("", l, 0)
		opt.CostPerMm = 0.01
		cat.Options = append(cat.Options, opt)
	}
	return cat
}

func mixedItems() []model.OptimizationItem {
	return []model.OptimizationItem{
		model.NewOptimizationItem("P-40", 1200, 5, "WO-1"),
		model.NewOptimizationItem("P-40", 850, 7, "WO-1"),
		model.NewOptimizationItem("P-40", 430, 12, "WO-2"),
		model.NewOptimizationItem("P-40", 2900, 2, "WO-2"),
		model.NewOptimizationItem("P-60", 1500, 4, "WO-3"),
	}
}

func mixedCatalog() model.StockCatalog {
	cat := universalCatalog(3000, 6000)
	p60 := model.NewStockOption("P-60", 7000, 1)
	p60.CostPerStock = 95
	cat.Options = append(cat.Options, p60)
	return cat
}

func demandOf(items []model.OptimizationItem) map[float64]int {
	d := make(map[float64]int)
	for _, it := range items {
		d[it.Length] += it.Quantity
	}
	return d
}

func TestOptimize_AllAlgorithmsBalanceAndConserveDemand(t *testing.T) {
	items := mixedItems()
	oc := testContext(t, items, mixedCatalog())
	opt := New(zap.NewNop())

	for _, alg := range model.AlgorithmTypes() {
		t.Run(string(alg), func(t *testing.T) {
			result, err := opt.Run(context.Background(), alg, oc)
			require.NoError(t, err)
			assert.Equal(t, alg, result.Algorithm)

			c := oc.Constraints()
			for _, cut := range result.Cuts {
				require.NoError(t, ValidateCut(cut, c))
				assert.InDelta(t, cut.StockLength, cut.UsedLength+cut.RemainingLength+c.EndSafety, model.AccountingTolerance)
				assert.NotEmpty(t, cut.Pattern)
				for _, p := range cut.Pieces {
					assert.GreaterOrEqual(t, p.Position, c.StartSafety)
					assert.LessOrEqual(t, p.Position+p.Length, cut.StockLength-c.EndSafety+model.AccountingTolerance)
				}
			}

			placed := result.PlacedQuantities()
			unplaced := result.UnplacedQuantities()
			for length, qty := range demandOf(items) {
				assert.Equal(t, qty, placed[length]+unplaced[length], "length %.0f", length)
			}
			assert.False(t, result.HasUnplaced())
			assert.Equal(t, len(result.Cuts), result.StockCount)
			assert.InDelta(t, 100.0, result.Efficiency+result.WastePercentage, 1e-9)
			assert.Greater(t, result.TotalCost, 0.0)
		})
	}
}

func TestOptimize_AlgorithmsAreDeterministic(t *testing.T) {
	items := append(mixedItems(), model.NewOptimizationItem("P-40", 9000, 1, "WO-9"))
	perf := model.DefaultPerformanceSettings()
	perf.CacheResults = false
	oc := testContext(t, items, mixedCatalog(), WithPerformance(perf))

	mixed := DefaultPoolingConfig()
	mixed.MixedBarWeights = map[float64]float64{6000: 3, 3000: 1}

	tests := []struct {
		name string
		opt  *Optimizer
		alg  model.AlgorithmType
	}{
		{"ffd", New(zap.NewNop()), model.AlgorithmFFD},
		{"bfd", New(zap.NewNop()), model.AlgorithmBFD},
		{"genetic", New(zap.NewNop()), model.AlgorithmGenetic},
		{"pooling", New(zap.NewNop()), model.AlgorithmPooling},
		{"pooling mixed bars", New(zap.NewNop(), WithPoolingConfig(mixed)), model.AlgorithmPooling},
	}
	require.Len(t, tests, len(model.AlgorithmTypes())+1)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, err := tt.opt.Run(context.Background(), tt.alg, oc)
			require.NoError(t, err)
			for run := 0; run < 3; run++ {
				again, err := tt.opt.Run(context.Background(), tt.alg, oc)
				require.NoError(t, err)
				assert.Equal(t, patternKeys(first), patternKeys(again), "run %d", run+2)
				assert.Equal(t, first.Unplaced, again.Unplaced, "run %d", run+2)
				assert.Equal(t, first.StockCount, again.StockCount)
			}
			assert.True(t, first.HasUnplaced(), "the 9000 mm piece fits no bar")
		})
	}
}

func TestOptimize_ProfilesUseOwnAndUniversalStock(t *testing.T) {
	oc := testContext(t, mixedItems(), mixedCatalog())
	result, err := New(zap.NewNop()).Run(context.Background(), model.AlgorithmFFD, oc)
	require.NoError(t, err)

	p60Bars := 0
	for _, cut := range result.Cuts {
		if cut.StockLength == 7000 {
			assert.Equal(t, "P-60", cut.ProfileType)
			p60Bars++
		}
	}
	// availability caps the dedicated bar at one
	assert.LessOrEqual(t, p60Bars, 1)
}

func TestOptimize_EmptyItems(t *testing.T) {
	oc := testContext(t, nil, universalCatalog(6000))
	opt := New(zap.NewNop())

	for _, alg := range model.AlgorithmTypes() {
		result, err := opt.Run(context.Background(), alg, oc)
		require.NoError(t, err, alg)
		assert.Empty(t, result.Cuts, alg)
		assert.Equal(t, 0, result.StockCount, alg)
		assert.False(t, result.HasUnplaced(), alg)
	}
}

func TestOptimize_OversizedItemIsReported(t *testing.T) {
	items := []model.OptimizationItem{
		model.NewOptimizationItem("P-40", 7000, 2, "WO-1"),
		model.NewOptimizationItem("P-40", 1000, 1, "WO-1"),
	}
	oc := testContext(t, items, universalCatalog(3000, 6000))
	opt := New(zap.NewNop())

	for _, alg := range model.AlgorithmTypes() {
		result, err := opt.Run(context.Background(), alg, oc)
		require.NoError(t, err, alg)
		require.Len(t, result.Unplaced, 1, alg)
		u := result.Unplaced[0]
		assert.Equal(t, model.ReasonOversized, u.Reason, alg)
		assert.Equal(t, 2, u.Quantity, alg)
		assert.Equal(t, 6000.0, u.LargestStock, alg)
		assert.Equal(t, items[0].ID, u.ItemID, alg)
		assert.Equal(t, 1, result.TotalPieces(), alg)
	}
}

func TestOptimize_NoStockForProfile(t *testing.T) {
	cat := model.StockCatalog{Options: []model.MaterialStockOption{model.NewStockOption("P-60", 6000, 0)}}
	items := []model.OptimizationItem{model.NewOptimizationItem("P-40", 1000, 3, "")}
	oc := testContext(t, items, cat)
	opt := New(zap.NewNop())

	for _, alg := range model.AlgorithmTypes() {
		result, err := opt.Run(context.Background(), alg, oc)
		require.NoError(t, err, alg)
		require.Len(t, result.Unplaced, 1, alg)
		assert.Equal(t, model.ReasonNoStock, result.Unplaced[0].Reason, alg)
		assert.Equal(t, 3, result.Unplaced[0].Quantity, alg)
		assert.Empty(t, result.Cuts, alg)
	}
}

func TestOptimize_StockExhausted(t *testing.T) {
	cat := model.StockCatalog{Options: []model.MaterialStockOption{model.NewStockOption("", 6000, 1)}}
	items := []model.OptimizationItem{model.NewOptimizationItem("P-40", 5000, 2, "")}
	oc := testContext(t, items, cat)
	opt := New(zap.NewNop())

	for _, alg := range model.AlgorithmTypes() {
		result, err := opt.Run(context.Background(), alg, oc)
		require.NoError(t, err, alg)
		assert.Equal(t, 1, result.StockCount, alg)
		require.Len(t, result.Unplaced, 1, alg)
		assert.Equal(t, model.ReasonStockExhausted, result.Unplaced[0].Reason, alg)
		assert.Equal(t, 1, result.Unplaced[0].Quantity, alg)
	}
}

func TestOptimize_FFDOpensBestStockForRemainingQuantity(t *testing.T) {
	items := []model.OptimizationItem{model.NewOptimizationItem("P-40", 1000, 7, "")}
	oc := testContext(t, items, universalCatalog(3000, 6000))

	result, err := New(zap.NewNop()).Run(context.Background(), model.AlgorithmFFD, oc)
	require.NoError(t, err)
	require.Len(t, result.Cuts, 2)
	assert.Equal(t, 6000.0, result.Cuts[0].StockLength)
	assert.Len(t, result.Cuts[0].Pieces, 5)
	assert.Equal(t, 3000.0, result.Cuts[1].StockLength)
	assert.Len(t, result.Cuts[1].Pieces, 2)
	assert.Equal(t, 9000.0, result.TotalStockLength)
}

func TestOptimize_BFDPicksTightestBar(t *testing.T) {
	items := []model.OptimizationItem{
		model.NewOptimizationItem("P", 4500, 1, ""),
		model.NewOptimizationItem("P", 3000, 1, ""),
		model.NewOptimizationItem("P", 2000, 1, ""),
		model.NewOptimizationItem("P", 900, 1, ""),
	}
	cat := model.StockCatalog{Options: []model.MaterialStockOption{model.NewStockOption("", 6000, 0)}}
	oc, err := NewOptimizationContext(items, cat, model.EnhancedConstraints{})
	require.NoError(t, err)
	opt := New(zap.NewNop())

	ffd, err := opt.Run(context.Background(), model.AlgorithmFFD, oc)
	require.NoError(t, err)
	bfd, err := opt.Run(context.Background(), model.AlgorithmBFD, oc)
	require.NoError(t, err)

	require.Len(t, ffd.Cuts, 2)
	require.Len(t, bfd.Cuts, 2)
	// first fit drops the 900 next to the 4500, best fit fills the 3000+2000 bar
	assert.Len(t, ffd.Cuts[0].Pieces, 2)
	assert.Len(t, bfd.Cuts[0].Pieces, 1)
	assert.Len(t, bfd.Cuts[1].Pieces, 3)
	assert.Equal(t, 5900.0, bfd.Cuts[1].PieceLength())
}

func TestOptimize_CancelledContext(t *testing.T) {
	oc := testContext(t, mixedItems(), mixedCatalog())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opt := New(zap.NewNop())
	for _, alg := range model.AlgorithmTypes() {
		_, err := opt.Run(ctx, alg, oc)
		require.Error(t, err, alg)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeTimeout), alg)
		assert.True(t, errors.Is(err, context.Canceled), alg)
	}
}

func TestOptimizer_UnknownAlgorithm(t *testing.T) {
	oc := testContext(t, mixedItems(), mixedCatalog())
	_, err := New(zap.NewNop()).Run(context.Background(), model.AlgorithmType("tabu"), oc)
	assert.True(t, apperrors.IsValidation(err))
}

func TestOptimizer_CachesResultsPerContext(t *testing.T) {
	items := []model.OptimizationItem{model.NewOptimizationItem("P", 1200, 4, "")}
	oc := testContext(t, items, universalCatalog(6000))
	opt := New(zap.NewNop())

	first, err := opt.Run(context.Background(), model.AlgorithmFFD, oc)
	require.NoError(t, err)
	second, err := opt.Run(context.Background(), model.AlgorithmFFD, oc)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// callers get copies
	second.Cuts[0].Pieces[0].Length = 1
	third, err := opt.Run(context.Background(), model.AlgorithmFFD, oc)
	require.NoError(t, err)
	assert.Equal(t, 1200.0, third.Cuts[0].Pieces[0].Length)

	bfd, err := opt.Run(context.Background(), model.AlgorithmBFD, oc)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, bfd.ID)

	perf := oc.Performance()
	perf.CacheResults = false
	uncached := oc.WithPerformanceOverride(perf)
	a, err := opt.Run(context.Background(), model.AlgorithmFFD, uncached)
	require.NoError(t, err)
	b, err := opt.Run(context.Background(), model.AlgorithmFFD, uncached)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, patternKeys(a), patternKeys(b))
}

func TestOptimizer_EstimateMemory(t *testing.T) {
	oc := testContext(t, mixedItems(), mixedCatalog())
	opt := New(zap.NewNop())

	ffd := opt.EstimateMemory(model.AlgorithmFFD, oc, false)
	gen := opt.EstimateMemory(model.AlgorithmGenetic, oc, false)
	ext := opt.EstimateMemory(model.AlgorithmGenetic, oc, true)
	assert.Greater(t, ffd, uint64(0))
	assert.Greater(t, gen, ffd)
	assert.Greater(t, ext, gen)
	assert.Greater(t, opt.EstimateMemory(model.AlgorithmPooling, oc, false), ffd)
}

func TestFinalize_RejectsUnbalancedCut(t *testing.T) {
	oc := testContext(t, nil, universalCatalog(6000))
	bad := model.Cut{
		ID:              "bad",
		StockLength:     6000,
		UsedLength:      1005.5,
		RemainingLength: 5000,
		Pieces:          []model.PlacedPiece{{Length: 1000}},
	}
	_, err := finalize(zap.NewNop(), oc, run{algorithm: model.AlgorithmFFD, cuts: []model.Cut{bad}})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAccountingViolation))
}

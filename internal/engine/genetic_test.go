package engine

import (
	"context"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/piwi3910/BarCut/internal/model"
)

func patternKeys(r model.OptimizationResult) []string {
	keys := make([]string, 0, len(r.Cuts))
	for _, c := range r.Cuts {
		keys = append(keys, c.ProfileType+"/"+c.PatternKey())
	}
	sort.Strings(keys)
	return keys
}

func TestGeneticOptimizerPlacesAllParts(t *testing.T) {
	oc := testContext(t, mixedItems(), mixedCatalog())
	result, err := NewGenetic(zap.NewNop(), DefaultGeneticConfig()).Optimize(context.Background(), oc)
	require.NoError(t, err)

	if result.TotalPieces() != oc.PieceCount() {
		t.Errorf("expected %d pieces placed, got %d", oc.PieceCount(), result.TotalPieces())
	}
	if len(result.Unplaced) != 0 {
		t.Errorf("expected 0 unplaced items, got %d", len(result.Unplaced))
	}
	if result.Iterations == 0 {
		t.Error("expected at least one generation")
	}
}

func TestGeneticOptimizerIsDeterministic(t *testing.T) {
	oc := testContext(t, mixedItems(), mixedCatalog())
	ga := NewGenetic(zap.NewNop(), DefaultGeneticConfig())

	first, err := ga.Optimize(context.Background(), oc)
	require.NoError(t, err)
	second, err := ga.Optimize(context.Background(), oc)
	require.NoError(t, err)

	assert.Equal(t, first.StockCount, second.StockCount)
	assert.Equal(t, first.TotalStockLength, second.TotalStockLength)
	assert.Equal(t, patternKeys(first), patternKeys(second))
}

func TestGeneticOptimizerParallelMatchesSequential(t *testing.T) {
	perf := model.DefaultPerformanceSettings()
	seq := testContext(t, mixedItems(), mixedCatalog(), WithPerformance(perf))
	perf.ParallelProcessing = true
	par := seq.WithPerformanceOverride(perf)

	ga := NewGenetic(zap.NewNop(), DefaultGeneticConfig())
	a, err := ga.Optimize(context.Background(), seq)
	require.NoError(t, err)
	b, err := ga.Optimize(context.Background(), par)
	require.NoError(t, err)

	assert.Equal(t, patternKeys(a), patternKeys(b))
}

func TestGeneticOptimizerNeverWorseThanFFD(t *testing.T) {
	oc := testContext(t, mixedItems(), mixedCatalog(), WithObjectives(model.Objective{Type: model.ObjectiveMinimizeWaste, Weight: 1}))
	opt := New(zap.NewNop())

	ffd, err := opt.Run(context.Background(), model.AlgorithmFFD, oc)
	require.NoError(t, err)
	gen, err := opt.Run(context.Background(), model.AlgorithmGenetic, oc)
	require.NoError(t, err)

	// the longest-first chromosome decodes to the FFD layout and elitism keeps it
	assert.LessOrEqual(t, gen.TotalStockLength, ffd.TotalStockLength+1e-9)
}

// cheapVersusLongCatalog offers a cheap short bar and an expensive long bar
// that holds all three 1900 mm pieces.
func cheapVersusLongCatalog() model.StockCatalog {
	short := model.NewStockOption("", 3000, 0)
	short.CostPerStock = 1
	long := model.NewStockOption("", 6000, 0)
	long.CostPerStock = 1000
	return model.StockCatalog{Options: []model.MaterialStockOption{short, long}}
}

func stockLengths(r model.OptimizationResult) []float64 {
	lengths := make([]float64, 0, len(r.Cuts))
	for _, c := range r.Cuts {
		lengths = append(lengths, c.StockLength)
	}
	sort.Float64s(lengths)
	return lengths
}

func TestGeneticOptimizerFollowsObjectives(t *testing.T) {
	items := []model.OptimizationItem{model.NewOptimizationItem("P", 1900, 3, "")}
	ga := NewGenetic(zap.NewNop(), DefaultGeneticConfig())

	waste := testContext(t, items, cheapVersusLongCatalog(), WithObjectives(model.Objective{Type: model.ObjectiveMinimizeWaste, Weight: 1}))
	byWaste, err := ga.Optimize(context.Background(), waste)
	require.NoError(t, err)
	assert.Equal(t, []float64{6000}, stockLengths(byWaste))

	cost := testContext(t, items, cheapVersusLongCatalog(), WithObjectives(model.Objective{Type: model.ObjectiveMinimizeCost, Weight: 1}))
	byCost, err := ga.Optimize(context.Background(), cost)
	require.NoError(t, err)
	assert.Equal(t, []float64{3000, 3000, 3000}, stockLengths(byCost))
	assert.Equal(t, 3, byCost.TotalPieces())
}

func TestObjectiveWeights(t *testing.T) {
	w := newObjectiveWeights(model.DefaultObjectives())
	assert.InDelta(t, 0.6, w.material, 1e-9)
	assert.InDelta(t, 0.3, w.bars, 1e-9)
	assert.InDelta(t, 0.1, w.cost, 1e-9)

	assert.Equal(t, objectiveWeights{material: 1}, newObjectiveWeights(nil))

	ref := packingMeasures{efficiency: 0.8, bars: 4, cost: 100}
	assert.InDelta(t, 1.0, objectiveWeights{bars: 1}.score(ref, ref), 1e-9)
	cheaper := packingMeasures{efficiency: 0.7, bars: 5, cost: 50}
	assert.Greater(t, objectiveWeights{cost: 1}.score(cheaper, ref), objectiveWeights{cost: 1}.score(ref, ref))
	assert.Less(t, objectiveWeights{material: 1}.score(cheaper, ref), objectiveWeights{material: 1}.score(ref, ref))

	missing := ref
	missing.unplaced = 1
	assert.Less(t, objectiveWeights{cost: 1}.score(missing, ref), 0.0)
	assert.Equal(t, 1.0, relative(0, 0))
}

func TestGeneticOptimizerRespectsIterationCap(t *testing.T) {
	perf := model.DefaultPerformanceSettings()
	perf.MaxIterations = 3
	perf.ConvergenceThreshold = 0
	oc := testContext(t, []model.OptimizationItem{
		model.NewOptimizationItem("P", 1700, 6, ""),
		model.NewOptimizationItem("P", 900, 9, ""),
	}, universalCatalog(6000), WithPerformance(perf))

	cfg := DefaultGeneticConfig()
	cfg.StallGenerations = 0
	result, err := NewGenetic(zap.NewNop(), cfg).Optimize(context.Background(), oc)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Iterations)
	assert.False(t, result.Converged)

	extended, err := NewGenetic(zap.NewNop(), cfg.Extended()).Optimize(context.Background(), oc)
	require.NoError(t, err)
	assert.Equal(t, 6, extended.Iterations)
}

func TestGeneticConfigExtended(t *testing.T) {
	base := DefaultGeneticConfig()
	ext := base.Extended()
	assert.Equal(t, base.PopulationSize*2, ext.PopulationSize)
	assert.Equal(t, base.Generations*2, ext.Generations)
	assert.Equal(t, 2, ext.BudgetFactor)
	assert.Equal(t, base.MutationRate, ext.MutationRate)
}

func TestNormalizeFitnessCollapsedPopulation(t *testing.T) {
	pop := []chromosome{{score: 0.8}, {score: 0.8}, {score: 0.8 + 1e-12}}
	normalizeFitness(pop)
	for i, c := range pop {
		if c.fitness != 1 {
			t.Errorf("chromosome %d: expected fitness 1 for a collapsed population, got %f", i, c.fitness)
		}
	}

	pop = []chromosome{{score: 0.5}, {score: 0.75}, {score: 1.0}}
	normalizeFitness(pop)
	assert.InDelta(t, 0.0, pop[0].fitness, 1e-12)
	assert.InDelta(t, 0.5, pop[1].fitness, 1e-12)
	assert.InDelta(t, 1.0, pop[2].fitness, 1e-12)
}

func TestOrderCrossoverKeepsPermutation(t *testing.T) {
	g := &geneticOptimizer{rng: rand.New(rand.NewSource(7)), config: DefaultGeneticConfig()}
	n := 12
	for trial := 0; trial < 50; trial++ {
		p1 := chromosome{genes: g.rng.Perm(n)}
		p2 := chromosome{genes: g.rng.Perm(n)}
		child := g.orderCrossover(p1, p2)
		g.mutate(&child)

		seen := make([]bool, n)
		for _, gene := range child.genes {
			require.False(t, seen[gene], "gene %d repeated", gene)
			seen[gene] = true
		}
		require.Len(t, child.genes, n)
	}
}

func TestTournamentSelectCopies(t *testing.T) {
	g := &geneticOptimizer{rng: rand.New(rand.NewSource(1)), config: DefaultGeneticConfig()}
	pop := []chromosome{{genes: []int{0, 1, 2}, fitness: 1}}
	picked := g.tournamentSelect(pop)
	picked.genes[0] = 9
	assert.Equal(t, 0, pop[0].genes[0])
}

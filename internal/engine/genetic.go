package engine

import (
	"context"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/piwi3910/BarCut/internal/apperrors"
	"github.com/piwi3910/BarCut/internal/model"
)

// GeneticConfig holds parameters for the genetic algorithm optimizer.
type GeneticConfig struct {
	PopulationSize   int     `mapstructure:"population_size"`
	Generations      int     `mapstructure:"generations"`
	MutationRate     float64 `mapstructure:"mutation_rate"`
	TournamentSize   int     `mapstructure:"tournament_size"`
	EliteCount       int     `mapstructure:"elite_count"`
	StallGenerations int     `mapstructure:"stall_generations"` // Generations without improvement before stopping, 0 disables
	BudgetFactor     int     `mapstructure:"-"`                 // Multiplier on the iteration cap of the run
}

// DefaultGeneticConfig returns sensible default parameters.
func DefaultGeneticConfig() GeneticConfig {
	return GeneticConfig{
		PopulationSize:   50,
		Generations:      100,
		MutationRate:     0.15,
		TournamentSize:   3,
		EliteCount:       2,
		StallGenerations: 25,
		BudgetFactor:     1,
	}
}

// Extended returns the config with twice the population, generations and patience.
func (c GeneticConfig) Extended() GeneticConfig {
	c.PopulationSize *= 2
	c.Generations *= 2
	c.StallGenerations *= 2
	if c.BudgetFactor < 1 {
		c.BudgetFactor = 1
	}
	c.BudgetFactor *= 2
	return c
}

// unplacedPenalty is subtracted per unplaced piece. It outweighs any
// objective score, which stays below 2.
const unplacedPenalty = 10.0

// chromosome is an ordering of the pieces of one profile group plus the rule
// used to pick stock for each new bar.
type chromosome struct {
	genes   []int     // Indices into the group's piece slice
	rule    stockRule // Stock choice when a bar is opened
	score   float64   // Raw objective, higher is better
	fitness float64   // Score normalised against the population spread
}

// objectiveWeights folds the run's objectives into one weight per measure.
// Weights sum to 1.
type objectiveWeights struct {
	material float64 // minimize-waste and maximize-efficiency
	bars     float64 // minimize-stock
	cost     float64 // minimize-cost
}

func newObjectiveWeights(objectives []model.Objective) objectiveWeights {
	var w objectiveWeights
	for _, o := range objectives {
		switch o.Type {
		case model.ObjectiveMinimizeWaste, model.ObjectiveMaximizeEfficiency:
			w.material += o.Weight
		case model.ObjectiveMinimizeStock:
			w.bars += o.Weight
		case model.ObjectiveMinimizeCost:
			w.cost += o.Weight
		}
	}
	total := w.material + w.bars + w.cost
	if total <= 0 {
		return objectiveWeights{material: 1}
	}
	return objectiveWeights{material: w.material / total, bars: w.bars / total, cost: w.cost / total}
}

// packingMeasures are the raw quantities a packing is scored on.
type packingMeasures struct {
	efficiency float64 // placed length / stock length
	bars       float64
	cost       float64
	unplaced   int
}

// score weighs m against ref, the measures of the longest-first packing.
// Bar count and cost are relative to ref so no measure dominates by scale.
func (w objectiveWeights) score(m, ref packingMeasures) float64 {
	return w.material*m.efficiency +
		w.bars*relative(ref.bars, m.bars) +
		w.cost*relative(ref.cost, m.cost) -
		float64(m.unplaced)*unplacedPenalty
}

// relative is 1 when v equals ref and approaches 2 as v falls to zero.
func relative(ref, v float64) float64 {
	if ref+v <= 0 {
		return 1
	}
	return 2 * ref / (ref + v)
}

// Genetic searches piece orderings decoded by first fit.
type Genetic struct {
	logger *zap.Logger
	config GeneticConfig
}

func NewGenetic(logger *zap.Logger, config GeneticConfig) *Genetic {
	return &Genetic{logger: logger, config: config}
}

func (a *Genetic) Type() model.AlgorithmType { return model.AlgorithmGenetic }

func (a *Genetic) Optimize(ctx context.Context, oc *OptimizationContext) (model.OptimizationResult, error) {
	r := run{algorithm: model.AlgorithmGenetic, started: time.Now(), converged: true}
	c := oc.Constraints()
	perf := oc.Performance()

	generations := a.config.Generations
	factor := a.config.BudgetFactor
	if factor < 1 {
		factor = 1
	}
	if perf.MaxIterations > 0 && perf.MaxIterations*factor < generations {
		generations = perf.MaxIterations * factor
	}

	weights := newObjectiveWeights(oc.Objectives())
	for i, g := range groupByProfile(oc.Items(), oc.Catalog()) {
		ga := &geneticOptimizer{
			profile:     g.profile,
			weights:     weights,
			costs:       oc.CostModel(),
			c:           c,
			config:      a.config,
			options:     g.options,
			pieces:      expandPieces(g.items),
			rng:         rand.New(rand.NewSource(perf.Seed + int64(i))),
			generations: generations,
			threshold:   perf.ConvergenceThreshold,
			parallel:    perf.ParallelProcessing,
		}
		best, gens, converged, err := ga.optimize(ctx)
		if err != nil {
			return model.OptimizationResult{}, err
		}
		a.logger.Debug("genetic group finished",
			zap.String("profile", g.profile),
			zap.Int("generations", gens),
			zap.Bool("converged", converged),
			zap.Float64("score", best.score),
		)

		pk := ga.decode(best)
		r.cuts = append(r.cuts, pk.cuts(g.profile)...)
		r.unplaced = append(r.unplaced, aggregateUnplaced(pk.unplaced, pk.pool.largest())...)
		r.iterations += gens
		r.converged = r.converged && converged
	}
	return finalize(a.logger, oc, r)
}

// geneticOptimizer runs the search for one profile group.
type geneticOptimizer struct {
	profile     string
	weights     objectiveWeights
	costs       model.CostModel
	ref         packingMeasures
	c           model.EnhancedConstraints
	config      GeneticConfig
	options     []model.MaterialStockOption
	pieces      []pieceRef
	rng         *rand.Rand
	generations int
	threshold   float64
	parallel    bool
}

// optimize returns the best chromosome, the generations run and whether the
// search stopped on convergence.
func (g *geneticOptimizer) optimize(ctx context.Context) (chromosome, int, bool, error) {
	if err := ctx.Err(); err != nil {
		return chromosome{}, 0, false, apperrors.ErrTimeout(string(model.AlgorithmGenetic)).Wrap(err)
	}

	greedy := g.greedyChromosome()
	g.ref = g.measure(g.decode(greedy))
	// Nothing to reorder
	if len(g.pieces) < 2 || len(g.options) == 0 || g.config.PopulationSize < 2 {
		greedy.score = g.evaluate(greedy)
		return greedy, 0, true, nil
	}

	population := g.initPopulation(greedy)
	if err := g.evaluateAll(ctx, population); err != nil {
		return chromosome{}, 0, false, err
	}
	best := g.copyChromosome(population[bestIndex(population)])

	stall := 0
	gens := 0
	for gen := 0; gen < g.generations; gen++ {
		if err := ctx.Err(); err != nil {
			return chromosome{}, gens, false, apperrors.ErrTimeout(string(model.AlgorithmGenetic)).Wrap(err)
		}

		normalizeFitness(population)
		sort.SliceStable(population, func(i, j int) bool {
			return population[i].score > population[j].score
		})

		newPop := make([]chromosome, 0, g.config.PopulationSize)

		// Elitism: carry over the best individuals unchanged
		eliteCount := g.config.EliteCount
		if eliteCount > len(population) {
			eliteCount = len(population)
		}
		for i := 0; i < eliteCount; i++ {
			newPop = append(newPop, g.copyChromosome(population[i]))
		}

		// Fill rest of population with offspring
		children := make([]chromosome, 0, g.config.PopulationSize-len(newPop))
		for len(newPop)+len(children) < g.config.PopulationSize {
			parent1 := g.tournamentSelect(population)
			parent2 := g.tournamentSelect(population)
			child := g.orderCrossover(parent1, parent2)
			g.mutate(&child)
			children = append(children, child)
		}
		if err := g.evaluateAll(ctx, children); err != nil {
			return chromosome{}, gens, false, err
		}
		population = append(newPop, children...)
		gens++

		top := population[bestIndex(population)]
		if top.score-best.score > g.threshold {
			stall = 0
		} else {
			stall++
		}
		if top.score > best.score {
			best = g.copyChromosome(top)
		}
		if g.config.StallGenerations > 0 && stall >= g.config.StallGenerations {
			return best, gens, true, nil
		}
	}
	return best, gens, false, nil
}

// normalizeFitness rescales scores to [0,1] against the population spread.
// A collapsed population gets equal fitness so tournaments stay random
// instead of repeatedly picking the same individual.
func normalizeFitness(population []chromosome) {
	if len(population) == 0 {
		return
	}
	lo, hi := population[0].score, population[0].score
	for _, c := range population[1:] {
		if c.score < lo {
			lo = c.score
		}
		if c.score > hi {
			hi = c.score
		}
	}
	spread := hi - lo
	for i := range population {
		if spread < 1e-9 {
			population[i].fitness = 1
			continue
		}
		population[i].fitness = (population[i].score - lo) / spread
	}
}

func bestIndex(population []chromosome) int {
	best := 0
	for i := range population {
		if population[i].score > population[best].score {
			best = i
		}
	}
	return best
}

// initPopulation creates random orderings plus the longest-first ordering.
// Stock rules are dealt round robin so every rule starts in the population.
func (g *geneticOptimizer) initPopulation(greedy chromosome) []chromosome {
	n := len(g.pieces)
	population := make([]chromosome, g.config.PopulationSize)
	for i := range population {
		population[i] = chromosome{genes: g.rng.Perm(n), rule: stockRule(i % int(stockRuleCount))}
	}
	population[0] = greedy
	return population
}

// greedyChromosome keeps the longest-first order of the pieces and the
// fewest-bars stock rule, which decodes to FFD.
func (g *geneticOptimizer) greedyChromosome() chromosome {
	genes := make([]int, len(g.pieces))
	for i := range genes {
		genes[i] = i
	}
	return chromosome{genes: genes, rule: ruleFewestBars}
}

// evaluateAll scores chromosomes, concurrently when parallel processing is on.
func (g *geneticOptimizer) evaluateAll(ctx context.Context, cs []chromosome) error {
	if !g.parallel || len(cs) < 2 {
		for i := range cs {
			cs[i].score = g.evaluate(cs[i])
		}
		return nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i := range cs {
		i := i
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return apperrors.ErrTimeout(string(model.AlgorithmGenetic)).Wrap(err)
			}
			cs[i].score = g.evaluate(cs[i])
			return nil
		})
	}
	return eg.Wait()
}

// evaluate scores a chromosome by the weighted objectives of the run.
func (g *geneticOptimizer) evaluate(c chromosome) float64 {
	return g.weights.score(g.measure(g.decode(c)), g.ref)
}

func (g *geneticOptimizer) measure(pk *packer) packingMeasures {
	m := packingMeasures{bars: float64(len(pk.bars)), unplaced: len(pk.unplaced)}
	if stock := pk.stockLength(); stock > 0 {
		m.efficiency = pk.placedLength() / stock
	}
	if g.weights.cost > 0 {
		m.cost = CalculateCost(pk.layouts(g.profile), g.c, g.costs).Total.InexactFloat64()
	}
	return m
}

// decode places the pieces first fit in chromosome order on a fresh stock pool.
func (g *geneticOptimizer) decode(c chromosome) *packer {
	ordered := make([]pieceRef, len(c.genes))
	for i, idx := range c.genes {
		ordered[i] = g.pieces[idx]
	}
	pk := newPacker(g.c, newStockPool(g.options, g.c), false)
	pk.rule = c.rule
	// Background context: decoding is bounded and never cancelled midway
	_ = pk.run(context.Background(), string(model.AlgorithmGenetic), ordered)
	return pk
}

// tournamentSelect picks the fittest individual from a random tournament.
func (g *geneticOptimizer) tournamentSelect(population []chromosome) chromosome {
	best := population[g.rng.Intn(len(population))]
	for i := 1; i < g.config.TournamentSize; i++ {
		candidate := population[g.rng.Intn(len(population))]
		if candidate.fitness > best.fitness {
			best = candidate
		}
	}
	return g.copyChromosome(best)
}

// orderCrossover implements Order Crossover (OX1) for permutation chromosomes.
// It preserves the relative order of genes from both parents.
func (g *geneticOptimizer) orderCrossover(parent1, parent2 chromosome) chromosome {
	n := len(parent1.genes)
	if n <= 2 {
		return g.copyChromosome(parent1)
	}

	point1 := g.rng.Intn(n)
	point2 := g.rng.Intn(n)
	if point1 > point2 {
		point1, point2 = point2, point1
	}

	child := chromosome{genes: make([]int, n), rule: parent1.rule}

	// Copy segment from parent1
	inSegment := make([]bool, n)
	for i := point1; i <= point2; i++ {
		child.genes[i] = parent1.genes[i]
		inSegment[parent1.genes[i]] = true
	}

	// Fill remaining positions with genes from parent2 in order
	childIdx := (point2 + 1) % n
	for _, pg := range parent2.genes {
		if !inSegment[pg] {
			child.genes[childIdx] = pg
			childIdx = (childIdx + 1) % n
		}
	}
	return child
}

// mutate applies swap and inversion mutations and may switch the stock rule.
func (g *geneticOptimizer) mutate(c *chromosome) {
	n := len(c.genes)
	if n < 2 {
		return
	}

	if g.rng.Float64() < g.config.MutationRate*0.5 {
		c.rule = stockRule(g.rng.Intn(int(stockRuleCount)))
	}

	if g.rng.Float64() < g.config.MutationRate {
		i := g.rng.Intn(n)
		j := g.rng.Intn(n)
		c.genes[i], c.genes[j] = c.genes[j], c.genes[i]
	}

	// Inversion: reverse a segment (less frequent)
	if g.rng.Float64() < g.config.MutationRate*0.5 {
		i := g.rng.Intn(n)
		j := g.rng.Intn(n)
		if i > j {
			i, j = j, i
		}
		for i < j {
			c.genes[i], c.genes[j] = c.genes[j], c.genes[i]
			i++
			j--
		}
	}
}

// copyChromosome creates a deep copy of a chromosome.
func (g *geneticOptimizer) copyChromosome(c chromosome) chromosome {
	genes := make([]int, len(c.genes))
	copy(genes, c.genes)
	return chromosome{genes: genes, rule: c.rule, score: c.score, fitness: c.fitness}
}

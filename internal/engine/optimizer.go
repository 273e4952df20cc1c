// Package engine implements the 1-D cutting-stock algorithms and the shared
// stock, pattern and accounting helpers they are built on.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/piwi3910/BarCut/internal/apperrors"
	"github.com/piwi3910/BarCut/internal/model"
)

// Algorithm is one cutting-stock solver.
type Algorithm interface {
	Type() model.AlgorithmType
	Optimize(ctx context.Context, oc *OptimizationContext) (model.OptimizationResult, error)
}

// maxCachedResults bounds the result cache. A full cache is cleared.
const maxCachedResults = 32

// Optimizer dispatches optimize calls to the registered algorithms.
type Optimizer struct {
	logger     *zap.Logger
	algorithms map[model.AlgorithmType]Algorithm
	extended   Algorithm

	mu    sync.Mutex
	cache map[cacheKey]model.OptimizationResult
}

// cacheKey identifies a run. Contexts are immutable, so the pointer stands
// for its inputs.
type cacheKey struct {
	oc        *OptimizationContext
	algorithm model.AlgorithmType
	extended  bool
}

// OptimizerOption configures an Optimizer.
type OptimizerOption func(*optimizerConfig)

type optimizerConfig struct {
	genetic GeneticConfig
	pooling PoolingConfig
}

// WithGeneticConfig sets the genetic algorithm parameters.
func WithGeneticConfig(cfg GeneticConfig) OptimizerOption {
	return func(c *optimizerConfig) { c.genetic = cfg }
}

// WithPoolingConfig sets the pooling parameters.
func WithPoolingConfig(cfg PoolingConfig) OptimizerOption {
	return func(c *optimizerConfig) { c.pooling = cfg }
}

// New creates an Optimizer with every algorithm registered.
func New(logger *zap.Logger, opts ...OptimizerOption) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := optimizerConfig{
		genetic: DefaultGeneticConfig(),
		pooling: DefaultPoolingConfig(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	o := &Optimizer{
		logger:     logger,
		algorithms: make(map[model.AlgorithmType]Algorithm),
		cache:      make(map[cacheKey]model.OptimizationResult),
	}
	o.Register(NewFFD(logger))
	o.Register(NewBFD(logger))
	o.Register(NewGenetic(logger, cfg.genetic))
	o.Register(NewPooling(logger, cfg.pooling))
	o.extended = NewGenetic(logger, cfg.genetic.Extended())
	return o
}

// Register adds or replaces an algorithm.
func (o *Optimizer) Register(a Algorithm) {
	o.algorithms[a.Type()] = a
}

// Algorithm returns the registered algorithm of the given type.
func (o *Optimizer) Algorithm(t model.AlgorithmType) (Algorithm, bool) {
	a, ok := o.algorithms[t]
	return a, ok
}

// RunOption adjusts a single Run call.
type RunOption func(*runConfig)

type runConfig struct {
	extended bool
}

// Extended runs the genetic algorithm with its extended budget.
func Extended() RunOption {
	return func(c *runConfig) { c.extended = true }
}

// Run optimizes the context with the given algorithm. When the context's
// performance settings enable CacheResults, a repeated run on the same context
// returns a copy of the earlier result.
func (o *Optimizer) Run(ctx context.Context, t model.AlgorithmType, oc *OptimizationContext, opts ...RunOption) (model.OptimizationResult, error) {
	var rc runConfig
	for _, opt := range opts {
		opt(&rc)
	}

	a, ok := o.algorithms[t]
	if !ok {
		return model.OptimizationResult{}, apperrors.ErrValidation(fmt.Sprintf("unknown algorithm %q", t))
	}
	if rc.extended && t == model.AlgorithmGenetic {
		a = o.extended
	}

	key := cacheKey{oc: oc, algorithm: t, extended: rc.extended && t == model.AlgorithmGenetic}
	caching := oc.Performance().CacheResults
	if caching {
		if err := ctx.Err(); err != nil {
			return model.OptimizationResult{}, apperrors.ErrTimeout(string(t)).Wrap(err)
		}
		if result, ok := o.cached(key); ok {
			o.logger.Debug("optimization result reused", zap.String("algorithm", string(t)), zap.String("result_id", result.ID))
			return result, nil
		}
	}

	o.logger.Debug("optimization started",
		zap.String("algorithm", string(t)),
		zap.Int("pieces", oc.PieceCount()),
		zap.Strings("profiles", oc.ProfileTypes()),
	)
	result, err := a.Optimize(ctx, oc)
	if err != nil {
		o.logger.Warn("optimization failed", zap.String("algorithm", string(t)), zap.Error(err))
		return model.OptimizationResult{}, err
	}
	o.logger.Info("optimization finished",
		zap.String("algorithm", string(t)),
		zap.Int("bars", result.StockCount),
		zap.Float64("efficiency", result.Efficiency),
		zap.Int("unplaced", len(result.Unplaced)),
		zap.Duration("duration", result.ExecutionTime),
	)
	if caching {
		o.store(key, result)
	}
	return result, nil
}

func (o *Optimizer) cached(key cacheKey) (model.OptimizationResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	result, ok := o.cache[key]
	if !ok {
		return model.OptimizationResult{}, false
	}
	return result.Clone(), true
}

func (o *Optimizer) store(key cacheKey, result model.OptimizationResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.cache) >= maxCachedResults {
		o.cache = make(map[cacheKey]model.OptimizationResult)
	}
	o.cache[key] = result.Clone()
}

// EstimateMemory returns a rough working-set size in bytes for running the
// algorithm on the context.
func (o *Optimizer) EstimateMemory(t model.AlgorithmType, oc *OptimizationContext, extended bool) uint64 {
	pieces := uint64(oc.PieceCount())
	const perPiece = 160 // piece reference plus its placed copy

	switch t {
	case model.AlgorithmGenetic:
		cfg := DefaultGeneticConfig()
		if g, ok := o.algorithms[model.AlgorithmGenetic].(*Genetic); ok {
			cfg = g.config
		}
		if extended {
			cfg = cfg.Extended()
		}
		// two generations of permutations alive at once
		return pieces*perPiece + 2*uint64(cfg.PopulationSize)*pieces*8
	case model.AlgorithmPooling:
		limit := uint64(DefaultMaxPatternsPerStock)
		if p, ok := o.algorithms[model.AlgorithmPooling].(*Pooling); ok && p.config.MaxPatternsPerStock > 0 {
			limit = uint64(p.config.MaxPatternsPerStock)
		}
		options := uint64(len(oc.catalog.Options))
		lengths := uint64(len(oc.distinctLengths()))
		return pieces*perPiece + options*limit*(64+lengths*16)
	default:
		return pieces * perPiece
	}
}

func (oc *OptimizationContext) distinctLengths() []float64 {
	seen := make(map[float64]bool)
	var lengths []float64
	for _, it := range oc.items {
		if !seen[it.Length] {
			seen[it.Length] = true
			lengths = append(lengths, it.Length)
		}
	}
	return lengths
}

// run collects the output of one algorithm before finalisation.
type run struct {
	algorithm  model.AlgorithmType
	started    time.Time
	cuts       []model.Cut
	unplaced   []model.UnplacedItem
	iterations int
	converged  bool
}

// finalize computes the result totals and validates every cut. All
// algorithms return through here.
func finalize(logger *zap.Logger, oc *OptimizationContext, r run) (model.OptimizationResult, error) {
	c := oc.Constraints()
	if err := ValidateCuts(logger, r.cuts, c); err != nil {
		return model.OptimizationResult{}, err
	}

	result := model.OptimizationResult{
		ID:         model.NewID(),
		Algorithm:  r.algorithm,
		Cuts:       r.cuts,
		StockCount: len(r.cuts),
		Unplaced:   r.unplaced,
		Iterations: r.iterations,
		Converged:  r.converged,
	}
	if result.Cuts == nil {
		result.Cuts = []model.Cut{}
	}
	for _, cut := range r.cuts {
		result.TotalStockLength += cut.StockLength
		result.TotalPieceLength += cut.PieceLength()
	}
	result.TotalWaste = result.TotalStockLength - result.TotalPieceLength
	if result.TotalStockLength > 0 {
		result.WastePercentage = result.TotalWaste / result.TotalStockLength * 100.0
		result.Efficiency = 100.0 - result.WastePercentage
	}
	result.TotalCost = CalculateCost(r.cuts, c, oc.CostModel()).Total.InexactFloat64()
	result.ExecutionTime = time.Since(r.started)
	return result, nil
}

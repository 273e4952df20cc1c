package engine

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/piwi3910/BarCut/internal/apperrors"
	"github.com/piwi3910/BarCut/internal/model"
	"github.com/piwi3910/BarCut/internal/normalize"
)

// PoolingConfig holds parameters for the pattern pooling optimizer.
type PoolingConfig struct {
	MaxPatternsPerStock int `mapstructure:"max_patterns_per_stock"`
	// MixedBarWeights maps a stock length to its target share of the material
	// volume. When set, demand is split across those lengths before pooling.
	MixedBarWeights map[float64]float64 `mapstructure:"mixed_bar_weights"`
}

func DefaultPoolingConfig() PoolingConfig {
	return PoolingConfig{MaxPatternsPerStock: DefaultMaxPatternsPerStock}
}

// Pooling repeatedly applies the best scoring cutting pattern until the demand
// of a profile is used up.
type Pooling struct {
	logger *zap.Logger
	config PoolingConfig
}

func NewPooling(logger *zap.Logger, config PoolingConfig) *Pooling {
	return &Pooling{logger: logger, config: config}
}

func (a *Pooling) Type() model.AlgorithmType { return model.AlgorithmPooling }

// PatternScore rates a pattern by material use scaled by its waste ratio.
// The ratio keeps scores comparable across bars of different lengths.
func PatternScore(p Pattern) float64 {
	if p.StockLength <= 0 {
		return 0
	}
	return (p.PieceLength() / p.StockLength) * (1 - p.WasteRatio())
}

func (a *Pooling) Optimize(ctx context.Context, oc *OptimizationContext) (model.OptimizationResult, error) {
	r := run{algorithm: model.AlgorithmPooling, started: time.Now(), converged: true}
	c := oc.Constraints()
	gen := PatternGenerator{Constraints: c, MaxPatternsPerStock: a.config.MaxPatternsPerStock}
	parallel := oc.Performance().ParallelProcessing
	preferCheap := newObjectiveWeights(oc.Objectives()).cost > 0

	for _, g := range groupByProfile(oc.Items(), oc.Catalog()) {
		pool := newStockPool(g.options, c)
		gp := &groupPooler{
			gen:      gen,
			pool:     pool,
			parallel: parallel,
			cheap:    preferCheap,
			queues:   make(map[float64][]pieceRef),
			demand:   make(normalize.Demand),
		}
		for _, pc := range expandPieces(g.items) {
			gp.queues[pc.Length] = append(gp.queues[pc.Length], pc)
			gp.demand[pc.Length]++
		}
		gp.dropUnplaceable()

		if err := a.poolGroup(ctx, gp, c); err != nil {
			return model.OptimizationResult{}, err
		}

		// Whatever demand is left could not be cut from the remaining stock
		for _, length := range gp.demand.Lengths() {
			for _, pc := range gp.queues[length] {
				gp.unplaced = append(gp.unplaced, unplacedPiece{ref: pc, reason: model.ReasonStockExhausted})
			}
		}

		for _, b := range gp.bars {
			r.cuts = append(r.cuts, b.toCut(g.profile, c))
		}
		r.unplaced = append(r.unplaced, aggregateUnplaced(gp.unplaced, pool.largest())...)
		r.iterations += gp.rounds
	}
	return finalize(a.logger, oc, r)
}

func (a *Pooling) poolGroup(ctx context.Context, gp *groupPooler, c model.EnhancedConstraints) error {
	if len(a.config.MixedBarWeights) == 0 {
		return gp.satisfy(ctx, gp.pool.options, gp.demand)
	}

	fits := func(pieceLen, stockLen float64) bool {
		return CalculateMaxPiecesOnBar(pieceLen, stockLen, c.KerfWidth, c.StartSafety, c.EndSafety) > 0
	}
	weights := make(map[float64]float64)
	for length, w := range a.config.MixedBarWeights {
		if len(optionsOfLength(gp.pool.options, length)) > 0 {
			weights[length] = w
		}
	}
	shares, leftover := SplitDemandByVolume(gp.demand, weights, fits)
	gp.demand = make(normalize.Demand)

	stockLengths := make([]float64, 0, len(shares))
	for length := range shares {
		stockLengths = append(stockLengths, length)
	}
	sort.Float64s(stockLengths)

	for _, length := range stockLengths {
		if err := gp.satisfy(ctx, optionsOfLength(gp.pool.options, length), shares[length]); err != nil {
			return err
		}
	}
	// Shares a length could not finish fall back to every option
	for length, qty := range leftover {
		gp.demand[length] += qty
	}
	for _, share := range shares {
		for length, qty := range share {
			gp.demand[length] += qty
		}
	}
	return gp.satisfy(ctx, gp.pool.options, gp.demand)
}

func optionsOfLength(options []model.MaterialStockOption, length float64) []model.MaterialStockOption {
	var out []model.MaterialStockOption
	for _, o := range options {
		if o.StockLength == length {
			out = append(out, o)
		}
	}
	return out
}

// groupPooler holds the working state of one profile group.
type groupPooler struct {
	gen      PatternGenerator
	pool     *stockPool
	parallel bool
	cheap    bool                   // Break score ties on price
	queues   map[float64][]pieceRef // Pieces still to place, per length
	demand   normalize.Demand
	bars     []*openBar
	unplaced []unplacedPiece
	rounds   int
}

// dropUnplaceable moves lengths no option can ever hold out of the demand.
func (gp *groupPooler) dropUnplaceable() {
	largest := gp.pool.largest()
	c := gp.pool.c
	for _, length := range gp.demand.Lengths() {
		var reason model.UnplacedReason
		switch {
		case len(gp.pool.options) == 0:
			reason = model.ReasonNoStock
		case CalculateMaxPiecesOnBar(length, largest, c.KerfWidth, c.StartSafety, c.EndSafety) == 0:
			reason = model.ReasonOversized
		default:
			continue
		}
		for _, pc := range gp.queues[length] {
			gp.unplaced = append(gp.unplaced, unplacedPiece{ref: pc, reason: reason})
		}
		delete(gp.queues, length)
		delete(gp.demand, length)
	}
}

// satisfy meets demand from the given options. Placed pieces are removed from demand.
func (gp *groupPooler) satisfy(ctx context.Context, options []model.MaterialStockOption, demand normalize.Demand) error {
	for demand.TotalPieces() > 0 {
		if err := ctx.Err(); err != nil {
			return apperrors.ErrTimeout(string(model.AlgorithmPooling)).Wrap(err)
		}

		var avail []model.MaterialStockOption
		for _, o := range options {
			if gp.pool.remainingOf(o.ID) != 0 {
				avail = append(avail, o)
			}
		}
		if len(avail) == 0 {
			return nil
		}

		patterns, err := gp.gen.GenerateAll(ctx, avail, demand, gp.parallel)
		if err != nil {
			return apperrors.ErrTimeout(string(model.AlgorithmPooling)).Wrap(err)
		}
		patterns = ParetoFilterByStock(patterns)
		if len(patterns) == 0 {
			return nil
		}
		gp.rounds++

		best := bestPattern(patterns, gp.cheap)
		times := timesApplicable(best, demand, gp.pool.remainingOf(best.StockID))
		for k := 0; k < times; k++ {
			bar, ok := gp.pool.take(best.StockID)
			if !ok {
				break
			}
			for _, pc := range best.Cuts {
				for q := 0; q < pc.Quantity; q++ {
					bar.add(gp.queues[pc.Length][0])
					gp.queues[pc.Length] = gp.queues[pc.Length][1:]
				}
				demand[pc.Length] -= pc.Quantity
				if demand[pc.Length] == 0 {
					delete(demand, pc.Length)
				}
			}
			gp.bars = append(gp.bars, bar)
		}
	}
	return nil
}

// bestPattern picks the highest scoring pattern. Ties go to the lower price
// per mm cut when cheap is set, then to more pieces, then to the shorter stock.
func bestPattern(patterns []Pattern, cheap bool) Pattern {
	best := patterns[0]
	bestScore := PatternScore(best)
	for _, p := range patterns[1:] {
		s := PatternScore(p)
		switch {
		case s > bestScore+1e-12:
		case s < bestScore-1e-12:
			continue
		case cheap && p.PricePerMm() < best.PricePerMm()-1e-12:
		case cheap && p.PricePerMm() > best.PricePerMm()+1e-12:
			continue
		case p.Pieces() > best.Pieces():
		case p.Pieces() == best.Pieces() && p.StockLength < best.StockLength:
		default:
			continue
		}
		best, bestScore = p, s
	}
	return best
}

// timesApplicable returns how often a pattern can be cut before it exceeds the
// demand or the bars left of its stock (-1 for unlimited).
func timesApplicable(p Pattern, demand normalize.Demand, barsLeft int) int {
	times := -1
	for _, c := range p.Cuts {
		n := demand[c.Length] / c.Quantity
		if times < 0 || n < times {
			times = n
		}
	}
	if barsLeft >= 0 && barsLeft < times {
		times = barsLeft
	}
	if times < 1 {
		times = 1
	}
	return times
}

// SplitDemandByVolume divides demand across stock lengths so each length gets
// its weighted share of the total material volume (length × quantity). Each
// piece goes to the fitting stock length furthest below its target. Pieces
// that fit none of the weighted lengths are returned as leftover. A nil fits
// accepts every piece.
func SplitDemandByVolume(demand normalize.Demand, weights map[float64]float64, fits func(pieceLen, stockLen float64) bool) (map[float64]normalize.Demand, normalize.Demand) {
	var stockLengths []float64
	var totalWeight float64
	for length, w := range weights {
		if w > 0 {
			stockLengths = append(stockLengths, length)
			totalWeight += w
		}
	}
	sort.Float64s(stockLengths)

	shares := make(map[float64]normalize.Demand)
	leftover := make(normalize.Demand)
	if len(stockLengths) == 0 {
		for length, qty := range demand {
			leftover[length] = qty
		}
		return shares, leftover
	}

	volume := demand.TotalLength()
	target := make(map[float64]float64, len(stockLengths))
	assigned := make(map[float64]float64, len(stockLengths))
	for _, s := range stockLengths {
		target[s] = volume * weights[s] / totalWeight
	}

	for _, length := range demand.Lengths() {
		for q := 0; q < demand[length]; q++ {
			chosen := -1.0
			var deficit float64
			for _, s := range stockLengths {
				if fits != nil && !fits(length, s) {
					continue
				}
				d := target[s] - assigned[s]
				if chosen < 0 || d > deficit {
					chosen, deficit = s, d
				}
			}
			if chosen < 0 {
				leftover[length]++
				continue
			}
			if shares[chosen] == nil {
				shares[chosen] = make(normalize.Demand)
			}
			shares[chosen][length]++
			assigned[chosen] += length
		}
	}
	return shares, leftover
}

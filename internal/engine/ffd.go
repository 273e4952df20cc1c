package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/piwi3910/BarCut/internal/model"
)

// FFD places each piece, longest first, on the first open bar it fits.
type FFD struct {
	logger *zap.Logger
}

func NewFFD(logger *zap.Logger) *FFD {
	return &FFD{logger: logger}
}

func (a *FFD) Type() model.AlgorithmType { return model.AlgorithmFFD }

func (a *FFD) Optimize(ctx context.Context, oc *OptimizationContext) (model.OptimizationResult, error) {
	return runDecreasing(ctx, a.logger, oc, model.AlgorithmFFD, false)
}

// runDecreasing runs the shared first-fit / best-fit decreasing loop per profile group.
func runDecreasing(ctx context.Context, logger *zap.Logger, oc *OptimizationContext, t model.AlgorithmType, bestFit bool) (model.OptimizationResult, error) {
	r := run{algorithm: t, started: time.Now()}
	c := oc.Constraints()

	for _, g := range groupByProfile(oc.Items(), oc.Catalog()) {
		pool := newStockPool(g.options, c)
		pk := newPacker(c, pool, bestFit)
		if err := pk.run(ctx, string(t), expandPieces(g.items)); err != nil {
			return model.OptimizationResult{}, err
		}
		r.cuts = append(r.cuts, pk.cuts(g.profile)...)
		r.unplaced = append(r.unplaced, aggregateUnplaced(pk.unplaced, pool.largest())...)
	}
	return finalize(logger, oc, r)
}

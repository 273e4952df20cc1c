package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/piwi3910/BarCut/internal/model"
)

// BFD places each piece, longest first, on the open bar it leaves the least room on.
type BFD struct {
	logger *zap.Logger
}

func NewBFD(logger *zap.Logger) *BFD {
	return &BFD{logger: logger}
}

func (a *BFD) Type() model.AlgorithmType { return model.AlgorithmBFD }

func (a *BFD) Optimize(ctx context.Context, oc *OptimizationContext) (model.OptimizationResult, error) {
	return runDecreasing(ctx, a.logger, oc, model.AlgorithmBFD, true)
}

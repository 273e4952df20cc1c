package engine

import (
	"math"

	"go.uber.org/zap"

	"github.com/piwi3910/BarCut/internal/apperrors"
	"github.com/piwi3910/BarCut/internal/model"
)

// ValidateCut checks that a bar balances:
// used + remaining + end safety == stock length, used covers the start
// safety, the pieces and the kerf between them, and nothing is overdrawn.
func ValidateCut(cut model.Cut, c model.EnhancedConstraints) error {
	expected := cut.StockLength - c.EndSafety
	actual := cut.UsedLength + cut.RemainingLength
	if math.Abs(actual-expected) > model.AccountingTolerance {
		return apperrors.ErrAccountingViolation(cut.ID, expected, actual).WithDetail("check", "balance")
	}

	expectedUsed := c.UsedLength(cut.PieceLength(), len(cut.Pieces))
	if math.Abs(cut.UsedLength-expectedUsed) > model.AccountingTolerance {
		return apperrors.ErrAccountingViolation(cut.ID, expectedUsed, cut.UsedLength).WithDetail("check", "used")
	}

	if cut.RemainingLength < -model.AccountingTolerance {
		return apperrors.ErrAccountingViolation(cut.ID, 0, cut.RemainingLength).WithDetail("check", "remaining")
	}
	return nil
}

// ValidateCuts validates every cut and stops at the first violation.
func ValidateCuts(logger *zap.Logger, cuts []model.Cut, c model.EnhancedConstraints) error {
	for _, cut := range cuts {
		if err := ValidateCut(cut, c); err != nil {
			appErr, _ := apperrors.AsAppError(err)
			logger.Error("accounting violation",
				zap.String("cut_id", cut.ID),
				zap.Float64("stock_length", cut.StockLength),
				zap.String("expected", appErr.Details["expected"]),
				zap.String("actual", appErr.Details["actual"]),
				zap.String("check", appErr.Details["check"]),
			)
			return err
		}
	}
	return nil
}

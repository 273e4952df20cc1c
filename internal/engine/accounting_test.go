package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/piwi3910/BarCut/internal/apperrors"
	"github.com/piwi3910/BarCut/internal/model"
)

func balancedCut() model.Cut {
	// 2 + 1000 + 3.5 + 1000 = 2005.5 used, 6000 - 2 - 2005.5 remaining
	return model.Cut{
		ID:              "c1",
		StockLength:     6000,
		UsedLength:      2005.5,
		RemainingLength: 3992.5,
		Pieces:          []model.PlacedPiece{{Length: 1000}, {Length: 1000}},
	}
}

func TestValidateCut(t *testing.T) {
	c := model.DefaultConstraints()
	assert.NoError(t, ValidateCut(balancedCut(), c))

	// drift inside the tolerance is accepted
	drift := balancedCut()
	drift.RemainingLength += 0.005
	assert.NoError(t, ValidateCut(drift, c))

	tests := []struct {
		name  string
		mod   func(*model.Cut)
		check string
	}{
		{"balance", func(cut *model.Cut) { cut.RemainingLength -= 1 }, "balance"},
		{"missing kerf", func(cut *model.Cut) { cut.UsedLength -= 3.5; cut.RemainingLength += 3.5 }, "used"},
		{"overdrawn", func(cut *model.Cut) {
			cut.Pieces = append(cut.Pieces, model.PlacedPiece{Length: 4000})
			cut.UsedLength = 6009
			cut.RemainingLength = -11
		}, "remaining"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cut := balancedCut()
			tt.mod(&cut)
			err := ValidateCut(cut, c)
			require.Error(t, err)
			appErr, ok := apperrors.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.CodeAccountingViolation, appErr.Code)
			assert.Equal(t, tt.check, appErr.Details["check"])
			assert.Equal(t, "c1", appErr.Details["cut_id"])
		})
	}
}

func TestValidateCutsStopsAtFirstViolation(t *testing.T) {
	bad := balancedCut()
	bad.ID = "c2"
	bad.RemainingLength = 0
	err := ValidateCuts(zap.NewNop(), []model.Cut{balancedCut(), bad, bad}, model.DefaultConstraints())
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "c2", appErr.Details["cut_id"])

	assert.NoError(t, ValidateCuts(zap.NewNop(), nil, model.DefaultConstraints()))
}

func TestCalculateCost(t *testing.T) {
	pieces := []model.PlacedPiece{{Length: 1000}, {Length: 1000}}
	cut := model.Cut{StockLength: 6000, Price: 60, Pieces: pieces, Pattern: model.BuildPattern(pieces)}
	energy := 1.5
	c := model.DefaultConstraints()
	c.EnergyPerStock = &energy

	rates := model.CostModel{
		MaterialCost: 1,
		CuttingCost:  0.5,
		SetupCost:    2,
		WasteCost:    0.25,
		TimeCost:     1,
		EnergyCost:   0.2,
	}
	b := CalculateCost([]model.Cut{cut, cut}, c, rates)

	assert.True(t, decimal.NewFromInt(120).Equal(b.Material), b.Material.String())
	assert.True(t, decimal.NewFromInt(2).Equal(b.Cutting), b.Cutting.String())
	assert.True(t, decimal.NewFromInt(2).Equal(b.Setup), "one distinct layout: %s", b.Setup)
	assert.True(t, decimal.NewFromInt(2).Equal(b.Waste), "8 m of waste: %s", b.Waste)
	assert.True(t, decimal.NewFromInt(2).Equal(b.Time), b.Time.String())
	assert.True(t, decimal.RequireFromString("0.6").Equal(b.Energy), b.Energy.String())
	assert.Equal(t, "128.6", b.Total.String())

	c.EnergyPerStock = nil
	assert.True(t, CalculateCost([]model.Cut{cut}, c, rates).Energy.IsZero())
}

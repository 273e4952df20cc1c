package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateMaxPiecesOnBar(t *testing.T) {
	tests := []struct {
		name                         string
		item, stock, kerf, start, end float64
		want                         int
	}{
		{"reference", 1000, 6000, 3.5, 2, 2, 5},
		{"kerf off by one", 1000, 3000, 0, 0, 0, 3},
		{"kerf fits n-1 times", 1000, 3007, 3.5, 0, 0, 3},
		{"kerf too wide", 1000, 3006, 3.5, 0, 0, 2},
		{"exact effective", 5996, 6000, 3.5, 2, 2, 1},
		{"oversized", 5997, 6000, 3.5, 2, 2, 0},
		{"zero length", 0, 6000, 3.5, 2, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateMaxPiecesOnBar(tt.item, tt.stock, tt.kerf, tt.start, tt.end)
			if got != tt.want {
				t.Errorf("expected %d pieces, got %d", tt.want, got)
			}
		})
	}
}

func TestSelectBestStockLength_SingleUsesSmallest(t *testing.T) {
	got, ok := SelectBestStockLengthForItem(1000, []float64{3000, 6000, 9000}, 3.5, 2, 2, 1)
	assert.True(t, ok)
	assert.Equal(t, 3000.0, got)
}

func TestSelectBestStockLength_QuantityPrefersFewerBars(t *testing.T) {
	got, ok := SelectBestStockLengthForItem(1000, []float64{3000, 6000, 9000}, 3.5, 2, 2, 3)
	assert.True(t, ok)
	assert.Equal(t, 6000.0, got)
}

func TestSelectBestStockLength_TieBreaksOnShorterBar(t *testing.T) {
	// 9000 and 6000 both need one bar for four pieces
	got, ok := SelectBestStockLengthForItem(1000, []float64{9000, 6000}, 3.5, 2, 2, 4)
	assert.True(t, ok)
	assert.Equal(t, 6000.0, got)
}

func TestSelectBestStockLength_Oversized(t *testing.T) {
	got, ok := SelectBestStockLengthForItem(7000, []float64{3000, 6000}, 3.5, 2, 2, 1)
	assert.False(t, ok)
	assert.Equal(t, 6000.0, got)

	got, ok = SelectBestStockLengthForItem(100, nil, 3.5, 2, 2, 1)
	assert.False(t, ok)
	assert.Equal(t, 0.0, got)
}

package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/piwi3910/BarCut/internal/model"
)

var testConstraints = model.EnhancedConstraints{KerfWidth: 3.5, StartSafety: 2, EndSafety: 2, MinScrapLength: 500}

func testCut(id, profile string, stock float64, lengths ...float64) model.Cut {
	c := model.Cut{ID: id, ProfileType: profile, StockID: "s-" + id, StockLength: stock}
	pos := testConstraints.StartSafety
	for i, l := range lengths {
		c.Pieces = append(c.Pieces, model.PlacedPiece{ItemID: "item-" + id, WorkOrderID: "WO-1", Length: l, Position: pos})
		pos += l
		if i < len(lengths)-1 {
			pos += testConstraints.KerfWidth
			c.KerfLoss += testConstraints.KerfWidth
		}
	}
	c.UsedLength = pos
	c.RemainingLength = stock - pos - testConstraints.EndSafety
	c.Pattern = model.BuildPattern(c.Pieces)
	return c
}

// buildTestResult returns three bars, the first two with the same layout.
func buildTestResult() model.OptimizationResult {
	cuts := []model.Cut{
		testCut("c1", "P-40", 6000, 1200, 1200, 800),
		testCut("c2", "P-40", 6000, 1200, 1200, 800),
		testCut("c3", "P-60", 3000, 1400, 1400),
	}
	r := model.OptimizationResult{
		ID:               "r-1",
		Algorithm:        model.AlgorithmFFD,
		Cuts:             cuts,
		StockCount:       len(cuts),
		TotalStockLength: 15000,
		TotalPieceLength: 9200,
		TotalWaste:       5800,
		WastePercentage:  38.67,
		Efficiency:       61.33,
		TotalCost:        42.5,
	}
	return r
}

func requireFile(t *testing.T, path string, minSize int64) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), minSize)
}

func outPath(t *testing.T, name string) string {
	return filepath.Join(t.TempDir(), name)
}

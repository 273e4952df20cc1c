package export

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/BarCut/internal/model"
)

func TestExportPDF_CreatesFile(t *testing.T) {
	path := outPath(t, "plan.pdf")
	require.NoError(t, ExportPDF(path, buildTestResult(), testConstraints))
	requireFile(t, path, 1000)
}

func TestExportPDF_EmptyResult(t *testing.T) {
	err := ExportPDF(outPath(t, "empty.pdf"), model.OptimizationResult{}, testConstraints)
	assert.Error(t, err)
}

func TestExportPDF_WithUnplaced(t *testing.T) {
	r := buildTestResult()
	r.Unplaced = []model.UnplacedItem{
		{ItemID: "x", ProfileType: "P-40", Length: 7000, Quantity: 2, Reason: model.ReasonOversized, LargestStock: 6000},
	}
	path := outPath(t, "unplaced.pdf")
	require.NoError(t, ExportPDF(path, r, testConstraints))
	requireFile(t, path, 1000)
}

func TestExportPDF_ManyBarsSpanPages(t *testing.T) {
	r := buildTestResult()
	r.Cuts = nil
	// distinct layouts so nothing is grouped
	for i := 0; i < 3*barsPerPage+1; i++ {
		r.Cuts = append(r.Cuts, testCut(fmt.Sprintf("c%d", i), "P-40", 6000, 1000+float64(i), 500))
	}
	path := outPath(t, "many.pdf")
	require.NoError(t, ExportPDF(path, r, testConstraints))
	requireFile(t, path, 1000)
}

func TestGroupCuts(t *testing.T) {
	groups := groupCuts(buildTestResult().Cuts)
	require.Len(t, groups, 2)
	assert.Equal(t, 2, groups[0].count)
	assert.Equal(t, 0, groups[0].first)
	assert.Equal(t, 1, groups[1].count)
	assert.Equal(t, 2, groups[1].first)
}

func TestPatternText(t *testing.T) {
	c := buildTestResult().Cuts[0]
	assert.Equal(t, "2 x 1200.0 mm + 1 x 800.0 mm", patternText(c.Pattern))
}

func TestLabelFontSize(t *testing.T) {
	assert.Equal(t, 8.0, labelFontSize(50))
	assert.Equal(t, 7.0, labelFontSize(25))
	assert.Equal(t, 6.0, labelFontSize(10))
}

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/BarCut/internal/model"
	"github.com/piwi3910/BarCut/internal/project"
)

type fixture struct {
	dir     string
	demand  string
	catalog string
}

func newFixture(t *testing.T, demand string) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:     dir,
		demand:  filepath.Join(dir, "demand.csv"),
		catalog: filepath.Join(dir, "catalog.json"),
	}
	require.NoError(t, os.WriteFile(f.demand, []byte(demand), 0644))
	require.NoError(t, project.SaveCatalog(f.catalog, model.StockCatalog{Options: []model.MaterialStockOption{
		{ID: "p40-6m", ProfileType: "P-40", StockLength: 6000, CostPerStock: 30},
		{ID: "any-3m", StockLength: 3000, CostPerStock: 16},
	}}))
	return f
}

func (f fixture) path(name string) string { return filepath.Join(f.dir, name) }

func TestRun_WritesAllOutputs(t *testing.T) {
	f := newFixture(t, "Profile,Length,Qty,WO\nP-40,1200,4,WO-1\nP-40,80 cm,2,WO-1\n")
	var stdout, stderr bytes.Buffer

	code := run([]string{
		"-demand", f.demand,
		"-catalog", f.catalog,
		"-pdf", f.path("plan.pdf"),
		"-xlsx", f.path("plan.xlsx"),
		"-dxf", f.path("plan.dxf"),
		"-labels", f.path("labels.pdf"),
		"-json", f.path("result.json"),
		"-save", f.path("frame.barcut"),
		"-metrics", f.path("barcut.prom"),
		"-log-level", "error",
	}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	for _, name := range []string{"plan.pdf", "plan.xlsx", "plan.dxf", "labels.pdf", "result.json", "frame.barcut", "barcut.prom"} {
		info, err := os.Stat(f.path(name))
		require.NoError(t, err, name)
		assert.Positive(t, info.Size(), name)
	}

	data, err := os.ReadFile(f.path("result.json"))
	require.NoError(t, err)
	var out output
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, 6, out.Result.TotalPieces())
	require.NotNil(t, out.Selection)
	assert.Equal(t, model.WorkloadSmall, out.Selection.WorkloadClass)
	assert.Equal(t, 2, out.Validation.Accepted)
	assert.Len(t, out.Validation.Fixed, 1, "the centimetre row is converted")

	loaded, err := project.LoadProject(nil, f.path("frame.barcut"))
	require.NoError(t, err)
	require.NotNil(t, loaded.Result)
	assert.Len(t, loaded.Items, 2)

	assert.Contains(t, stdout.String(), "pieces:     6")
}

func TestRun_ExplicitAlgorithmAndCompare(t *testing.T) {
	f := newFixture(t, "P-40,1500,3\nP-40,700,2\n")
	var stdout, stderr bytes.Buffer

	code := run([]string{"-demand", f.demand, "-catalog", f.catalog, "-algorithm", "bfd", "-compare", "-json", "-", "-log-level", "error"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "best:")
	assert.Contains(t, stdout.String(), `"algorithm": "bfd"`)
	assert.Contains(t, stdout.String(), "algorithm:  bfd")
}

func TestRun_RejectedRecordsFail(t *testing.T) {
	f := newFixture(t, "Profile,Length,Qty\nP-40,1200,2\n,900,1\n")
	var stdout, stderr bytes.Buffer

	code := run([]string{"-demand", f.demand, "-catalog", f.catalog, "-log-level", "error"}, &stdout, &stderr)
	assert.Equal(t, exitValidation, code)
	assert.Contains(t, stderr.String(), "MISSING_REQUIRED_FIELDS")
}

func TestRun_QuarantineOnlyFails(t *testing.T) {
	f := newFixture(t, "Profile,Length,Qty\nP-40,1200,1.5\n")
	var stdout, stderr bytes.Buffer

	code := run([]string{"-demand", f.demand, "-catalog", f.catalog, "-log-level", "error"}, &stdout, &stderr)
	assert.Equal(t, exitValidation, code)
	assert.Contains(t, stderr.String(), "quarantined")
	assert.Contains(t, stderr.String(), "no records left")
}

func TestRun_UsageErrors(t *testing.T) {
	f := newFixture(t, "P-40,1200,2\n")
	var stdout, stderr bytes.Buffer

	assert.Equal(t, exitUsage, run(nil, &stdout, &stderr))
	assert.Equal(t, exitUsage, run([]string{"-demand", f.demand, "-catalog", f.catalog, "-algorithm", "quantum"}, &stdout, &stderr))
	assert.Equal(t, exitUsage, run([]string{"-demand", f.demand, "-log-level", "loud"}, &stdout, &stderr))
}

func TestRun_MissingDemandFile(t *testing.T) {
	f := newFixture(t, "")
	var stdout, stderr bytes.Buffer

	code := run([]string{"-demand", f.path("nope.csv"), "-catalog", f.catalog, "-log-level", "error"}, &stdout, &stderr)
	assert.Equal(t, exitValidation, code)
	assert.Contains(t, stderr.String(), "Cannot open file")
}

package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/piwi3910/BarCut/internal/apperrors"
	"github.com/piwi3910/BarCut/internal/model"
)

func balancedResult() *model.OptimizationResult {
	c := model.DefaultConstraints()
	pieces := []model.PlacedPiece{
		{ItemID: "i1", Length: 2000, Position: c.StartSafety},
		{ItemID: "i1", Length: 2000, Position: c.StartSafety + 2000 + c.KerfWidth},
	}
	used := c.UsedLength(4000, 2)
	return &model.OptimizationResult{
		ID:        "r1",
		Algorithm: model.AlgorithmBFD,
		Cuts: []model.Cut{{
			ID:              "c1",
			ProfileType:     "P-40",
			StockLength:     6000,
			UsedLength:      used,
			RemainingLength: 6000 - used - c.EndSafety,
			KerfLoss:        c.KerfWidth,
			Pieces:          pieces,
			Pattern:         model.BuildPattern(pieces),
		}},
		StockCount: 1,
	}
}

func testProject() model.Project {
	p := model.NewProject()
	p.Name = "Frame"
	p.Items = []model.OptimizationItem{model.NewOptimizationItem("P-40", 2000, 2, "WO-9")}
	return p
}

func TestSaveAndLoadProject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.barcut")
	p := testProject()
	p.Result = balancedResult()

	require.NoError(t, SaveProject(path, p))
	loaded, err := LoadProject(zap.NewNop(), path)
	require.NoError(t, err)

	assert.Equal(t, "Frame", loaded.Name)
	assert.Equal(t, p.Items, loaded.Items)
	require.NotNil(t, loaded.Result)
	assert.Equal(t, model.AlgorithmBFD, loaded.Result.Algorithm)
	assert.Len(t, loaded.Result.Cuts, 1)
}

func TestSaveProject_WritesEnvelope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.barcut")
	p := testProject()
	p.Result = balancedResult()
	require.NoError(t, SaveProject(path, p))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))

	var env struct {
		Kind      string `json:"kind"`
		Version   string `json:"version"`
		Algorithm string `json:"algorithm"`
	}
	require.NoError(t, json.Unmarshal(raw["result"], &env))
	assert.Equal(t, ResultKind, env.Kind)
	assert.Equal(t, FormatVersion, env.Version)
	assert.Equal(t, "bfd", env.Algorithm)
}

func TestLoadProject_WithoutResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.barcut")
	require.NoError(t, SaveProject(path, testProject()))

	loaded, err := LoadProject(nil, path)
	require.NoError(t, err)
	assert.Nil(t, loaded.Result)
}

func writeFile(t *testing.T, f File) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "p.barcut")
	require.NoError(t, writeJSON(path, f))
	return path
}

func TestLoadProject_RejectsBadEnvelope(t *testing.T) {
	good := func() *ResultEnvelope {
		r := balancedResult()
		return &ResultEnvelope{Kind: ResultKind, Version: FormatVersion, Algorithm: r.Algorithm, Result: *r}
	}

	tests := []struct {
		name   string
		mutate func(e *ResultEnvelope)
	}{
		{"kind", func(e *ResultEnvelope) { e.Kind = "something_else" }},
		{"version", func(e *ResultEnvelope) { e.Version = "0.1" }},
		{"algorithm mismatch", func(e *ResultEnvelope) { e.Algorithm = model.AlgorithmFFD }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := good()
			tt.mutate(env)
			path := writeFile(t, File{Version: FormatVersion, Project: testProject(), Result: env})
			_, err := LoadProject(zap.NewNop(), path)
			assert.Error(t, err)
		})
	}
}

func TestLoadProject_RejectsUnbalancedCuts(t *testing.T) {
	r := balancedResult()
	r.Cuts[0].RemainingLength += 10
	env := &ResultEnvelope{Kind: ResultKind, Version: FormatVersion, Algorithm: r.Algorithm, Result: *r}
	path := writeFile(t, File{Version: FormatVersion, Project: testProject(), Result: env})

	_, err := LoadProject(zap.NewNop(), path)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAccountingViolation))
}

func TestLoadProject_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadProject(nil, filepath.Join(dir, "missing.barcut"))
	assert.Error(t, err)

	noVersion := filepath.Join(dir, "nov.barcut")
	require.NoError(t, os.WriteFile(noVersion, []byte(`{"project":{"name":"x"}}`), 0644))
	_, err = LoadProject(nil, noVersion)
	assert.Error(t, err)

	unknownAlg := filepath.Join(dir, "alg.barcut")
	require.NoError(t, os.WriteFile(unknownAlg, []byte(`{"version":"1.0.0","project":{},"result":{"kind":"optimization_result","version":"1.0.0","algorithm":"quantum"}}`), 0644))
	_, err = LoadProject(nil, unknownAlg)
	assert.Error(t, err)
}

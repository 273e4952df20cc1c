package project

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/piwi3910/BarCut/internal/engine"
	"github.com/piwi3910/BarCut/internal/model"
)

// FormatVersion is the version written to project files.
const FormatVersion = "1.0.0"

// ResultKind tags a stored optimization result.
const ResultKind = "optimization_result"

// ResultEnvelope wraps a stored result with what is needed to check it
// before use.
type ResultEnvelope struct {
	Kind      string                   `json:"kind"`
	Version   string                   `json:"version"`
	Algorithm model.AlgorithmType      `json:"algorithm"`
	Result    model.OptimizationResult `json:"result"`
}

// File is the on-disk layout of a project.
type File struct {
	Version string          `json:"version"`
	SavedAt string          `json:"saved_at"`
	Project model.Project   `json:"project"`
	Result  *ResultEnvelope `json:"result,omitempty"`
}

// SaveProject writes p, including its last result when set, to path.
func SaveProject(path string, p model.Project) error {
	f := File{
		Version: FormatVersion,
		SavedAt: time.Now().UTC().Format(time.RFC3339),
		Project: p,
	}
	if p.Result != nil {
		f.Result = &ResultEnvelope{
			Kind:      ResultKind,
			Version:   FormatVersion,
			Algorithm: p.Result.Algorithm,
			Result:    *p.Result,
		}
	}
	if err := writeJSON(path, f); err != nil {
		return fmt.Errorf("failed to write project file: %w", err)
	}
	return nil
}

// LoadProject reads a project file. A stored result is only attached after
// its envelope checks out and every cut balances under the project's
// constraints.
func LoadProject(logger *zap.Logger, path string) (model.Project, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Project{}, fmt.Errorf("failed to read project file: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return model.Project{}, fmt.Errorf("failed to parse project file: %w", err)
	}
	if f.Version == "" {
		return model.Project{}, fmt.Errorf("invalid project file: missing version field")
	}

	p := f.Project
	if p.Items == nil {
		p.Items = []model.OptimizationItem{}
	}
	if f.Result == nil {
		return p, nil
	}

	if err := checkEnvelope(*f.Result); err != nil {
		return model.Project{}, fmt.Errorf("invalid stored result: %w", err)
	}
	if err := engine.ValidateCuts(logger, f.Result.Result.Cuts, p.Constraints); err != nil {
		return model.Project{}, fmt.Errorf("invalid stored result: %w", err)
	}
	result := f.Result.Result
	p.Result = &result
	return p, nil
}

func checkEnvelope(env ResultEnvelope) error {
	if env.Kind != ResultKind {
		return fmt.Errorf("unexpected kind %q", env.Kind)
	}
	if env.Version != FormatVersion {
		return fmt.Errorf("unsupported version %q", env.Version)
	}
	if !env.Algorithm.Valid() {
		return fmt.Errorf("unknown algorithm %q", env.Algorithm)
	}
	if env.Result.Algorithm != env.Algorithm {
		return fmt.Errorf("algorithm %q does not match result algorithm %q", env.Algorithm, env.Result.Algorithm)
	}
	return nil
}

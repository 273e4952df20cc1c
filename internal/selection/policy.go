// Package selection picks an algorithm for a request by workload size, runs
// it and falls back to a second algorithm when the first one misbehaves.
package selection

import (
	"fmt"
	"strings"
	"time"

	"github.com/piwi3910/BarCut/internal/model"
)

// Workload class boundaries, in pieces.
const (
	smallMax  = 49
	mediumMax = 200
	largeMax  = 1000
)

// ClassifyWorkload buckets a request by its total piece count.
func ClassifyWorkload(pieceCount int) model.WorkloadClass {
	switch {
	case pieceCount <= smallMax:
		return model.WorkloadSmall
	case pieceCount <= mediumMax:
		return model.WorkloadMedium
	case pieceCount <= largeMax:
		return model.WorkloadLarge
	default:
		return model.WorkloadExtreme
	}
}

// SelectionPolicy is the algorithm choice and thresholds of a workload class.
// Zero durations and budgets mean no limit.
type SelectionPolicy struct {
	Class               model.WorkloadClass `json:"class"`
	Primary             model.AlgorithmType `json:"primary"`
	Fallback            model.AlgorithmType `json:"fallback"`
	MaxDuration         time.Duration       `json:"max_duration"`
	FallbackMaxDuration time.Duration       `json:"fallback_max_duration"`
	MinEfficiency       float64             `json:"min_efficiency"` // percent
	MaxMemoryBytes      uint64              `json:"max_memory_bytes"`
	ExtendedBudget      bool                `json:"extended_budget"` // genetic runs with its extended budget
}

const mib = 1 << 20

// DefaultPolicies returns the built-in policy of every workload class.
// EXTREME has no dedicated algorithm: it runs the genetic search with a larger
// population and generation budget.
func DefaultPolicies() map[model.WorkloadClass]SelectionPolicy {
	return map[model.WorkloadClass]SelectionPolicy{
		model.WorkloadSmall: {
			Class:               model.WorkloadSmall,
			Primary:             model.AlgorithmFFD,
			Fallback:            model.AlgorithmBFD,
			MaxDuration:         2 * time.Second,
			FallbackMaxDuration: 5 * time.Second,
			MinEfficiency:       60,
			MaxMemoryBytes:      64 * mib,
		},
		model.WorkloadMedium: {
			Class:               model.WorkloadMedium,
			Primary:             model.AlgorithmBFD,
			Fallback:            model.AlgorithmGenetic,
			MaxDuration:         10 * time.Second,
			FallbackMaxDuration: 30 * time.Second,
			MinEfficiency:       70,
			MaxMemoryBytes:      256 * mib,
		},
		model.WorkloadLarge: {
			Class:               model.WorkloadLarge,
			Primary:             model.AlgorithmGenetic,
			Fallback:            model.AlgorithmBFD,
			MaxDuration:         30 * time.Second,
			FallbackMaxDuration: 10 * time.Second,
			MinEfficiency:       75,
			MaxMemoryBytes:      1024 * mib,
		},
		model.WorkloadExtreme: {
			Class:               model.WorkloadExtreme,
			Primary:             model.AlgorithmGenetic,
			Fallback:            model.AlgorithmBFD,
			MaxDuration:         120 * time.Second,
			FallbackMaxDuration: 30 * time.Second,
			MinEfficiency:       75,
			MaxMemoryBytes:      2048 * mib,
			ExtendedBudget:      true,
		},
	}
}

// GetSelectionPolicy returns the built-in policy of a class. Unknown classes
// get the MEDIUM policy.
func GetSelectionPolicy(class model.WorkloadClass) SelectionPolicy {
	policies := DefaultPolicies()
	if p, ok := policies[class]; ok {
		return p
	}
	return policies[model.WorkloadMedium]
}

// PolicyOverride replaces individual fields of a class policy. Empty fields
// keep the built-in value.
type PolicyOverride struct {
	Primary             string        `mapstructure:"primary"`
	Fallback            string        `mapstructure:"fallback"`
	MaxDuration         time.Duration `mapstructure:"max_duration"`
	FallbackMaxDuration time.Duration `mapstructure:"fallback_max_duration"`
	MinEfficiency       *float64      `mapstructure:"min_efficiency"`
	MaxMemoryMB         uint64        `mapstructure:"max_memory_mb"`
	ExtendedBudget      *bool         `mapstructure:"extended_budget"`
}

// Apply returns the policy with the override's non-empty fields applied.
// Deprecated algorithm names are remapped onto live ones.
func (o PolicyOverride) Apply(p SelectionPolicy) (SelectionPolicy, error) {
	if o.Primary != "" {
		t, _, err := model.ParseAlgorithmType(o.Primary)
		if err != nil {
			return p, fmt.Errorf("%s primary: %w", p.Class, err)
		}
		p.Primary = t
	}
	if o.Fallback != "" {
		t, _, err := model.ParseAlgorithmType(o.Fallback)
		if err != nil {
			return p, fmt.Errorf("%s fallback: %w", p.Class, err)
		}
		p.Fallback = t
	}
	if o.MaxDuration != 0 {
		p.MaxDuration = o.MaxDuration
	}
	if o.FallbackMaxDuration != 0 {
		p.FallbackMaxDuration = o.FallbackMaxDuration
	}
	if o.MinEfficiency != nil {
		p.MinEfficiency = *o.MinEfficiency
	}
	if o.MaxMemoryMB != 0 {
		p.MaxMemoryBytes = o.MaxMemoryMB * mib
	}
	if o.ExtendedBudget != nil {
		p.ExtendedBudget = *o.ExtendedBudget
	}
	return p, nil
}

// ApplyOverrides returns the built-in policies with per-class overrides
// applied. Keys are class names such as "MEDIUM", matched case-insensitively.
func ApplyOverrides(overrides map[string]PolicyOverride) (map[model.WorkloadClass]SelectionPolicy, error) {
	policies := DefaultPolicies()
	for key, o := range overrides {
		class, err := parseClass(key)
		if err != nil {
			return nil, err
		}
		p, err := o.Apply(policies[class])
		if err != nil {
			return nil, err
		}
		policies[class] = p
	}
	return policies, nil
}

func parseClass(s string) (model.WorkloadClass, error) {
	for _, c := range []model.WorkloadClass{model.WorkloadSmall, model.WorkloadMedium, model.WorkloadLarge, model.WorkloadExtreme} {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown workload class %q", s)
}

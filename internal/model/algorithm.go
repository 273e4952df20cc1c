package model

import (
	"fmt"
	"strings"
	"time"
)

// AlgorithmType represents the optimizer algorithm to use.
type AlgorithmType string

const (
	AlgorithmFFD     AlgorithmType = "ffd"     // First-fit decreasing (fast, deterministic)
	AlgorithmBFD     AlgorithmType = "bfd"     // Best-fit decreasing (tighter bars)
	AlgorithmGenetic AlgorithmType = "genetic" // Genetic search over piece orderings
	AlgorithmPooling AlgorithmType = "pooling" // Pattern pooling per profile
)

// AlgorithmTypes lists every live algorithm in a stable order.
func AlgorithmTypes() []AlgorithmType {
	return []AlgorithmType{AlgorithmFFD, AlgorithmBFD, AlgorithmGenetic, AlgorithmPooling}
}

// deprecatedAlgorithms maps retired algorithm names onto live ones.
var deprecatedAlgorithms = map[string]AlgorithmType{
	"nfd":                 AlgorithmFFD,
	"wfd":                 AlgorithmBFD,
	"simulated-annealing": AlgorithmGenetic,
	"branch-and-bound":    AlgorithmBFD,
}

// ParseAlgorithmType resolves an algorithm name. Retired names are remapped
// onto a live algorithm and reported with deprecated set.
func ParseAlgorithmType(s string) (t AlgorithmType, deprecated bool, err error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "_", "-")
	for _, a := range AlgorithmTypes() {
		if string(a) == name {
			return a, false, nil
		}
	}
	if live, ok := deprecatedAlgorithms[name]; ok {
		return live, true, nil
	}
	return "", false, fmt.Errorf("unknown algorithm %q", s)
}

// Valid reports whether t is a live algorithm.
func (t AlgorithmType) Valid() bool {
	for _, a := range AlgorithmTypes() {
		if a == t {
			return true
		}
	}
	return false
}

// UnmarshalText accepts only live algorithm names.
func (t *AlgorithmType) UnmarshalText(text []byte) error {
	a := AlgorithmType(text)
	if !a.Valid() {
		return fmt.Errorf("unknown algorithm %q", string(text))
	}
	*t = a
	return nil
}

// WorkloadClass buckets a request by size.
type WorkloadClass string

const (
	WorkloadSmall   WorkloadClass = "SMALL"
	WorkloadMedium  WorkloadClass = "MEDIUM"
	WorkloadLarge   WorkloadClass = "LARGE"
	WorkloadExtreme WorkloadClass = "EXTREME"
)

// FallbackTrigger names the condition that made the selector switch algorithms.
type FallbackTrigger string

const (
	TriggerNone                   FallbackTrigger = ""
	TriggerTimeout                FallbackTrigger = "TIMEOUT"
	TriggerMemoryOverflow         FallbackTrigger = "MEMORY_OVERFLOW"
	TriggerQualityThreshold       FallbackTrigger = "QUALITY_THRESHOLD"
	TriggerErrorOccurred          FallbackTrigger = "ERROR_OCCURRED"
	TriggerPerformanceDegradation FallbackTrigger = "PERFORMANCE_DEGRADATION"
)

// SelectionAttempt records one algorithm run made by the selector.
type SelectionAttempt struct {
	Algorithm  AlgorithmType   `json:"algorithm"`
	Duration   time.Duration   `json:"duration"`
	Efficiency float64         `json:"efficiency"`
	Trigger    FallbackTrigger `json:"trigger,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// AlgorithmSelection is the observability record of one selector run.
type AlgorithmSelection struct {
	ID                string             `json:"id"`
	WorkloadClass     WorkloadClass      `json:"workload_class"`
	PieceCount        int                `json:"piece_count"`
	Candidates        []AlgorithmType    `json:"candidates"`
	SelectedAlgorithm AlgorithmType      `json:"selected_algorithm"`
	SelectionReason   string             `json:"selection_reason"`
	FallbackTriggered bool               `json:"fallback_triggered"`
	FallbackTrigger   FallbackTrigger    `json:"fallback_trigger,omitempty"`
	FallbackAlgorithm AlgorithmType      `json:"fallback_algorithm,omitempty"`
	Attempts          []SelectionAttempt `json:"attempts"`
	ActualDuration    time.Duration      `json:"actual_duration"`
	ActualQuality     float64            `json:"actual_quality"`
	ActualMemoryBytes uint64             `json:"actual_memory_bytes"`
}

func NewAlgorithmSelection(class WorkloadClass, pieceCount int) AlgorithmSelection {
	return AlgorithmSelection{
		ID:            newID(),
		WorkloadClass: class,
		PieceCount:    pieceCount,
	}
}

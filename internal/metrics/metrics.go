// Package metrics holds the prometheus collectors of algorithm selection and
// input validation.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics owns a registry and the BarCut collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Selection metrics
	SelectionsTotal     *prometheus.CounterVec
	FallbacksTotal      *prometheus.CounterVec
	AlgorithmDuration   *prometheus.HistogramVec
	AlgorithmEfficiency *prometheus.HistogramVec
	AlgorithmErrors     *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec

	// Validation metrics
	ValidationRecords *prometheus.CounterVec
	RuleMatches       *prometheus.CounterVec
}

// Config holds metrics configuration.
type Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Textfile  string `mapstructure:"textfile"` // written by the CLI after a run
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() Config {
	return Config{Enabled: true, Namespace: "barcut"}
}

// New creates the collectors and registers them on a fresh registry.
func New(cfg Config) *Metrics {
	ns := cfg.Namespace
	if ns == "" {
		ns = "barcut"
	}
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.SelectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "selections_total",
			Help:      "Optimize calls by workload class and primary algorithm",
		},
		[]string{"workload_class", "algorithm"},
	)
	m.FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "fallbacks_total",
			Help:      "Fallback runs by workload class and trigger",
		},
		[]string{"workload_class", "trigger", "algorithm"},
	)
	m.AlgorithmDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "algorithm_duration_seconds",
			Help:      "Wall time of one algorithm attempt",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"algorithm"},
	)
	m.AlgorithmEfficiency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "algorithm_efficiency_percent",
			Help:      "Material efficiency of successful attempts",
			Buckets:   []float64{50, 60, 70, 75, 80, 85, 90, 95, 98, 100},
		},
		[]string{"algorithm"},
	)
	m.AlgorithmErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "algorithm_errors_total",
			Help:      "Failed algorithm attempts by error code",
		},
		[]string{"algorithm", "code"},
	)
	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "circuit_breaker_state",
			Help:      "Breaker state per algorithm (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
	m.ValidationRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "validation_records_total",
			Help:      "Inbound records by final validation action",
		},
		[]string{"action"},
	)
	m.RuleMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "validation_rule_matches_total",
			Help:      "Validation rule matches by rule and severity",
		},
		[]string{"rule", "severity"},
	)

	m.registry.MustRegister(
		m.SelectionsTotal,
		m.FallbacksTotal,
		m.AlgorithmDuration,
		m.AlgorithmEfficiency,
		m.AlgorithmErrors,
		m.CircuitBreakerState,
		m.ValidationRecords,
		m.RuleMatches,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordSelection counts one optimize call.
func (m *Metrics) RecordSelection(class, algorithm string) {
	if m == nil {
		return
	}
	m.SelectionsTotal.WithLabelValues(class, algorithm).Inc()
}

// RecordFallback counts one fallback run.
func (m *Metrics) RecordFallback(class, trigger, algorithm string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(class, trigger, algorithm).Inc()
}

// RecordAttempt observes one algorithm attempt. code is empty on success.
func (m *Metrics) RecordAttempt(algorithm string, d time.Duration, efficiency float64, code string) {
	if m == nil {
		return
	}
	m.AlgorithmDuration.WithLabelValues(algorithm).Observe(d.Seconds())
	if code != "" {
		m.AlgorithmErrors.WithLabelValues(algorithm, code).Inc()
		return
	}
	m.AlgorithmEfficiency.WithLabelValues(algorithm).Observe(efficiency)
}

// SetBreakerState records a breaker state as 0, 1 or 2.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordValidation counts one record with its final action.
func (m *Metrics) RecordValidation(action string) {
	if m == nil {
		return
	}
	m.ValidationRecords.WithLabelValues(action).Inc()
}

// RecordRuleMatch counts one rule match.
func (m *Metrics) RecordRuleMatch(rule, severity string) {
	if m == nil {
		return
	}
	m.RuleMatches.WithLabelValues(rule, severity).Inc()
}

// WriteTextfile dumps the registry in the text exposition format, for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

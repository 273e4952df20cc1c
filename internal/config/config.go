// Package config loads the BarCut configuration from built-in defaults, a
// YAML file and BARCUT_ environment variables. Later sources win.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/piwi3910/BarCut/internal/engine"
	"github.com/piwi3910/BarCut/internal/logging"
	"github.com/piwi3910/BarCut/internal/metrics"
	"github.com/piwi3910/BarCut/internal/model"
	"github.com/piwi3910/BarCut/internal/selection"
	"github.com/piwi3910/BarCut/internal/validation"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// BARCUT_CONSTRAINTS_KERF_WIDTH=4.
const EnvPrefix = "BARCUT"

// Configuration holds all configuration for BarCut.
type Configuration struct {
	Logging     logging.Config            `mapstructure:"logging"`
	Constraints model.EnhancedConstraints `mapstructure:"constraints"`
	Performance model.PerformanceSettings `mapstructure:"performance"`
	Costs       model.CostModel           `mapstructure:"costs"`
	Genetic     engine.GeneticConfig      `mapstructure:"genetic"`
	Pooling     engine.PoolingConfig      `mapstructure:"pooling"`
	Selection   SelectionConfig           `mapstructure:"selection"`
	Validation  validation.Config         `mapstructure:"validation"`
	Metrics     metrics.Config            `mapstructure:"metrics"`
	Catalog     CatalogConfig             `mapstructure:"catalog"`
}

// SelectionConfig holds per-class policy overrides and breaker settings.
type SelectionConfig struct {
	Policies map[string]selection.PolicyOverride `mapstructure:"policies"` // keyed by class: small, medium, large, extreme
	Breaker  selection.BreakerConfig             `mapstructure:"breaker"`
}

// CatalogConfig locates the stock catalog file.
type CatalogConfig struct {
	Path string `mapstructure:"path"` // empty uses the default location
}

// Default returns the configuration used when nothing is set.
func Default() Configuration {
	return Configuration{
		Logging:     logging.Config{Level: "info", Format: "json"},
		Constraints: model.DefaultConstraints(),
		Performance: model.DefaultPerformanceSettings(),
		Costs:       model.DefaultCostModel(),
		Genetic:     engine.DefaultGeneticConfig(),
		Pooling:     engine.DefaultPoolingConfig(),
		Selection:   SelectionConfig{Breaker: selection.DefaultBreakerConfig()},
		Validation:  validation.DefaultConfig(),
		Metrics:     metrics.DefaultConfig(),
	}
}

func setDefaults(v *viper.Viper, d Configuration) {
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output_file", d.Logging.OutputFile)

	v.SetDefault("constraints.kerf_width", d.Constraints.KerfWidth)
	v.SetDefault("constraints.start_safety", d.Constraints.StartSafety)
	v.SetDefault("constraints.end_safety", d.Constraints.EndSafety)
	v.SetDefault("constraints.min_scrap_length", d.Constraints.MinScrapLength)

	v.SetDefault("performance.max_iterations", d.Performance.MaxIterations)
	v.SetDefault("performance.convergence_threshold", d.Performance.ConvergenceThreshold)
	v.SetDefault("performance.parallel_processing", d.Performance.ParallelProcessing)
	v.SetDefault("performance.cache_results", d.Performance.CacheResults)
	v.SetDefault("performance.seed", d.Performance.Seed)

	v.SetDefault("costs.material_cost", d.Costs.MaterialCost)
	v.SetDefault("costs.cutting_cost", d.Costs.CuttingCost)
	v.SetDefault("costs.setup_cost", d.Costs.SetupCost)
	v.SetDefault("costs.waste_cost", d.Costs.WasteCost)
	v.SetDefault("costs.time_cost", d.Costs.TimeCost)
	v.SetDefault("costs.energy_cost", d.Costs.EnergyCost)

	v.SetDefault("genetic.population_size", d.Genetic.PopulationSize)
	v.SetDefault("genetic.generations", d.Genetic.Generations)
	v.SetDefault("genetic.mutation_rate", d.Genetic.MutationRate)
	v.SetDefault("genetic.tournament_size", d.Genetic.TournamentSize)
	v.SetDefault("genetic.elite_count", d.Genetic.EliteCount)
	v.SetDefault("genetic.stall_generations", d.Genetic.StallGenerations)

	v.SetDefault("pooling.max_patterns_per_stock", d.Pooling.MaxPatternsPerStock)

	b := d.Selection.Breaker
	v.SetDefault("selection.breaker.max_requests", b.MaxRequests)
	v.SetDefault("selection.breaker.interval", b.Interval)
	v.SetDefault("selection.breaker.timeout", b.Timeout)
	v.SetDefault("selection.breaker.failure_threshold", b.FailureThreshold)
	v.SetDefault("selection.breaker.failure_ratio_threshold", b.FailureRatioThreshold)
	v.SetDefault("selection.breaker.min_requests_to_trip", b.MinRequestsToTrip)

	v.SetDefault("validation.max_kerf", d.Validation.MaxKerf)
	v.SetDefault("validation.default_kerf", d.Validation.DefaultKerf)
	v.SetDefault("validation.stale_after", d.Validation.StaleAfter)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)

	v.SetDefault("catalog.path", d.Catalog.Path)
}

// LoadConfiguration reads the YAML file at path, applies BARCUT_ environment
// overrides and validates the result. An empty path loads defaults and
// environment only.
func LoadConfiguration(path string) (*Configuration, error) {
	v := viper.New()
	conf := Default()
	setDefaults(v, conf)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// no default to register the key with
	if err := v.BindEnv("constraints.energy_per_stock"); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Validate checks the values that the engine does not validate itself.
func (c Configuration) Validate() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging: invalid log format: %s", c.Logging.Format)
	}

	g := c.Genetic
	if g.PopulationSize < 1 || g.Generations < 0 || g.TournamentSize < 1 || g.EliteCount < 0 {
		return fmt.Errorf("genetic: population, generation, tournament or elite size out of range")
	}
	if g.EliteCount >= g.PopulationSize {
		return fmt.Errorf("genetic: elite_count %d must be below population_size %d", g.EliteCount, g.PopulationSize)
	}
	if g.MutationRate < 0 || g.MutationRate > 1 {
		return fmt.Errorf("genetic: mutation_rate %v must be within [0, 1]", g.MutationRate)
	}
	for length, weight := range c.Pooling.MixedBarWeights {
		if length <= 0 || weight < 0 {
			return fmt.Errorf("pooling: invalid mixed bar weight %v for length %v", weight, length)
		}
	}
	if _, err := c.SelectionPolicies(); err != nil {
		return fmt.Errorf("selection: %w", err)
	}
	if c.Validation.MaxKerf < 0 || c.Validation.DefaultKerf < 0 {
		return fmt.Errorf("validation: kerf limits must not be negative")
	}
	return nil
}

// SelectionPolicies returns the class policies with the configured overrides.
func (c Configuration) SelectionPolicies() (map[model.WorkloadClass]selection.SelectionPolicy, error) {
	return selection.ApplyOverrides(c.Selection.Policies)
}

// OptimizerOptions returns the engine options of the configuration.
func (c Configuration) OptimizerOptions() []engine.OptimizerOption {
	return []engine.OptimizerOption{
		engine.WithGeneticConfig(c.Genetic),
		engine.WithPoolingConfig(c.Pooling),
	}
}

// ContextOptions returns the optimization context options of the configuration.
func (c Configuration) ContextOptions() []engine.ContextOption {
	return []engine.ContextOption{
		engine.WithPerformance(c.Performance),
		engine.WithCostModel(c.Costs),
	}
}

package engine

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/piwi3910/BarCut/internal/apperrors"
	"github.com/piwi3910/BarCut/internal/model"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		// Use JSON tag names in field details
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// OptimizationContext is the read-only input of one optimize call. It owns
// deep copies of its inputs and only hands out copies.
type OptimizationContext struct {
	items       []model.OptimizationItem
	catalog     model.StockCatalog
	constraints model.EnhancedConstraints
	objectives  []model.Objective
	performance model.PerformanceSettings
	costs       model.CostModel
}

// ContextOption configures an OptimizationContext.
type ContextOption func(*OptimizationContext)

// WithObjectives sets the weighted objectives of the run.
func WithObjectives(objectives ...model.Objective) ContextOption {
	return func(oc *OptimizationContext) {
		oc.objectives = append([]model.Objective(nil), objectives...)
	}
}

// WithPerformance sets the iteration and parallelism limits.
func WithPerformance(p model.PerformanceSettings) ContextOption {
	return func(oc *OptimizationContext) {
		oc.performance = p
	}
}

// WithCostModel sets the rates used to price the result.
func WithCostModel(c model.CostModel) ContextOption {
	return func(oc *OptimizationContext) {
		oc.costs = c
	}
}

// NewOptimizationContext validates and copies the inputs of a run.
// Invalid input yields an apperrors validation error with one detail per field.
func NewOptimizationContext(items []model.OptimizationItem, catalog model.StockCatalog, constraints model.EnhancedConstraints, opts ...ContextOption) (*OptimizationContext, error) {
	oc := &OptimizationContext{
		items:       append([]model.OptimizationItem(nil), items...),
		catalog:     catalog.Clone(),
		constraints: constraints,
		objectives:  model.DefaultObjectives(),
		performance: model.DefaultPerformanceSettings(),
		costs:       model.DefaultCostModel(),
	}
	if constraints.EnergyPerStock != nil {
		v := *constraints.EnergyPerStock
		oc.constraints.EnergyPerStock = &v
	}
	for _, opt := range opts {
		opt(oc)
	}

	if err := oc.validate(); err != nil {
		return nil, err
	}
	return oc, nil
}

func (oc *OptimizationContext) validate() error {
	v := getValidator()
	fields := make(map[string]string)

	collect := func(prefix string, err error) {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[prefix+fe.Field()] = fieldMessage(fe)
			}
		} else if err != nil {
			fields[prefix] = err.Error()
		}
	}

	for i, it := range oc.items {
		collect(fmt.Sprintf("items[%d].", i), v.Struct(it))
	}
	for i, o := range oc.catalog.Options {
		collect(fmt.Sprintf("catalog[%d].", i), v.Struct(o))
	}
	collect("constraints.", v.Struct(oc.constraints))
	for i, o := range oc.objectives {
		collect(fmt.Sprintf("objectives[%d].", i), v.Struct(o))
	}
	collect("performance.", v.Struct(oc.performance))
	collect("costs.", v.Struct(oc.costs))

	if len(fields) > 0 {
		return apperrors.ErrValidationWithFields("invalid optimization input", fields)
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// Items returns a copy of the demand items.
func (oc *OptimizationContext) Items() []model.OptimizationItem {
	return append([]model.OptimizationItem(nil), oc.items...)
}

// Catalog returns a copy of the stock catalog.
func (oc *OptimizationContext) Catalog() model.StockCatalog {
	return oc.catalog.Clone()
}

func (oc *OptimizationContext) Constraints() model.EnhancedConstraints {
	c := oc.constraints
	if c.EnergyPerStock != nil {
		v := *c.EnergyPerStock
		c.EnergyPerStock = &v
	}
	return c
}

func (oc *OptimizationContext) Objectives() []model.Objective {
	return append([]model.Objective(nil), oc.objectives...)
}

func (oc *OptimizationContext) Performance() model.PerformanceSettings {
	return oc.performance
}

func (oc *OptimizationContext) CostModel() model.CostModel {
	return oc.costs
}

// PieceCount returns the number of physical pieces demanded.
func (oc *OptimizationContext) PieceCount() int {
	n := 0
	for _, it := range oc.items {
		n += it.Quantity
	}
	return n
}

// ProfileTypes returns the distinct profile types of the demand, sorted.
func (oc *OptimizationContext) ProfileTypes() []string {
	seen := make(map[string]bool)
	var types []string
	for _, it := range oc.items {
		if !seen[it.ProfileType] {
			seen[it.ProfileType] = true
			types = append(types, it.ProfileType)
		}
	}
	sort.Strings(types)
	return types
}

// WithPerformanceOverride returns a copy of the context with different
// performance settings. The receiver is left untouched.
func (oc *OptimizationContext) WithPerformanceOverride(p model.PerformanceSettings) *OptimizationContext {
	cp := *oc
	cp.items = oc.Items()
	cp.catalog = oc.Catalog()
	cp.constraints = oc.Constraints()
	cp.objectives = oc.Objectives()
	cp.performance = p
	return &cp
}

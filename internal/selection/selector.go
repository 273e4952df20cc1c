package selection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/piwi3910/BarCut/internal/apperrors"
	"github.com/piwi3910/BarCut/internal/engine"
	"github.com/piwi3910/BarCut/internal/metrics"
	"github.com/piwi3910/BarCut/internal/model"
)

// Selector runs the policy algorithm of a request's workload class and falls
// back to the policy's second algorithm when a trigger fires.
type Selector struct {
	logger     *zap.Logger
	optimizer  *engine.Optimizer
	metrics    *metrics.Metrics
	policies   map[model.WorkloadClass]SelectionPolicy
	breakerCfg BreakerConfig
	breakers   *breakers
}

// Option configures a Selector.
type Option func(*Selector)

// WithPolicies replaces the built-in class policies. Classes missing from
// the map keep their built-in policy.
func WithPolicies(policies map[model.WorkloadClass]SelectionPolicy) Option {
	return func(s *Selector) {
		for class, p := range policies {
			s.policies[class] = p
		}
	}
}

// WithMetrics records selections, fallbacks and attempts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Selector) { s.metrics = m }
}

// WithBreakerConfig sets the per-algorithm circuit breaker settings.
func WithBreakerConfig(cfg BreakerConfig) Option {
	return func(s *Selector) { s.breakerCfg = cfg }
}

// New creates a Selector over the optimizer.
func New(logger *zap.Logger, optimizer *engine.Optimizer, opts ...Option) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Selector{
		logger:     logger,
		optimizer:  optimizer,
		policies:   DefaultPolicies(),
		breakerCfg: DefaultBreakerConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.breakers = newBreakers(s.breakerCfg, logger, s.metrics)
	return s
}

// Policy returns the policy the selector applies to a class.
func (s *Selector) Policy(class model.WorkloadClass) SelectionPolicy {
	if p, ok := s.policies[class]; ok {
		return p
	}
	return GetSelectionPolicy(class)
}

// BreakerState returns the circuit breaker state of an algorithm.
func (s *Selector) BreakerState(t model.AlgorithmType) gobreaker.State {
	return s.breakers.state(string(t))
}

// Outcome is the result of a selector run with its selection record.
type Outcome struct {
	Result    model.OptimizationResult `json:"result"`
	Selection model.AlgorithmSelection `json:"selection"`
}

type attempt struct {
	result  model.OptimizationResult
	memory  uint64
	trigger model.FallbackTrigger
	err     error
}

// Optimize classifies the request, runs the primary algorithm of its class
// and, if a fallback trigger fires, runs the fallback against the same
// context. Accounting violations are returned without a fallback run. When
// both algorithms fail the error has code SOLVER_FAILURE.
func (s *Selector) Optimize(ctx context.Context, oc *engine.OptimizationContext) (Outcome, error) {
	started := time.Now()
	pieces := oc.PieceCount()
	class := ClassifyWorkload(pieces)
	policy := s.Policy(class)

	sel := model.NewAlgorithmSelection(class, pieces)
	sel.Candidates = []model.AlgorithmType{policy.Primary, policy.Fallback}
	sel.SelectedAlgorithm = policy.Primary
	sel.SelectionReason = fmt.Sprintf("%s workload of %d pieces", class, pieces)
	if policy.ExtendedBudget && policy.Primary == model.AlgorithmGenetic {
		sel.SelectionReason += " with extended search budget"
	}
	s.metrics.RecordSelection(string(class), string(policy.Primary))

	primary := s.run(ctx, policy.Primary, oc, policy.MaxDuration, policy.MaxMemoryBytes, policy.ExtendedBudget, &sel)
	if apperrors.HasCode(primary.err, apperrors.CodeAccountingViolation) {
		return s.finish(sel, started, nil), primary.err
	}
	if err := ctx.Err(); err != nil {
		return s.finish(sel, started, nil), apperrors.ErrTimeout("optimize").Wrap(err)
	}

	trigger := primary.trigger
	if trigger == model.TriggerNone && len(primary.result.Cuts) > 0 && primary.result.Efficiency < policy.MinEfficiency {
		trigger = model.TriggerQualityThreshold
		sel.Attempts[len(sel.Attempts)-1].Trigger = trigger
	}
	if trigger == model.TriggerNone {
		return s.finish(sel, started, &primary), nil
	}

	sel.FallbackTriggered = true
	sel.FallbackTrigger = trigger
	sel.FallbackAlgorithm = policy.Fallback
	s.metrics.RecordFallback(string(class), string(trigger), string(policy.Fallback))
	s.logger.Warn("primary algorithm triggered fallback",
		zap.String("op", "select"),
		zap.String("workload_class", string(class)),
		zap.String("primary", string(policy.Primary)),
		zap.String("fallback", string(policy.Fallback)),
		zap.String("trigger", string(trigger)),
		zap.Error(primary.err),
	)

	fallback := s.run(ctx, policy.Fallback, oc, policy.FallbackMaxDuration, policy.MaxMemoryBytes, false, &sel)
	if fallback.err != nil {
		if apperrors.HasCode(fallback.err, apperrors.CodeAccountingViolation) {
			return s.finish(sel, started, nil), fallback.err
		}
		// a low-quality result is still a result
		if trigger == model.TriggerQualityThreshold {
			return s.finish(sel, started, &primary), nil
		}
		msg := fmt.Sprintf("%s failed with %s and fallback %s failed", policy.Primary, trigger, policy.Fallback)
		return s.finish(sel, started, nil), apperrors.ErrSolverFailure(msg).Wrap(fallback.err)
	}

	chosen := fallback
	if trigger == model.TriggerQualityThreshold && better(primary.result, fallback.result) {
		chosen = primary
	}
	return s.finish(sel, started, &chosen), nil
}

// run runs one algorithm under the memory budget, the deadline and the
// algorithm's breaker, and appends the attempt to the selection record.
func (s *Selector) run(ctx context.Context, t model.AlgorithmType, oc *engine.OptimizationContext, maxDuration time.Duration, memBudget uint64, extended bool, sel *model.AlgorithmSelection) attempt {
	started := time.Now()
	a := attempt{memory: s.optimizer.EstimateMemory(t, oc, extended)}

	if memBudget > 0 && a.memory > memBudget {
		a.trigger = model.TriggerMemoryOverflow
		a.err = apperrors.ErrMemoryBudget(string(t), a.memory, memBudget)
	} else {
		runCtx := ctx
		if maxDuration > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, maxDuration)
			defer cancel()
		}
		var opts []engine.RunOption
		if extended {
			opts = append(opts, engine.Extended())
		}

		out, err := s.breakers.get(string(t)).Execute(func() (interface{}, error) {
			result, err := s.optimizer.Run(runCtx, t, oc, opts...)
			if err != nil {
				return nil, err
			}
			return result, nil
		})
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			a.trigger = model.TriggerPerformanceDegradation
			a.err = apperrors.ErrSolverFailure(fmt.Sprintf("%s is degraded", t)).Wrap(err)
		case apperrors.HasCode(err, apperrors.CodeTimeout), errors.Is(err, context.DeadlineExceeded):
			a.trigger = model.TriggerTimeout
			a.err = err
		case err != nil:
			a.trigger = model.TriggerErrorOccurred
			a.err = err
		default:
			a.result = out.(model.OptimizationResult)
		}
	}

	d := time.Since(started)
	rec := model.SelectionAttempt{
		Algorithm:  t,
		Duration:   d,
		Efficiency: a.result.Efficiency,
		Trigger:    a.trigger,
	}
	code := ""
	if a.err != nil {
		rec.Error = a.err.Error()
		code = apperrors.FromError(a.err).Code
	}
	sel.Attempts = append(sel.Attempts, rec)
	s.metrics.RecordAttempt(string(t), d, a.result.Efficiency, code)
	return a
}

func (s *Selector) finish(sel model.AlgorithmSelection, started time.Time, chosen *attempt) Outcome {
	sel.ActualDuration = time.Since(started)
	out := Outcome{Selection: sel}
	if chosen != nil {
		out.Result = chosen.result
		out.Selection.ActualQuality = chosen.result.Efficiency
		out.Selection.ActualMemoryBytes = chosen.memory
	}

	s.logger.Info("algorithm selection",
		zap.String("op", "select"),
		zap.String("selection_id", sel.ID),
		zap.String("workload_class", string(sel.WorkloadClass)),
		zap.Int("pieces", sel.PieceCount),
		zap.String("selected", string(sel.SelectedAlgorithm)),
		zap.Bool("fallback_triggered", sel.FallbackTriggered),
		zap.String("fallback_trigger", string(sel.FallbackTrigger)),
		zap.Int("attempts", len(sel.Attempts)),
		zap.Float64("quality", out.Selection.ActualQuality),
		zap.Duration("duration", sel.ActualDuration),
	)
	return out
}

// better reports whether a places more pieces than b, or as many with a
// higher efficiency.
func better(a, b model.OptimizationResult) bool {
	pa, pb := a.TotalPieces(), b.TotalPieces()
	if pa != pb {
		return pa > pb
	}
	return a.Efficiency > b.Efficiency
}

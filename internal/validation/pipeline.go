package validation

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"go.uber.org/zap"

	"github.com/piwi3910/BarCut/internal/metrics"
	"github.com/piwi3910/BarCut/internal/model"
	"github.com/piwi3910/BarCut/internal/normalize"
)

// Config holds the thresholds of the built-in rules.
type Config struct {
	MaxKerf     float64       `mapstructure:"max_kerf"`     // mm, 0 disables EXCESSIVE_KERF
	DefaultKerf float64       `mapstructure:"default_kerf"` // mm, written by the kerf fix
	StaleAfter  time.Duration `mapstructure:"stale_after"`  // 0 disables STALE_DATA
}

// DefaultConfig returns the default rule thresholds.
func DefaultConfig() Config {
	return Config{
		MaxKerf:     10,
		DefaultKerf: 3.5,
		StaleAfter:  30 * 24 * time.Hour,
	}
}

type compiledRule struct {
	Rule
	program *vm.Program
}

// Pipeline evaluates records against a compiled rule set.
type Pipeline struct {
	logger     *zap.Logger
	config     Config
	rules      []compiledRule
	quarantine *Quarantine
	metrics    *metrics.Metrics
	now        func() time.Time
}

// Option configures a Pipeline.
type Option func(*pipelineOptions)

type pipelineOptions struct {
	rules      []Rule
	quarantine *Quarantine
	metrics    *metrics.Metrics
	now        func() time.Time
}

// WithRules replaces the built-in rules.
func WithRules(rules ...Rule) Option {
	return func(o *pipelineOptions) { o.rules = rules }
}

// WithQuarantine collects quarantined records in q.
func WithQuarantine(q *Quarantine) Option {
	return func(o *pipelineOptions) { o.quarantine = q }
}

// WithMetrics counts records and rule matches.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *pipelineOptions) { o.metrics = m }
}

// WithClock sets the time source of the staleness check.
func WithClock(now func() time.Time) Option {
	return func(o *pipelineOptions) { o.now = now }
}

// NewPipeline compiles the rules. A rule whose condition does not compile to
// a boolean expression over Env is an error.
func NewPipeline(logger *zap.Logger, cfg Config, opts ...Option) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := pipelineOptions{rules: DefaultRules(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.quarantine == nil {
		o.quarantine = NewQuarantine()
	}

	p := &Pipeline{
		logger:     logger,
		config:     cfg,
		quarantine: o.quarantine,
		metrics:    o.metrics,
		now:        o.now,
	}
	for _, r := range o.rules {
		program, err := expr.Compile(r.Condition, expr.Env(Env{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("failed to compile rule %s: %w", r.Code, err)
		}
		p.rules = append(p.rules, compiledRule{Rule: r, program: program})
	}
	return p, nil
}

// Quarantine returns the store quarantined records are sent to.
func (p *Pipeline) Quarantine() *Quarantine {
	return p.quarantine
}

// Outcome is the verdict on one record.
type Outcome struct {
	Record   Record    `json:"record"`
	Action   Action    `json:"action"`
	Findings []Finding `json:"findings"`
}

// Report groups the processed records by verdict. Accepted holds every
// record that may be optimized, fixed ones included.
type Report struct {
	Accepted    []Record  `json:"accepted"`
	Fixed       []Outcome `json:"fixed"`
	Quarantined []Outcome `json:"quarantined"`
	Rejected    []Outcome `json:"rejected"`
	Warnings    []Finding `json:"warnings"`
}

// Items converts the accepted records into optimization items.
func (r Report) Items() ([]model.OptimizationItem, []error) {
	raw := make([]normalize.RawItem, 0, len(r.Accepted))
	for _, rec := range r.Accepted {
		raw = append(raw, rec.RawItem())
	}
	return normalize.ItemsFromRaw(raw)
}

// Process classifies every record. Records without an ID get one.
func (p *Pipeline) Process(records []Record) Report {
	var report Report
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = model.NewID()
		}
		out := p.Check(rec)

		switch out.Action {
		case ActionAccept, ActionWarn:
			report.Accepted = append(report.Accepted, out.Record)
			report.Warnings = append(report.Warnings, out.Findings...)
		case ActionAutoFix:
			report.Accepted = append(report.Accepted, out.Record)
			report.Fixed = append(report.Fixed, out)
		case ActionQuarantine:
			report.Quarantined = append(report.Quarantined, out)
			p.quarantine.add(out)
		case ActionReject:
			report.Rejected = append(report.Rejected, out)
		}
		p.metrics.RecordValidation(string(out.Action))
	}

	p.logger.Info("validated records",
		zap.String("op", "validate"),
		zap.Int("records", len(records)),
		zap.Int("accepted", len(report.Accepted)),
		zap.Int("fixed", len(report.Fixed)),
		zap.Int("quarantined", len(report.Quarantined)),
		zap.Int("rejected", len(report.Rejected)),
	)
	return report
}

// Check decides the action for one record. The most severe action over all
// matched rules wins. Auto-fixed records are checked once more; a record that
// still needs more than a warning after its fixes is quarantined.
func (p *Pipeline) Check(rec Record) Outcome {
	findings, action := p.evaluate(rec)
	out := Outcome{Record: rec, Action: action, Findings: findings}
	if action != ActionAutoFix {
		return out
	}

	fixed := rec
	for _, f := range findings {
		if f.Action != ActionAutoFix {
			continue
		}
		if r, ok := p.rule(f.Rule); ok {
			fixed, _ = r.Fix(fixed, p.config)
		}
	}

	after, again := p.evaluate(fixed)
	if again.rank() > ActionWarn.rank() {
		p.logger.Warn("auto-fix did not resolve record",
			zap.String("record_id", rec.ID),
			zap.Int("row", rec.Row),
			zap.String("action", string(again)),
		)
		out.Action = ActionQuarantine
		out.Findings = append(out.Findings, after...)
		return out
	}
	out.Record = fixed
	return out
}

func (p *Pipeline) evaluate(rec Record) ([]Finding, Action) {
	env := newEnv(rec, p.config, p.now())
	action := ActionAccept
	var findings []Finding

	for _, r := range p.rules {
		matched, err := expr.Run(r.program, env)
		if err != nil {
			p.logger.Error("rule evaluation failed", zap.String("rule", r.Code), zap.Error(err))
			continue
		}
		if hit, _ := matched.(bool); !hit {
			continue
		}

		confidence := 0.0
		if r.Fix != nil {
			_, confidence = r.Fix(rec, p.config)
		}
		a := ActionFor(r.Severity, confidence, r.Fix != nil)
		findings = append(findings, Finding{
			RecordID:   rec.ID,
			Row:        rec.Row,
			Rule:       r.Code,
			Severity:   r.Severity,
			Action:     a,
			Confidence: confidence,
			Message:    r.Message,
		})
		p.metrics.RecordRuleMatch(r.Code, string(r.Severity))
		if a.rank() > action.rank() {
			action = a
		}
	}
	return findings, action
}

func (p *Pipeline) rule(code string) (compiledRule, bool) {
	for _, r := range p.rules {
		if r.Code == code && r.Fix != nil {
			return r, true
		}
	}
	return compiledRule{}, false
}

// Quarantine holds records waiting for human review.
type Quarantine struct {
	mu      sync.Mutex
	entries map[string]Outcome
}

// NewQuarantine creates an empty quarantine.
func NewQuarantine() *Quarantine {
	return &Quarantine{entries: make(map[string]Outcome)}
}

func (q *Quarantine) add(out Outcome) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[out.Record.ID] = out
}

// List returns the quarantined records ordered by source row, then ID.
func (q *Quarantine) List() []Outcome {
	q.mu.Lock()
	defer q.mu.Unlock()

	list := make([]Outcome, 0, len(q.entries))
	for _, out := range q.entries {
		list = append(list, out)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Record.Row != list[j].Record.Row {
			return list[i].Record.Row < list[j].Record.Row
		}
		return list[i].Record.ID < list[j].Record.ID
	})
	return list
}

// Len returns the number of quarantined records.
func (q *Quarantine) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Release removes a record after review and returns it marked as reviewed.
func (q *Quarantine) Release(id string) (Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out, ok := q.entries[id]
	if !ok {
		return Record{}, fmt.Errorf("record %s is not quarantined", id)
	}
	delete(q.entries, id)
	out.Record.Reviewed = true
	return out.Record, nil
}

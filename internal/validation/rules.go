// Package validation screens inbound demand records before they reach the
// optimizer. Each record is checked against severity-tagged rules; the
// severity decides whether it is accepted, fixed, quarantined or rejected.
package validation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/piwi3910/BarCut/internal/normalize"
)

// Severity ranks how bad a rule match is.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Action is what the pipeline does with a record.
type Action string

const (
	ActionAccept     Action = "ACCEPT"
	ActionWarn       Action = "WARN"
	ActionAutoFix    Action = "AUTO_FIX"
	ActionQuarantine Action = "QUARANTINE"
	ActionReject     Action = "REJECT"
)

func (a Action) rank() int {
	switch a {
	case ActionWarn:
		return 1
	case ActionAutoFix:
		return 2
	case ActionQuarantine:
		return 3
	case ActionReject:
		return 4
	default:
		return 0
	}
}

// MinFixConfidence is the confidence a MEDIUM fix needs to be applied
// without review.
const MinFixConfidence = 0.8

// ActionFor maps a rule severity and the confidence of its fix to an action.
// hasFix is false for rules without a fix.
func ActionFor(severity Severity, confidence float64, hasFix bool) Action {
	switch severity {
	case SeverityCritical:
		return ActionReject
	case SeverityHigh:
		return ActionQuarantine
	case SeverityMedium:
		if hasFix && confidence >= MinFixConfidence {
			return ActionAutoFix
		}
		return ActionQuarantine
	case SeverityLow:
		if hasFix {
			return ActionAutoFix
		}
		return ActionWarn
	default:
		return ActionQuarantine
	}
}

// Record is one inbound demand row before normalisation.
type Record struct {
	ID          string    `json:"id"`
	Row         int       `json:"row,omitempty"` // source row, 1-based
	ProfileType string    `json:"profile_type"`
	Length      any       `json:"length"`
	Quantity    any       `json:"quantity"`
	Unit        string    `json:"unit,omitempty"` // mm when empty
	WorkOrderID string    `json:"work_order_id,omitempty"`
	KerfWidth   *float64  `json:"kerf_width,omitempty"`
	StockLength *float64  `json:"stock_length,omitempty"`
	Waste       *float64  `json:"waste,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
	Reviewed    bool      `json:"reviewed,omitempty"`
}

// RawItem converts the record for normalize.ItemsFromRaw.
func (r Record) RawItem() normalize.RawItem {
	return normalize.RawItem{
		ID:          r.ID,
		ProfileType: r.ProfileType,
		Length:      r.Length,
		Quantity:    r.Quantity,
		WorkOrderID: r.WorkOrderID,
	}
}

// mmPerUnit holds the conversion factors of the accepted foreign units.
var mmPerUnit = map[string]float64{
	"cm": 10,
	"m":  1000,
	"in": 25.4,
}

// unitSuffixes are checked longest first so "mm" is not read as "m".
var unitSuffixes = []string{"mm", "cm", "in", "m"}

// unit returns the record's length unit, from the Unit field or a suffix on
// a string length.
func (r Record) unit() string {
	if u := strings.ToLower(strings.TrimSpace(r.Unit)); u != "" {
		return u
	}
	if s, ok := r.Length.(string); ok {
		s = strings.ToLower(strings.TrimSpace(s))
		for _, suffix := range unitSuffixes {
			if strings.HasSuffix(s, suffix) {
				return suffix
			}
		}
	}
	return "mm"
}

// length parses the length without unit conversion.
func (r Record) length() (float64, error) {
	if s, ok := r.Length.(string); ok {
		s = strings.ToLower(strings.TrimSpace(s))
		for _, suffix := range unitSuffixes {
			if strings.HasSuffix(s, suffix) {
				s = strings.TrimSuffix(s, suffix)
				break
			}
		}
		return normalize.ParseNumberLike(s)
	}
	return normalize.ParseNumberLike(r.Length)
}

func present(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// Env is the typed environment rule conditions are evaluated against.
type Env struct {
	ProfileType   string
	HasLength     bool
	LengthValid   bool
	Length        float64 // as written, before unit conversion
	Unit          string
	HasQuantity   bool
	QuantityValid bool
	QuantityWhole bool
	Quantity      float64
	HasKerf       bool
	Kerf          float64
	MaxKerf       float64
	HasStock      bool
	StockLength   float64
	HasWaste      bool
	Waste         float64
	AgeHours      float64
	StaleAfter    float64 // hours, 0 disables the check
	Reviewed      bool
}

func newEnv(r Record, cfg Config, now time.Time) Env {
	env := Env{
		ProfileType: strings.TrimSpace(r.ProfileType),
		HasLength:   present(r.Length),
		Unit:        r.unit(),
		HasQuantity: present(r.Quantity),
		MaxKerf:     cfg.MaxKerf,
		StaleAfter:  cfg.StaleAfter.Hours(),
		Reviewed:    r.Reviewed,
	}
	if env.HasLength {
		if l, err := r.length(); err == nil {
			env.LengthValid = true
			env.Length = l
		}
	}
	if env.HasQuantity {
		if q, err := normalize.ParseNumberLike(r.Quantity); err == nil {
			env.QuantityValid = true
			env.Quantity = q
			env.QuantityWhole = q == math.Trunc(q)
		}
	}
	if r.KerfWidth != nil {
		env.HasKerf = true
		env.Kerf = *r.KerfWidth
	}
	if r.StockLength != nil {
		env.HasStock = true
		env.StockLength = *r.StockLength
	}
	if r.Waste != nil {
		env.HasWaste = true
		env.Waste = *r.Waste
	}
	if !r.UpdatedAt.IsZero() {
		env.AgeHours = now.Sub(r.UpdatedAt).Hours()
	}
	return env
}

// FixFunc repairs a record and reports how sure it is of the repair.
type FixFunc func(r Record, cfg Config) (Record, float64)

// Rule is one validation check. Condition is an expr expression over Env
// that is true when the record violates the rule.
type Rule struct {
	Code      string
	Severity  Severity
	Condition string
	Message   string
	Fix       FixFunc
}

// Rule codes of the built-in rules.
const (
	RuleNegativeWaste         = "NEGATIVE_WASTE"
	RuleMixedUnits            = "MIXED_UNITS"
	RuleExcessiveKerf         = "EXCESSIVE_KERF"
	RuleImpossibleDimensions  = "IMPOSSIBLE_DIMENSIONS"
	RuleMissingRequiredFields = "MISSING_REQUIRED_FIELDS"
	RuleInvalidQuantity       = "INVALID_QUANTITY"
	RuleStaleData             = "STALE_DATA"
)

// DefaultRules returns the built-in rule set.
func DefaultRules() []Rule {
	return []Rule{
		{
			Code:      RuleMissingRequiredFields,
			Severity:  SeverityCritical,
			Condition: `ProfileType == "" || !HasLength || !HasQuantity`,
			Message:   "profile type, length and quantity are required",
		},
		{
			Code:      RuleImpossibleDimensions,
			Severity:  SeverityCritical,
			Condition: `(HasLength && (!LengthValid || Length <= 0)) || (HasStock && StockLength <= 0)`,
			Message:   "length must be a positive number",
		},
		{
			Code:      RuleInvalidQuantity,
			Severity:  SeverityHigh,
			Condition: `HasQuantity && (!QuantityValid || !QuantityWhole || Quantity <= 0)`,
			Message:   "quantity must be a positive whole number",
		},
		{
			Code:      RuleNegativeWaste,
			Severity:  SeverityHigh,
			Condition: `HasWaste && Waste < 0`,
			Message:   "reported waste is negative",
		},
		{
			Code:      RuleMixedUnits,
			Severity:  SeverityMedium,
			Condition: `Unit != "mm"`,
			Message:   "length is not in millimetres",
			Fix:       convertToMillimetres,
		},
		{
			Code:      RuleExcessiveKerf,
			Severity:  SeverityMedium,
			Condition: `HasKerf && MaxKerf > 0 && (Kerf > MaxKerf || Kerf < 0)`,
			Message:   "kerf width is outside the accepted range",
			Fix:       resetKerf,
		},
		{
			Code:      RuleStaleData,
			Severity:  SeverityLow,
			Condition: `StaleAfter > 0 && AgeHours > StaleAfter && !Reviewed`,
			Message:   "record has not been updated recently",
			Fix:       markReviewed,
		},
	}
}

// fixConfidence of the unit conversions. Inches are often rounded upstream.
var fixConfidence = map[string]float64{
	"cm": 0.95,
	"m":  0.95,
	"in": 0.85,
}

func convertToMillimetres(r Record, _ Config) (Record, float64) {
	u := r.unit()
	factor, ok := mmPerUnit[u]
	if !ok {
		return r, 0
	}
	l, err := r.length()
	if err != nil {
		return r, 0
	}
	r.Length = math.Round(l*factor*100) / 100
	r.Unit = "mm"
	return r, fixConfidence[u]
}

func resetKerf(r Record, cfg Config) (Record, float64) {
	k := cfg.DefaultKerf
	r.KerfWidth = &k
	return r, 0.5
}

func markReviewed(r Record, _ Config) (Record, float64) {
	r.Reviewed = true
	return r, 1.0
}

// Finding is one rule match on one record.
type Finding struct {
	RecordID   string   `json:"record_id"`
	Row        int      `json:"row,omitempty"`
	Rule       string   `json:"rule"`
	Severity   Severity `json:"severity"`
	Action     Action   `json:"action"`
	Confidence float64  `json:"confidence,omitempty"`
	Message    string   `json:"message"`
}

func (f Finding) String() string {
	if f.Row > 0 {
		return fmt.Sprintf("row %d: %s (%s): %s", f.Row, f.Rule, f.Severity, f.Message)
	}
	return fmt.Sprintf("%s: %s (%s): %s", f.RecordID, f.Rule, f.Severity, f.Message)
}

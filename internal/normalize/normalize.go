// Package normalize turns loosely typed demand rows into the canonical
// length → quantity demand the optimizer works on.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/piwi3910/BarCut/internal/model"
)

// ErrNotNumeric is returned when a value cannot be read as a number.
var ErrNotNumeric = errors.New("value is not numeric")

// unitSuffixes are stripped from string values, longest first so "pcs" wins over "pc".
var unitSuffixes = []string{"adet", "pcs", "mm", "pc", "ad"}

// RawItem is a demand row as it arrives from an import or an API caller.
// Length and Quantity may be numbers or strings such as "1.250,5 mm" or "4 pcs".
type RawItem struct {
	ID          string `json:"id"`
	ProfileType string `json:"profile_type"`
	Length      any    `json:"length"`
	Quantity    any    `json:"quantity"`
	WorkOrderID string `json:"work_order_id"`
}

// ParseNumberLike reads a number from a Go numeric value or a string with an
// optional unit suffix and comma or dot decimals.
func ParseNumberLike(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		return ParseNumberLike(string(n))
	case string:
		parsed, err := parseNumberString(n)
		if err != nil {
			return 0, err
		}
		f = parsed
	case nil:
		return 0, fmt.Errorf("%w: missing value", ErrNotNumeric)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrNotNumeric, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v", ErrNotNumeric, v)
	}
	return f, nil
}

func parseNumberString(s string) (float64, error) {
	cleaned := strings.ToLower(strings.TrimSpace(s))
	for _, suffix := range unitSuffixes {
		if strings.HasSuffix(cleaned, suffix) {
			cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, suffix))
			break
		}
	}
	cleaned = strings.ReplaceAll(cleaned, " ", "")

	comma := strings.LastIndex(cleaned, ",")
	dot := strings.LastIndex(cleaned, ".")
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		// 1.234,5
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case comma >= 0 && dot >= 0:
		// 1,234.5
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case comma >= 0:
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	}

	if cleaned == "" {
		return 0, fmt.Errorf("%w: %q", ErrNotNumeric, s)
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q", ErrNotNumeric, s)
	}
	return f, nil
}

// Demand maps a piece length (mm) to the number of pieces required.
type Demand map[float64]int

// TotalLength returns Σ length × quantity.
func (d Demand) TotalLength() float64 {
	var total float64
	for length, qty := range d {
		total += length * float64(qty)
	}
	return total
}

// TotalPieces returns the number of physical pieces in the demand.
func (d Demand) TotalPieces() int {
	n := 0
	for _, qty := range d {
		n += qty
	}
	return n
}

// Lengths returns the demanded lengths, longest first.
func (d Demand) Lengths() []float64 {
	lengths := make([]float64, 0, len(d))
	for length := range d {
		lengths = append(lengths, length)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(lengths)))
	return lengths
}

// Clone returns a copy of the demand.
func (d Demand) Clone() Demand {
	c := make(Demand, len(d))
	for length, qty := range d {
		c[length] = qty
	}
	return c
}

// BuildDemandFromItems aggregates raw rows by parsed length. Rows whose length
// or quantity does not parse or is not positive, and rows with a fractional
// quantity, are logged and skipped.
func BuildDemandFromItems(logger *zap.Logger, items []RawItem) Demand {
	demand := make(Demand)
	for i, it := range items {
		length, err := ParseNumberLike(it.Length)
		if err != nil || length <= 0 {
			logger.Warn("skipping demand row with invalid length",
				zap.Int("row", i), zap.String("id", it.ID), zap.Any("length", it.Length), zap.Error(err))
			continue
		}
		qty, err := ParseNumberLike(it.Quantity)
		if err != nil || qty <= 0 {
			logger.Warn("skipping demand row with invalid quantity",
				zap.Int("row", i), zap.String("id", it.ID), zap.Any("quantity", it.Quantity), zap.Error(err))
			continue
		}
		if qty != math.Trunc(qty) {
			logger.Warn("skipping demand row with fractional quantity",
				zap.Int("row", i), zap.String("id", it.ID), zap.Any("quantity", it.Quantity))
			continue
		}
		demand[length] += int(qty)
	}
	return demand
}

// DemandFromOptimizationItems aggregates validated items by length.
func DemandFromOptimizationItems(items []model.OptimizationItem) Demand {
	demand := make(Demand)
	for _, it := range items {
		demand[it.Length] += it.Quantity
	}
	return demand
}

// Piece is one physical piece to be cut.
type Piece struct {
	ID   int     `json:"id"`
	Size float64 `json:"size"`
}

// PiecesFromDemand expands the demand into one entry per piece, largest first.
func PiecesFromDemand(d Demand) []Piece {
	pieces := make([]Piece, 0, d.TotalPieces())
	for _, length := range d.Lengths() {
		for n := 0; n < d[length]; n++ {
			pieces = append(pieces, Piece{ID: len(pieces), Size: length})
		}
	}
	return pieces
}

// ItemsFromRaw converts raw rows into optimization items. Each row that fails
// to parse yields an error and is left out.
func ItemsFromRaw(items []RawItem) ([]model.OptimizationItem, []error) {
	var out []model.OptimizationItem
	var errs []error
	for i, it := range items {
		length, err := ParseNumberLike(it.Length)
		if err != nil {
			errs = append(errs, fmt.Errorf("row %d: length: %w", i+1, err))
			continue
		}
		qty, err := ParseNumberLike(it.Quantity)
		if err != nil {
			errs = append(errs, fmt.Errorf("row %d: quantity: %w", i+1, err))
			continue
		}
		if qty != math.Trunc(qty) {
			errs = append(errs, fmt.Errorf("row %d: quantity %v is not a whole number", i+1, qty))
			continue
		}
		item := model.NewOptimizationItem(strings.TrimSpace(it.ProfileType), length, int(qty), it.WorkOrderID)
		if it.ID != "" {
			item.ID = it.ID
		}
		out = append(out, item)
	}
	return out, errs
}

package model

import (
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// AccountingTolerance is the allowed drift (mm) when balancing a cut.
const AccountingTolerance = 0.01

// OptimizationItem is one demand line of a cutting list: a profile length
// that has to be cut Quantity times for a work order.
type OptimizationItem struct {
	ID          string  `json:"id"`
	ProfileType string  `json:"profile_type" validate:"required"`
	Length      float64 `json:"length" validate:"gt=0"` // mm
	Quantity    int     `json:"quantity" validate:"gt=0"`
	WorkOrderID string  `json:"work_order_id"`
	TotalLength float64 `json:"total_length"` // Length * Quantity
}

func NewOptimizationItem(profileType string, length float64, qty int, workOrderID string) OptimizationItem {
	return OptimizationItem{
		ID:          newID(),
		ProfileType: profileType,
		Length:      length,
		Quantity:    qty,
		WorkOrderID: workOrderID,
		TotalLength: length * float64(qty),
	}
}

// PlacedPiece is one physical piece cut from a bar.
type PlacedPiece struct {
	ItemID      string  `json:"item_id"`
	WorkOrderID string  `json:"work_order_id"`
	Length      float64 `json:"length"`
	Position    float64 `json:"position"` // Offset of the piece start from the bar start (mm)
}

// PatternEntry counts the pieces of one length on a bar.
type PatternEntry struct {
	Length float64 `json:"length"`
	Count  int     `json:"count"`
}

// Cut is one stock bar with the pieces assigned to it.
//
// UsedLength covers the start safety, every piece and the kerf between
// adjacent pieces. The bar balances when
// UsedLength + RemainingLength + end safety == StockLength.
type Cut struct {
	ID              string         `json:"id"`
	ProfileType     string         `json:"profile_type"`
	StockID         string         `json:"stock_id"`
	StockLength     float64        `json:"stock_length"`
	UsedLength      float64        `json:"used_length"`
	RemainingLength float64        `json:"remaining_length"`
	KerfLoss        float64        `json:"kerf_loss"`
	Price           float64        `json:"price"`
	Pattern         []PatternEntry `json:"pattern"`
	Pieces          []PlacedPiece  `json:"pieces"`
}

// PieceLength returns the total length of the pieces on the bar.
func (c Cut) PieceLength() float64 {
	var total float64
	for _, p := range c.Pieces {
		total += p.Length
	}
	return total
}

// Waste returns everything on the bar that is not a finished piece.
func (c Cut) Waste() float64 {
	return c.StockLength - c.PieceLength()
}

// Efficiency returns the usage percentage of the bar.
func (c Cut) Efficiency() float64 {
	if c.StockLength == 0 {
		return 0
	}
	return (c.PieceLength() / c.StockLength) * 100.0
}

// PatternKey identifies the layout of a bar so identical bars can be grouped.
func (c Cut) PatternKey() string {
	return PatternKey(c.StockLength, c.Pattern)
}

// BuildPattern collapses the piece list into length/count entries, longest first.
func BuildPattern(pieces []PlacedPiece) []PatternEntry {
	counts := make(map[float64]int)
	for _, p := range pieces {
		counts[p.Length]++
	}
	pattern := make([]PatternEntry, 0, len(counts))
	for length, n := range counts {
		pattern = append(pattern, PatternEntry{Length: length, Count: n})
	}
	sort.Slice(pattern, func(i, j int) bool {
		return pattern[i].Length > pattern[j].Length
	})
	return pattern
}

// PatternKey formats a stock length and pattern as a stable grouping key.
func PatternKey(stockLength float64, pattern []PatternEntry) string {
	key := strconv.FormatFloat(stockLength, 'f', -1, 64) + ":"
	for i, e := range pattern {
		if i > 0 {
			key += ","
		}
		key += strconv.FormatFloat(e.Length, 'f', -1, 64) + "x" + strconv.Itoa(e.Count)
	}
	return key
}

// UnplacedReason explains why a piece could not be assigned to a bar.
type UnplacedReason string

const (
	ReasonOversized      UnplacedReason = "oversized"       // Longer than the effective length of every stock option
	ReasonNoStock        UnplacedReason = "no_stock"        // No stock option exists for the profile
	ReasonStockExhausted UnplacedReason = "stock_exhausted" // Options exist but their availability is used up
)

// UnplacedItem reports demand that is not part of any cut.
type UnplacedItem struct {
	ItemID       string         `json:"item_id"`
	WorkOrderID  string         `json:"work_order_id"`
	ProfileType  string         `json:"profile_type"`
	Length       float64        `json:"length"`
	Quantity     int            `json:"quantity"`
	Reason       UnplacedReason `json:"reason"`
	LargestStock float64        `json:"largest_stock"`
}

// OptimizationResult holds the full solution of one optimize call.
type OptimizationResult struct {
	ID               string         `json:"id"`
	Algorithm        AlgorithmType  `json:"algorithm"`
	Cuts             []Cut          `json:"cuts"`
	StockCount       int            `json:"stock_count"`
	TotalStockLength float64        `json:"total_stock_length"`
	TotalPieceLength float64        `json:"total_piece_length"`
	TotalWaste       float64        `json:"total_waste"`
	WastePercentage  float64        `json:"waste_percentage"`
	Efficiency       float64        `json:"efficiency"`
	TotalCost        float64        `json:"total_cost"`
	ExecutionTime    time.Duration  `json:"execution_time"`
	Iterations       int            `json:"iterations,omitempty"`
	Converged        bool           `json:"converged,omitempty"`
	Unplaced         []UnplacedItem `json:"unplaced,omitempty"`
}

// Clone returns a deep copy of the result.
func (r OptimizationResult) Clone() OptimizationResult {
	c := r
	if r.Cuts != nil {
		c.Cuts = make([]Cut, len(r.Cuts))
		for i, cut := range r.Cuts {
			cut.Pattern = append([]PatternEntry(nil), cut.Pattern...)
			cut.Pieces = append([]PlacedPiece(nil), cut.Pieces...)
			c.Cuts[i] = cut
		}
	}
	if r.Unplaced != nil {
		c.Unplaced = append([]UnplacedItem(nil), r.Unplaced...)
	}
	return c
}

// TotalPieces returns the number of pieces placed across all cuts.
func (r OptimizationResult) TotalPieces() int {
	n := 0
	for _, c := range r.Cuts {
		n += len(c.Pieces)
	}
	return n
}

// PlacedQuantities returns the number of placed pieces per length.
func (r OptimizationResult) PlacedQuantities() map[float64]int {
	placed := make(map[float64]int)
	for _, c := range r.Cuts {
		for _, p := range c.Pieces {
			placed[p.Length]++
		}
	}
	return placed
}

// UnplacedQuantities returns the number of unplaced pieces per length.
func (r OptimizationResult) UnplacedQuantities() map[float64]int {
	unplaced := make(map[float64]int)
	for _, u := range r.Unplaced {
		unplaced[u.Length] += u.Quantity
	}
	return unplaced
}

// HasUnplaced reports whether any demand was left out of the cuts.
func (r OptimizationResult) HasUnplaced() bool {
	return len(r.Unplaced) > 0
}

// Project ties a cutting list, its catalog and the last result together for save/load.
type Project struct {
	Name        string              `json:"name"`
	Items       []OptimizationItem  `json:"items"`
	Catalog     StockCatalog        `json:"catalog"`
	Constraints EnhancedConstraints `json:"constraints"`
	Result      *OptimizationResult `json:"-"`
}

func NewProject() Project {
	return Project{
		Name:        "Untitled",
		Items:       []OptimizationItem{},
		Catalog:     DefaultCatalog(),
		Constraints: DefaultConstraints(),
	}
}

// NewID returns a short random identifier.
func NewID() string {
	return newID()
}

func newID() string {
	return uuid.New().String()[:8]
}

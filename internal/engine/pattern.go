package engine

import (
	"context"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/piwi3910/BarCut/internal/model"
	"github.com/piwi3910/BarCut/internal/normalize"
)

// DefaultMaxPatternsPerStock caps pattern enumeration for one stock option.
const DefaultMaxPatternsPerStock = 2000

// PatternCut is one piece length of a pattern and how often it is cut.
type PatternCut struct {
	Length   float64 `json:"length"`
	Quantity int     `json:"quantity"`
}

// Pattern is one way of cutting a stock bar.
type Pattern struct {
	StockID     string       `json:"stock_id"`
	StockLength float64      `json:"stock_length"`
	Cuts        []PatternCut `json:"cuts"`
	Used        float64      `json:"used"`  // Start safety + pieces + kerf
	Waste       float64      `json:"waste"` // Stock length - pieces length
	Price       float64      `json:"price"` // Price of the bar
}

// Pieces returns the number of pieces the pattern yields.
func (p Pattern) Pieces() int {
	n := 0
	for _, c := range p.Cuts {
		n += c.Quantity
	}
	return n
}

// PieceLength returns the total length of the pieces the pattern yields.
func (p Pattern) PieceLength() float64 {
	var total float64
	for _, c := range p.Cuts {
		total += c.Length * float64(c.Quantity)
	}
	return total
}

// WasteRatio returns waste as a fraction of the stock length.
func (p Pattern) WasteRatio() float64 {
	if p.StockLength <= 0 {
		return 1
	}
	return p.Waste / p.StockLength
}

// PricePerMm returns the bar price per mm of pieces cut, 0 for an empty pattern.
func (p Pattern) PricePerMm() float64 {
	pieces := p.PieceLength()
	if pieces <= 0 {
		return 0
	}
	return p.Price / pieces
}

// composition is a key of the piece lengths and counts, independent of the stock.
func (p Pattern) composition() string {
	var b strings.Builder
	for i, c := range p.Cuts {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(c.Length, 'f', -1, 64))
		b.WriteByte('x')
		b.WriteString(strconv.Itoa(c.Quantity))
	}
	return b.String()
}

// PatternGenerator enumerates the ways demanded lengths can be cut from a bar.
type PatternGenerator struct {
	Constraints         model.EnhancedConstraints
	MaxPatternsPerStock int
}

func NewPatternGenerator(c model.EnhancedConstraints) PatternGenerator {
	return PatternGenerator{Constraints: c, MaxPatternsPerStock: DefaultMaxPatternsPerStock}
}

// Generate lists the non-empty patterns for one stock option. Lengths are
// taken longest first and each count is bounded by the remaining demand and
// the bar capacity.
func (g PatternGenerator) Generate(stock model.MaterialStockOption, demand normalize.Demand) []Pattern {
	c := g.Constraints
	effective := c.EffectiveLength(stock.StockLength)
	if effective <= 0 {
		return nil
	}
	limit := g.MaxPatternsPerStock
	if limit <= 0 {
		limit = DefaultMaxPatternsPerStock
	}

	lengths := demand.Lengths()
	counts := make([]int, len(lengths))
	var patterns []Pattern

	var walk func(idx, pieces int, pieceLen float64)
	walk = func(idx, pieces int, pieceLen float64) {
		if len(patterns) >= limit {
			return
		}
		if idx == len(lengths) {
			if pieces == 0 {
				return
			}
			p := Pattern{StockID: stock.ID, StockLength: stock.StockLength, Price: stock.Price()}
			for i, n := range counts {
				if n > 0 {
					p.Cuts = append(p.Cuts, PatternCut{Length: lengths[i], Quantity: n})
				}
			}
			p.Used = c.UsedLength(pieceLen, pieces)
			p.Waste = stock.StockLength - pieceLen
			patterns = append(patterns, p)
			return
		}

		length := lengths[idx]
		maxN := demand[length]
		if perBar := CalculateMaxPiecesOnBar(length, stock.StockLength, c.KerfWidth, c.StartSafety, c.EndSafety); perBar < maxN {
			maxN = perBar
		}
		// n more pieces need n*length plus a kerf before each one when the bar is not empty
		for n := maxN; n >= 0; n-- {
			if n > 0 {
				occupied := pieceLen + float64(n)*length + float64(pieces+n-1)*c.KerfWidth
				if occupied > effective+fitEpsilon {
					continue
				}
			}
			counts[idx] = n
			walk(idx+1, pieces+n, pieceLen+float64(n)*length)
			counts[idx] = 0
			if len(patterns) >= limit {
				return
			}
		}
	}
	walk(0, 0, 0)
	return patterns
}

// GenerateAll generates patterns for every option. With parallel set each
// option is generated in its own goroutine.
func (g PatternGenerator) GenerateAll(ctx context.Context, options []model.MaterialStockOption, demand normalize.Demand, parallel bool) ([]Pattern, error) {
	perOption := make([][]Pattern, len(options))

	if parallel && len(options) > 1 {
		eg, egCtx := errgroup.WithContext(ctx)
		for i := range options {
			i := i
			eg.Go(func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}
				perOption[i] = g.Generate(options[i], demand)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range options {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			perOption[i] = g.Generate(options[i], demand)
		}
	}

	var all []Pattern
	for _, ps := range perOption {
		all = append(all, ps...)
	}
	return all, nil
}

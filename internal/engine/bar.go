package engine

import (
	"context"
	"math"
	"sort"

	"github.com/piwi3910/BarCut/internal/apperrors"
	"github.com/piwi3910/BarCut/internal/model"
)

// fitEpsilon absorbs float drift when checking whether a piece still fits.
const fitEpsilon = 1e-9

// pieceRef is one physical piece waiting to be placed.
type pieceRef struct {
	ItemID      string
	WorkOrderID string
	ProfileType string
	Length      float64
}

// profileGroup holds the items of one profile type and the stock they may use.
type profileGroup struct {
	profile string
	items   []model.OptimizationItem
	options []model.MaterialStockOption
}

// groupByProfile splits items by profile type. Each group gets the catalog
// options of its own profile plus the universal ones.
func groupByProfile(items []model.OptimizationItem, catalog model.StockCatalog) []profileGroup {
	index := make(map[string]int)
	var groups []profileGroup
	for _, it := range items {
		i, ok := index[it.ProfileType]
		if !ok {
			i = len(groups)
			index[it.ProfileType] = i
			groups = append(groups, profileGroup{
				profile: it.ProfileType,
				options: catalog.ForProfile(it.ProfileType),
			})
		}
		groups[i].items = append(groups[i].items, it)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].profile < groups[j].profile
	})
	return groups
}

// expandPieces expands items by quantity, longest first. Equal lengths keep item order.
func expandPieces(items []model.OptimizationItem) []pieceRef {
	var pieces []pieceRef
	for _, it := range items {
		for n := 0; n < it.Quantity; n++ {
			pieces = append(pieces, pieceRef{
				ItemID:      it.ID,
				WorkOrderID: it.WorkOrderID,
				ProfileType: it.ProfileType,
				Length:      it.Length,
			})
		}
	}
	sort.SliceStable(pieces, func(i, j int) bool {
		return pieces[i].Length > pieces[j].Length
	})
	return pieces
}

// openBar is a stock bar that is being filled.
type openBar struct {
	option      model.MaterialStockOption
	pieces      []pieceRef
	pieceLength float64
}

func (b *openBar) effective(c model.EnhancedConstraints) float64 {
	return c.EffectiveLength(b.option.StockLength)
}

// occupiedWith returns the effective length used once a piece of the given length is added.
func (b *openBar) occupiedWith(length float64, c model.EnhancedConstraints) float64 {
	return b.pieceLength + length + float64(len(b.pieces))*c.KerfWidth
}

func (b *openBar) fits(length float64, c model.EnhancedConstraints) bool {
	return b.occupiedWith(length, c) <= b.effective(c)+fitEpsilon
}

// slackAfter returns the effective length left after adding a piece.
func (b *openBar) slackAfter(length float64, c model.EnhancedConstraints) float64 {
	return b.effective(c) - b.occupiedWith(length, c)
}

func (b *openBar) add(p pieceRef) {
	b.pieces = append(b.pieces, p)
	b.pieceLength += p.Length
}

// toCut lays the pieces out from the bar start and fills in the accounting fields.
func (b *openBar) toCut(profile string, c model.EnhancedConstraints) model.Cut {
	cut := b.layout(profile, c)
	cut.ID = model.NewID()
	return cut
}

// layout builds the cut without an ID.
func (b *openBar) layout(profile string, c model.EnhancedConstraints) model.Cut {
	n := len(b.pieces)
	cut := model.Cut{
		ProfileType: profile,
		StockID:     b.option.ID,
		StockLength: b.option.StockLength,
		Price:       b.option.Price(),
		Pieces:      make([]model.PlacedPiece, 0, n),
	}

	pos := c.StartSafety
	for _, p := range b.pieces {
		cut.Pieces = append(cut.Pieces, model.PlacedPiece{
			ItemID:      p.ItemID,
			WorkOrderID: p.WorkOrderID,
			Length:      p.Length,
			Position:    pos,
		})
		pos += p.Length + c.KerfWidth
	}

	if n > 0 {
		cut.KerfLoss = float64(n-1) * c.KerfWidth
	}
	cut.UsedLength = c.UsedLength(b.pieceLength, n)
	cut.RemainingLength = b.option.StockLength - c.EndSafety - cut.UsedLength
	cut.Pattern = model.BuildPattern(cut.Pieces)
	return cut
}

// stockPool tracks how many bars of each option have been opened.
type stockPool struct {
	options []model.MaterialStockOption
	used    []int
	c       model.EnhancedConstraints
}

// newStockPool orders options by length, then dedicated before universal, then price.
func newStockPool(options []model.MaterialStockOption, c model.EnhancedConstraints) *stockPool {
	opts := append([]model.MaterialStockOption(nil), options...)
	sort.SliceStable(opts, func(i, j int) bool {
		if opts[i].StockLength != opts[j].StockLength {
			return opts[i].StockLength < opts[j].StockLength
		}
		if opts[i].Universal() != opts[j].Universal() {
			return !opts[i].Universal()
		}
		return opts[i].Price() < opts[j].Price()
	})
	return &stockPool{options: opts, used: make([]int, len(opts)), c: c}
}

func (p *stockPool) available(i int) bool {
	o := p.options[i]
	return o.Unlimited() || p.used[i] < o.Availability
}

// largest returns the longest stock length in the pool, exhausted or not.
func (p *stockPool) largest() float64 {
	var longest float64
	for _, o := range p.options {
		longest = math.Max(longest, o.StockLength)
	}
	return longest
}

// stockRule decides which option a new bar is opened from.
type stockRule int

const (
	ruleFewestBars stockRule = iota // SelectBestStockLengthForItem
	ruleCheapest                    // lowest price per mm of effective length
	ruleShortest                    // shortest bar that holds the piece
	ruleLongest                     // longest bar available
	stockRuleCount
)

// open takes a new bar for a piece of the given length. sameRemaining is the
// number of pieces of that length still to place, this one included.
func (p *stockPool) open(length float64, sameRemaining int, rule stockRule) (*openBar, model.UnplacedReason, bool) {
	if len(p.options) == 0 {
		return nil, model.ReasonNoStock, false
	}
	if CalculateMaxPiecesOnBar(length, p.largest(), p.c.KerfWidth, p.c.StartSafety, p.c.EndSafety) == 0 {
		return nil, model.ReasonOversized, false
	}
	if rule != ruleFewestBars {
		return p.openBy(length, rule)
	}

	var lengths []float64
	for i, o := range p.options {
		if p.available(i) {
			lengths = append(lengths, o.StockLength)
		}
	}
	best, ok := SelectBestStockLengthForItem(length, lengths, p.c.KerfWidth, p.c.StartSafety, p.c.EndSafety, sameRemaining)
	if !ok {
		return nil, model.ReasonStockExhausted, false
	}
	for i, o := range p.options {
		if o.StockLength == best && p.available(i) {
			p.used[i]++
			return &openBar{option: o}, "", true
		}
	}
	return nil, model.ReasonStockExhausted, false
}

// openBy opens the available option that holds the piece and ranks first
// under rule. Ties keep pool order.
func (p *stockPool) openBy(length float64, rule stockRule) (*openBar, model.UnplacedReason, bool) {
	pick := -1
	var pickKey float64
	for i, o := range p.options {
		if !p.available(i) || CalculateMaxPiecesOnBar(length, o.StockLength, p.c.KerfWidth, p.c.StartSafety, p.c.EndSafety) == 0 {
			continue
		}
		var key float64
		switch rule {
		case ruleCheapest:
			key = o.Price() / p.c.EffectiveLength(o.StockLength)
		case ruleShortest:
			key = o.StockLength
		case ruleLongest:
			key = -o.StockLength
		}
		if pick < 0 || key < pickKey {
			pick, pickKey = i, key
		}
	}
	if pick < 0 {
		return nil, model.ReasonStockExhausted, false
	}
	p.used[pick]++
	return &openBar{option: p.options[pick]}, "", true
}

// take opens a bar of one specific option if it is still available.
func (p *stockPool) take(optionID string) (*openBar, bool) {
	for i, o := range p.options {
		if o.ID == optionID && p.available(i) {
			p.used[i]++
			return &openBar{option: o}, true
		}
	}
	return nil, false
}

// remainingOf returns how many bars of an option may still be opened, -1 when unlimited.
func (p *stockPool) remainingOf(optionID string) int {
	for i, o := range p.options {
		if o.ID == optionID {
			if o.Unlimited() {
				return -1
			}
			return o.Availability - p.used[i]
		}
	}
	return 0
}

type unplacedPiece struct {
	ref    pieceRef
	reason model.UnplacedReason
}

// packer places pieces one at a time into open bars, first fit or best fit.
type packer struct {
	c        model.EnhancedConstraints
	pool     *stockPool
	bestFit  bool
	rule     stockRule
	bars     []*openBar
	unplaced []unplacedPiece
}

func newPacker(c model.EnhancedConstraints, pool *stockPool, bestFit bool) *packer {
	return &packer{c: c, pool: pool, bestFit: bestFit}
}

// run places pieces in the given order. op names the algorithm in timeout errors.
func (p *packer) run(ctx context.Context, op string, pieces []pieceRef) error {
	remaining := make(map[float64]int)
	for _, pc := range pieces {
		remaining[pc.Length]++
	}
	for _, pc := range pieces {
		if err := ctx.Err(); err != nil {
			return apperrors.ErrTimeout(op).Wrap(err)
		}
		p.place(pc, remaining[pc.Length])
		remaining[pc.Length]--
	}
	return nil
}

func (p *packer) place(pc pieceRef, sameRemaining int) {
	target := -1
	bestSlack := math.MaxFloat64
	for i, b := range p.bars {
		if !b.fits(pc.Length, p.c) {
			continue
		}
		if !p.bestFit {
			target = i
			break
		}
		if slack := b.slackAfter(pc.Length, p.c); slack < bestSlack {
			bestSlack = slack
			target = i
		}
	}
	if target >= 0 {
		p.bars[target].add(pc)
		return
	}

	bar, reason, ok := p.pool.open(pc.Length, sameRemaining, p.rule)
	if !ok {
		p.unplaced = append(p.unplaced, unplacedPiece{ref: pc, reason: reason})
		return
	}
	bar.add(pc)
	p.bars = append(p.bars, bar)
}

func (p *packer) cuts(profile string) []model.Cut {
	cuts := make([]model.Cut, 0, len(p.bars))
	for _, b := range p.bars {
		cuts = append(cuts, b.toCut(profile, p.c))
	}
	return cuts
}

// layouts returns the cuts of the open bars without IDs.
func (p *packer) layouts(profile string) []model.Cut {
	cuts := make([]model.Cut, 0, len(p.bars))
	for _, b := range p.bars {
		cuts = append(cuts, b.layout(profile, p.c))
	}
	return cuts
}

// stockLength returns the total length of the bars opened so far.
func (p *packer) stockLength() float64 {
	var total float64
	for _, b := range p.bars {
		total += b.option.StockLength
	}
	return total
}

// placedLength returns the total length of the pieces placed so far.
func (p *packer) placedLength() float64 {
	var total float64
	for _, b := range p.bars {
		total += b.pieceLength
	}
	return total
}

// aggregateUnplaced folds unplaced pieces into one entry per item and reason.
func aggregateUnplaced(pieces []unplacedPiece, largest float64) []model.UnplacedItem {
	type key struct {
		itemID string
		length float64
		reason model.UnplacedReason
	}
	index := make(map[key]int)
	var out []model.UnplacedItem
	for _, u := range pieces {
		k := key{u.ref.ItemID, u.ref.Length, u.reason}
		if i, ok := index[k]; ok {
			out[i].Quantity++
			continue
		}
		index[k] = len(out)
		out = append(out, model.UnplacedItem{
			ItemID:       u.ref.ItemID,
			WorkOrderID:  u.ref.WorkOrderID,
			ProfileType:  u.ref.ProfileType,
			Length:       u.ref.Length,
			Quantity:     1,
			Reason:       u.reason,
			LargestStock: largest,
		})
	}
	return out
}

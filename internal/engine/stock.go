package engine

import "math"

// CalculateMaxPiecesOnBar returns how many pieces of itemLength fit on one bar.
// n pieces need only n-1 kerfs, so one virtual kerf is added to the
// effective length before dividing.
func CalculateMaxPiecesOnBar(itemLength, stockLength, kerf, startSafety, endSafety float64) int {
	effective := stockLength - startSafety - endSafety
	if itemLength <= 0 || itemLength > effective {
		return 0
	}
	return int(math.Floor((effective + kerf) / (itemLength + kerf)))
}

// SelectBestStockLengthForItem picks the stock length that cuts quantity
// pieces of itemLength from the fewest bars, preferring the shorter bar on a
// tie. If no length fits a single piece it returns the longest length and false.
func SelectBestStockLengthForItem(itemLength float64, stockLengths []float64, kerf, startSafety, endSafety float64, quantity int) (float64, bool) {
	if len(stockLengths) == 0 {
		return 0, false
	}
	if quantity < 1 {
		quantity = 1
	}

	best := 0.0
	bestBars := math.MaxInt
	found := false
	longest := stockLengths[0]

	for _, length := range stockLengths {
		if length > longest {
			longest = length
		}
		maxPieces := CalculateMaxPiecesOnBar(itemLength, length, kerf, startSafety, endSafety)
		if maxPieces == 0 {
			continue
		}
		bars := (quantity + maxPieces - 1) / maxPieces
		if !found || bars < bestBars || (bars == bestBars && length < best) {
			best = length
			bestBars = bars
			found = true
		}
	}

	if !found {
		return longest, false
	}
	return best, true
}

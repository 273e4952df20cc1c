// Package export writes optimization results to files for the shop floor:
// PDF cut plans, piece labels, spreadsheets and DXF drawings.
package export

import (
	"fmt"
	"math"

	"github.com/go-pdf/fpdf"

	"github.com/piwi3910/BarCut/internal/model"
)

// pieceColor represents an RGB color for a piece on a bar.
type pieceColor struct {
	R, G, B int
}

var pieceColors = []pieceColor{
	{R: 76, G: 175, B: 80},  // green
	{R: 33, G: 150, B: 243}, // blue
	{R: 255, G: 152, B: 0},  // orange
	{R: 156, G: 39, B: 176}, // purple
	{R: 0, G: 188, B: 212},  // cyan
	{R: 244, G: 67, B: 54},  // red
	{R: 255, G: 235, B: 59}, // yellow
	{R: 121, G: 85, B: 72},  // brown
}

// Page layout constants (A4 landscape in mm).
const (
	pageWidth    = 297.0
	pageHeight   = 210.0
	marginLeft   = 15.0
	marginRight  = 15.0
	marginTop    = 15.0
	marginBottom = 15.0
	headerHeight = 12.0
	barHeight    = 10.0
	rowHeight    = 26.0 // title line, bar, dimension line
	drawAreaTop  = marginTop + headerHeight + 5.0
)

// barsPerPage is how many bar rows fit between the header and the footer.
var barsPerPage = int(math.Floor((pageHeight - drawAreaTop - marginBottom) / rowHeight))

// barGroup is a bar layout and how many bars are cut with it.
type barGroup struct {
	first int // index of the first cut with this layout
	cut   model.Cut
	count int
}

// groupCuts collapses identical bar layouts, keeping the order of first appearance.
func groupCuts(cuts []model.Cut) []barGroup {
	index := make(map[string]int)
	var groups []barGroup
	for i, c := range cuts {
		key := c.ProfileType + "|" + c.PatternKey()
		if g, ok := index[key]; ok {
			groups[g].count++
			continue
		}
		index[key] = len(groups)
		groups = append(groups, barGroup{first: i, cut: c, count: 1})
	}
	return groups
}

// ExportPDF generates a PDF cut plan. Identical bars are drawn once with a
// repeat count, several bars per page, followed by a summary page.
func ExportPDF(path string, result model.OptimizationResult, constraints model.EnhancedConstraints) error {
	if len(result.Cuts) == 0 {
		return fmt.Errorf("no cuts to export")
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, marginBottom)

	groups := groupCuts(result.Cuts)
	pages := (len(groups) + barsPerPage - 1) / barsPerPage
	for page := 0; page < pages; page++ {
		pdf.AddPage()
		renderPageHeader(pdf, result, page+1, pages)

		start := page * barsPerPage
		end := int(math.Min(float64(start+barsPerPage), float64(len(groups))))
		y := drawAreaTop
		for _, g := range groups[start:end] {
			renderBar(pdf, g, constraints, y)
			y += rowHeight
		}
	}

	pdf.AddPage()
	renderSummaryPage(pdf, result, constraints)

	return pdf.OutputFileAndClose(path)
}

func renderPageHeader(pdf *fpdf.Fpdf, result model.OptimizationResult, page, pages int) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(marginLeft, marginTop)
	title := fmt.Sprintf("Cut Plan %s (%s)", result.ID, result.Algorithm)
	pdf.CellFormat(pageWidth-marginLeft-marginRight-40, headerHeight, title, "", 0, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(40, headerHeight, fmt.Sprintf("Page %d of %d", page, pages), "", 0, "R", false, 0, "")
}

// renderBar draws one bar layout: safety zones, pieces, kerf and leftover.
func renderBar(pdf *fpdf.Fpdf, g barGroup, constraints model.EnhancedConstraints, y float64) {
	c := g.cut
	drawWidth := pageWidth - marginLeft - marginRight
	scale := drawWidth / c.StockLength

	// Title line
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(marginLeft, y)
	title := fmt.Sprintf("Bar %d: %s  %.0f mm", g.first+1, profileLabel(c.ProfileType), c.StockLength)
	if g.count > 1 {
		title += fmt.Sprintf("  x%d", g.count)
	}
	pdf.CellFormat(drawWidth/2, 5, title, "", 0, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 8)
	stats := fmt.Sprintf("Pieces: %d | Kerf loss: %.1f mm | Leftover: %.1f mm | Efficiency: %.1f%%",
		len(c.Pieces), c.KerfLoss, c.RemainingLength, c.Efficiency())
	pdf.CellFormat(drawWidth/2, 5, stats, "", 0, "R", false, 0, "")

	barY := y + 6

	// Bar background (leftover)
	pdf.SetFillColor(235, 235, 235)
	pdf.SetDrawColor(100, 100, 100)
	pdf.SetLineWidth(0.4)
	pdf.Rect(marginLeft, barY, c.StockLength*scale, barHeight, "FD")

	// Safety zones
	pdf.SetFillColor(190, 190, 190)
	if constraints.StartSafety > 0 {
		pdf.Rect(marginLeft, barY, constraints.StartSafety*scale, barHeight, "F")
	}
	if constraints.EndSafety > 0 {
		pdf.Rect(marginLeft+(c.StockLength-constraints.EndSafety)*scale, barY, constraints.EndSafety*scale, barHeight, "F")
	}

	for i, p := range c.Pieces {
		col := pieceColors[lengthColorIndex(c, p.Length)%len(pieceColors)]
		px := marginLeft + p.Position*scale
		pw := p.Length * scale

		pdf.SetFillColor(col.R, col.G, col.B)
		pdf.SetDrawColor(30, 30, 30)
		pdf.SetLineWidth(0.2)
		pdf.Rect(px, barY, pw, barHeight, "FD")

		// Kerf after every piece but the last
		if i < len(c.Pieces)-1 && constraints.KerfWidth > 0 {
			pdf.SetFillColor(60, 60, 60)
			pdf.Rect(px+pw, barY, math.Max(constraints.KerfWidth*scale, 0.2), barHeight, "F")
		}

		label := fmt.Sprintf("%.0f", p.Length)
		pdf.SetFont("Helvetica", "", labelFontSize(pw))
		if lw := pdf.GetStringWidth(label); lw < pw-1 {
			pdf.SetTextColor(0, 0, 0)
			pdf.SetXY(px+(pw-lw)/2, barY+barHeight/2-2)
			pdf.CellFormat(lw, 4, label, "", 0, "C", false, 0, "")
		}
	}

	// Dimension line
	pdf.SetFont("Helvetica", "", 7)
	pdf.SetTextColor(80, 80, 80)
	pdf.SetXY(marginLeft, barY+barHeight+1)
	pdf.CellFormat(drawWidth, 4, patternText(c.Pattern), "", 0, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
}

// lengthColorIndex gives every distinct length on a bar its own color.
func lengthColorIndex(c model.Cut, length float64) int {
	for i, e := range c.Pattern {
		if e.Length == length {
			return i
		}
	}
	return 0
}

func patternText(pattern []model.PatternEntry) string {
	s := ""
	for i, e := range pattern {
		if i > 0 {
			s += " + "
		}
		s += fmt.Sprintf("%d x %.1f mm", e.Count, e.Length)
	}
	return s
}

func profileLabel(profile string) string {
	if profile == "" {
		return "(any profile)"
	}
	return profile
}

// renderSummaryPage draws the final summary page with overall statistics.
func renderSummaryPage(pdf *fpdf.Fpdf, result model.OptimizationResult, constraints model.EnhancedConstraints) {
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(marginLeft, marginTop)
	pdf.CellFormat(pageWidth-marginLeft-marginRight, 10, "Cut Optimization Summary", "", 0, "L", false, 0, "")

	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.5)
	pdf.Line(marginLeft, marginTop+12, pageWidth-marginRight, marginTop+12)

	y := marginTop + 18

	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetXY(marginLeft, y)
	pdf.CellFormat(100, 7, "Overall Statistics", "", 0, "L", false, 0, "")
	y += 9

	summaryItems := []struct {
		label string
		value string
	}{
		{"Algorithm", string(result.Algorithm)},
		{"Bars Used", fmt.Sprintf("%d", result.StockCount)},
		{"Total Stock Length", fmt.Sprintf("%.0f mm", result.TotalStockLength)},
		{"Pieces Placed", fmt.Sprintf("%d", result.TotalPieces())},
		{"Overall Efficiency", fmt.Sprintf("%.1f%%", result.Efficiency)},
		{"Waste", fmt.Sprintf("%.0f mm (%.1f%%)", result.TotalWaste, result.WastePercentage)},
		{"Total Cost", fmt.Sprintf("%.2f", result.TotalCost)},
	}

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range summaryItems {
		pdf.SetXY(marginLeft+5, y)
		pdf.CellFormat(60, 6, item.label+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(60, 6, item.value, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		y += 7
	}

	y += 5

	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetXY(marginLeft, y)
	pdf.CellFormat(100, 7, "Bar Layouts", "", 0, "L", false, 0, "")
	y += 9

	colWidths := []float64{20, 40, 30, 20, 117, 30}
	headers := []string{"Bar", "Profile", "Stock", "Count", "Pattern", "Efficiency"}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	xPos := marginLeft
	for i, header := range headers {
		pdf.SetXY(xPos, y)
		pdf.CellFormat(colWidths[i], 6, header, "1", 0, "C", true, 0, "")
		xPos += colWidths[i]
	}
	y += 6

	pdf.SetFont("Helvetica", "", 8)
	for i, g := range groupCuts(result.Cuts) {
		if y > pageHeight-marginBottom-20 {
			pdf.AddPage()
			y = marginTop
		}
		xPos = marginLeft
		rowData := []string{
			fmt.Sprintf("%d", g.first+1),
			profileLabel(g.cut.ProfileType),
			fmt.Sprintf("%.0f mm", g.cut.StockLength),
			fmt.Sprintf("%d", g.count),
			patternText(g.cut.Pattern),
			fmt.Sprintf("%.1f%%", g.cut.Efficiency()),
		}

		if i%2 == 0 {
			pdf.SetFillColor(245, 245, 245)
		} else {
			pdf.SetFillColor(255, 255, 255)
		}
		for j, cell := range rowData {
			pdf.SetXY(xPos, y)
			pdf.CellFormat(colWidths[j], 6, cell, "1", 0, "C", true, 0, "")
			xPos += colWidths[j]
		}
		y += 6
	}

	if len(result.Unplaced) > 0 {
		y += 8
		pdf.SetFont("Helvetica", "B", 11)
		pdf.SetTextColor(200, 0, 0)
		pdf.SetXY(marginLeft, y)
		pdf.CellFormat(200, 7, "WARNING: Unplaced Pieces", "", 0, "L", false, 0, "")
		y += 8

		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(0, 0, 0)
		for _, u := range result.Unplaced {
			pdf.SetXY(marginLeft+5, y)
			text := fmt.Sprintf("- %s: %.1f mm x %d (%s, largest stock %.0f mm)",
				profileLabel(u.ProfileType), u.Length, u.Quantity, u.Reason, u.LargestStock)
			pdf.CellFormat(200, 5, text, "", 0, "L", false, 0, "")
			y += 5
		}
	}

	y += 8
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetXY(marginLeft, y)
	pdf.CellFormat(100, 7, "Saw Settings", "", 0, "L", false, 0, "")
	y += 9

	settingsItems := []struct {
		label string
		value string
	}{
		{"Kerf Width", fmt.Sprintf("%.1f mm", constraints.KerfWidth)},
		{"Start Safety", fmt.Sprintf("%.1f mm", constraints.StartSafety)},
		{"End Safety", fmt.Sprintf("%.1f mm", constraints.EndSafety)},
		{"Min Scrap Length", fmt.Sprintf("%.0f mm", constraints.MinScrapLength)},
	}

	pdf.SetFont("Helvetica", "", 9)
	for _, item := range settingsItems {
		pdf.SetXY(marginLeft+5, y)
		pdf.CellFormat(50, 5, item.label+":", "", 0, "L", false, 0, "")
		pdf.CellFormat(30, 5, item.value, "", 0, "L", false, 0, "")
		y += 5
	}

	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.SetXY(marginLeft, pageHeight-marginBottom)
	pdf.CellFormat(pageWidth-marginLeft-marginRight, 4, "Generated by BarCut - Bar Cutting Optimizer", "", 0, "C", false, 0, "")
}

// labelFontSize returns a font size that fits a piece of the given drawn width.
func labelFontSize(w float64) float64 {
	switch {
	case w > 40:
		return 8
	case w > 20:
		return 7
	default:
		return 6
	}
}

package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/piwi3910/BarCut/internal/model"
)

// Sheet names of the cut-plan workbook.
const (
	SheetSummary  = "Summary"
	SheetBars     = "Bars"
	SheetPieces   = "Pieces"
	SheetUnplaced = "Unplaced"
)

// ExportXLSX writes the result as a workbook with a summary, one row per
// bar, one row per piece and, when demand was left over, the unplaced items.
func ExportXLSX(path string, result model.OptimizationResult) error {
	if len(result.Cuts) == 0 {
		return fmt.Errorf("no cuts to export")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetSummary); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6E6E6"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	summary := [][]any{
		{"Result", result.ID},
		{"Algorithm", string(result.Algorithm)},
		{"Bars used", result.StockCount},
		{"Total stock length (mm)", result.TotalStockLength},
		{"Total piece length (mm)", result.TotalPieceLength},
		{"Waste (mm)", result.TotalWaste},
		{"Waste (%)", result.WastePercentage},
		{"Efficiency (%)", result.Efficiency},
		{"Total cost", result.TotalCost},
		{"Execution time (ms)", result.ExecutionTime.Milliseconds()},
	}
	if err := writeRows(f, SheetSummary, summary); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetSummary, "A", "A", 26); err != nil {
		return err
	}

	bars := [][]any{{"Bar", "Cut ID", "Profile", "Stock ID", "Stock length", "Used", "Remaining", "Kerf loss", "Pieces", "Pattern", "Efficiency (%)", "Price"}}
	var pieces [][]any
	pieces = append(pieces, []any{"Bar", "Piece", "Profile", "Length", "Position", "Item ID", "Work order"})
	for i, c := range result.Cuts {
		bars = append(bars, []any{
			i + 1, c.ID, c.ProfileType, c.StockID, c.StockLength, c.UsedLength, c.RemainingLength,
			c.KerfLoss, len(c.Pieces), patternText(c.Pattern), c.Efficiency(), c.Price,
		})
		for j, p := range c.Pieces {
			pieces = append(pieces, []any{i + 1, j + 1, c.ProfileType, p.Length, p.Position, p.ItemID, p.WorkOrderID})
		}
	}
	if err := addTable(f, SheetBars, bars, header); err != nil {
		return err
	}
	if err := addTable(f, SheetPieces, pieces, header); err != nil {
		return err
	}

	if result.HasUnplaced() {
		unplaced := [][]any{{"Item ID", "Work order", "Profile", "Length", "Quantity", "Reason", "Largest stock"}}
		for _, u := range result.Unplaced {
			unplaced = append(unplaced, []any{u.ItemID, u.WorkOrderID, u.ProfileType, u.Length, u.Quantity, string(u.Reason), u.LargestStock})
		}
		if err := addTable(f, SheetUnplaced, unplaced, header); err != nil {
			return err
		}
	}

	f.SetActiveSheet(0)
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// addTable creates a sheet whose first row is a styled header.
func addTable(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}
	if err := writeRows(f, sheet, rows); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

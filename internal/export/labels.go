package export

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-pdf/fpdf"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/piwi3910/BarCut/internal/model"
)

// LabelInfo holds the data encoded into each piece label's QR code.
type LabelInfo struct {
	ItemID      string  `json:"item"`
	WorkOrderID string  `json:"wo,omitempty"`
	ProfileType string  `json:"profile"`
	Length      float64 `json:"length_mm"`
	BarIndex    int     `json:"bar"`
	CutID       string  `json:"cut"`
	Position    float64 `json:"pos_mm"`
	PieceIndex  int     `json:"piece"` // 1-based position on the bar
}

// Label layout constants for Avery 5160-compatible labels (3 columns, 10 rows per page).
const (
	labelMarginTop  = 12.7
	labelMarginLeft = 4.8
	labelWidth      = 66.7
	labelHeight     = 25.4
	labelCols       = 3
	labelRows       = 10
	labelsPerPage   = labelCols * labelRows
	qrSize          = 20.0
	labelPadding    = 2.0
)

// ExportLabels generates a PDF of QR-coded labels, one per cut piece, in
// cutting order. Each QR code encodes the LabelInfo as JSON.
func ExportLabels(path string, result model.OptimizationResult) error {
	if len(result.Cuts) == 0 {
		return fmt.Errorf("no cuts to generate labels for")
	}

	labels := CollectLabelInfos(result)
	if len(labels) == 0 {
		return fmt.Errorf("no pieces placed to generate labels for")
	}

	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetAutoPageBreak(false, 0)

	for i, label := range labels {
		if i%labelsPerPage == 0 {
			pdf.AddPage()
		}

		posOnPage := i % labelsPerPage
		col := posOnPage % labelCols
		row := posOnPage / labelCols

		x := labelMarginLeft + float64(col)*labelWidth
		y := labelMarginTop + float64(row)*labelHeight

		if err := renderLabel(pdf, x, y, label); err != nil {
			return fmt.Errorf("failed to render label for bar %d piece %d: %w", label.BarIndex, label.PieceIndex, err)
		}
	}

	return pdf.OutputFileAndClose(path)
}

func renderLabel(pdf *fpdf.Fpdf, x, y float64, info LabelInfo) error {
	// cutting guide
	pdf.SetDrawColor(200, 200, 200)
	pdf.SetLineWidth(0.1)
	pdf.Rect(x, y, labelWidth, labelHeight, "D")

	qrData, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal label info: %w", err)
	}

	qrPNG, err := qrcode.Encode(string(qrData), qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("failed to generate QR code: %w", err)
	}

	imgName := fmt.Sprintf("qr_%d_%d", info.BarIndex, info.PieceIndex)
	pdf.RegisterImageOptionsReader(imgName, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qrPNG))

	qrX := x + labelWidth - qrSize - labelPadding
	qrY := y + (labelHeight-qrSize)/2
	pdf.ImageOptions(imgName, qrX, qrY, qrSize, qrSize, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	textX := x + labelPadding
	textW := labelWidth - qrSize - 3*labelPadding

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(textX, y+labelPadding)
	pdf.CellFormat(textW, 4.5, truncate(pdf, profileLabel(info.ProfileType), textW), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetXY(textX, y+labelPadding+5)
	pdf.CellFormat(textW, 5, fmt.Sprintf("%.1f mm", info.Length), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 6)
	pdf.SetTextColor(100, 100, 100)
	pdf.SetXY(textX, y+labelPadding+11)
	pdf.CellFormat(textW, 3, fmt.Sprintf("Bar %d, piece %d @ %.0f mm", info.BarIndex, info.PieceIndex, info.Position), "", 1, "L", false, 0, "")

	if info.WorkOrderID != "" {
		pdf.SetXY(textX, y+labelPadding+14.5)
		pdf.CellFormat(textW, 3, truncate(pdf, "WO "+info.WorkOrderID, textW), "", 0, "L", false, 0, "")
	}

	pdf.SetTextColor(0, 0, 0)
	return nil
}

// truncate shortens s with an ellipsis until it fits width w in the current font.
func truncate(pdf *fpdf.Fpdf, s string, w float64) string {
	if pdf.GetStringWidth(s) <= w {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > w {
		s = s[:len(s)-1]
	}
	return s + "..."
}

// CollectLabelInfos lists one label per placed piece, bar by bar.
func CollectLabelInfos(result model.OptimizationResult) []LabelInfo {
	var labels []LabelInfo
	for barIdx, c := range result.Cuts {
		for i, p := range c.Pieces {
			labels = append(labels, LabelInfo{
				ItemID:      p.ItemID,
				WorkOrderID: p.WorkOrderID,
				ProfileType: c.ProfileType,
				Length:      p.Length,
				BarIndex:    barIdx + 1,
				CutID:       c.ID,
				Position:    p.Position,
				PieceIndex:  i + 1,
			})
		}
	}
	return labels
}

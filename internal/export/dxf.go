package export

import (
	"fmt"

	"github.com/yofu/dxf"
	"github.com/yofu/dxf/color"
	"github.com/yofu/dxf/drawing"
	"github.com/yofu/dxf/table"

	"github.com/piwi3910/BarCut/internal/model"
)

// DXF layer names.
const (
	LayerStock  = "STOCK"
	LayerPieces = "PIECES"
	LayerKerf   = "KERF"
	LayerText   = "TEXT"
)

// Drawing layout in drawing units (mm). Bars are drawn to scale along X and
// stacked along Y, first bar on top.
const (
	dxfBarHeight  = 40.0
	dxfBarSpacing = 80.0
	dxfTextHeight = 12.0
)

// ExportDXF writes the cut plan as a DXF drawing: one outline per bar, a
// line at every cut position and the piece lengths as text.
func ExportDXF(path string, result model.OptimizationResult, constraints model.EnhancedConstraints) error {
	if len(result.Cuts) == 0 {
		return fmt.Errorf("no cuts to export")
	}

	d := dxf.NewDrawing()
	layers := []struct {
		name  string
		color color.ColorNumber
	}{
		{LayerStock, color.White},
		{LayerPieces, color.Green},
		{LayerKerf, color.Red},
		{LayerText, color.Cyan},
	}
	for _, l := range layers {
		if _, err := d.AddLayer(l.name, l.color, table.LT_CONTINUOUS, false); err != nil {
			return fmt.Errorf("failed to add layer %s: %w", l.name, err)
		}
	}

	for i, c := range result.Cuts {
		y := -float64(i) * dxfBarSpacing
		if err := drawBar(d, i+1, c, constraints, y); err != nil {
			return fmt.Errorf("failed to draw bar %d: %w", i+1, err)
		}
	}

	if err := d.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save DXF: %w", err)
	}
	return nil
}

func drawBar(d *drawing.Drawing, n int, c model.Cut, constraints model.EnhancedConstraints, y float64) error {
	if err := d.ChangeLayer(LayerStock); err != nil {
		return err
	}
	if err := rect(d, 0, y, c.StockLength, dxfBarHeight); err != nil {
		return err
	}

	if err := d.ChangeLayer(LayerPieces); err != nil {
		return err
	}
	for _, p := range c.Pieces {
		if err := rect(d, p.Position, y, p.Length, dxfBarHeight); err != nil {
			return err
		}
	}

	if constraints.KerfWidth > 0 {
		if err := d.ChangeLayer(LayerKerf); err != nil {
			return err
		}
		for i, p := range c.Pieces {
			if i == len(c.Pieces)-1 {
				break
			}
			// centre line of the saw cut
			x := p.Position + p.Length + constraints.KerfWidth/2
			if _, err := d.Line(x, y, 0, x, y+dxfBarHeight, 0); err != nil {
				return err
			}
		}
	}

	if err := d.ChangeLayer(LayerText); err != nil {
		return err
	}
	title := fmt.Sprintf("BAR %d %s %.0f", n, c.ProfileType, c.StockLength)
	if _, err := d.Text(title, 0, y+dxfBarHeight+dxfTextHeight/2, 0, dxfTextHeight); err != nil {
		return err
	}
	for _, p := range c.Pieces {
		label := fmt.Sprintf("%.1f", p.Length)
		if _, err := d.Text(label, p.Position+2, y+(dxfBarHeight-dxfTextHeight)/2, 0, dxfTextHeight); err != nil {
			return err
		}
	}
	return nil
}

func rect(d *drawing.Drawing, x, y, w, h float64) error {
	corners := [][2]float64{{x, y}, {x + w, y}, {x + w, y + h}, {x, y + h}}
	for i, a := range corners {
		b := corners[(i+1)%len(corners)]
		if _, err := d.Line(a[0], a[1], 0, b[0], b[1], 0); err != nil {
			return err
		}
	}
	return nil
}

package training

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// WriteLossPlot renders the per-epoch training loss curve to an image file
// (format chosen by extension, e.g. .png or .svg).
func WriteLossPlot(path string, losses []float64) error {
	if len(losses) == 0 {
		return fmt.Errorf("no epoch losses to plot")
	}

	p := plot.New()
	p.Title.Text = "Training Loss"
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Avg MSE"

	pts := make(plotter.XYs, len(losses))
	for i, l := range losses {
		pts[i] = plotter.XY{X: float64(i + 1), Y: l}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("build loss line: %w", err)
	}
	line.Width = vg.Points(1)
	p.Add(line)

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save loss plot: %w", err)
	}
	return nil
}

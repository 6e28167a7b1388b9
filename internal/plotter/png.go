package plotter

import (
	"fmt"
	"os"

	gplot "gonum.org/v1/plot"
	gplotter "gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// PNGRenderer writes the figure grid to a single PNG. The file is replaced
// atomically so a viewer polling it never sees a torn image.
type PNGRenderer struct {
	Path   string
	Width  int // Canvas width in points
	Height int // Canvas height in points
}

// NewPNGRenderer returns a renderer writing to path. Non-positive sizes
// fall back to 400 points per axes column and row.
func NewPNGRenderer(path string, width, height int) *PNGRenderer {
	return &PNGRenderer{Path: path, Width: width, Height: height}
}

// Render lays the axes out as tiles and writes the canvas.
func (r *PNGRenderer) Render(fig *Figure) error {
	plots := make([][]*gplot.Plot, fig.Rows)
	idx := 0
	for row := 0; row < fig.Rows; row++ {
		plots[row] = make([]*gplot.Plot, fig.Cols)
		for col := 0; col < fig.Cols; col++ {
			p, err := r.axesPlot(fig, idx)
			if err != nil {
				return err
			}
			plots[row][col] = p
			idx++
		}
	}

	width := r.Width
	if width <= 0 {
		width = 400 * fig.Cols
	}
	height := r.Height
	if height <= 0 {
		height = 400 * fig.Rows
	}

	img := vgimg.New(vg.Points(float64(width)), vg.Points(float64(height)))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: fig.Rows,
		Cols: fig.Cols,
		PadX: vg.Millimeter,
		PadY: vg.Millimeter,
	}
	canvases := gplot.Align(plots, tiles, dc)
	for row := 0; row < fig.Rows; row++ {
		for col := 0; col < fig.Cols; col++ {
			plots[row][col].Draw(canvases[row][col])
		}
	}

	return writeAtomic(r.Path, img)
}

func (r *PNGRenderer) axesPlot(fig *Figure, index int) (*gplot.Plot, error) {
	p := gplot.New()
	p.Title.Text = fig.Title(index)
	p.X.Label.Text = XLabel
	p.Y.Label.Text = YLabel
	p.X.Min, p.X.Max = 0, fig.XMax
	p.Y.Min, p.Y.Max = fig.YMin, 0
	p.Add(gplotter.NewGrid())

	line := fig.Lines[index]
	n := len(line.X)
	if len(line.Y) < n {
		n = len(line.Y)
	}
	if n > 0 {
		xys := make(gplotter.XYs, n)
		for i := 0; i < n; i++ {
			xys[i].X = line.X[i]
			xys[i].Y = line.Y[i]
		}
		l, err := gplotter.NewLine(xys)
		if err != nil {
			return nil, fmt.Errorf("failed to build line for axes %d: %w", index, err)
		}
		p.Add(l)
	}

	return p, nil
}

func writeAtomic(path string, img *vgimg.Canvas) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Package plotter renders grids of spectra to a terminal or a PNG file and
// drives the animation loop that keeps them current.
package plotter

import (
	"fmt"
)

// Axis labels shared by every subplot.
const (
	XLabel = "Frequency [MHz]"
	YLabel = "Power [dBFS]"
)

// gridShapes maps the accepted spectra counts to their subplot grid.
var gridShapes = map[int][2]int{
	1:  {1, 1},
	2:  {1, 2},
	4:  {2, 2},
	16: {4, 4},
}

// Line is one renderable curve. The frame callback replaces its data every
// animation tick.
type Line struct {
	X []float64
	Y []float64
}

// SetData points the line at new axis and amplitude slices.
func (l *Line) SetData(x, y []float64) {
	l.X = x
	l.Y = y
}

// Figure is a fixed grid of axes with one line per axes. Axis ranges are
// set once: x spans [0, bandwidth] and y spans [-dBFS-2, 0].
type Figure struct {
	Rows  int
	Cols  int
	XMax  float64 // Bandwidth in MHz
	YMin  float64 // -dBFS-2
	Lines []*Line // Row-major, one per axes
}

// GridShape returns the subplot grid for a spectra count. Counts outside
// {1, 2, 4, 16} are rejected.
func GridShape(nspecs int) (rows, cols int, err error) {
	shape, ok := gridShapes[nspecs]
	if !ok {
		return 0, 0, fmt.Errorf("no subplot grid for %d spectra (must be 1, 2, 4 or 16)", nspecs)
	}
	return shape[0], shape[1], nil
}

// NewFigure builds the grid for nspecs spectra with empty lines attached.
func NewFigure(nspecs int, bandwidth, dbfs float64) (*Figure, error) {
	rows, cols, err := GridShape(nspecs)
	if err != nil {
		return nil, err
	}

	lines := make([]*Line, nspecs)
	for i := range lines {
		lines[i] = &Line{}
	}

	return &Figure{
		Rows:  rows,
		Cols:  cols,
		XMax:  bandwidth,
		YMin:  -dbfs - 2,
		Lines: lines,
	}, nil
}

// Title returns the per-axes title, "In 0" through "In n-1" in traversal
// order.
func (f *Figure) Title(i int) string {
	return fmt.Sprintf("In %d", i)
}

package plotter

import (
	"fmt"
	"io"
	"strings"
)

// ansiHome clears the terminal and parks the cursor top-left so successive
// frames redraw in place.
const ansiHome = "\033[H\033[2J"

// TermRenderer draws each axes as a rune-grid graph, stacked in row-major
// order. It is the live display mode for headless lab machines.
type TermRenderer struct {
	Out    io.Writer
	Width  int  // Graph width per axes in characters
	Height int  // Graph height per axes in lines
	Plain  bool // Skip the ANSI clear, used for single-shot rendering
}

// NewTermRenderer returns a renderer writing to out. Non-positive sizes
// fall back to an 80x15 graph.
func NewTermRenderer(out io.Writer, width, height int) *TermRenderer {
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 15
	}
	return &TermRenderer{Out: out, Width: width, Height: height}
}

// Render draws the whole figure.
func (r *TermRenderer) Render(fig *Figure) error {
	var b strings.Builder
	if !r.Plain {
		b.WriteString(ansiHome)
	}

	for i, line := range fig.Lines {
		r.renderAxes(&b, fig, i, line)
		b.WriteByte('\n')
	}

	_, err := io.WriteString(r.Out, b.String())
	return err
}

func (r *TermRenderer) renderAxes(b *strings.Builder, fig *Figure, index int, line *Line) {
	fmt.Fprintf(b, "%s  [%s vs %s]\n", fig.Title(index), YLabel, XLabel)

	grid := make([][]rune, r.Height)
	for i := range grid {
		grid[i] = make([]rune, r.Width)
		for j := range grid[i] {
			grid[i][j] = ' '
		}
	}

	n := len(line.X)
	if len(line.Y) < n {
		n = len(line.Y)
	}
	for i := 0; i < n; i++ {
		x := int(line.X[i] / fig.XMax * float64(r.Width-1))
		if x < 0 || x >= r.Width {
			continue
		}

		// y axis runs from YMin at the bottom to 0 at the top.
		norm := (line.Y[i] - fig.YMin) / (0 - fig.YMin)
		if norm < 0 {
			norm = 0
		}
		if norm > 1 {
			norm = 1
		}
		y := int(float64(r.Height-1) * (1 - norm))

		if grid[y][x] == ' ' {
			grid[y][x] = '*'
		} else {
			grid[y][x] = '#'
		}
	}

	for i, row := range grid {
		norm := float64(r.Height-1-i) / float64(r.Height-1)
		level := fig.YMin + norm*(0-fig.YMin)
		fmt.Fprintf(b, "%7.2f |%s|\n", level, string(row))
	}

	fmt.Fprintf(b, "        +%s+\n", strings.Repeat("-", r.Width))

	// X axis labels: 0 on the left, bandwidth on the right.
	endLabel := fmt.Sprintf("%.1f MHz", fig.XMax)
	pad := r.Width - 1 - len(endLabel)
	if pad < 1 {
		pad = 1
	}
	fmt.Fprintf(b, "        0%s%s\n", strings.Repeat(" ", pad), endLabel)
}

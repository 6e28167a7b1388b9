package recorder

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/FrancoCalan/CalanDigital/internal/spectra"
)

// Margins around the heatmap, leaving room for the axis labels.
const (
	wfMarginLeft   = 56
	wfMarginTop    = 18
	wfMarginBottom = 16
)

// gradient stops from cold to hot, spread evenly over the dBFS range.
var wfGradient = []color.RGBA{
	{0, 0, 0, 255},       // black
	{0, 0, 255, 255},     // blue
	{0, 255, 255, 255},   // cyan
	{0, 255, 0, 255},     // green
	{255, 255, 0, 255},   // yellow
	{255, 0, 0, 255},     // red
	{255, 255, 255, 255}, // white
}

// ExportWaterfall renders one spectrum of a recording as a frames by
// channels heatmap PNG: time runs top to bottom, frequency left to right.
func ExportWaterfall(filename string, session *Session, frames []Frame, spectrum int) error {
	if spectrum < 0 || spectrum >= int(session.NSpecs) {
		return fmt.Errorf("spectrum %d out of range, session has %d", spectrum, session.NSpecs)
	}
	if len(frames) == 0 {
		return fmt.Errorf("recording has no frames")
	}

	nchan := int(session.NChannels)
	rows := len(frames)

	// Scale to dBFS first so the gradient spans meaningful power levels.
	power := make([][]float64, rows)
	minDB, maxDB := math.Inf(1), math.Inf(-1)
	for i, frame := range frames {
		power[i] = spectra.ScaleDBFS(frame.Spectra[spectrum], int(session.AccLen), session.DBFS)
		for _, v := range power[i] {
			if v < minDB {
				minDB = v
			}
			if v > maxDB {
				maxDB = v
			}
		}
	}
	if maxDB == minDB {
		maxDB = minDB + 1e-6
	}

	width := wfMarginLeft + nchan
	height := wfMarginTop + rows + wfMarginBottom
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for row := range power {
		for ch, v := range power[row] {
			level := (v - minDB) / (maxDB - minDB)
			img.SetRGBA(wfMarginLeft+ch, wfMarginTop+row, gradientColor(level))
		}
	}

	drawLabel(img, wfMarginLeft, 12, fmt.Sprintf("In %d  [%.2f to %.2f dBFS]", spectrum, minDB, maxDB))
	drawLabel(img, 2, wfMarginTop+10, "frame 0")
	drawLabel(img, 2, wfMarginTop+rows-2, fmt.Sprintf("frame %d", frames[len(frames)-1].Index))
	drawLabel(img, wfMarginLeft, height-4, "0 MHz")
	endLabel := fmt.Sprintf("%.1f MHz", session.Bandwidth)
	drawLabel(img, width-7*len(endLabel), height-4, endLabel)

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create waterfall file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode waterfall: %w", err)
	}
	return nil
}

// gradientColor interpolates between the stops for a level in [0, 1].
func gradientColor(level float64) color.RGBA {
	if level <= 0 {
		return wfGradient[0]
	}
	if level >= 1 {
		return wfGradient[len(wfGradient)-1]
	}

	scaled := level * float64(len(wfGradient)-1)
	i := int(scaled)
	frac := scaled - float64(i)
	a, b := wfGradient[i], wfGradient[i+1]
	return color.RGBA{
		R: uint8(float64(a.R) + frac*(float64(b.R)-float64(a.R))),
		G: uint8(float64(a.G) + frac*(float64(b.G)-float64(a.G))),
		B: uint8(float64(a.B) + frac*(float64(b.B)-float64(a.B))),
		A: 255,
	}
}

func drawLabel(img *image.RGBA, x, y int, text string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

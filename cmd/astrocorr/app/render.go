package app

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/tiff"

	"github.com/colibri-telescope/astrocorr/internal/rcd"
)

// RenderConfig holds the options for the diagnostic view
type RenderConfig struct {
	Theme          ColorTheme
	LowPercentile  float64
	HighPercentile float64
	FontSize       float64
}

// Marker is a labelled position in zero-based pixel coordinates
type Marker struct {
	X, Y  float64
	Label string
}

// Overlay is drawn on top of the stretched frame
type Overlay struct {
	Centre Marker
	Target *Marker // nil when the target does not project onto the frame
	Info   []string
}

// Render draws the frame with a percentile stretch, the centre (+) and target
// (x) markers and an info bar below the frame.
func Render(grid *rcd.Grid, overlay Overlay, config RenderConfig) (*image.RGBA, error) {
	ann, err := NewAnnotator(config.FontSize)
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}

	frame := image.Rect(0, 0, grid.Width, grid.Height)
	img := image.NewRGBA(image.Rect(0, 0, grid.Width, grid.Height+ann.InfoHeight(len(overlay.Info))))

	lo, hi := stretchBounds(grid.Pix, config.LowPercentile, config.HighPercentile)
	palette := NewPalette(config.Theme)
	span := float64(hi) - float64(lo)
	if span <= 0 {
		span = 1
	}

	for y := 0; y < grid.Height; y++ {
		row := grid.Pix[y*grid.Width : (y+1)*grid.Width]
		for x, v := range row {
			img.SetRGBA(x, y, palette.Color((float64(v)-float64(lo))/span))
		}
	}

	cx, cy := round(overlay.Centre.X), round(overlay.Centre.Y)
	drawPlus(img, frame, cx, cy, centreColor)
	if err = ann.DrawLabel(img, frame, cx, cy, overlay.Centre.Label); err != nil {
		return nil, fmt.Errorf("drawing centre label: %w", err)
	}

	if t := overlay.Target; t != nil {
		tx, ty := round(t.X), round(t.Y)
		drawCross(img, frame, tx, ty, targetColor)
		if err = ann.DrawLabel(img, frame, tx, ty, t.Label); err != nil {
			return nil, fmt.Errorf("drawing target label: %w", err)
		}
	}

	if err = ann.DrawInfo(img, overlay.Info); err != nil {
		return nil, fmt.Errorf("drawing info: %w", err)
	}

	return img, nil
}

// WriteImage encodes img at path in the given format
func WriteImage(path string, img image.Image, format ImageFormat) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := out.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	switch format {
	case ImageJPEG:
		return jpeg.Encode(out, img, &jpeg.Options{Quality: 98})
	case ImageTIFF:
		return tiff.Encode(out, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	default:
		return png.Encode(out, img)
	}
}

// stretchBounds returns the sample values at the low and high percentiles
func stretchBounds(pix []uint16, low, high float64) (uint16, uint16) {
	if len(pix) == 0 {
		return 0, 0
	}

	hist := make([]int, math.MaxUint16+1)
	for _, v := range pix {
		hist[v]++
	}

	lowRank := int(math.Floor(low / 100 * float64(len(pix)-1)))
	highRank := int(math.Ceil(high / 100 * float64(len(pix)-1)))

	var lo, hi uint16
	seen, found := 0, false
	for v, n := range hist {
		if n == 0 {
			continue
		}
		seen += n
		if !found && seen > lowRank {
			lo, found = uint16(v), true
		}
		if seen > highRank {
			hi = uint16(v)
			break
		}
	}
	return lo, hi
}

func drawPlus(img *image.RGBA, area image.Rectangle, x, y int, c colorful.Color) {
	col := rgba(c)
	for d := -markerArm; d <= markerArm; d++ {
		for w := -markerWidth / 2; w <= markerWidth/2; w++ {
			setIn(img, area, x+d, y+w, col)
			setIn(img, area, x+w, y+d, col)
		}
	}
}

func drawCross(img *image.RGBA, area image.Rectangle, x, y int, c colorful.Color) {
	col := rgba(c)
	for d := -markerArm; d <= markerArm; d++ {
		for w := -markerWidth / 2; w <= markerWidth/2; w++ {
			setIn(img, area, x+d+w, y+d, col)
			setIn(img, area, x+d+w, y-d, col)
		}
	}
}

func setIn(img *image.RGBA, area image.Rectangle, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(area) {
		img.SetRGBA(x, y, c)
	}
}

func round(v float64) int {
	return int(math.Round(v))
}

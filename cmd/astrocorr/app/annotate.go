package app

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi      = 72.0
	fontSize = 18.0
	spacing  = 1.4

	infoPadding = 10
	markerArm   = 24
	markerWidth = 2
)

type Annotator struct {
	context *freetype.Context
	size    float64
}

func NewAnnotator(size float64) (*Annotator, error) {
	parsedFont, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}
	if size <= 0 {
		size = fontSize
	}

	context := freetype.NewContext()
	context.SetDPI(dpi)
	context.SetFont(parsedFont)
	context.SetFontSize(size)
	context.SetSrc(image.White)
	context.SetHinting(font.HintingFull)

	return &Annotator{context: context, size: size}, nil
}

// InfoHeight is the height of a bar holding n lines of text
func (a *Annotator) InfoHeight(n int) int {
	return int(float64(n)*a.size*spacing) + 2*infoPadding
}

// DrawInfo writes lines into the bar occupying the bottom of img
func (a *Annotator) DrawInfo(img *image.RGBA, lines []string) error {
	bounds := img.Bounds()
	bar := image.Rect(bounds.Min.X, bounds.Max.Y-a.InfoHeight(len(lines)), bounds.Max.X, bounds.Max.Y)
	draw.Draw(img, bar, image.Black, image.Point{}, draw.Src)

	a.context.SetClip(bar)
	a.context.SetDst(img)

	pt := freetype.Pt(bar.Min.X+infoPadding, bar.Min.Y+infoPadding+int(a.size))
	for _, s := range lines {
		if _, err := a.context.DrawString(s, pt); err != nil {
			return fmt.Errorf("drawing %q: %w", s, err)
		}
		pt.Y += a.context.PointToFixed(a.size * spacing)
	}

	return nil
}

// DrawLabel writes s next to the pixel x, y
func (a *Annotator) DrawLabel(img *image.RGBA, area image.Rectangle, x, y int, s string) error {
	a.context.SetClip(area)
	a.context.SetDst(img)

	_, err := a.context.DrawString(s, freetype.Pt(x+markerArm+4, y-4))
	return err
}
